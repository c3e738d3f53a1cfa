package core

// errors.go defines the engine's error taxonomy and the mapping from
// technical errors to user-friendly messages with support codes.
//
// Structural errors (expired session, unknown operation, missing callback)
// are returned as distinct sentinel values so callers can branch on them.
// Per-item errors are never surfaced this way; they are recovered locally
// and aggregated into the bounded error list.

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSessionExpired means the job token is unknown or its TTL elapsed.
	// Recoverable: the client must restart the job. Prior completed batches
	// remain valid.
	ErrSessionExpired = errors.New("job session expired")

	// ErrInvalidOperation means the operation ref is not registered or its
	// kind does not match the requested job kind.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrMissingCallback means the operation definition lacks the processor
	// or fetch callback required for this job kind. Surfaced before any
	// source work happens; no partial progress is made.
	ErrMissingCallback = errors.New("operation callback not configured")

	// ErrSourceFetch means the row source (file read or external API call)
	// failed. Fatal for the current batch call only; the client may retry
	// the same batch.
	ErrSourceFetch = errors.New("row source fetch failed")

	// ErrSinkIO means writing the export CSV failed.
	ErrSinkIO = errors.New("csv sink write failed")
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user
// messages. Patterns are matched with strings.Contains and the first match
// wins, so more specific patterns come before general ones.
var errorPatterns = []errorPattern{
	// Session errors (SES001-SES099)
	{
		pattern: "session expired",
		msg: UserMessage{
			Message: "This job has expired",
			Action:  "Start the export or import again from the beginning",
			Code:    "SES001",
		},
	},
	{
		pattern: "session not found",
		msg: UserMessage{
			Message: "This job has expired",
			Action:  "Start the export or import again from the beginning",
			Code:    "SES001",
		},
	},

	// Operation definition errors (OPD001-OPD099)
	{
		pattern: "invalid operation",
		msg: UserMessage{
			Message: "Unknown export or import definition",
			Action:  "Reload the page and pick an operation from the list",
			Code:    "OPD001",
		},
	},
	{
		pattern: "callback not configured",
		msg: UserMessage{
			Message: "This operation is not fully configured",
			Action:  "Contact your administrator; the operation definition is incomplete",
			Code:    "OPD002",
		},
	},

	// Row source errors (SRC001-SRC099)
	{
		pattern: "source fetch failed",
		msg: UserMessage{
			Message: "Reading the source data failed",
			Action:  "Retry the current batch; progress so far is preserved",
			Code:    "SRC001",
		},
	},
	{
		pattern: "missing required column",
		msg: UserMessage{
			Message: "A required column is missing from the CSV",
			Action:  "Check that the field mapping covers every required field",
			Code:    "SRC002",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file has no data rows",
			Action:  "Upload a CSV with at least one row below the header",
			Code:    "SRC003",
		},
	},

	// Sink errors (SNK001-SNK099)
	{
		pattern: "sink write failed",
		msg: UserMessage{
			Message: "Writing the export file failed",
			Action:  "Retry the current batch; rows already written are preserved",
			Code:    "SNK001",
		},
	},
	{
		pattern: "download not found",
		msg: UserMessage{
			Message: "The export file is no longer available",
			Action:  "Export files are one-shot downloads; run the export again",
			Code:    "SNK002",
		},
	},

	// Database errors (DB001-DB099)
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Review the error list for duplicate rows",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the database",
			Action:  "Please try again in a few moments",
			Code:    "DB002",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "The operation timed out",
			Action:  "Retry with a smaller batch size or try again later",
			Code:    "DB003",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The request was cancelled",
			Action:  "Please try again",
			Code:    "DB004",
		},
	},
}

// MapError converts a technical error to a user-friendly message.
// Unmatched errors get a generic message with code GEN001.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{Message: "Success", Code: "OK"}
	}

	lower := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(lower, ep.pattern) {
			return ep.msg
		}
	}

	return UserMessage{
		Message: "An unexpected error occurred",
		Action:  "Please try again or contact support with the code below",
		Code:    "GEN001",
	}
}

// sourceFetchError wraps err so it matches ErrSourceFetch while keeping the
// underlying cause in the chain.
func sourceFetchError(err error) error {
	return fmt.Errorf("%w: %w", ErrSourceFetch, err)
}

// sinkError wraps err so it matches ErrSinkIO.
func sinkError(err error) error {
	return fmt.Errorf("%w: %w", ErrSinkIO, err)
}
