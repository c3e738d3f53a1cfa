package web

// errors.go provides unified error response handling for the web layer.
//
// Every orchestrator error is logged with full technical detail and request
// ID, then returned to the client as a user-friendly JSON body with a
// support code. The HTTP status reflects the engine's error taxonomy:
// expired sessions are 410 (recoverable, restart the job), unknown
// operations are 404, configuration faults are 500, and batch-level source
// or sink failures are 502 so the client knows the batch is retryable.

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/pkoster/batchline/internal/core"
	"github.com/pkoster/batchline/internal/logging"
)

// ErrorResponse is the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError maps err onto the taxonomy, logs it, and writes JSON.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	userMsg := core.MapError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// statusForError maps engine sentinels to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, core.ErrSessionExpired):
		return http.StatusGone
	case errors.Is(err, core.ErrInvalidOperation):
		return http.StatusNotFound
	case errors.Is(err, core.ErrMissingCallback):
		return http.StatusInternalServerError
	case errors.Is(err, core.ErrSourceFetch), errors.Is(err, core.ErrSinkIO):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondBadRequest reports a malformed request without taxonomy mapping.
func respondBadRequest(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   message,
		Message: message,
		Code:    "REQ001",
	})
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
