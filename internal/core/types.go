// Package core implements the resumable batch-operation engine.
// This package has no HTTP dependencies and can be driven by any transport.
package core

import (
	"context"
	"time"
)

// Kind identifies the flavor of a batch job.
type Kind string

const (
	KindExport Kind = "export"
	KindImport Kind = "import"
	KindSync   Kind = "sync"
)

// OutcomeKind classifies what happened to a single processed item.
//
// The zero value is deliberately invalid: an item processor must return one
// of the named outcomes, and anything else is reported as a failed item
// rather than being silently promoted to Created.
type OutcomeKind int

const (
	OutcomeInvalid OutcomeKind = iota
	OutcomeCreated
	OutcomeUpdated
	OutcomeSkipped
	OutcomeFailed
)

// Outcome is the tagged result of processing one item.
type Outcome struct {
	Kind   OutcomeKind
	Reason string // Set for OutcomeFailed and optionally OutcomeSkipped
}

// Created reports a newly created record.
func Created() Outcome { return Outcome{Kind: OutcomeCreated} }

// Updated reports an existing record that was modified.
func Updated() Outcome { return Outcome{Kind: OutcomeUpdated} }

// Skipped reports an item that was intentionally not processed.
func Skipped(reason string) Outcome { return Outcome{Kind: OutcomeSkipped, Reason: reason} }

// Failed reports an item that could not be processed.
func Failed(reason string) Outcome { return Outcome{Kind: OutcomeFailed, Reason: reason} }

// ItemProcessor handles one canonical item and classifies the result.
// A returned error or a panic is converted to a failed item; it never
// aborts the rest of the batch.
type ItemProcessor func(ctx context.Context, item map[string]string) (Outcome, error)

// RowValidator is an optional pre-validation hook run before the item
// processor. A non-nil error short-circuits the item straight to failed
// without invoking the processor.
type RowValidator func(item map[string]string) error

// Page is one slice of an external paginated API response.
type Page struct {
	Items   []map[string]string
	HasMore bool
	Cursor  string // Opaque; passed back unchanged on the next call
	Total   int    // -1 if the remote has not reported a total yet
}

// CursorFetch retrieves one page from an external API. The cursor is an
// opaque string the engine never interprets.
type CursorFetch func(ctx context.Context, cursor string, limit int) (Page, error)

// Snapshot is the immutable filter state captured when a job starts.
// It is never re-read from later requests.
type Snapshot struct {
	Filters  map[string]string `json:"filters,omitempty"`
	DateFrom string            `json:"dateFrom,omitempty"`
	DateTo   string            `json:"dateTo,omitempty"`
}

// ExportFetch retrieves one offset-based slice of host records matching the
// snapshot. Returns the rows and whether more remain past offset+limit.
type ExportFetch func(ctx context.Context, snap Snapshot, offset, limit int) ([]map[string]string, bool, error)

// ExportCount returns the exact number of records the snapshot matches.
// Called once at export start to size the job.
type ExportCount func(ctx context.Context, snap Snapshot) (int, error)

// FieldSpec declares one canonical field of an import or export operation.
type FieldSpec struct {
	Name     string // Canonical field name
	Label    string // Human-readable column label for exported CSV headers
	Required bool
	Default  string // Substituted when the sanitized value is empty

	// Sanitize is a pure function declared once per operation, applied to
	// every raw value before defaulting.
	Sanitize func(string) string
}

// OperationDefinition describes one configured export/import/sync operation.
//
// Definitions live in a process-local registry keyed by Ref and are looked
// up fresh on every call; a job session stores only the Ref, never the
// callbacks themselves.
type OperationDefinition struct {
	Ref    string
	Kind   Kind
	Label  string
	Fields []FieldSpec

	Process  ItemProcessor // Import and sync
	Validate RowValidator  // Optional, import only
	Fetch    CursorFetch   // Sync only
	Export   ExportFetch   // Export only
	Count    ExportCount   // Export only
}

// FieldNames returns the canonical field names in declaration order.
func (d OperationDefinition) FieldNames() []string {
	names := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		names[i] = f.Name
	}
	return names
}

// HeaderLabels returns the CSV header labels in field declaration order,
// falling back to the field name when no label is set.
func (d OperationDefinition) HeaderLabels() []string {
	labels := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		if f.Label != "" {
			labels[i] = f.Label
		} else {
			labels[i] = f.Name
		}
	}
	return labels
}

// JobSession is the externally persisted state of one in-flight job.
//
// The filter/date/mapping snapshot is immutable after start: sessions are
// written once by Start, read on every batch call, and deleted by Complete
// or the TTL sweep. Only operation stats mutate per batch, and those live
// outside the session.
type JobSession struct {
	Token        string            `json:"token"`
	Kind         Kind              `json:"kind"`
	OperationRef string            `json:"operationRef"`
	Snapshot     Snapshot          `json:"snapshot"`
	TotalItems   int               `json:"totalItems"` // -1 when unknown (sync)
	SinkPath     string            `json:"sinkPath,omitempty"`
	SourcePath   string            `json:"sourcePath,omitempty"`
	FieldMap     map[string]string `json:"fieldMap,omitempty"` // canonical field -> CSV column
	Headers      []string          `json:"headers,omitempty"`  // resolved CSV header, captured at start
	CreatedAt    time.Time         `json:"createdAt"`
	TTL          time.Duration     `json:"ttl"`
}

// ItemError records one failed item within a run.
type ItemError struct {
	Line    int    `json:"line"` // Physical source line, header on line 1; 0 if not row-based
	Message string `json:"message"`
}

// BatchResult is the transient outcome of one batch call. It is returned
// to the caller and folded into the operation stats, never persisted.
type BatchResult struct {
	Processed  int         `json:"processed"`
	Created    int         `json:"created"`
	Updated    int         `json:"updated"`
	Skipped    int         `json:"skipped"`
	Failed     int         `json:"failed"`
	Errors     []ItemError `json:"errors,omitempty"`
	HasMore    bool        `json:"hasMore"`
	NextOffset int         `json:"nextOffset,omitempty"`
	NextCursor string      `json:"nextCursor,omitempty"`
	Total      int         `json:"total"` // -1 if still unknown
}
