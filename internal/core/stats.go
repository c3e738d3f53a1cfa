package core

// stats.go maintains per-operation running counters, a bounded error list,
// and a bounded history of past runs. Stats outlive any single job session:
// counters reset at the start of each run, history accumulates across runs.
//
// Reads are eventually-consistent snapshots. A dashboard can read stats at
// any time without blocking an in-flight batch.

import (
	"context"
	"time"
)

// RunStatus is the lifecycle state of an operation run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusComplete  RunStatus = "complete"
	StatusCancelled RunStatus = "cancelled"
	StatusError     RunStatus = "error"
)

// RunSummary is one frozen history entry for a finished run.
type RunSummary struct {
	Source     string        `json:"source"`
	Created    int           `json:"created"`
	Updated    int           `json:"updated"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Total      int           `json:"total"`
	Status     RunStatus     `json:"status"`
	Duration   time.Duration `json:"duration"`
	FinishedAt time.Time     `json:"finishedAt"`
}

// OperationStats tracks one operation across all of its historical runs.
type OperationStats struct {
	Created  int    `json:"created"`
	Updated  int    `json:"updated"`
	Skipped  int    `json:"skipped"`
	Failed   int    `json:"failed"`
	Total    int    `json:"total"` // -1 until the source reports a total
	RunCount int    `json:"runCount"`
	Source   string `json:"source"`

	// Errors is bounded: oldest entries are dropped on overflow.
	Errors []ItemError `json:"errors,omitempty"`

	// History is bounded and most-recent-first.
	History []RunSummary `json:"history,omitempty"`

	LastRun    time.Time     `json:"lastRun"`
	LastStatus RunStatus     `json:"lastStatus,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Processed returns the number of items accounted for so far.
func (s OperationStats) Processed() int {
	return s.Created + s.Updated + s.Skipped + s.Failed
}

// Percent returns completion as 0-100. Dividing by max(total, processed)
// keeps the result at or below 100 even when the source underestimated its
// total, and avoids dividing by zero when the total is unknown.
func (s OperationStats) Percent() int {
	processed := s.Processed()
	denom := s.Total
	if processed > denom {
		denom = processed
	}
	if denom <= 0 {
		return 0
	}
	return processed * 100 / denom
}

// StatsStore persists operation stats keyed by operation ref.
type StatsStore interface {
	// InitRun zeroes the counters for a new run, bumps the run count, and
	// records the source label and total hint (-1 if unknown).
	InitRun(ctx context.Context, ref, source string, totalHint int) (OperationStats, error)

	// ApplyBatch folds one batch result into the running counters, appends
	// its errors to the bounded list, and raises the total if the batch
	// observed a larger one.
	ApplyBatch(ctx context.Context, ref string, result BatchResult) (OperationStats, error)

	// CompleteRun freezes the current counters into a history entry
	// (prepended, truncated to capacity) and records the final status.
	CompleteRun(ctx context.Context, ref string, status RunStatus, duration time.Duration) (OperationStats, error)

	// Get returns a snapshot of the stats for ref. Unknown refs return
	// zero-valued stats, not an error.
	Get(ctx context.Context, ref string) (OperationStats, error)
}

// applyInit implements the shared InitRun mutation.
func applyInit(stats OperationStats, source string, totalHint int) OperationStats {
	stats.Created = 0
	stats.Updated = 0
	stats.Skipped = 0
	stats.Failed = 0
	stats.Total = totalHint
	stats.RunCount++
	stats.Source = source
	stats.Errors = nil
	stats.LastRun = time.Now().UTC()
	stats.LastStatus = StatusRunning
	stats.Duration = 0
	return stats
}

// applyBatch implements the shared ApplyBatch mutation with a bounded
// error list (drop oldest on overflow).
func applyBatch(stats OperationStats, result BatchResult, errorsCap int) OperationStats {
	stats.Created += result.Created
	stats.Updated += result.Updated
	stats.Skipped += result.Skipped
	stats.Failed += result.Failed

	// A sync source may report its total late or revise it upward mid-run.
	// Totals are never lowered.
	if result.Total > stats.Total {
		stats.Total = result.Total
	}

	stats.Errors = append(stats.Errors, result.Errors...)
	if len(stats.Errors) > errorsCap {
		stats.Errors = stats.Errors[len(stats.Errors)-errorsCap:]
	}

	return stats
}

// applyComplete implements the shared CompleteRun mutation with a bounded,
// most-recent-first history.
func applyComplete(stats OperationStats, status RunStatus, duration time.Duration, historyCap int) OperationStats {
	summary := RunSummary{
		Source:     stats.Source,
		Created:    stats.Created,
		Updated:    stats.Updated,
		Skipped:    stats.Skipped,
		Failed:     stats.Failed,
		Total:      stats.Total,
		Status:     status,
		Duration:   duration,
		FinishedAt: time.Now().UTC(),
	}

	stats.History = append([]RunSummary{summary}, stats.History...)
	if len(stats.History) > historyCap {
		stats.History = stats.History[:historyCap]
	}

	stats.LastStatus = status
	stats.Duration = duration
	return stats
}
