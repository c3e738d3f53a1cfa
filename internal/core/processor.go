package core

// processor.go dispatches per-item processing and classifies the outcomes
// of one batch. One bad item never aborts the batch: processor errors and
// panics are recovered into failed items and recorded in the result.

import (
	"context"
	"fmt"
	"log/slog"
)

// batchItem pairs a canonical item with its source line for error reporting.
type batchItem struct {
	line int
	data map[string]string
}

// ProcessBatch runs every item through the optional pre-validation hook and
// the item processor, tallying the classified outcomes.
//
// The processor's tagged Outcome return is mandatory: returning the zero
// Outcome (or any unknown value) is a classification error counted as a
// failed item, not silently promoted to created.
func ProcessBatch(ctx context.Context, items []batchItem, processor ItemProcessor, validate RowValidator) BatchResult {
	result := BatchResult{Total: -1}

	for _, item := range items {
		result.Processed++

		if validate != nil {
			if err := validate(item.data); err != nil {
				result.Failed++
				result.Errors = append(result.Errors, ItemError{
					Line:    item.line,
					Message: err.Error(),
				})
				continue
			}
		}

		outcome := runProcessor(ctx, processor, item.data)
		switch outcome.Kind {
		case OutcomeCreated:
			result.Created++
		case OutcomeUpdated:
			result.Updated++
		case OutcomeSkipped:
			result.Skipped++
		case OutcomeFailed:
			result.Failed++
			result.Errors = append(result.Errors, ItemError{
				Line:    item.line,
				Message: outcome.Reason,
			})
		default:
			result.Failed++
			result.Errors = append(result.Errors, ItemError{
				Line:    item.line,
				Message: fmt.Sprintf("processor returned invalid outcome %d", outcome.Kind),
			})
		}
	}

	return result
}

// runProcessor invokes the item processor with panic recovery.
func runProcessor(ctx context.Context, processor ItemProcessor, item map[string]string) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in item processor", "panic", r)
			outcome = Failed(fmt.Sprintf("internal error: %v", r))
		}
	}()

	result, err := processor(ctx, item)
	if err != nil {
		return Failed(err.Error())
	}
	return result
}
