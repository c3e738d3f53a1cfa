package core

import (
	"context"
)

// CursorRowSource paginates over an external API through an operation's
// fetch callback.
//
// The cursor is opaque: the engine stores whatever string the remote
// returned and passes it back unchanged on the next call. The remote may
// not know its total on the first page; Total stays -1 until reported and
// is only ever revised upward by the stats aggregator.
type CursorRowSource struct {
	FetchPage CursorFetch
}

// Fetch retrieves one remote page.
// A fetch failure is fatal for this batch call only; the client may retry
// the same cursor without losing prior progress.
func (c *CursorRowSource) Fetch(ctx context.Context, pos Position, limit int) (Slice, error) {
	page, err := c.FetchPage(ctx, pos.Cursor, limit)
	if err != nil {
		return Slice{}, sourceFetchError(err)
	}

	slice := Slice{
		HasMore: page.HasMore,
		Next:    Position{Cursor: page.Cursor},
		Total:   page.Total,
	}
	for i, item := range page.Items {
		slice.Rows = append(slice.Rows, Row{Line: i + 1, Values: item})
	}
	return slice, nil
}
