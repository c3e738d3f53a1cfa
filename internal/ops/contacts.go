package ops

import (
	"context"
	"fmt"

	"github.com/pkoster/batchline/internal/core"
)

// contactsSync pulls the remote contact directory into the contacts table.
// The remote paginates by opaque cursor and may not report its total until
// a later page.
func contactsSync(deps Deps) core.OperationDefinition {
	return core.OperationDefinition{
		Ref:   "contacts",
		Kind:  core.KindSync,
		Label: "Contacts",
		Fields: []core.FieldSpec{
			{Name: "external_id", Required: true},
			{Name: "email", Sanitize: NormalizeEmail},
			{Name: "full_name"},
			{Name: "company"},
		},
		Fetch: func(ctx context.Context, cursor string, limit int) (core.Page, error) {
			if limit > deps.PageSize {
				limit = deps.PageSize
			}
			page, err := deps.Remote.FetchPage(ctx, "/v1/contacts", cursor, limit)
			if err != nil {
				return core.Page{}, err
			}
			return core.Page{
				Items:   page.Items,
				HasMore: page.HasMore,
				Cursor:  page.Cursor,
				Total:   page.Total,
			}, nil
		},
		Process: func(ctx context.Context, item map[string]string) (core.Outcome, error) {
			if item["external_id"] == "" {
				return core.Failed("remote contact has no external_id"), nil
			}

			var inserted bool
			err := deps.Pool.QueryRow(ctx, `
				INSERT INTO contacts (external_id, email, full_name, company, synced_at)
				VALUES ($1, $2, $3, $4, now())
				ON CONFLICT (external_id) DO UPDATE
				SET email     = EXCLUDED.email,
				    full_name = EXCLUDED.full_name,
				    company   = EXCLUDED.company,
				    synced_at = now()
				RETURNING (xmax = 0)`,
				item["external_id"], item["email"], item["full_name"], item["company"],
			).Scan(&inserted)
			if err != nil {
				return core.Outcome{}, fmt.Errorf("upsert contact: %w", err)
			}

			if inserted {
				return core.Created(), nil
			}
			return core.Updated(), nil
		},
	}
}
