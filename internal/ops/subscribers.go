package ops

import (
	"context"
	"fmt"

	"github.com/pkoster/batchline/internal/core"
)

// subscribersImport maps uploaded CSV rows onto the subscribers table.
// Rows upsert by email: a new address is a created item, a known one is
// an updated item.
func subscribersImport(deps Deps) core.OperationDefinition {
	return core.OperationDefinition{
		Ref:   "subscribers",
		Kind:  core.KindImport,
		Label: "Subscribers",
		Fields: []core.FieldSpec{
			{Name: "email", Label: "Email", Required: true, Sanitize: NormalizeEmail},
			{Name: "first_name", Label: "First Name"},
			{Name: "last_name", Label: "Last Name"},
			{Name: "status", Label: "Status", Default: "active", Sanitize: NormalizeStatus},
			{Name: "plan", Label: "Plan"},
		},
		Validate: func(item map[string]string) error {
			return validateEmail(item["email"])
		},
		Process: func(ctx context.Context, item map[string]string) (core.Outcome, error) {
			// xmax = 0 distinguishes a fresh insert from a conflict update.
			var inserted bool
			err := deps.Pool.QueryRow(ctx, `
				INSERT INTO subscribers (email, first_name, last_name, status, plan)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (email) DO UPDATE
				SET first_name = EXCLUDED.first_name,
				    last_name  = EXCLUDED.last_name,
				    status     = EXCLUDED.status,
				    plan       = EXCLUDED.plan,
				    updated_at = now()
				RETURNING (xmax = 0)`,
				item["email"], item["first_name"], item["last_name"],
				item["status"], item["plan"],
			).Scan(&inserted)
			if err != nil {
				return core.Outcome{}, fmt.Errorf("upsert subscriber: %w", err)
			}

			if inserted {
				return core.Created(), nil
			}
			return core.Updated(), nil
		},
	}
}
