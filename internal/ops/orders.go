package ops

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pkoster/batchline/internal/core"
)

// ordersExport streams the orders table out as CSV, honoring the status
// filter and date range captured in the job snapshot.
func ordersExport(deps Deps) core.OperationDefinition {
	return core.OperationDefinition{
		Ref:   "orders",
		Kind:  core.KindExport,
		Label: "Orders",
		Fields: []core.FieldSpec{
			{Name: "id", Label: "Order ID"},
			{Name: "customer_email", Label: "Customer Email"},
			{Name: "total", Label: "Total"},
			{Name: "currency", Label: "Currency"},
			{Name: "status", Label: "Status"},
			{Name: "created_at", Label: "Created At"},
		},
		Count: func(ctx context.Context, snap core.Snapshot) (int, error) {
			where, args := orderFilters(snap)
			var count int
			err := deps.Pool.QueryRow(ctx,
				`SELECT count(*) FROM orders`+where, args...).Scan(&count)
			if err != nil {
				return 0, fmt.Errorf("count orders: %w", err)
			}
			return count, nil
		},
		Export: func(ctx context.Context, snap core.Snapshot, offset, limit int) ([]map[string]string, bool, error) {
			where, args := orderFilters(snap)

			// One extra row past the batch detects whether more remain.
			query := fmt.Sprintf(
				`SELECT id::text, customer_email, total::text, currency, status,
				        to_char(created_at, 'YYYY-MM-DD"T"HH24:MI:SSOF') AS created_at
				 FROM orders%s
				 ORDER BY id
				 LIMIT $%d OFFSET $%d`,
				where, len(args)+1, len(args)+2)
			args = append(args, limit+1, offset)

			rows, err := deps.Pool.Query(ctx, query, args...)
			if err != nil {
				return nil, false, fmt.Errorf("query orders: %w", err)
			}
			defer rows.Close()

			items, err := collectOrderRows(rows)
			if err != nil {
				return nil, false, err
			}

			hasMore := len(items) > limit
			if hasMore {
				items = items[:limit]
			}
			return items, hasMore, nil
		},
	}
}

// orderFilters builds the WHERE clause for the snapshot's status filter
// and date range. Returns the clause (possibly empty) and its arguments.
func orderFilters(snap core.Snapshot) (string, []any) {
	var clauses []string
	var args []any

	if status := snap.Filters["status"]; status != "" {
		args = append(args, status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if snap.DateFrom != "" {
		args = append(args, snap.DateFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d::date", len(args)))
	}
	if snap.DateTo != "" {
		args = append(args, snap.DateTo)
		clauses = append(clauses, fmt.Sprintf("created_at < $%d::date + interval '1 day'", len(args)))
	}

	if len(clauses) == 0 {
		return "", nil
	}

	where := " WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		where += " AND " + c
	}
	return where, args
}

// collectOrderRows scans the export query results into string maps.
func collectOrderRows(rows pgx.Rows) ([]map[string]string, error) {
	var items []map[string]string
	for rows.Next() {
		var id, email, total, currency, status, createdAt string
		if err := rows.Scan(&id, &email, &total, &currency, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		items = append(items, map[string]string{
			"id":             id,
			"customer_email": email,
			"total":          total,
			"currency":       currency,
			"status":         status,
			"created_at":     createdAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return items, nil
}
