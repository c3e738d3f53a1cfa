// Package ops defines the concrete export/import/sync operations this
// deployment ships with and registers them with the core registry.
//
// Each operation binds callbacks over the host database (or the remote
// API) into a core.OperationDefinition. Definitions stay in the
// process-local registry; job sessions reference them only by ref.
package ops

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pkoster/batchline/internal/core"
	"github.com/pkoster/batchline/internal/remote"
)

// Deps carries the collaborators the operation callbacks close over.
type Deps struct {
	Pool     *pgxpool.Pool
	Remote   *remote.Client
	PageSize int
}

// RegisterAll adds every shipped operation to the registry.
func RegisterAll(reg *core.Registry, deps Deps) {
	reg.Register(subscribersImport(deps))
	reg.Register(ordersExport(deps))
	if deps.Remote != nil {
		reg.Register(contactsSync(deps))
	}
}

// EnsureSchema creates the host tables the shipped operations write to.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS subscribers (
			id         BIGSERIAL PRIMARY KEY,
			email      TEXT NOT NULL UNIQUE,
			first_name TEXT NOT NULL DEFAULT '',
			last_name  TEXT NOT NULL DEFAULT '',
			status     TEXT NOT NULL DEFAULT 'active',
			plan       TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id             BIGSERIAL PRIMARY KEY,
			customer_email TEXT NOT NULL,
			total          NUMERIC(12,2) NOT NULL DEFAULT 0,
			currency       TEXT NOT NULL DEFAULT 'USD',
			status         TEXT NOT NULL DEFAULT 'pending',
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS contacts (
			id          BIGSERIAL PRIMARY KEY,
			external_id TEXT NOT NULL UNIQUE,
			email       TEXT NOT NULL DEFAULT '',
			full_name   TEXT NOT NULL DEFAULT '',
			company     TEXT NOT NULL DEFAULT '',
			synced_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
