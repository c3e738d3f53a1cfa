package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStatsStore persists operation stats in a PostgreSQL table so any
// instance can fold in a batch and any dashboard can read a snapshot.
//
// Stats for one ref are stored as a single JSONB document. Batch calls for
// one token are serialized by the client, so read-modify-write per ref is
// safe; concurrent readers get eventually-consistent snapshots.
type PGStatsStore struct {
	pool       *pgxpool.Pool
	errorsCap  int
	historyCap int
}

// NewPGStatsStore creates a PostgreSQL-backed stats store.
func NewPGStatsStore(pool *pgxpool.Pool, errorsCap, historyCap int) *PGStatsStore {
	return &PGStatsStore{pool: pool, errorsCap: errorsCap, historyCap: historyCap}
}

// EnsureSchema creates the backing table if it does not exist.
func (p *PGStatsStore) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS operation_stats (
			ref        TEXT PRIMARY KEY,
			stats      JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("create operation_stats table: %w", err)
	}
	return nil
}

// InitRun zeroes counters for a new run.
func (p *PGStatsStore) InitRun(ctx context.Context, ref, source string, totalHint int) (OperationStats, error) {
	return p.mutate(ctx, ref, func(stats OperationStats) OperationStats {
		return applyInit(stats, source, totalHint)
	})
}

// ApplyBatch folds one batch result into the counters.
func (p *PGStatsStore) ApplyBatch(ctx context.Context, ref string, result BatchResult) (OperationStats, error) {
	return p.mutate(ctx, ref, func(stats OperationStats) OperationStats {
		return applyBatch(stats, result, p.errorsCap)
	})
}

// CompleteRun freezes the run into history.
func (p *PGStatsStore) CompleteRun(ctx context.Context, ref string, status RunStatus, duration time.Duration) (OperationStats, error) {
	return p.mutate(ctx, ref, func(stats OperationStats) OperationStats {
		return applyComplete(stats, status, duration, p.historyCap)
	})
}

// Get returns a snapshot of the stats for ref.
// Unknown refs return zero-valued stats.
func (p *PGStatsStore) Get(ctx context.Context, ref string) (OperationStats, error) {
	var data []byte
	err := p.pool.QueryRow(ctx,
		`SELECT stats FROM operation_stats WHERE ref = $1`, ref).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return OperationStats{}, nil
	}
	if err != nil {
		return OperationStats{}, fmt.Errorf("load stats %q: %w", ref, err)
	}

	var stats OperationStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return OperationStats{}, fmt.Errorf("unmarshal stats %q: %w", ref, err)
	}
	return stats, nil
}

// mutate loads, transforms, and saves the stats document for ref.
func (p *PGStatsStore) mutate(ctx context.Context, ref string, fn func(OperationStats) OperationStats) (OperationStats, error) {
	stats, err := p.Get(ctx, ref)
	if err != nil {
		return OperationStats{}, err
	}

	stats = fn(stats)

	data, err := json.Marshal(stats)
	if err != nil {
		return OperationStats{}, fmt.Errorf("marshal stats %q: %w", ref, err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO operation_stats (ref, stats, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (ref) DO UPDATE
		SET stats = EXCLUDED.stats, updated_at = EXCLUDED.updated_at`,
		ref, data)
	if err != nil {
		return OperationStats{}, fmt.Errorf("save stats %q: %w", ref, err)
	}

	return stats, nil
}
