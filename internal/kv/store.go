// Package kv provides the process-external key/value store used to persist
// job session state between batch calls.
//
// Consecutive batch calls for the same job token may be served by different
// server instances, so production deployments use PGStore, which keeps
// entries in a shared PostgreSQL table. MemoryStore exists for tests and
// single-node deployments.
//
// Every entry carries a TTL. An expired entry is indistinguishable from a
// missing one: both return ErrNotFound. Expiry is a normal outcome (the
// user walked away from a job), not a fault.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when a key is missing or has expired.
var ErrNotFound = errors.New("kv: key not found")

// Store is a key/value store with per-entry TTL.
type Store interface {
	// Put stores value under key, replacing any existing entry.
	// The entry expires after ttl.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the value for key, or ErrNotFound if the key is missing
	// or its TTL has elapsed.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Sweep removes expired entries and returns how many were deleted.
	// Called periodically by the background sweeper.
	Sweep(ctx context.Context) (int, error)
}
