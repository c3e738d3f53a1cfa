package core

import (
	"context"
	"sync"
	"time"
)

// MemoryStatsStore keeps operation stats in process memory.
// Used in tests and single-node deployments; multi-instance deployments
// use PGStatsStore so every instance sees the same counters.
type MemoryStatsStore struct {
	mu         sync.RWMutex
	stats      map[string]OperationStats
	errorsCap  int
	historyCap int
}

// NewMemoryStatsStore creates an in-memory stats store with the given
// error-list and history capacities.
func NewMemoryStatsStore(errorsCap, historyCap int) *MemoryStatsStore {
	return &MemoryStatsStore{
		stats:      make(map[string]OperationStats),
		errorsCap:  errorsCap,
		historyCap: historyCap,
	}
}

// InitRun zeroes counters for a new run.
func (m *MemoryStatsStore) InitRun(_ context.Context, ref, source string, totalHint int) (OperationStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := applyInit(m.stats[ref], source, totalHint)
	m.stats[ref] = stats
	return stats, nil
}

// ApplyBatch folds one batch result into the counters.
func (m *MemoryStatsStore) ApplyBatch(_ context.Context, ref string, result BatchResult) (OperationStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := applyBatch(m.stats[ref], result, m.errorsCap)
	m.stats[ref] = stats
	return stats, nil
}

// CompleteRun freezes the run into history.
func (m *MemoryStatsStore) CompleteRun(_ context.Context, ref string, status RunStatus, duration time.Duration) (OperationStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := applyComplete(m.stats[ref], status, duration, m.historyCap)
	m.stats[ref] = stats
	return stats, nil
}

// Get returns a snapshot of the stats for ref.
func (m *MemoryStatsStore) Get(_ context.Context, ref string) (OperationStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats[ref], nil
}
