package core

// sweep.go reclaims abandoned jobs. There is no explicit cancel call: a
// job the client stops driving simply expires. Session entries expire via
// the KV store's TTL; this sweeper deletes the expired entries plus any
// export or upload files whose sessions are gone.
//
// The sweeper is long-running and context-aware for graceful shutdown.
// Individual sweep failures are logged, never fatal.

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pkoster/batchline/internal/kv"
)

// Sweeper periodically reclaims expired sessions and orphaned job files.
type Sweeper struct {
	store    kv.Store
	dirs     []string      // Directories holding export/upload artifacts
	maxAge   time.Duration // Files older than this are orphans
	interval time.Duration
}

// NewSweeper creates a sweeper over the session store and artifact
// directories. maxAge should be at least the longest session TTL so files
// of live sessions are never reclaimed.
func NewSweeper(store kv.Store, dirs []string, maxAge, interval time.Duration) *Sweeper {
	return &Sweeper{store: store, dirs: dirs, maxAge: maxAge, interval: interval}
}

// Run starts the sweep loop. It runs one sweep immediately, then every
// interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	slog.Info("sweeper started", "interval", s.interval, "max_age", s.maxAge)

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep performs one reclaim cycle.
func (s *Sweeper) sweep(ctx context.Context) {
	start := time.Now()

	removed, err := s.store.Sweep(ctx)
	if err != nil {
		slog.Error("session sweep failed", "error", err)
	} else if removed > 0 {
		slog.Info("swept expired sessions", "removed", removed)
	}

	files := 0
	for _, dir := range s.dirs {
		files += s.sweepDir(dir)
	}
	if files > 0 {
		slog.Info("removed orphaned job files",
			"files", files,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// sweepDir removes files in dir older than maxAge.
// Returns the number of files removed.
func (s *Sweeper) sweepDir(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("sweep read dir failed", "dir", dir, "error", err)
		}
		return 0
	}

	cutoff := time.Now().Add(-s.maxAge)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			slog.Error("sweep remove failed", "path", path, "error", err)
			continue
		}
		removed++
	}

	return removed
}
