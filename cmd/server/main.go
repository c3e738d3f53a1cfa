package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/pkoster/batchline/internal/config"
	"github.com/pkoster/batchline/internal/core"
	"github.com/pkoster/batchline/internal/kv"
	"github.com/pkoster/batchline/internal/logging"
	"github.com/pkoster/batchline/internal/ops"
	"github.com/pkoster/batchline/internal/remote"
	"github.com/pkoster/batchline/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"batch_size", cfg.Jobs.BatchSize,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	// Parse and configure connection pool
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}

	// Apply pool configuration from config
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	// Connect to database
	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		dbName := strings.TrimPrefix(u.Path, "/")
		slog.Info("connected to database", "name", dbName)
	} else {
		slog.Info("connected to database")
	}

	// Session state and stats live in Postgres so jobs survive restarts
	store := kv.NewPGStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		slog.Error("failed to create kv schema", "error", err)
		os.Exit(1)
	}

	stats := core.NewPGStatsStore(pool, cfg.Jobs.ErrorsCapacity, cfg.Jobs.HistoryCapacity)
	if err := stats.EnsureSchema(ctx); err != nil {
		slog.Error("failed to create stats schema", "error", err)
		os.Exit(1)
	}

	if err := ops.EnsureSchema(ctx, pool); err != nil {
		slog.Error("failed to create operation schema", "error", err)
		os.Exit(1)
	}

	// Working directories for export output and import uploads
	for _, dir := range []string{cfg.Jobs.ExportsDir, cfg.Jobs.UploadsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("failed to create data directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	// Register shipped operations. Sync operations need a remote client
	// and are skipped when no base URL is configured.
	var remoteClient *remote.Client
	if cfg.Remote.BaseURL != "" {
		remoteClient = remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.APIKey, cfg.Remote.Timeout)
	}

	registry := core.NewRegistry()
	ops.RegisterAll(registry, ops.Deps{
		Pool:     pool,
		Remote:   remoteClient,
		PageSize: cfg.Remote.PageSize,
	})

	slog.Info("operations registered", "count", registry.Count())
	for _, def := range registry.All() {
		slog.Debug("operation", "ref", def.Ref, "kind", def.Kind)
	}

	sessions := core.NewSessionStore(store)
	orchestrator := core.NewOrchestrator(registry, sessions, stats, core.Options{
		BatchSize:  cfg.Jobs.BatchSize,
		ExportTTL:  cfg.Jobs.ExportTTL,
		ImportTTL:  cfg.Jobs.ImportTTL,
		ExportsDir: cfg.Jobs.ExportsDir,
	})

	// Create server with config
	server := web.NewServer(orchestrator, registry, cfg)

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())

	// Reclaim expired sessions and orphaned files in the background.
	// Files older than the longest session TTL can no longer be reached.
	sweeper := core.NewSweeper(store,
		[]string{cfg.Jobs.ExportsDir, cfg.Jobs.UploadsDir},
		cfg.Jobs.ImportTTL, cfg.Jobs.SweepInterval)
	go sweeper.Run(jobCtx)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		// Stop background jobs
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	// Start server (uses addr from config internally)
	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
