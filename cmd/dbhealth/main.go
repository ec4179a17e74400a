// dbhealth opens the configured store, pings it, and reports queue depth.
// Exit code 0 means healthy.
package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"log/slog"

	"github.com/joho/godotenv"

	"github.com/resibo-ph/resibo/internal/common"
	"github.com/resibo-ph/resibo/internal/repository"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	db, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.HealthCheck(ctx, 3*time.Second); err != nil {
		logger.Error("health check failed", "error", err)
		os.Exit(1)
	}

	counts, err := repository.NewJobRepository(db, logger).CountByStatus(ctx)
	if err != nil {
		logger.Error("queue depth query failed", "error", err)
		os.Exit(1)
	}

	logger.Info("database healthy", "dsn", cfg.Database.DSN)
	for status, count := range counts {
		logger.Info("queue depth", "status", string(status), "count", count)
	}
}
