// resibod is the receipt processing daemon: HTTP API plus the worker pool
// that drives uploaded images through OCR, field extraction, and
// classification.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/joho/godotenv"

	"github.com/resibo-ph/resibo/internal/classifier"
	"github.com/resibo-ph/resibo/internal/common"
	"github.com/resibo-ph/resibo/internal/export"
	"github.com/resibo-ph/resibo/internal/fields"
	"github.com/resibo-ph/resibo/internal/ocr"
	"github.com/resibo-ph/resibo/internal/pipeline"
	"github.com/resibo-ph/resibo/internal/repository"
	"github.com/resibo-ph/resibo/internal/rules"
	"github.com/resibo-ph/resibo/internal/server"
	"github.com/resibo-ph/resibo/internal/worker"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.Error("close database", "error", cerr)
		}
	}()

	ruleStore, err := rules.NewStore(cfg.Rules.Path, logger)
	if err != nil {
		logger.Error("load rule tables", "error", err)
		os.Exit(1)
	}
	if cfg.Rules.Watch && cfg.Rules.Path != "" {
		if err := ruleStore.Watch(); err != nil {
			logger.Warn("rule file watch unavailable", "error", err)
		}
		defer func() { _ = ruleStore.Close() }()
	}

	primaries, crosscheck, err := ocr.BuildEngines(cfg.OCR, logger)
	if err != nil {
		logger.Error("configure ocr engines", "error", err)
		os.Exit(1)
	}
	ocrService := ocr.NewService(primaries, crosscheck, cfg.OCR.AgreeThreshold, logger)

	model, err := classifier.LoadModel(cfg.Model.Path)
	if err != nil {
		logger.Error("load model artifact", "path", cfg.Model.Path, "error", err)
		os.Exit(1)
	}
	if model == nil {
		logger.Info("no model artifact; rules and fallback only", "path", cfg.Model.Path)
	}
	resolver := classifier.NewResolver(rules.NewEngine(ruleStore, logger), model, logger)

	processor := pipeline.NewProcessor(ocrService, fields.NewExtractor(logger), resolver, logger)

	jobs := repository.NewJobRepository(db, logger)
	receipts := repository.NewReceiptRepository(db, logger)

	pool := worker.NewPool(jobs, processor, cfg.Worker, logger)
	pool.Start()

	srv := server.NewServer(cfg, server.Deps{
		Jobs:     jobs,
		Receipts: receipts,
		Labels:   repository.NewLabelRepository(db, logger),
		Feedback: repository.NewFeedbackRepository(db, logger),
		Pool:     pool,
		Rules:    ruleStore,
		Resolver: resolver,
		Export:   export.NewService(receipts, logger),
	}, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	pool.Stop()
	logger.Info("bye")
}
