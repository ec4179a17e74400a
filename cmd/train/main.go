// train rebuilds the classifier artifact from the bootstrap corpus plus all
// accumulated feedback and writes it to MODEL_PATH.
package main

import (
	"context"
	"os"
	"time"

	"log/slog"

	"github.com/joho/godotenv"

	"github.com/resibo-ph/resibo/internal/classifier"
	"github.com/resibo-ph/resibo/internal/common"
	"github.com/resibo-ph/resibo/internal/repository"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var examples []classifier.Example
	if path := cfg.Model.BootstrapCSV; path != "" {
		if _, err := os.Stat(path); err == nil {
			bootstrap, err := classifier.ReadBootstrapCSV(path, logger)
			if err != nil {
				logger.Error("read bootstrap csv", "path", path, "error", err)
				os.Exit(1)
			}
			logger.Info("bootstrap corpus loaded", "path", path, "examples", len(bootstrap))
			examples = append(examples, bootstrap...)
		} else {
			logger.Info("no bootstrap csv", "path", path)
		}
	}

	db, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	records, err := repository.NewFeedbackRepository(db, logger).ListAll(ctx)
	if err != nil {
		logger.Error("read feedback", "error", err)
		os.Exit(1)
	}
	feedback := classifier.FeedbackExamples(records)
	logger.Info("feedback loaded", "examples", len(feedback))
	examples = append(examples, feedback...)

	if len(examples) == 0 {
		logger.Error("no training examples; provide BOOTSTRAP_CSV or accumulate feedback")
		os.Exit(1)
	}

	model, report, err := classifier.Train(examples, cfg.Model.HoldoutRatio, logger)
	if err != nil {
		logger.Error("training failed", "error", err)
		os.Exit(1)
	}
	if err := classifier.SaveModel(model, cfg.Model.Path); err != nil {
		logger.Error("save model artifact", "path", cfg.Model.Path, "error", err)
		os.Exit(1)
	}

	logger.Info("model artifact written",
		"path", cfg.Model.Path,
		"examples", report.Examples,
		"holdout", report.Holdout,
		"accuracy", report.Accuracy,
		"labels", report.Labels,
	)
}
