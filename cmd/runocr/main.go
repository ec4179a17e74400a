// runocr runs the configured OCR engines over one image file and prints the
// extraction result. Useful for tuning engine configuration without the
// full daemon.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"log/slog"

	"github.com/joho/godotenv"

	"github.com/resibo-ph/resibo/internal/common"
	"github.com/resibo-ph/resibo/internal/fields"
	"github.com/resibo-ph/resibo/internal/ocr"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		logger.Error("usage", "cmd", "runocr <image-path>")
		os.Exit(2)
	}
	img, err := os.ReadFile(os.Args[1])
	if err != nil {
		logger.Error("read image", "path", os.Args[1], "error", err)
		os.Exit(1)
	}

	cfg := common.LoadConfig()
	primaries, crosscheck, err := ocr.BuildEngines(cfg.OCR, logger)
	if err != nil {
		logger.Error("configure ocr engines", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	extraction := ocr.NewService(primaries, crosscheck, cfg.OCR.AgreeThreshold, logger).Run(ctx, img)
	parsed := fields.NewExtractor(logger).Extract(extraction.Text)

	out, err := json.MarshalIndent(map[string]any{
		"extraction": extraction,
		"fields":     parsed,
	}, "", "  ")
	if err != nil {
		logger.Error("encode result", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
