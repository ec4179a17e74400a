package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/resibo-ph/resibo/internal/common"
)

// Tesseract shells out to the tesseract binary. Text comes from a plain
// stdout run; confidence is the mean word confidence from a second TSV run.
type Tesseract struct {
	bin         string
	lang        string
	tessdataDir string
	psm         int
	oem         int
	timeout     time.Duration
	runner      Runner
	logger      *slog.Logger
}

func NewTesseract(cfg common.OCRConfig, logger *slog.Logger) *Tesseract {
	if logger == nil {
		logger = slog.Default()
	}
	bin := cfg.Tesseract
	if bin == "" {
		bin = "tesseract"
	}
	lang := cfg.TesseractLang
	if lang == "" {
		lang = "eng"
	}
	return &Tesseract{
		bin:         bin,
		lang:        lang,
		tessdataDir: cfg.TessdataDir,
		psm:         cfg.PSM,
		oem:         cfg.OEM,
		timeout:     cfg.EngineTimeout,
		runner:      newExecRunner(logger),
		logger:      logger,
	}
}

func (t *Tesseract) Name() string { return EngineTesseract }

func (t *Tesseract) Extract(ctx context.Context, image []byte) Attempt {
	attempt := Attempt{Engine: t.Name()}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	path, cleanup, err := writeTempImage(image)
	if err != nil {
		attempt.Err = fmt.Sprintf("tempfile: %v", err)
		return attempt
	}
	defer cleanup()

	out, errb, err := t.runner.Run(ctx, t.bin, t.args(path)...)
	if err != nil {
		attempt.Err = fmt.Sprintf("tesseract: %v: %s", err, truncate(string(errb), 512))
		return attempt
	}
	attempt.Text = Normalize(string(out))

	if conf, err := t.tsvConfidence(ctx, path); err == nil && conf > 0 {
		attempt.Confidence = &conf
	} else if err != nil {
		t.logger.Debug("tesseract tsv confidence unavailable", "error", err)
	}
	return attempt
}

func (t *Tesseract) args(path string, extra ...string) []string {
	args := []string{path, "stdout", "-l", t.lang}
	if t.psm > 0 {
		args = append(args, "--psm", strconv.Itoa(t.psm))
	}
	if t.oem > 0 {
		args = append(args, "--oem", strconv.Itoa(t.oem))
	}
	if t.tessdataDir != "" {
		args = append(args, "--tessdata-dir", t.tessdataDir)
	}
	return append(args, extra...)
}

// tsvConfidence runs tesseract in TSV mode and returns mean word conf in 0..1.
func (t *Tesseract) tsvConfidence(ctx context.Context, path string) (float32, error) {
	out, errb, err := t.runner.Run(ctx, t.bin, t.args(path, "tsv")...)
	if err != nil {
		return 0, fmt.Errorf("tesseract tsv: %w: %s", err, truncate(string(errb), 512))
	}
	return meanTSVConfidence(string(out)), nil
}

// meanTSVConfidence averages the conf column of tesseract TSV output,
// skipping the header and non-word rows (conf == -1).
func meanTSVConfidence(tsv string) float32 {
	var sum, n float64
	for i, ln := range strings.Split(tsv, "\n") {
		if i == 0 || len(ln) == 0 {
			continue
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		confStr := cols[len(cols)-2]
		if confStr == "" || confStr == "-1" {
			continue
		}
		if v, err := strconv.ParseFloat(confStr, 64); err == nil {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float32(sum / n / 100.0)
}

func writeTempImage(image []byte) (string, func(), error) {
	dir, err := os.MkdirTemp("", "resibo-ocr-*")
	if err != nil {
		return "", nil, err
	}
	path := filepath.Join(dir, "receipt.img")
	if err := os.WriteFile(path, image, 0o600); err != nil {
		_ = os.RemoveAll(dir)
		return "", nil, err
	}
	return path, func() { _ = os.RemoveAll(dir) }, nil
}
