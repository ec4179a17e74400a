// Package pipeline runs one claimed job end to end: decode check, OCR with
// fallback and consensus, heuristic field extraction, and the two-stage
// category decision. Soft failures inside a stage degrade the result; the
// only fatal outcome is an image that cannot be decoded at all.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/google/uuid"

	"github.com/resibo-ph/resibo/internal/classifier"
	"github.com/resibo-ph/resibo/internal/entity"
	"github.com/resibo-ph/resibo/internal/fields"
	"github.com/resibo-ph/resibo/internal/ocr"
)

// ErrUndecodableImage is the single fatal pipeline outcome; its message is
// shown to the caller on the failed job.
type ErrUndecodableImage struct {
	Cause error
}

func (e *ErrUndecodableImage) Error() string {
	return "unsupported or corrupted image"
}

func (e *ErrUndecodableImage) Unwrap() error { return e.Cause }

// Processor wires the pipeline stages together.
type Processor struct {
	ocr      *ocr.Service
	fields   *fields.Extractor
	resolver *classifier.Resolver
	logger   *slog.Logger
}

func NewProcessor(ocrSvc *ocr.Service, fieldExtractor *fields.Extractor, resolver *classifier.Resolver, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		ocr:      ocrSvc,
		fields:   fieldExtractor,
		resolver: resolver,
		logger:   logger,
	}
}

// ProcessFile reads the stored upload and runs the pipeline over it.
func (p *Processor) ProcessFile(ctx context.Context, job *entity.Job) (*entity.PipelineResult, *entity.Receipt, error) {
	img, err := os.ReadFile(job.ImagePath)
	if err != nil {
		p.logger.Error("stored upload unreadable", "job_id", job.ID, "path", job.ImagePath, "error", err)
		return nil, nil, fmt.Errorf("read upload: %w", err)
	}
	return p.Process(ctx, job, img)
}

// Process runs the stages over raw image bytes. A *ErrUndecodableImage
// return carries the user-facing failure message; any other error is an
// internal fault (storage, context) and is reported generically.
func (p *Processor) Process(ctx context.Context, job *entity.Job, img []byte) (*entity.PipelineResult, *entity.Receipt, error) {
	if _, _, err := image.DecodeConfig(bytes.NewReader(img)); err != nil {
		p.logger.Warn("upload is not a decodable image", "job_id", job.ID, "error", err)
		return nil, nil, &ErrUndecodableImage{Cause: err}
	}

	extraction := p.ocr.Run(ctx, img)
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	parsed := p.fields.Extract(extraction.Text)

	merchantNorm := ""
	if parsed.MerchantNorm != nil {
		merchantNorm = *parsed.MerchantNorm
	}
	decision := p.resolver.Classify(extraction.Text, merchantNorm)

	result := &entity.PipelineResult{
		ReceiptID:      uuid.New(),
		Extraction:     extraction,
		Fields:         parsed,
		Classification: decision,
	}
	receipt := &entity.Receipt{
		ID:            result.ReceiptID,
		UserID:        job.UserID,
		Merchant:      parsed.Merchant,
		MerchantNorm:  parsed.MerchantNorm,
		TxDate:        parsed.Date,
		Total:         parsed.Total,
		Category:      decision.Category,
		Source:        string(decision.Source),
		Confidence:    decision.Confidence,
		OCRConfidence: extraction.Confidence,
		OCRText:       extraction.Text,
	}

	p.logger.Info("pipeline finished",
		"job_id", job.ID,
		"engine", extraction.EngineUsed,
		"consensus", extraction.Consensus,
		"total_failure", extraction.TotalFailure,
		"category", decision.Category,
		"source", decision.Source,
		"confidence", decision.Confidence)
	return result, receipt, nil
}
