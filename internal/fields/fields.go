// Package fields derives structured receipt fields (merchant, date, total)
// from normalized OCR text. Every field is independently optional: a miss is
// an absent pointer, never an error.
package fields

import (
	"log/slog"

	"github.com/resibo-ph/resibo/internal/entity"
)

type Extractor struct {
	logger *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Extract runs the three heuristics over one OCR text blob.
func (e *Extractor) Extract(text string) entity.ParsedFields {
	var out entity.ParsedFields
	if merchant := ExtractMerchant(text); merchant != "" {
		out.Merchant = &merchant
		if norm := NormalizeMerchant(merchant); norm != "" {
			out.MerchantNorm = &norm
		}
	}
	if date := ExtractDate(text); date != "" {
		out.Date = &date
	}
	if total, ok := ExtractTotal(text); ok {
		out.Total = &total
	}
	e.logger.Debug("fields extracted",
		"has_merchant", out.Merchant != nil,
		"has_date", out.Date != nil,
		"has_total", out.Total != nil)
	return out
}
