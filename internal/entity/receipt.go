package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/resibo-ph/resibo/constants"
)

// ExtractionResult is the canonical OCR outcome for one receipt image.
// Immutable once attached to a job.
type ExtractionResult struct {
	Text         string   `json:"text"`
	Confidence   *float32 `json:"confidence,omitempty"` // 0..1, engine-reported
	EngineUsed   string   `json:"engine_used,omitempty"`
	Attempted    []string `json:"engines_attempted,omitempty"`
	Consensus    bool     `json:"consensus"`
	TotalFailure bool     `json:"total_failure"`
}

// ParsedFields holds the heuristically extracted receipt fields. Every field
// is independently optional; partial extraction is expected and valid.
type ParsedFields struct {
	Merchant     *string  `json:"merchant,omitempty"`
	MerchantNorm *string  `json:"merchant_normalized,omitempty"`
	Date         *string  `json:"date,omitempty"` // ISO YYYY-MM-DD
	Total        *float64 `json:"total,omitempty"`
}

// ClassificationResult is the categorical decision for one receipt.
type ClassificationResult struct {
	Category   string                         `json:"category"`
	Source     constants.ClassificationSource `json:"source"`
	Confidence float64                        `json:"confidence"` // always in [0,1]
}

// Receipt is the denormalized, queryable record written when a job completes.
// It backs the list/stats/export read side.
type Receipt struct {
	ID            uuid.UUID  `json:"id"`
	UserID        string     `json:"-"`
	Merchant      *string    `json:"merchant,omitempty"`
	MerchantNorm  *string    `json:"merchant_normalized,omitempty"`
	TxDate        *string    `json:"date,omitempty"`
	Total         *float64   `json:"total,omitempty"`
	Category      string     `json:"category"`
	Source        string     `json:"category_source"`
	Confidence    float64    `json:"confidence"`
	OCRConfidence *float32   `json:"ocr_confidence,omitempty"`
	OCRText       string     `json:"text,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
