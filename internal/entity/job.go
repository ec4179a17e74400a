package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/resibo-ph/resibo/constants"
)

// Job represents one asynchronous pipeline run for an uploaded receipt image.
// Mutated only by the worker that claimed it; clients poll it by ID.
type Job struct {
	ID           uuid.UUID           `json:"id"`
	UserID       string              `json:"-"`
	Filename     string              `json:"filename"`
	ImagePath    string              `json:"-"`
	Status       constants.JobStatus `json:"status"`
	ErrorMessage *string             `json:"error,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	StartedAt    *time.Time          `json:"started_at,omitempty"`
	FinishedAt   *time.Time          `json:"finished_at,omitempty"`
	Result       *PipelineResult     `json:"result,omitempty"`
}

// PipelineResult is the payload attached to a completed job. It is written
// atomically with the status flip; a reader never observes a completed job
// without it.
type PipelineResult struct {
	ReceiptID      uuid.UUID            `json:"receipt_id"`
	Extraction     ExtractionResult     `json:"extraction"`
	Fields         ParsedFields         `json:"fields"`
	Classification ClassificationResult `json:"classification"`
}
