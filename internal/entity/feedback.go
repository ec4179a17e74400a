package entity

import "time"

// FeedbackRecord is one (raw OCR text, corrected category) training pair.
// Append-only; never mutated after insert.
type FeedbackRecord struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"-"`
	Text      string    `json:"text"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}
