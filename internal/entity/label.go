package entity

import (
	"time"

	"github.com/google/uuid"
)

// CustomLabel is a user-defined category extending the builtin set.
// A receipt references a label by name; deleting the label does not
// retroactively alter already-classified receipts.
type CustomLabel struct {
	ID          uuid.UUID `json:"id"`
	UserID      string    `json:"-"`
	Name        string    `json:"name"`
	Color       *string   `json:"color,omitempty"`
	Description *string   `json:"description,omitempty"`
	UsageCount  int       `json:"usage_count"`
	CreatedAt   time.Time `json:"created_at"`
}
