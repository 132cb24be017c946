package model

import "time"

// Exception is a persisted record of a background-process failure (sweeper,
// marker) kept for auditing and monitoring. Request-scoped errors are
// returned to the caller instead and never land here.
type Exception struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Service string `gorm:"size:100;index" json:"service"` // e.g. "ledger"
	Module  string `gorm:"size:100;index" json:"module"`  // e.g. "sweeper"
	Method  string `gorm:"size:100" json:"method"`        // e.g. "SweepExpiredSignals"

	Message string `gorm:"type:text" json:"message"`
	Level   string `gorm:"size:20;index" json:"level"` // warn | error

	// Extra context stored as JSON (optional)
	Context string `gorm:"type:jsonb" json:"context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
