package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Execution lifecycle status values.
const (
	ExecutionStatusPending         = "pending"
	ExecutionStatusFilled          = "filled"
	ExecutionStatusPartiallyFilled = "partially_filled"
	ExecutionStatusCancelled       = "cancelled"
	ExecutionStatusFailed          = "failed"
)

// Execution is a user's recorded action against a signal. Many executions
// may reference the same signal; each execution belongs to exactly one user.
// A null ClosedAt means the position is open and contributes to exposure.
type Execution struct {
	ID              uint             `gorm:"primaryKey" json:"id"`
	SignalID        uint             `gorm:"not null;index" json:"signal_id"`
	UserID          uint             `gorm:"not null;index:idx_executions_user_status" json:"user_id"`
	ExecutionPrice  decimal.Decimal  `gorm:"type:decimal(20,8)" json:"execution_price"`
	PositionSize    decimal.Decimal  `gorm:"type:decimal(20,8)" json:"position_size"`
	PositionSizeUSD decimal.Decimal  `gorm:"type:decimal(20,8)" json:"position_size_usd"`
	Status          string           `gorm:"size:20;not null;default:pending;index:idx_executions_user_status" json:"status"`
	RealizedPnl     *decimal.Decimal `gorm:"type:decimal(20,8)" json:"realized_pnl,omitempty"`
	CurrentPnl      *decimal.Decimal `gorm:"type:decimal(20,8)" json:"current_pnl,omitempty"`
	MaxProfit       *decimal.Decimal `gorm:"type:decimal(20,8)" json:"max_profit,omitempty"`
	MaxDrawdown     *decimal.Decimal `gorm:"type:decimal(20,8)" json:"max_drawdown,omitempty"`
	ExecutedAt      *time.Time       `json:"executed_at,omitempty"`
	ClosedAt        *time.Time       `gorm:"index" json:"closed_at,omitempty"`
	FlaggedReview   bool             `gorm:"not null;default:false" json:"flagged_for_review"`
	ReviewReason    string           `gorm:"size:120" json:"review_reason,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`

	Signal *TradingSignal `gorm:"foreignKey:SignalID;constraint:OnDelete:RESTRICT" json:"signal,omitempty"`
}

func (Execution) TableName() string {
	return "executions"
}

// executionTransitions is the fixed transition table for execution status.
// Closing is not a status transition: it sets ClosedAt exactly once on a
// filled or partially filled execution.
var executionTransitions = map[string][]string{
	ExecutionStatusPending: {
		ExecutionStatusFilled,
		ExecutionStatusPartiallyFilled,
		ExecutionStatusCancelled,
		ExecutionStatusFailed,
	},
}

// CanTransitionExecution reports whether an execution may move from into to.
func CanTransitionExecution(from, to string) bool {
	for _, allowed := range executionTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsOpen reports whether the execution currently contributes to exposure.
func (e *Execution) IsOpen() bool {
	return (e.Status == ExecutionStatusFilled || e.Status == ExecutionStatusPartiallyFilled) &&
		e.ClosedAt == nil
}

// OpenStatuses lists the status values that count toward exposure while
// ClosedAt is null. Shared between the aggregation query and handlers.
func OpenStatuses() []string {
	return []string{ExecutionStatusFilled, ExecutionStatusPartiallyFilled}
}
