package risk

import (
	"time"

	"github.com/google/uuid"
)

// Breach reasons carried on RiskBreachEvent.
const (
	BreachReasonExposureLimit = "exposure_limit_exceeded"
	BreachReasonPortfolioRisk = "portfolio_risk_exceeded"
	BreachReasonDailyLoss     = "daily_loss_exceeded"
)

// RiskBreachEvent is emitted whenever risk_limit_breached flips from false
// to true for a user.
type RiskBreachEvent struct {
	EventID   uuid.UUID `json:"event_id"`
	UserID    uint      `json:"user_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// AutoStopEvent is emitted whenever auto_stop_trading flips from false to
// true for a user.
type AutoStopEvent struct {
	EventID   uuid.UUID `json:"event_id"`
	UserID    uint      `json:"user_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Events collects what a single recomputation decided to emit. Delivery
// happens only after the surrounding transaction commits.
type Events struct {
	Breach   *RiskBreachEvent
	AutoStop *AutoStopEvent
}

// Empty reports whether the recomputation produced nothing to deliver.
func (e Events) Empty() bool {
	return e.Breach == nil && e.AutoStop == nil
}
