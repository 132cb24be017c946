package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Signal direction values.
const (
	DirectionLong    = "long"
	DirectionShort   = "short"
	DirectionNeutral = "neutral"
)

// Signal lifecycle status values.
const (
	SignalStatusActive    = "active"
	SignalStatusExecuted  = "executed"
	SignalStatusExpired   = "expired"
	SignalStatusCancelled = "cancelled"
	SignalStatusPaused    = "paused"
)

// Signal risk levels as produced by the prediction service.
const (
	RiskLevelLow     = "low"
	RiskLevelMedium  = "medium"
	RiskLevelHigh    = "high"
	RiskLevelExtreme = "extreme"
)

// TradingSignal is an AI-issued trade recommendation. It is created once by
// the prediction service and afterwards only status-mutated by the ledger.
type TradingSignal struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	Symbol          string          `gorm:"size:30;not null;index" json:"symbol"`
	Direction       string          `gorm:"size:10;not null" json:"direction"`
	EntryPrice      decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"entry_price"`
	TargetPrice     decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"target_price"`
	StopLoss        decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"stop_loss"`
	Confidence      decimal.Decimal `gorm:"type:decimal(5,4);not null" json:"confidence"`
	RiskLevel       string          `gorm:"size:10;not null" json:"risk_level"`
	RiskRewardRatio decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"risk_reward_ratio"`
	TimeHorizon     string          `gorm:"size:30" json:"time_horizon"`
	Status          string          `gorm:"size:20;not null;default:active;index" json:"status"`
	GeneratedAt     time.Time       `json:"generated_at"`
	ExpiresAt       time.Time       `gorm:"index" json:"expires_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (TradingSignal) TableName() string {
	return "trading_signals"
}

// signalTransitions is the fixed transition table for signals. Anything not
// listed here is illegal, no matter who asks.
var signalTransitions = map[string][]string{
	SignalStatusActive: {
		SignalStatusExecuted,
		SignalStatusExpired,
		SignalStatusCancelled,
		SignalStatusPaused,
	},
	SignalStatusPaused: {
		SignalStatusActive,
	},
}

// CanTransitionSignal reports whether a signal may move from into to.
func CanTransitionSignal(from, to string) bool {
	for _, allowed := range signalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidateGeometry checks the direction/price invariants of a signal.
// Long signals must target above entry and stop below it; short signals
// invert both; neutral signals only require target and stop to differ
// from entry.
func (s *TradingSignal) ValidateGeometry() error {
	if s.EntryPrice.LessThanOrEqual(decimal.Zero) ||
		s.TargetPrice.LessThanOrEqual(decimal.Zero) ||
		s.StopLoss.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidSignalGeometry
	}

	if s.TargetPrice.Equal(s.EntryPrice) || s.StopLoss.Equal(s.EntryPrice) {
		return ErrInvalidSignalGeometry
	}

	switch s.Direction {
	case DirectionLong:
		if !s.TargetPrice.GreaterThan(s.EntryPrice) || !s.StopLoss.LessThan(s.EntryPrice) {
			return ErrInvalidSignalGeometry
		}
	case DirectionShort:
		if !s.TargetPrice.LessThan(s.EntryPrice) || !s.StopLoss.GreaterThan(s.EntryPrice) {
			return ErrInvalidSignalGeometry
		}
	case DirectionNeutral:
		// no price-direction constraint beyond the inequality checks above
	default:
		return ErrInvalidSignalGeometry
	}

	return nil
}

// IsExpired reports whether the signal's expiry has passed at the given time.
func (s *TradingSignal) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
