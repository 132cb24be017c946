package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskProfile is the per-user aggregate record: configured limits plus live
// aggregates derived from that user's open executions. The derived fields
// are owned exclusively by the aggregation engine; no other component may
// write them.
type RiskProfile struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	UserID uint `gorm:"not null;uniqueIndex" json:"user_id"`

	// Configured limits.
	MaxPositionSizeUSD      decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"max_position_size_usd"`
	MaxPortfolioRiskPercent decimal.Decimal `gorm:"type:decimal(6,2);not null" json:"max_portfolio_risk_percent"`
	MaxDailyLossPercent     decimal.Decimal `gorm:"type:decimal(6,2);not null" json:"max_daily_loss_percent"`
	MaxConcurrentSignals    int             `gorm:"not null" json:"max_concurrent_signals"`
	AutoStopOnBreach        bool            `gorm:"not null;default:true" json:"auto_stop_on_breach"`

	// Derived aggregates, recomputed in full on every execution mutation.
	CurrentExposureUSD   decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"current_exposure_usd"`
	CurrentPortfolioRisk decimal.Decimal `gorm:"type:decimal(6,2);not null;default:0" json:"current_portfolio_risk"`
	ActivePositionsCount int             `gorm:"not null;default:0" json:"active_positions_count"`
	DailyLossCurrent     decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"daily_loss_current"`
	RiskLimitBreached    bool            `gorm:"not null;default:false" json:"risk_limit_breached"`
	AutoStopTrading      bool            `gorm:"not null;default:false" json:"auto_stop_trading"`
	LastCalculated       *time.Time      `json:"last_calculated,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (RiskProfile) TableName() string {
	return "risk_profiles"
}
