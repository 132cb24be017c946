package migrations

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type profileDefaults struct {
	MaxPositionSizeUSD      float64 `envconfig:"DEFAULT_MAX_POSITION_SIZE_USD" default:"10000"`
	MaxPortfolioRiskPercent float64 `envconfig:"DEFAULT_MAX_PORTFOLIO_RISK_PERCENT" default:"25"`
	MaxDailyLossPercent     float64 `envconfig:"DEFAULT_MAX_DAILY_LOSS_PERCENT" default:"5"`
	MaxConcurrentSignals    int     `envconfig:"DEFAULT_MAX_CONCURRENT_SIGNALS" default:"10"`
}

// backfillRiskProfiles creates a risk profile for every user that already
// has executions but predates lazy profile creation. Limits come from the
// same env defaults used for lazily created profiles.
func backfillRiskProfiles(db *gorm.DB) error {
	var defaults profileDefaults
	if err := envconfig.Process("", &defaults); err != nil {
		return fmt.Errorf("process profile defaults: %w", err)
	}

	result := db.Exec(`
		INSERT INTO risk_profiles
			(user_id, max_position_size_usd, max_portfolio_risk_percent,
			 max_daily_loss_percent, max_concurrent_signals, auto_stop_on_breach,
			 current_exposure_usd, current_portfolio_risk, active_positions_count,
			 daily_loss_current, risk_limit_breached, auto_stop_trading,
			 created_at, updated_at)
		SELECT DISTINCT e.user_id, ?, ?, ?, ?, TRUE,
			 0, 0, 0, 0, FALSE, FALSE, NOW(), NOW()
		FROM executions e
		WHERE NOT EXISTS (
			SELECT 1 FROM risk_profiles p WHERE p.user_id = e.user_id
		)`,
		defaults.MaxPositionSizeUSD,
		defaults.MaxPortfolioRiskPercent,
		defaults.MaxDailyLossPercent,
		defaults.MaxConcurrentSignals,
	)
	if result.Error != nil {
		return fmt.Errorf("backfill risk profiles: %w", result.Error)
	}

	logrus.WithField("rows", result.RowsAffected).
		Info("[migrations] risk profiles backfilled")

	return nil
}
