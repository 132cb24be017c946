package risk

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	// Limits applied to lazily created risk profiles.
	DefaultMaxPositionSizeUSD      float64 `envconfig:"DEFAULT_MAX_POSITION_SIZE_USD" default:"10000"`
	DefaultMaxPortfolioRiskPercent float64 `envconfig:"DEFAULT_MAX_PORTFOLIO_RISK_PERCENT" default:"25"`
	DefaultMaxDailyLossPercent     float64 `envconfig:"DEFAULT_MAX_DAILY_LOSS_PERCENT" default:"5"`
	DefaultMaxConcurrentSignals    int     `envconfig:"DEFAULT_MAX_CONCURRENT_SIGNALS" default:"10"`
	AutoStopOnBreach               bool    `envconfig:"AUTO_STOP_ON_BREACH" default:"true"`

	// Reference portfolio value the proportional policy measures exposure
	// against.
	ReferencePortfolioUSD float64 `envconfig:"REFERENCE_PORTFOLIO_USD" default:"100000"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// ReferencePortfolio returns the configured reference value as a decimal.
func (c Config) ReferencePortfolio() decimal.Decimal {
	return decimal.NewFromFloat(c.ReferencePortfolioUSD)
}
