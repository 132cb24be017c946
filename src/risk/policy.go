package risk

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Policy maps a user's open exposure to a portfolio risk percentage.
// Implementations must be monotonic in exposure and bounded in [0, 100];
// the exact shape is deliberately pluggable.
type Policy interface {
	PortfolioRiskPercent(exposureUSD decimal.Decimal) decimal.Decimal
}

// ProportionalPolicy expresses exposure as a straight percentage of a
// reference portfolio value, clamped into [0, 100].
type ProportionalPolicy struct {
	ReferencePortfolioUSD decimal.Decimal
}

func NewProportionalPolicy(referenceUSD decimal.Decimal) ProportionalPolicy {
	return ProportionalPolicy{ReferencePortfolioUSD: referenceUSD}
}

func (p ProportionalPolicy) PortfolioRiskPercent(exposureUSD decimal.Decimal) decimal.Decimal {
	if p.ReferencePortfolioUSD.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	if exposureUSD.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}

	pct := exposureUSD.Div(p.ReferencePortfolioUSD).Mul(hundred)
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}
