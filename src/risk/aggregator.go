package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalledger/src/model"
	"signalledger/src/repository"
)

// Engine is the aggregation engine: on every committed mutation of a user's
// execution set it recomputes the user's full aggregate from the execution
// rows. Recomputation (rather than delta arithmetic) is what keeps the
// profile self-healing and idempotent under partial failures.
//
// Recalculate must run inside the same transaction as the triggering
// mutation, after the profile row lock has been taken; if it fails, the
// whole transaction rolls back so an execution is never visible without
// its exposure being reflected.
type Engine struct {
	policy Policy
	cfg    Config
}

func NewEngine(policy Policy, cfg Config) *Engine {
	return &Engine{policy: policy, cfg: cfg}
}

// DefaultProfile builds a fresh profile for a user from the configured
// defaults. Used for lazy creation on first execution.
func (e *Engine) DefaultProfile(userID uint) *model.RiskProfile {
	return &model.RiskProfile{
		UserID:                  userID,
		MaxPositionSizeUSD:      decimal.NewFromFloat(e.cfg.DefaultMaxPositionSizeUSD),
		MaxPortfolioRiskPercent: decimal.NewFromFloat(e.cfg.DefaultMaxPortfolioRiskPercent),
		MaxDailyLossPercent:     decimal.NewFromFloat(e.cfg.DefaultMaxDailyLossPercent),
		MaxConcurrentSignals:    e.cfg.DefaultMaxConcurrentSignals,
		AutoStopOnBreach:        e.cfg.AutoStopOnBreach,
		CurrentExposureUSD:      decimal.Zero,
		CurrentPortfolioRisk:    decimal.Zero,
		DailyLossCurrent:        decimal.Zero,
	}
}

// LockProfile fetches the user's profile under the per-user serialization
// scope, creating it from defaults on first use.
func (e *Engine) LockProfile(
	ctx context.Context,
	tx *gorm.DB,
	userID uint,
) (*model.RiskProfile, error) {

	profiles := (&repository.RiskProfileRepository{}).WithDB(tx)

	profile, err := profiles.FindByUserForUpdate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		return profile, nil
	}

	profile = e.DefaultProfile(userID)
	if err := profiles.Create(ctx, profile); err != nil {
		return nil, fmt.Errorf("lazily create risk profile for user %d: %w", userID, err)
	}

	// Re-read under the lock so concurrent creators serialize on the row.
	return profiles.FindByUserForUpdate(ctx, userID)
}

// Recalculate recomputes the full aggregate for the user inside tx and
// writes it back. The profile passed in must have been fetched with
// LockProfile in the same transaction. Returned events are delivered by
// the caller only after the transaction commits.
func (e *Engine) Recalculate(
	ctx context.Context,
	tx *gorm.DB,
	profile *model.RiskProfile,
	now time.Time,
) (Events, error) {

	executions := (&repository.ExecutionRepository{}).WithDB(tx)
	profiles := (&repository.RiskProfileRepository{}).WithDB(tx)

	exposure, count, err := executions.OpenAggregates(ctx, profile.UserID)
	if err != nil {
		return Events{}, fmt.Errorf("recompute open aggregates: %w", err)
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dailyLoss, err := executions.DailyRealizedLoss(ctx, profile.UserID, dayStart)
	if err != nil {
		return Events{}, fmt.Errorf("recompute daily loss: %w", err)
	}

	riskPct := e.policy.PortfolioRiskPercent(exposure)

	breached := false
	breachReason := ""
	if exposure.GreaterThan(profile.MaxPositionSizeUSD) {
		breached = true
		breachReason = BreachReasonExposureLimit
	} else if riskPct.GreaterThan(profile.MaxPortfolioRiskPercent) {
		breached = true
		breachReason = BreachReasonPortfolioRisk
	}

	dailyLossPct := decimal.Zero
	if ref := e.cfg.ReferencePortfolio(); ref.GreaterThan(decimal.Zero) {
		dailyLossPct = dailyLoss.Div(ref).Mul(hundred)
	}
	dailyLossExceeded := dailyLossPct.GreaterThan(profile.MaxDailyLossPercent)

	// Sticky: the engine may raise auto-stop but never clears it.
	autoStop := profile.AutoStopTrading
	autoStopReason := ""
	if !autoStop {
		switch {
		case dailyLossExceeded:
			autoStop = true
			autoStopReason = BreachReasonDailyLoss
		case breached && profile.AutoStopOnBreach:
			autoStop = true
			autoStopReason = breachReason
		}
	}

	var events Events
	if breached && !profile.RiskLimitBreached {
		events.Breach = &RiskBreachEvent{
			EventID:   uuid.New(),
			UserID:    profile.UserID,
			Reason:    breachReason,
			Timestamp: now,
		}
	}
	if autoStop && !profile.AutoStopTrading {
		events.AutoStop = &AutoStopEvent{
			EventID:   uuid.New(),
			UserID:    profile.UserID,
			Reason:    autoStopReason,
			Timestamp: now,
		}
	}

	err = profiles.UpdateAggregates(ctx, profile.UserID, map[string]interface{}{
		"current_exposure_usd":   exposure,
		"current_portfolio_risk": riskPct,
		"active_positions_count": count,
		"daily_loss_current":     dailyLoss,
		"risk_limit_breached":    breached,
		"auto_stop_trading":      autoStop,
		"last_calculated":        now,
	})
	if err != nil {
		return Events{}, fmt.Errorf("write recomputed aggregates: %w", err)
	}

	// Keep the in-memory profile coherent for callers that re-validate
	// admission after the recompute.
	profile.CurrentExposureUSD = exposure
	profile.CurrentPortfolioRisk = riskPct
	profile.ActivePositionsCount = int(count)
	profile.DailyLossCurrent = dailyLoss
	profile.RiskLimitBreached = breached
	profile.AutoStopTrading = autoStop
	profile.LastCalculated = &now

	logger.WithFields(map[string]interface{}{
		"component": "AggregationEngine",
		"user_id":   profile.UserID,
		"exposure":  exposure,
		"positions": count,
		"breached":  breached,
		"auto_stop": autoStop,
	}).Debug("Risk profile recomputed")

	return events, nil
}
