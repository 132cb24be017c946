package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalledger/src/model"
	"signalledger/src/repository"
	"signalledger/src/risk"
)

// ExecutionRequest carries the caller's proposed position.
type ExecutionRequest struct {
	PositionSize    decimal.Decimal `json:"position_size"`
	PositionSizeUSD decimal.Decimal `json:"position_size_usd"`
}

// RequestExecution runs admission control against the user's risk profile
// and, on approval, persists a pending execution. Admission and insert
// commit in one transaction under the profile row lock, so a concurrent
// approval race is resolved by the last writer re-validating against the
// authoritative prior state rather than a stale read.
func (s *Service) RequestExecution(
	ctx context.Context,
	userID uint,
	signalID uint,
	request ExecutionRequest,
) (*model.Execution, error) {

	if request.PositionSizeUSD.LessThanOrEqual(decimal.Zero) ||
		request.PositionSize.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: position size must be positive", ErrInvalidExecutionRequest)
	}

	signal, err := (&repository.SignalRepository{}).WithDB(s.db).FindByID(ctx, signalID)
	if err != nil {
		return nil, err
	}
	if signal == nil {
		return nil, ErrSignalNotFound
	}
	if signal.Status != model.SignalStatusActive || signal.IsExpired(s.now()) {
		return nil, fmt.Errorf("%w: signal %d is %s", ErrSignalNotTradable, signalID, signal.Status)
	}

	execution := &model.Execution{
		SignalID:        signalID,
		UserID:          userID,
		PositionSize:    request.PositionSize,
		PositionSizeUSD: request.PositionSizeUSD,
		Status:          model.ExecutionStatusPending,
	}

	err = s.withUserTx(ctx, userID, func(tx *gorm.DB) (risk.Events, error) {
		profile, err := s.engine.LockProfile(ctx, tx, userID)
		if err != nil {
			return risk.Events{}, err
		}

		executions := (&repository.ExecutionRepository{}).WithDB(tx)

		pendingReserved, err := executions.SumPendingReserved(ctx, userID)
		if err != nil {
			return risk.Events{}, err
		}

		if err := risk.Admit(profile, pendingReserved, request.PositionSizeUSD); err != nil {
			logger.WithFields(map[string]interface{}{
				"component": "ledger",
				"op":        "RequestExecution",
				"user_id":   userID,
				"signal_id": signalID,
				"size_usd":  request.PositionSizeUSD,
			}).WithError(err).Info("Execution rejected by admission control")

			return risk.Events{}, err
		}

		if err := executions.Create(ctx, execution); err != nil {
			return risk.Events{}, err
		}

		return s.engine.Recalculate(ctx, tx, profile, s.now().UTC())
	})
	if err != nil {
		return nil, err
	}

	return execution, nil
}

// ReportFill confirms (or fails) a pending execution. Fill statuses carry
// the execution price and filled size; the USD size is recomputed from
// them. A successful fill also moves the parent signal to executed, as a
// race-safe no-op if someone already moved it off active.
func (s *Service) ReportFill(
	ctx context.Context,
	executionID uint,
	price decimal.Decimal,
	size decimal.Decimal,
	status string,
) (*model.Execution, error) {

	filling := status == model.ExecutionStatusFilled || status == model.ExecutionStatusPartiallyFilled
	if !filling && status != model.ExecutionStatusFailed {
		return nil, fmt.Errorf("%w: fill status must be filled, partially_filled or failed",
			ErrInvalidExecutionRequest)
	}
	if filling && (price.LessThanOrEqual(decimal.Zero) || size.LessThanOrEqual(decimal.Zero)) {
		return nil, fmt.Errorf("%w: fill price and size must be positive", ErrInvalidExecutionRequest)
	}

	execution, err := (&repository.ExecutionRepository{}).WithDB(s.db).FindByID(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if execution == nil {
		return nil, ErrExecutionNotFound
	}

	err = s.withUserTx(ctx, execution.UserID, func(tx *gorm.DB) (risk.Events, error) {
		profile, err := s.engine.LockProfile(ctx, tx, execution.UserID)
		if err != nil {
			return risk.Events{}, err
		}

		executions := (&repository.ExecutionRepository{}).WithDB(tx)

		fields := map[string]interface{}{}
		if filling {
			now := s.now().UTC()
			fields["execution_price"] = price
			fields["position_size"] = size
			fields["position_size_usd"] = price.Mul(size)
			fields["executed_at"] = now
		}

		updated, err := executions.TransitionStatus(
			ctx, executionID, model.ExecutionStatusPending, status, fields)
		if err != nil {
			return risk.Events{}, err
		}
		if !updated {
			return risk.Events{}, s.resolveExecutionConflict(ctx, tx, executionID, status)
		}

		if filling {
			// First fill marks the signal executed; losing this race is fine.
			signals := (&repository.SignalRepository{}).WithDB(tx)
			if _, err := signals.TransitionStatus(ctx, execution.SignalID,
				model.SignalStatusActive, model.SignalStatusExecuted); err != nil {
				return risk.Events{}, err
			}
		}

		return s.engine.Recalculate(ctx, tx, profile, s.now().UTC())
	})
	if err != nil {
		return nil, err
	}

	return (&repository.ExecutionRepository{}).WithDB(s.db).FindByID(ctx, executionID)
}

// CloseExecution stamps closed_at and realized pnl exactly once on an open
// execution. A second close attempt fails with AlreadyClosed instead of
// overwriting, and the risk profile reflects the close exactly once.
func (s *Service) CloseExecution(
	ctx context.Context,
	executionID uint,
	closePrice decimal.Decimal,
	realizedPnl decimal.Decimal,
) (*model.Execution, error) {

	if closePrice.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: close price must be positive", ErrInvalidExecutionRequest)
	}

	execution, err := (&repository.ExecutionRepository{}).WithDB(s.db).FindByID(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if execution == nil {
		return nil, ErrExecutionNotFound
	}

	err = s.withUserTx(ctx, execution.UserID, func(tx *gorm.DB) (risk.Events, error) {
		profile, err := s.engine.LockProfile(ctx, tx, execution.UserID)
		if err != nil {
			return risk.Events{}, err
		}

		executions := (&repository.ExecutionRepository{}).WithDB(tx)

		closed, err := executions.Close(ctx, executionID, closePrice, realizedPnl, s.now().UTC())
		if err != nil {
			return risk.Events{}, err
		}
		if !closed {
			current, err := executions.FindByID(ctx, executionID)
			if err != nil {
				return risk.Events{}, err
			}
			if current == nil {
				return risk.Events{}, ErrExecutionNotFound
			}
			if current.ClosedAt != nil {
				return risk.Events{}, model.ErrAlreadyClosed
			}
			return risk.Events{}, fmt.Errorf("%w: cannot close execution in status %s",
				model.ErrIllegalExecutionTransition, current.Status)
		}

		return s.engine.Recalculate(ctx, tx, profile, s.now().UTC())
	})
	if err != nil {
		return nil, err
	}

	return (&repository.ExecutionRepository{}).WithDB(s.db).FindByID(ctx, executionID)
}

// CancelExecution cancels a pending execution that never reached a fill.
func (s *Service) CancelExecution(ctx context.Context, executionID uint) error {
	execution, err := (&repository.ExecutionRepository{}).WithDB(s.db).FindByID(ctx, executionID)
	if err != nil {
		return err
	}
	if execution == nil {
		return ErrExecutionNotFound
	}

	return s.withUserTx(ctx, execution.UserID, func(tx *gorm.DB) (risk.Events, error) {
		profile, err := s.engine.LockProfile(ctx, tx, execution.UserID)
		if err != nil {
			return risk.Events{}, err
		}

		executions := (&repository.ExecutionRepository{}).WithDB(tx)

		updated, err := executions.TransitionStatus(ctx, executionID,
			model.ExecutionStatusPending, model.ExecutionStatusCancelled, nil)
		if err != nil {
			return risk.Events{}, err
		}
		if !updated {
			return risk.Events{}, s.resolveExecutionConflict(
				ctx, tx, executionID, model.ExecutionStatusCancelled)
		}

		return s.engine.Recalculate(ctx, tx, profile, s.now().UTC())
	})
}

// resolveExecutionConflict classifies a lost conditional update:
// already in the desired status, or a genuinely illegal transition.
func (s *Service) resolveExecutionConflict(
	ctx context.Context,
	tx *gorm.DB,
	executionID uint,
	desired string,
) error {

	current, err := (&repository.ExecutionRepository{}).WithDB(tx).FindByID(ctx, executionID)
	if err != nil {
		return err
	}
	if current == nil {
		return ErrExecutionNotFound
	}
	if current.Status == desired {
		return fmt.Errorf("%w: execution is already %s", ErrAlreadyInState, desired)
	}
	return fmt.Errorf("%w: %s -> %s",
		model.ErrIllegalExecutionTransition, current.Status, desired)
}

// GetOpenExecutions returns the user's open executions.
func (s *Service) GetOpenExecutions(ctx context.Context, userID uint) ([]model.Execution, error) {
	return (&repository.ExecutionRepository{}).WithDB(s.db).FindOpenByUser(ctx, userID)
}

// GetRiskProfile returns the user's risk profile, or nil if the user has
// never traded (profiles are created lazily on first execution).
func (s *Service) GetRiskProfile(ctx context.Context, userID uint) (*model.RiskProfile, error) {
	return (&repository.RiskProfileRepository{}).WithDB(s.db).FindByUser(ctx, userID)
}

// ResetAutoStop is the explicit administrative reset of the sticky
// auto-stop flag. The aggregation engine never clears it on its own; if
// the underlying condition still holds, the next execution mutation will
// raise it again.
func (s *Service) ResetAutoStop(ctx context.Context, userID uint) error {
	cleared, err := (&repository.RiskProfileRepository{}).WithDB(s.db).ClearAutoStop(ctx, userID)
	if err != nil {
		return err
	}
	if !cleared {
		return fmt.Errorf("%w: auto-stop is not active", ErrAlreadyInState)
	}

	logger.WithFields(map[string]interface{}{
		"component": "ledger",
		"op":        "ResetAutoStop",
		"user_id":   userID,
	}).Warn("Auto-stop flag cleared by administrative reset")

	return nil
}

// FlagSignalExecutionsForReview marks open executions of the given signal
// for external reconciliation. It is the sweeper's entry point: flags are
// telemetry, not a status change, so no recompute is triggered, but the
// write still goes through the service so there is a single code path
// touching executions.
func (s *Service) FlagSignalExecutionsForReview(
	ctx context.Context,
	signalID uint,
	reason string,
) (int64, error) {
	return (&repository.ExecutionRepository{}).WithDB(s.db).FlagForReview(ctx, signalID, reason)
}
