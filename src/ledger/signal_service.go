package ledger

import (
	"context"
	"fmt"

	logger "github.com/sirupsen/logrus"

	"signalledger/src/model"
	"signalledger/src/repository"
)

// IssueSignal validates the direction/price geometry and persists a new
// signal in active status. The upstream prediction service is not trusted:
// malformed geometry is rejected here regardless of what it validated.
func (s *Service) IssueSignal(ctx context.Context, signal *model.TradingSignal) (uint, error) {
	if err := signal.ValidateGeometry(); err != nil {
		logger.WithFields(map[string]interface{}{
			"component": "ledger",
			"op":        "IssueSignal",
			"symbol":    signal.Symbol,
			"direction": signal.Direction,
		}).WithError(err).Warn("Rejected signal with invalid geometry")

		return 0, err
	}

	signal.Status = model.SignalStatusActive
	if signal.GeneratedAt.IsZero() {
		signal.GeneratedAt = s.now().UTC()
	}

	signals := (&repository.SignalRepository{}).WithDB(s.db)
	if err := signals.Create(ctx, signal); err != nil {
		return 0, fmt.Errorf("persist signal: %w", err)
	}

	return signal.ID, nil
}

// GetSignal fetches a signal by id.
func (s *Service) GetSignal(ctx context.Context, id uint) (*model.TradingSignal, error) {
	signal, err := (&repository.SignalRepository{}).WithDB(s.db).FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if signal == nil {
		return nil, ErrSignalNotFound
	}
	return signal, nil
}

func isTerminalSignalStatus(status string) bool {
	switch status {
	case model.SignalStatusExecuted, model.SignalStatusExpired, model.SignalStatusCancelled:
		return true
	}
	return false
}

// TransitionSignal moves a signal across the fixed transition table using a
// conditional update. A race between two terminal transitions (say the
// expiry sweep and a manual cancel) resolves deterministically: first
// committed transition wins and the loser gets a silent no-op, since the
// signal is already in a terminal-equivalent state.
func (s *Service) TransitionSignal(ctx context.Context, id uint, to string) error {
	signals := (&repository.SignalRepository{}).WithDB(s.db)

	signal, err := signals.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if signal == nil {
		return ErrSignalNotFound
	}

	if outcome := resolveSignalTransition(signal.Status, to); outcome != nil {
		return outcome.err
	}

	updated, err := signals.TransitionStatus(ctx, id, signal.Status, to)
	if err != nil {
		return fmt.Errorf("transition signal %d: %w", id, err)
	}
	if updated {
		return nil
	}

	// Lost a race: somebody moved the signal between our read and write.
	// Re-read and resolve against the committed state.
	signal, err = signals.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if signal == nil {
		return ErrSignalNotFound
	}

	if outcome := resolveSignalTransition(signal.Status, to); outcome != nil {
		return outcome.err
	}

	return fmt.Errorf("%w: signal %d moved to %s concurrently",
		model.ErrIllegalSignalTransition, id, signal.Status)
}

type transitionOutcome struct {
	err error // nil means silent no-op
}

// resolveSignalTransition decides, for a current status and a requested
// target, whether the request is already settled (no-op or no-op-with-error)
// without touching the row. Returns nil when the conditional update should
// be attempted.
func resolveSignalTransition(current, to string) *transitionOutcome {
	if current == to {
		return &transitionOutcome{err: fmt.Errorf("%w: signal is already %s", ErrAlreadyInState, to)}
	}

	if isTerminalSignalStatus(current) && isTerminalSignalStatus(to) {
		// Terminal-equivalent: the first committed transition won.
		return &transitionOutcome{err: nil}
	}

	if !model.CanTransitionSignal(current, to) {
		return &transitionOutcome{err: fmt.Errorf("%w: %s -> %s",
			model.ErrIllegalSignalTransition, current, to)}
	}

	return nil
}
