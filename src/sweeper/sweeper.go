package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalledger/src/ledger"
	"signalledger/src/model"
	"signalledger/src/repository"
)

const reviewReasonSignalExpired = "signal_expired"

// Sweeper periodically expires overdue signals and flags their open
// executions for external reconciliation. It is idempotent: every write is
// a conditional transition, so racing a manual action just turns the
// loser's attempt into a no-op. The sweeper never touches risk aggregates
// directly; everything routes through the ledger service.
type Sweeper struct {
	db      *gorm.DB
	service *ledger.Service
	config  Config
	now     func() time.Time
}

func New(db *gorm.DB, service *ledger.Service, config Config) *Sweeper {
	return &Sweeper{
		db:      db,
		service: service,
		config:  config,
		now:     time.Now,
	}
}

// StartLoop runs sweeps on a ticker until the context is cancelled.
func (s *Sweeper) StartLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.config.SweepPeriod)
	defer ticker.Stop()

	logger.WithFields(map[string]interface{}{
		"component": "sweeper",
		"period":    s.config.SweepPeriod,
	}).Info("Expiry sweeper started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("sweeper loop stopped")
			return nil

		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				// A failed pass is retried on the next tick; the failure is
				// recorded but never fatal.
				logger.WithError(err).Error("sweep pass failed")
			}
		}
	}
}

// SweepOnce performs a single pass and returns how many signals were
// expired.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	signals := (&repository.SignalRepository{}).WithDB(s.db)

	expired, err := signals.FindActiveExpiredBefore(ctx, s.now().UTC(), s.config.BatchLimit)
	if err != nil {
		s.recordException(ctx, "SweepOnce", err)
		return 0, fmt.Errorf("list expired signals: %w", err)
	}

	swept := 0
	for i := range expired {
		signal := expired[i]

		err := s.service.TransitionSignal(ctx, signal.ID, model.SignalStatusExpired)
		switch {
		case err == nil:
			swept++
		case errors.Is(err, ledger.ErrAlreadyInState):
			// A concurrent actor beat us to a terminal state.
		default:
			s.recordException(ctx, "TransitionSignal", err)
			logger.WithFields(map[string]interface{}{
				"component": "sweeper",
				"signal_id": signal.ID,
			}).WithError(err).Error("Failed to expire signal")
			continue
		}

		flagged, err := s.service.FlagSignalExecutionsForReview(
			ctx, signal.ID, reviewReasonSignalExpired)
		if err != nil {
			s.recordException(ctx, "FlagSignalExecutionsForReview", err)
			logger.WithFields(map[string]interface{}{
				"component": "sweeper",
				"signal_id": signal.ID,
			}).WithError(err).Error("Failed to flag executions for review")
			continue
		}

		if flagged > 0 {
			logger.WithFields(map[string]interface{}{
				"component": "sweeper",
				"signal_id": signal.ID,
				"flagged":   flagged,
			}).Info("Open executions flagged for review")
		}
	}

	if swept > 0 {
		logger.WithFields(map[string]interface{}{
			"component": "sweeper",
			"swept":     swept,
		}).Info("Expired signals swept")
	}

	return swept, nil
}

func (s *Sweeper) recordException(ctx context.Context, method string, err error) {
	(&repository.ExceptionRepository{}).WithDB(s.db).Create(ctx, &model.Exception{
		Service: "signalledger",
		Module:  "sweeper",
		Method:  method,
		Message: err.Error(),
		Level:   "error",
	})
}
