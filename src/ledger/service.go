package ledger

import (
	"context"
	"time"

	"gorm.io/gorm"

	"signalledger/src/notifier"
	"signalledger/src/risk"
)

// Service is the ledger's operation surface: signal lifecycle, execution
// lifecycle, and the per-user risk profile reads. Every state-changing
// execution operation runs inside one transaction together with the
// aggregation engine's recompute, behind the per-user serialization scope.
type Service struct {
	db          *gorm.DB
	engine      *risk.Engine
	notifier    notifier.Notifier
	locks       *userLocks
	lockTimeout time.Duration
	now         func() time.Time
}

func NewService(db *gorm.DB, engine *risk.Engine, n notifier.Notifier, config Config) *Service {
	return &Service{
		db:          db,
		engine:      engine,
		notifier:    n,
		locks:       newUserLocks(),
		lockTimeout: config.UserLockTimeout,
		now:         time.Now,
	}
}

// withUserTx acquires the user's serialization scope, runs fn inside a
// transaction, and delivers whatever risk events the recompute produced
// only after the transaction has committed. On any error the transaction
// rolls back in full: an execution is never visible without its exposure
// being reflected.
func (s *Service) withUserTx(
	ctx context.Context,
	userID uint,
	fn func(tx *gorm.DB) (risk.Events, error),
) error {

	release, err := s.locks.acquire(ctx, userID, s.lockTimeout)
	if err != nil {
		return err
	}
	defer release()

	var events risk.Events
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		events, txErr = fn(tx)
		return txErr
	})
	if err != nil {
		return err
	}

	notifier.Deliver(ctx, s.notifier, events)
	return nil
}
