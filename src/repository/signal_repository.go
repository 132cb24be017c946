package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalledger/src/database"
	"signalledger/src/model"
)

// SignalRepository handles persistence for trading signals.
type SignalRepository struct {
	db *gorm.DB
}

// NewSignalRepository creates a new repository instance using the main
// read/write database.
func NewSignalRepository() *SignalRepository {
	logger.WithField("component", "SignalRepository").
		Info("Creating new SignalRepository with MainDB")

	return &SignalRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *SignalRepository) WithDB(db *gorm.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// Create inserts a new signal. The given signal will be updated with the
// generated ID and timestamps.
func (r *SignalRepository) Create(
	ctx context.Context,
	signal *model.TradingSignal,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":      "SignalRepository",
		"op":        "Create",
		"symbol":    signal.Symbol,
		"direction": signal.Direction,
	}).Debug("Creating new signal")

	err := r.db.WithContext(ctx).Create(signal).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "SignalRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create signal")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "SignalRepository",
		"op":        "Create",
		"signal_id": signal.ID,
	}).Info("Signal created successfully")

	return nil
}

// FindByID fetches a single signal by its primary ID.
// Returns (nil, nil) if the signal is not found.
func (r *SignalRepository) FindByID(
	ctx context.Context,
	id uint,
) (*model.TradingSignal, error) {

	logger.WithFields(map[string]interface{}{
		"repo": "SignalRepository",
		"op":   "FindByID",
		"id":   id,
	}).Debug("Fetching signal by ID")

	var signal model.TradingSignal

	err := r.db.WithContext(ctx).First(&signal, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "SignalRepository",
				"op":   "FindByID",
				"id":   id,
			}).Info("Signal not found")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "SignalRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch signal by ID")

		return nil, err
	}

	return &signal, nil
}

// TransitionStatus performs a conditional status update: the write only
// lands if the signal is still in the expected `from` status. Returns true
// when a row was updated, false when the signal had already moved on
// (the caller decides whether that is a no-op or a conflict).
func (r *SignalRepository) TransitionStatus(
	ctx context.Context,
	id uint,
	from string,
	to string,
) (bool, error) {

	logger.WithFields(map[string]interface{}{
		"repo": "SignalRepository",
		"op":   "TransitionStatus",
		"id":   id,
		"from": from,
		"to":   to,
	}).Debug("Transitioning signal status")

	result := r.db.WithContext(ctx).
		Model(&model.TradingSignal{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)

	if result.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "SignalRepository",
			"op":   "TransitionStatus",
			"id":   id,
		}).WithError(result.Error).Error("Failed to transition signal status")

		return false, result.Error
	}

	if result.RowsAffected == 0 {
		logger.WithFields(map[string]interface{}{
			"repo": "SignalRepository",
			"op":   "TransitionStatus",
			"id":   id,
			"from": from,
			"to":   to,
		}).Info("Signal transition lost the race, no row updated")

		return false, nil
	}

	logger.WithFields(map[string]interface{}{
		"repo": "SignalRepository",
		"op":   "TransitionStatus",
		"id":   id,
		"to":   to,
	}).Info("Signal status updated successfully")

	return true, nil
}

// FindActiveExpiredBefore returns active signals whose expiry has passed,
// ordered oldest first. Used by the expiry sweeper.
func (r *SignalRepository) FindActiveExpiredBefore(
	ctx context.Context,
	cutoff time.Time,
	limit int,
) ([]model.TradingSignal, error) {

	if limit <= 0 {
		limit = 100 // default safety limit
	}

	logger.WithFields(map[string]interface{}{
		"repo":   "SignalRepository",
		"op":     "FindActiveExpiredBefore",
		"cutoff": cutoff,
		"limit":  limit,
	}).Debug("Fetching expired active signals")

	var signals []model.TradingSignal

	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", model.SignalStatusActive, cutoff).
		Order("expires_at ASC").
		Limit(limit).
		Find(&signals).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "SignalRepository",
			"op":   "FindActiveExpiredBefore",
		}).WithError(err).Error("Failed to fetch expired active signals")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "SignalRepository",
		"op":          "FindActiveExpiredBefore",
		"rows_return": len(signals),
	}).Info("Expired active signals fetched")

	return signals, nil
}
