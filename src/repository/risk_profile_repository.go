package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"signalledger/src/database"
	"signalledger/src/model"
)

// RiskProfileRepository handles persistence for per-user risk profiles.
// The profile row is the per-user serialization point: writers must fetch
// it with FindByUserForUpdate inside a transaction before recomputing.
type RiskProfileRepository struct {
	db *gorm.DB
}

// NewRiskProfileRepository creates a new repository instance using the main
// read/write database.
func NewRiskProfileRepository() *RiskProfileRepository {
	logger.WithField("component", "RiskProfileRepository").
		Info("Creating new RiskProfileRepository with MainDB")

	return &RiskProfileRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *RiskProfileRepository) WithDB(db *gorm.DB) *RiskProfileRepository {
	return &RiskProfileRepository{db: db}
}

// Create inserts a new risk profile.
func (r *RiskProfileRepository) Create(
	ctx context.Context,
	profile *model.RiskProfile,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":    "RiskProfileRepository",
		"op":      "Create",
		"user_id": profile.UserID,
	}).Debug("Creating new risk profile")

	err := r.db.WithContext(ctx).Create(profile).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "RiskProfileRepository",
			"op":      "Create",
			"user_id": profile.UserID,
		}).WithError(err).Error("Failed to create risk profile")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":    "RiskProfileRepository",
		"op":      "Create",
		"user_id": profile.UserID,
	}).Info("Risk profile created successfully")

	return nil
}

// FindByUser fetches the profile for a user.
// Returns (nil, nil) if no profile exists yet.
func (r *RiskProfileRepository) FindByUser(
	ctx context.Context,
	userID uint,
) (*model.RiskProfile, error) {

	logger.WithFields(map[string]interface{}{
		"repo":    "RiskProfileRepository",
		"op":      "FindByUser",
		"user_id": userID,
	}).Debug("Fetching risk profile by user")

	var profile model.RiskProfile

	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&profile).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":    "RiskProfileRepository",
			"op":      "FindByUser",
			"user_id": userID,
		}).WithError(err).Error("Failed to fetch risk profile")

		return nil, err
	}

	return &profile, nil
}

// FindByUserForUpdate fetches the profile with a row-level lock so the
// caller holds the per-user serialization scope for the rest of its
// transaction. Returns (nil, nil) if no profile exists yet.
//
// SQLite has no row locks and serializes writers on its own, so the
// locking clause is only added on postgres.
func (r *RiskProfileRepository) FindByUserForUpdate(
	ctx context.Context,
	userID uint,
) (*model.RiskProfile, error) {

	logger.WithFields(map[string]interface{}{
		"repo":    "RiskProfileRepository",
		"op":      "FindByUserForUpdate",
		"user_id": userID,
	}).Debug("Fetching risk profile with row lock")

	tx := r.db.WithContext(ctx)
	if tx.Dialector.Name() == "postgres" {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var profile model.RiskProfile

	err := tx.Where("user_id = ?", userID).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":    "RiskProfileRepository",
			"op":      "FindByUserForUpdate",
			"user_id": userID,
		}).WithError(err).Error("Failed to fetch risk profile for update")

		return nil, err
	}

	return &profile, nil
}

// UpdateAggregates writes the derived aggregate columns for a user. Only
// the aggregation engine may call this.
func (r *RiskProfileRepository) UpdateAggregates(
	ctx context.Context,
	userID uint,
	fields map[string]interface{},
) error {

	logger.WithFields(map[string]interface{}{
		"repo":    "RiskProfileRepository",
		"op":      "UpdateAggregates",
		"user_id": userID,
	}).Debug("Writing recomputed aggregates")

	err := r.db.WithContext(ctx).
		Model(&model.RiskProfile{}).
		Where("user_id = ?", userID).
		Updates(fields).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "RiskProfileRepository",
			"op":      "UpdateAggregates",
			"user_id": userID,
		}).WithError(err).Error("Failed to write aggregates")

		return err
	}

	return nil
}

// ClearAutoStop clears the sticky auto-stop flag for a user. This is the
// explicit administrative reset; the aggregation engine never clears the
// flag on its own.
func (r *RiskProfileRepository) ClearAutoStop(
	ctx context.Context,
	userID uint,
) (bool, error) {

	logger.WithFields(map[string]interface{}{
		"repo":    "RiskProfileRepository",
		"op":      "ClearAutoStop",
		"user_id": userID,
	}).Info("Clearing auto-stop flag")

	result := r.db.WithContext(ctx).
		Model(&model.RiskProfile{}).
		Where("user_id = ? AND auto_stop_trading = ?", userID, true).
		Update("auto_stop_trading", false)

	if result.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "RiskProfileRepository",
			"op":      "ClearAutoStop",
			"user_id": userID,
		}).WithError(result.Error).Error("Failed to clear auto-stop flag")

		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}
