package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalledger/src/database"
	"signalledger/src/model"
)

// ExecutionRepository handles persistence for user executions.
type ExecutionRepository struct {
	db *gorm.DB
}

// NewExecutionRepository creates a new repository instance using the main
// read/write database.
func NewExecutionRepository() *ExecutionRepository {
	logger.WithField("component", "ExecutionRepository").
		Info("Creating new ExecutionRepository with MainDB")

	return &ExecutionRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *ExecutionRepository) WithDB(db *gorm.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// Create inserts a new execution.
func (r *ExecutionRepository) Create(
	ctx context.Context,
	execution *model.Execution,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":      "ExecutionRepository",
		"op":        "Create",
		"signal_id": execution.SignalID,
		"user_id":   execution.UserID,
		"size_usd":  execution.PositionSizeUSD,
	}).Debug("Creating new execution")

	err := r.db.WithContext(ctx).Create(execution).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ExecutionRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create execution")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":         "ExecutionRepository",
		"op":           "Create",
		"execution_id": execution.ID,
	}).Info("Execution created successfully")

	return nil
}

// FindByID fetches a single execution by its primary ID.
// Returns (nil, nil) if the execution is not found.
func (r *ExecutionRepository) FindByID(
	ctx context.Context,
	id uint,
) (*model.Execution, error) {

	logger.WithFields(map[string]interface{}{
		"repo": "ExecutionRepository",
		"op":   "FindByID",
		"id":   id,
	}).Debug("Fetching execution by ID")

	var execution model.Execution

	err := r.db.WithContext(ctx).First(&execution, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "ExecutionRepository",
				"op":   "FindByID",
				"id":   id,
			}).Info("Execution not found")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "ExecutionRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch execution by ID")

		return nil, err
	}

	return &execution, nil
}

// FindOpenByUser returns the user's open executions (filled or partially
// filled, not yet closed), newest first.
func (r *ExecutionRepository) FindOpenByUser(
	ctx context.Context,
	userID uint,
) ([]model.Execution, error) {

	logger.WithFields(map[string]interface{}{
		"repo":    "ExecutionRepository",
		"op":      "FindOpenByUser",
		"user_id": userID,
	}).Debug("Fetching open executions for user")

	var executions []model.Execution

	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ? AND closed_at IS NULL", userID, model.OpenStatuses()).
		Order("id DESC").
		Find(&executions).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "ExecutionRepository",
			"op":      "FindOpenByUser",
			"user_id": userID,
		}).WithError(err).Error("Failed to fetch open executions")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "ExecutionRepository",
		"op":          "FindOpenByUser",
		"user_id":     userID,
		"rows_return": len(executions),
	}).Info("Open executions fetched")

	return executions, nil
}

// OpenAggregates returns the sum of position_size_usd and the count over
// the user's open execution set. This is the aggregation engine's
// recomputation query; it must never be approximated with deltas.
func (r *ExecutionRepository) OpenAggregates(
	ctx context.Context,
	userID uint,
) (decimal.Decimal, int64, error) {

	var row struct {
		Exposure decimal.Decimal
		Count    int64
	}

	err := r.db.WithContext(ctx).
		Model(&model.Execution{}).
		Select("COALESCE(SUM(position_size_usd), 0) AS exposure, COUNT(*) AS count").
		Where("user_id = ? AND status IN ? AND closed_at IS NULL", userID, model.OpenStatuses()).
		Scan(&row).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "ExecutionRepository",
			"op":      "OpenAggregates",
			"user_id": userID,
		}).WithError(err).Error("Failed to compute open aggregates")

		return decimal.Zero, 0, err
	}

	return row.Exposure, row.Count, nil
}

// SumPendingReserved returns the total position_size_usd currently reserved
// by pending executions for the user. Admission control adds this to the
// committed exposure so that concurrent admissions account cumulatively
// before any fill lands.
func (r *ExecutionRepository) SumPendingReserved(
	ctx context.Context,
	userID uint,
) (decimal.Decimal, error) {

	var reserved decimal.Decimal

	err := r.db.WithContext(ctx).
		Model(&model.Execution{}).
		Select("COALESCE(SUM(position_size_usd), 0)").
		Where("user_id = ? AND status = ?", userID, model.ExecutionStatusPending).
		Scan(&reserved).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "ExecutionRepository",
			"op":      "SumPendingReserved",
			"user_id": userID,
		}).WithError(err).Error("Failed to sum pending reservations")

		return decimal.Zero, err
	}

	return reserved, nil
}

// DailyRealizedLoss returns the absolute sum of negative realized_pnl over
// executions the user closed at or after the given window start.
func (r *ExecutionRepository) DailyRealizedLoss(
	ctx context.Context,
	userID uint,
	since time.Time,
) (decimal.Decimal, error) {

	var loss decimal.Decimal

	err := r.db.WithContext(ctx).
		Model(&model.Execution{}).
		Select("COALESCE(-SUM(realized_pnl), 0)").
		Where("user_id = ? AND closed_at >= ? AND realized_pnl < 0", userID, since).
		Scan(&loss).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "ExecutionRepository",
			"op":      "DailyRealizedLoss",
			"user_id": userID,
		}).WithError(err).Error("Failed to compute daily realized loss")

		return decimal.Zero, err
	}

	return loss, nil
}

// TransitionStatus performs a conditional status update together with any
// extra fill fields. The write only lands while the execution is still in
// the expected `from` status.
func (r *ExecutionRepository) TransitionStatus(
	ctx context.Context,
	id uint,
	from string,
	to string,
	fields map[string]interface{},
) (bool, error) {

	logger.WithFields(map[string]interface{}{
		"repo": "ExecutionRepository",
		"op":   "TransitionStatus",
		"id":   id,
		"from": from,
		"to":   to,
	}).Debug("Transitioning execution status")

	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}

	result := r.db.WithContext(ctx).
		Model(&model.Execution{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)

	if result.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ExecutionRepository",
			"op":   "TransitionStatus",
			"id":   id,
		}).WithError(result.Error).Error("Failed to transition execution status")

		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

// Close stamps closed_at and realized pnl exactly once. The conditional
// update only matches open executions whose closed_at is still null, which
// is what makes a second close attempt observable as a no-op.
func (r *ExecutionRepository) Close(
	ctx context.Context,
	id uint,
	closePrice decimal.Decimal,
	realizedPnl decimal.Decimal,
	closedAt time.Time,
) (bool, error) {

	logger.WithFields(map[string]interface{}{
		"repo":         "ExecutionRepository",
		"op":           "Close",
		"id":           id,
		"close_price":  closePrice,
		"realized_pnl": realizedPnl,
	}).Debug("Closing execution")

	result := r.db.WithContext(ctx).
		Model(&model.Execution{}).
		Where("id = ? AND status IN ? AND closed_at IS NULL", id, model.OpenStatuses()).
		Updates(map[string]interface{}{
			"realized_pnl": realizedPnl,
			"closed_at":    closedAt,
		})

	if result.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ExecutionRepository",
			"op":   "Close",
			"id":   id,
		}).WithError(result.Error).Error("Failed to close execution")

		return false, result.Error
	}

	if result.RowsAffected == 0 {
		return false, nil
	}

	logger.WithFields(map[string]interface{}{
		"repo": "ExecutionRepository",
		"op":   "Close",
		"id":   id,
	}).Info("Execution closed successfully")

	return true, nil
}

// FlagForReview marks the open executions that reference the given signal
// for external reconciliation. Returns the number of flagged rows.
func (r *ExecutionRepository) FlagForReview(
	ctx context.Context,
	signalID uint,
	reason string,
) (int64, error) {

	logger.WithFields(map[string]interface{}{
		"repo":      "ExecutionRepository",
		"op":        "FlagForReview",
		"signal_id": signalID,
		"reason":    reason,
	}).Debug("Flagging executions for review")

	result := r.db.WithContext(ctx).
		Model(&model.Execution{}).
		Where("signal_id = ? AND status IN ? AND closed_at IS NULL AND flagged_review = ?",
			signalID, model.OpenStatuses(), false).
		Updates(map[string]interface{}{
			"flagged_review": true,
			"review_reason":  reason,
		})

	if result.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "ExecutionRepository",
			"op":        "FlagForReview",
			"signal_id": signalID,
		}).WithError(result.Error).Error("Failed to flag executions for review")

		return 0, result.Error
	}

	return result.RowsAffected, nil
}

// FindOpenWithSignals returns open executions joined with their parent
// signals, oldest first. Used by the mark-to-market refresher.
func (r *ExecutionRepository) FindOpenWithSignals(
	ctx context.Context,
	limit int,
) ([]model.Execution, error) {

	if limit <= 0 {
		limit = 500 // default safety limit
	}

	var executions []model.Execution

	err := r.db.WithContext(ctx).
		Preload("Signal").
		Where("status IN ? AND closed_at IS NULL", model.OpenStatuses()).
		Order("id ASC").
		Limit(limit).
		Find(&executions).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ExecutionRepository",
			"op":   "FindOpenWithSignals",
		}).WithError(err).Error("Failed to fetch open executions with signals")

		return nil, err
	}

	return executions, nil
}

// UpdateMarkMetrics writes the mark-to-market telemetry columns. Exposure
// aggregates are untouched; those belong to the aggregation engine.
func (r *ExecutionRepository) UpdateMarkMetrics(
	ctx context.Context,
	id uint,
	currentPnl decimal.Decimal,
	maxProfit decimal.Decimal,
	maxDrawdown decimal.Decimal,
) error {

	err := r.db.WithContext(ctx).
		Model(&model.Execution{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"current_pnl":  currentPnl,
			"max_profit":   maxProfit,
			"max_drawdown": maxDrawdown,
		}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ExecutionRepository",
			"op":   "UpdateMarkMetrics",
			"id":   id,
		}).WithError(err).Error("Failed to update mark metrics")

		return err
	}

	return nil
}
