package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalledger/src/database"
	"signalledger/src/model"
)

// ExceptionRepository persists background-process failures for auditing.
type ExceptionRepository struct {
	db *gorm.DB
}

// NewExceptionRepository creates a new repository instance.
func NewExceptionRepository() *ExceptionRepository {
	return &ExceptionRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *ExceptionRepository) WithDB(db *gorm.DB) *ExceptionRepository {
	return &ExceptionRepository{db: db}
}

// Create persists a new exception in the database. Failures are logged and
// swallowed: the audit trail must never take down the process that is
// trying to report a problem.
func (r *ExceptionRepository) Create(
	ctx context.Context,
	exc *model.Exception,
) {

	logger.WithFields(map[string]interface{}{
		"service": exc.Service,
		"module":  exc.Module,
		"method":  exc.Method,
		"level":   exc.Level,
	}).Error("Persisting system exception")

	if err := r.db.WithContext(ctx).Create(exc).Error; err != nil {
		logger.WithError(err).Error("Failed to persist exception")
	}
}
