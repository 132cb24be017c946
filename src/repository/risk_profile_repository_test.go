package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
)

func TestRiskProfileRepositoryFindByUserForUpdate(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &RiskProfileRepository{db: mockDB}

	rows := sqlmock.NewRows([]string{"id", "user_id", "max_position_size_usd", "auto_stop_trading"}).
		AddRow(1, 7, "1000", false)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "risk_profiles" WHERE user_id = $1 ORDER BY "risk_profiles"."id" LIMIT $2 FOR UPDATE`)).
		WithArgs(uint(7), 1).
		WillReturnRows(rows)

	profile, err := repo.FindByUserForUpdate(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error fetching profile for update: %v", err)
	}
	if profile == nil {
		t.Fatal("expected a profile row")
	}

	if profile.UserID != 7 {
		t.Fatalf("unexpected user id: %d", profile.UserID)
	}
	if !profile.MaxPositionSizeUSD.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("unexpected max position size: %s", profile.MaxPositionSizeUSD)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestRiskProfileRepositoryFindByUserForUpdateNotFound(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &RiskProfileRepository{db: mockDB}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "risk_profiles" WHERE user_id = $1 ORDER BY "risk_profiles"."id" LIMIT $2 FOR UPDATE`)).
		WithArgs(uint(42), 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	profile, err := repo.FindByUserForUpdate(context.Background(), 42)
	if err != nil {
		t.Fatalf("unexpected error fetching profile for update: %v", err)
	}
	if profile != nil {
		t.Fatalf("expected nil for a missing profile, got %+v", profile)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestRiskProfileRepositoryClearAutoStop(t *testing.T) {
	t.Run("clears an active flag", func(t *testing.T) {
		mockDB, mock := newMockDB(t)
		repo := &RiskProfileRepository{db: mockDB}

		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "risk_profiles" SET "auto_stop_trading"=$1,"updated_at"=$2 WHERE user_id = $3 AND auto_stop_trading = $4`)).
			WithArgs(false, sqlmock.AnyArg(), uint(7), true).
			WillReturnResult(sqlmock.NewResult(0, 1))

		cleared, err := repo.ClearAutoStop(context.Background(), 7)
		if err != nil {
			t.Fatalf("unexpected error clearing auto-stop: %v", err)
		}
		if !cleared {
			t.Fatal("expected the flag to be cleared")
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet sqlmock expectations: %v", err)
		}
	})

	t.Run("no-op when the flag is already down", func(t *testing.T) {
		mockDB, mock := newMockDB(t)
		repo := &RiskProfileRepository{db: mockDB}

		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "risk_profiles" SET "auto_stop_trading"=$1,"updated_at"=$2 WHERE user_id = $3 AND auto_stop_trading = $4`)).
			WithArgs(false, sqlmock.AnyArg(), uint(7), true).
			WillReturnResult(sqlmock.NewResult(0, 0))

		cleared, err := repo.ClearAutoStop(context.Background(), 7)
		if err != nil {
			t.Fatalf("unexpected error clearing auto-stop: %v", err)
		}
		if cleared {
			t.Fatal("expected a no-op when the flag is already down")
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet sqlmock expectations: %v", err)
		}
	})
}
