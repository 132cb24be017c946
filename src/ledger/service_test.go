package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"signalledger/src/model"
	"signalledger/src/risk"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// recordingNotifier captures delivered events so tests can assert on
// emission counts.
type recordingNotifier struct {
	mu        sync.Mutex
	breaches  []risk.RiskBreachEvent
	autoStops []risk.AutoStopEvent
}

func (r *recordingNotifier) NotifyRiskBreach(_ context.Context, event risk.RiskBreachEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breaches = append(r.breaches, event)
	return nil
}

func (r *recordingNotifier) NotifyAutoStop(_ context.Context, event risk.AutoStopEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.autoStops = append(r.autoStops, event)
	return nil
}

func (r *recordingNotifier) breachCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.breaches)
}

func (r *recordingNotifier) autoStopCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.autoStops)
}

func testRiskConfig() risk.Config {
	return risk.Config{
		DefaultMaxPositionSizeUSD:      1000,
		DefaultMaxPortfolioRiskPercent: 25,
		DefaultMaxDailyLossPercent:     5,
		DefaultMaxConcurrentSignals:    3,
		AutoStopOnBreach:               true,
		ReferencePortfolioUSD:          10000,
	}
}

func newTestService(t *testing.T, cfg risk.Config) (*Service, *gorm.DB, *recordingNotifier) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&model.TradingSignal{},
		&model.Execution{},
		&model.RiskProfile{},
	))

	rec := &recordingNotifier{}
	engine := risk.NewEngine(risk.NewProportionalPolicy(cfg.ReferencePortfolio()), cfg)
	svc := NewService(db, engine, rec, Config{UserLockTimeout: 2 * time.Second})

	return svc, db, rec
}

func issueActiveSignal(t *testing.T, svc *Service) uint {
	t.Helper()

	id, err := svc.IssueSignal(context.Background(), &model.TradingSignal{
		Symbol:      "BTC",
		Direction:   model.DirectionLong,
		EntryPrice:  d("100"),
		TargetPrice: d("110"),
		StopLoss:    d("95"),
		Confidence:  d("0.8"),
		RiskLevel:   model.RiskLevelMedium,
		ExpiresAt:   time.Now().UTC().Add(time.Hour),
	})
	require.NoError(t, err)
	return id
}

func fillExecution(t *testing.T, svc *Service, executionID uint, price, size string) *model.Execution {
	t.Helper()

	execution, err := svc.ReportFill(context.Background(), executionID,
		d(price), d(size), model.ExecutionStatusFilled)
	require.NoError(t, err)
	return execution
}

func openExposureSum(t *testing.T, db *gorm.DB, userID uint) decimal.Decimal {
	t.Helper()

	var sum decimal.Decimal
	err := db.Model(&model.Execution{}).
		Select("COALESCE(SUM(position_size_usd), 0)").
		Where("user_id = ? AND status IN ? AND closed_at IS NULL", userID, model.OpenStatuses()).
		Scan(&sum).Error
	require.NoError(t, err)
	return sum
}

func TestIssueSignalRejectsBadGeometry(t *testing.T) {
	svc, _, _ := newTestService(t, testRiskConfig())

	_, err := svc.IssueSignal(context.Background(), &model.TradingSignal{
		Symbol:      "BTC",
		Direction:   model.DirectionLong,
		EntryPrice:  d("100"),
		TargetPrice: d("110"),
		StopLoss:    d("105"), // stop above entry on a long
		ExpiresAt:   time.Now().UTC().Add(time.Hour),
	})
	require.ErrorIs(t, err, model.ErrInvalidSignalGeometry)
}

func TestExecutionLifecycleKeepsExposureConsistent(t *testing.T) {
	svc, db, _ := newTestService(t, testRiskConfig())
	ctx := context.Background()

	signalID := issueActiveSignal(t, svc)

	execution, err := svc.RequestExecution(ctx, 7, signalID, ExecutionRequest{
		PositionSize:    d("5"),
		PositionSizeUSD: d("500"),
	})
	require.NoError(t, err)
	require.Equal(t, model.ExecutionStatusPending, execution.Status)

	// Pending executions reserve budget but do not count as exposure.
	profile, err := svc.GetRiskProfile(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, profile)
	require.True(t, profile.CurrentExposureUSD.IsZero())
	require.Equal(t, 0, profile.ActivePositionsCount)

	filled := fillExecution(t, svc, execution.ID, "100", "5")
	require.Equal(t, model.ExecutionStatusFilled, filled.Status)
	require.True(t, filled.PositionSizeUSD.Equal(d("500")))
	require.NotNil(t, filled.ExecutedAt)

	// The first fill marks the parent signal executed.
	signal, err := svc.GetSignal(ctx, signalID)
	require.NoError(t, err)
	require.Equal(t, model.SignalStatusExecuted, signal.Status)

	profile, err = svc.GetRiskProfile(ctx, 7)
	require.NoError(t, err)
	require.True(t, profile.CurrentExposureUSD.Equal(d("500")))
	require.Equal(t, 1, profile.ActivePositionsCount)
	require.True(t, profile.CurrentPortfolioRisk.Equal(d("5")))
	require.NotNil(t, profile.LastCalculated)

	// The stored aggregate always equals the recomputed sum.
	require.True(t, profile.CurrentExposureUSD.Equal(openExposureSum(t, db, 7)))
}

func TestRequestExecutionAgainstNonTradableSignal(t *testing.T) {
	svc, _, _ := newTestService(t, testRiskConfig())
	ctx := context.Background()

	t.Run("cancelled signal", func(t *testing.T) {
		signalID := issueActiveSignal(t, svc)
		require.NoError(t, svc.TransitionSignal(ctx, signalID, model.SignalStatusCancelled))

		_, err := svc.RequestExecution(ctx, 7, signalID, ExecutionRequest{
			PositionSize:    d("1"),
			PositionSizeUSD: d("100"),
		})
		require.ErrorIs(t, err, ErrSignalNotTradable)
	})

	t.Run("expired but not yet swept signal", func(t *testing.T) {
		id, err := svc.IssueSignal(ctx, &model.TradingSignal{
			Symbol:      "ETH",
			Direction:   model.DirectionLong,
			EntryPrice:  d("100"),
			TargetPrice: d("110"),
			StopLoss:    d("95"),
			ExpiresAt:   time.Now().UTC().Add(-time.Minute),
		})
		require.NoError(t, err)

		_, err = svc.RequestExecution(ctx, 7, id, ExecutionRequest{
			PositionSize:    d("1"),
			PositionSizeUSD: d("100"),
		})
		require.ErrorIs(t, err, ErrSignalNotTradable)
	})

	t.Run("missing signal", func(t *testing.T) {
		_, err := svc.RequestExecution(ctx, 7, 9999, ExecutionRequest{
			PositionSize:    d("1"),
			PositionSizeUSD: d("100"),
		})
		require.ErrorIs(t, err, ErrSignalNotFound)
	})
}

func TestAdmissionEnforcesExposureCap(t *testing.T) {
	svc, _, _ := newTestService(t, testRiskConfig())
	ctx := context.Background()

	signalID := issueActiveSignal(t, svc)

	execution, err := svc.RequestExecution(ctx, 7, signalID, ExecutionRequest{
		PositionSize:    d("8"),
		PositionSizeUSD: d("800"),
	})
	require.NoError(t, err)
	fillExecution(t, svc, execution.ID, "100", "8")

	secondSignal := issueActiveSignal(t, svc)

	// 800 committed, cap 1000: a 300 proposal overflows, a 150 one fits.
	_, err = svc.RequestExecution(ctx, 7, secondSignal, ExecutionRequest{
		PositionSize:    d("3"),
		PositionSizeUSD: d("300"),
	})
	require.ErrorIs(t, err, risk.ErrExposureLimitExceeded)

	_, err = svc.RequestExecution(ctx, 7, secondSignal, ExecutionRequest{
		PositionSize:    d("1.5"),
		PositionSizeUSD: d("150"),
	})
	require.NoError(t, err)
}

func TestAdmissionCountsPendingReservations(t *testing.T) {
	svc, _, _ := newTestService(t, testRiskConfig())
	ctx := context.Background()

	signalID := issueActiveSignal(t, svc)

	_, err := svc.RequestExecution(ctx, 7, signalID, ExecutionRequest{
		PositionSize:    d("6"),
		PositionSizeUSD: d("600"),
	})
	require.NoError(t, err)

	// Nothing is filled yet, but the pending 600 already reserves budget.
	_, err = svc.RequestExecution(ctx, 7, signalID, ExecutionRequest{
		PositionSize:    d("6"),
		PositionSizeUSD: d("600"),
	})
	require.ErrorIs(t, err, risk.ErrExposureLimitExceeded)
}

func TestConcurrentAdmissionsNeverExceedCap(t *testing.T) {
	svc, db, _ := newTestService(t, testRiskConfig())
	ctx := context.Background()

	signalID := issueActiveSignal(t, svc)

	const workers = 10
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RequestExecution(ctx, 7, signalID, ExecutionRequest{
				PositionSize:    d("3"),
				PositionSizeUSD: d("300"),
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	admitted := 0
	for err := range results {
		if err == nil {
			admitted++
			continue
		}
		require.ErrorIs(t, err, risk.ErrExposureLimitExceeded)
	}

	// Cap 1000 admits at most three 300 USD proposals.
	require.Equal(t, 3, admitted)

	var reserved decimal.Decimal
	err := db.Model(&model.Execution{}).
		Select("COALESCE(SUM(position_size_usd), 0)").
		Where("user_id = ? AND status = ?", uint(7), model.ExecutionStatusPending).
		Scan(&reserved).Error
	require.NoError(t, err)
	require.True(t, reserved.LessThanOrEqual(d("1000")),
		"reserved %s exceeds the cap", reserved.String())
}

func TestCloseExecutionIsExactlyOnce(t *testing.T) {
	svc, _, _ := newTestService(t, testRiskConfig())
	ctx := context.Background()

	signalID := issueActiveSignal(t, svc)

	execution, err := svc.RequestExecution(ctx, 7, signalID, ExecutionRequest{
		PositionSize:    d("5"),
		PositionSizeUSD: d("500"),
	})
	require.NoError(t, err)
	fillExecution(t, svc, execution.ID, "100", "5")

	closed, err := svc.CloseExecution(ctx, execution.ID, d("90"), d("-50"))
	require.NoError(t, err)
	require.NotNil(t, closed.ClosedAt)
	require.NotNil(t, closed.RealizedPnl)
	require.True(t, closed.RealizedPnl.Equal(d("-50")))

	profile, err := svc.GetRiskProfile(ctx, 7)
	require.NoError(t, err)
	require.True(t, profile.CurrentExposureUSD.IsZero())
	require.Equal(t, 0, profile.ActivePositionsCount)
	require.True(t, profile.DailyLossCurrent.Equal(d("50")))

	// A second close must not overwrite nor double count.
	_, err = svc.CloseExecution(ctx, execution.ID, d("80"), d("-100"))
	require.ErrorIs(t, err, model.ErrAlreadyClosed)

	profile, err = svc.GetRiskProfile(ctx, 7)
	require.NoError(t, err)
	require.True(t, profile.DailyLossCurrent.Equal(d("50")))
}

func TestCancelPendingExecution(t *testing.T) {
	svc, _, _ := newTestService(t, testRiskConfig())
	ctx := context.Background()

	signalID := issueActiveSignal(t, svc)

	execution, err := svc.RequestExecution(ctx, 7, signalID, ExecutionRequest{
		PositionSize:    d("5"),
		PositionSizeUSD: d("500"),
	})
	require.NoError(t, err)

	require.NoError(t, svc.CancelExecution(ctx, execution.ID))

	// The cancelled reservation frees the budget again.
	_, err = svc.RequestExecution(ctx, 7, signalID, ExecutionRequest{
		PositionSize:    d("9"),
		PositionSizeUSD: d("900"),
	})
	require.NoError(t, err)

	// Cancelling twice surfaces as already-in-state.
	err = svc.CancelExecution(ctx, execution.ID)
	require.ErrorIs(t, err, ErrAlreadyInState)
}

func TestReportFillConflicts(t *testing.T) {
	svc, _, _ := newTestService(t, testRiskConfig())
	ctx := context.Background()

	signalID := issueActiveSignal(t, svc)

	execution, err := svc.RequestExecution(ctx, 7, signalID, ExecutionRequest{
		PositionSize:    d("2"),
		PositionSizeUSD: d("200"),
	})
	require.NoError(t, err)

	fillExecution(t, svc, execution.ID, "100", "2")

	_, err = svc.ReportFill(ctx, execution.ID, d("100"), d("2"), model.ExecutionStatusFilled)
	require.ErrorIs(t, err, ErrAlreadyInState)

	_, err = svc.ReportFill(ctx, execution.ID, d("100"), d("2"), model.ExecutionStatusPending)
	require.ErrorIs(t, err, ErrInvalidExecutionRequest)
}

func TestAutoStopOnDailyLoss(t *testing.T) {
	svc, _, rec := newTestService(t, testRiskConfig())
	ctx := context.Background()

	signalID := issueActiveSignal(t, svc)

	execution, err := svc.RequestExecution(ctx, 7, signalID, ExecutionRequest{
		PositionSize:    d("5"),
		PositionSizeUSD: d("500"),
	})
	require.NoError(t, err)
	fillExecution(t, svc, execution.ID, "100", "5")

	// 600 lost on a 10000 reference portfolio is 6%, above the 5% cap.
	_, err = svc.CloseExecution(ctx, execution.ID, d("20"), d("-600"))
	require.NoError(t, err)

	require.Equal(t, 1, rec.autoStopCount())

	profile, err := svc.GetRiskProfile(ctx, 7)
	require.NoError(t, err)
	require.True(t, profile.AutoStopTrading)

	// Auto-stop rejects every new request regardless of size.
	_, err = svc.RequestExecution(ctx, 7, signalID, ExecutionRequest{
		PositionSize:    d("0.1"),
		PositionSizeUSD: d("10"),
	})
	require.ErrorIs(t, err, risk.ErrAutoStopActive)

	// Only the explicit administrative reset clears the flag.
	require.NoError(t, svc.ResetAutoStop(ctx, 7))

	profile, err = svc.GetRiskProfile(ctx, 7)
	require.NoError(t, err)
	require.False(t, profile.AutoStopTrading)

	err = svc.ResetAutoStop(ctx, 7)
	require.ErrorIs(t, err, ErrAlreadyInState)
}

func TestBreachEventEmittedOncePerFlip(t *testing.T) {
	cfg := testRiskConfig()
	cfg.AutoStopOnBreach = false
	svc, _, rec := newTestService(t, cfg)
	ctx := context.Background()

	signalID := issueActiveSignal(t, svc)

	first, err := svc.RequestExecution(ctx, 7, signalID, ExecutionRequest{
		PositionSize:    d("1"),
		PositionSizeUSD: d("100"),
	})
	require.NoError(t, err)
	second, err := svc.RequestExecution(ctx, 7, signalID, ExecutionRequest{
		PositionSize:    d("1"),
		PositionSizeUSD: d("100"),
	})
	require.NoError(t, err)

	// The fill recomputes the USD size from price*size, so the committed
	// exposure can overshoot what admission saw.
	fillExecution(t, svc, first.ID, "1000", "2")
	require.Equal(t, 1, rec.breachCount())

	profile, err := svc.GetRiskProfile(ctx, 7)
	require.NoError(t, err)
	require.True(t, profile.RiskLimitBreached)
	require.False(t, profile.AutoStopTrading)

	// Still breached on the next recompute: no duplicate event.
	fillExecution(t, svc, second.ID, "10", "1")
	require.Equal(t, 1, rec.breachCount())
}

func TestSignalTransitionRaces(t *testing.T) {
	svc, _, _ := newTestService(t, testRiskConfig())
	ctx := context.Background()

	t.Run("terminal versus terminal is a silent no-op", func(t *testing.T) {
		signalID := issueActiveSignal(t, svc)
		require.NoError(t, svc.TransitionSignal(ctx, signalID, model.SignalStatusCancelled))

		// The expiry sweep arriving second finds the work already done.
		require.NoError(t, svc.TransitionSignal(ctx, signalID, model.SignalStatusExpired))
	})

	t.Run("same status is already-in-state", func(t *testing.T) {
		signalID := issueActiveSignal(t, svc)
		require.NoError(t, svc.TransitionSignal(ctx, signalID, model.SignalStatusCancelled))

		err := svc.TransitionSignal(ctx, signalID, model.SignalStatusCancelled)
		require.ErrorIs(t, err, ErrAlreadyInState)
	})

	t.Run("illegal transition is rejected", func(t *testing.T) {
		signalID := issueActiveSignal(t, svc)
		require.NoError(t, svc.TransitionSignal(ctx, signalID, model.SignalStatusPaused))

		err := svc.TransitionSignal(ctx, signalID, model.SignalStatusExecuted)
		require.ErrorIs(t, err, model.ErrIllegalSignalTransition)
	})

	t.Run("paused resumes to active", func(t *testing.T) {
		signalID := issueActiveSignal(t, svc)
		require.NoError(t, svc.TransitionSignal(ctx, signalID, model.SignalStatusPaused))
		require.NoError(t, svc.TransitionSignal(ctx, signalID, model.SignalStatusActive))
	})
}
