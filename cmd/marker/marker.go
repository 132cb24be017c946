package marker

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"

	"signalledger/src/model"
	"signalledger/src/repository"
)

// Marker refreshes the unrealized pnl telemetry of open executions from
// exchange last prices. It never touches exposure aggregates, those are
// owned by the aggregation engine.
type Marker struct {
	Log      *logger.Entry
	DB       *gorm.DB
	Config   *Config
	exchange goex.API

	executions *repository.ExecutionRepository
	exceptions *repository.ExceptionRepository
}

func New(db *gorm.DB, config *Config) *Marker {
	return &Marker{
		Log:        logger.WithField("component", "marker"),
		DB:         db,
		Config:     config,
		exchange:   newBinanceInstance(),
		executions: (&repository.ExecutionRepository{}).WithDB(db),
		exceptions: (&repository.ExceptionRepository{}).WithDB(db),
	}
}

func newBinanceInstance() *binance.Binance {
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	return binance.NewWithConfig(apiConfig)
}

// WithExchange overrides the exchange client, used by tests.
func (m *Marker) WithExchange(exchange goex.API) *Marker {
	m.exchange = exchange
	return m
}

// StartLoop runs MarkOnce every MarkPeriod until the context is cancelled.
func (m *Marker) StartLoop(ctx context.Context) {
	ticker := time.NewTicker(m.Config.MarkPeriod)
	defer ticker.Stop()

	m.Log.WithField("period", m.Config.MarkPeriod.String()).Info("Marker loop started")

	for {
		select {
		case <-ctx.Done():
			m.Log.Info("Marker loop stopped")
			return
		case <-ticker.C:
			if err := m.MarkOnce(ctx); err != nil {
				m.Log.WithError(err).Error("Mark pass failed")
			}
		}
	}
}

// MarkOnce fetches last prices for every symbol with open executions and
// rewrites current_pnl, max_profit and max_drawdown on each of them.
func (m *Marker) MarkOnce(ctx context.Context) error {
	executions, err := m.executions.FindOpenWithSignals(ctx, m.Config.BatchLimit)
	if err != nil {
		return err
	}

	if len(executions) == 0 {
		return nil
	}

	lastPrices := make(map[string]decimal.Decimal)

	for i := range executions {
		execution := &executions[i]

		if execution.Signal == nil {
			continue
		}
		if execution.ExecutionPrice.IsZero() {
			// Not filled yet, nothing to mark.
			continue
		}

		last, ok := lastPrices[execution.Signal.Symbol]
		if !ok {
			last, err = m.fetchLastPrice(execution.Signal.Symbol)
			if err != nil {
				m.Log.
					WithError(err).
					WithField("symbol", execution.Signal.Symbol).
					Error("Failed to fetch ticker")

				m.recordException("MarkOnce", err)
				continue
			}
			lastPrices[execution.Signal.Symbol] = last
		}

		if err := m.markExecution(ctx, execution, last); err != nil {
			m.recordException("markExecution", err)
		}
	}

	return nil
}

func (m *Marker) fetchLastPrice(symbol string) (decimal.Decimal, error) {
	pair := goex.NewCurrencyPair(goex.Currency{Symbol: symbol}, goex.Currency{Symbol: m.Config.Quote})

	ticker, err := m.exchange.GetTicker(pair)
	if err != nil {
		return decimal.Zero, err
	}

	return decimal.NewFromFloat(ticker.Last), nil
}

func (m *Marker) markExecution(ctx context.Context, execution *model.Execution, last decimal.Decimal) error {
	currentPnl := unrealizedPnl(execution, last)

	maxProfit := currentPnl
	if execution.MaxProfit != nil && execution.MaxProfit.GreaterThan(maxProfit) {
		maxProfit = *execution.MaxProfit
	}

	maxDrawdown := currentPnl
	if execution.MaxDrawdown != nil && execution.MaxDrawdown.LessThan(maxDrawdown) {
		maxDrawdown = *execution.MaxDrawdown
	}

	err := m.executions.UpdateMarkMetrics(ctx, execution.ID, currentPnl, maxProfit, maxDrawdown)
	if err != nil {
		return err
	}

	m.Log.WithFields(logger.Fields{
		"execution_id": execution.ID,
		"symbol":       execution.Signal.Symbol,
		"last":         last.String(),
		"current_pnl":  currentPnl.String(),
	}).Debug("Execution marked")

	return nil
}

// unrealizedPnl values the position at the last price against the fill
// price. Neutral signals carry no directional exposure and mark at zero.
func unrealizedPnl(execution *model.Execution, last decimal.Decimal) decimal.Decimal {
	diff := last.Sub(execution.ExecutionPrice)

	switch execution.Signal.Direction {
	case model.DirectionLong:
		return diff.Mul(execution.PositionSize)
	case model.DirectionShort:
		return diff.Neg().Mul(execution.PositionSize)
	default:
		return decimal.Zero
	}
}

func (m *Marker) recordException(method string, cause error) {
	m.exceptions.Create(context.Background(), &model.Exception{
		Service: "signalledger",
		Module:  "marker",
		Method:  method,
		Message: cause.Error(),
		Level:   "error",
	})
}
