package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"signalledger/src/ledger"
	"signalledger/src/model"
	"signalledger/src/risk"
)

type mockExecutionService struct {
	execution  *model.Execution
	executions []model.Execution
	err        error

	lastUserID   uint
	lastSignalID uint
	lastRequest  ledger.ExecutionRequest
	lastStatus   string
}

func (m *mockExecutionService) RequestExecution(_ context.Context, userID, signalID uint, request ledger.ExecutionRequest) (*model.Execution, error) {
	m.lastUserID = userID
	m.lastSignalID = signalID
	m.lastRequest = request
	return m.execution, m.err
}

func (m *mockExecutionService) ReportFill(_ context.Context, _ uint, _, _ decimal.Decimal, status string) (*model.Execution, error) {
	m.lastStatus = status
	return m.execution, m.err
}

func (m *mockExecutionService) CloseExecution(_ context.Context, _ uint, _, _ decimal.Decimal) (*model.Execution, error) {
	return m.execution, m.err
}

func (m *mockExecutionService) CancelExecution(_ context.Context, _ uint) error {
	return m.err
}

func (m *mockExecutionService) GetOpenExecutions(_ context.Context, userID uint) ([]model.Execution, error) {
	m.lastUserID = userID
	return m.executions, m.err
}

func TestRequestExecutionHandler(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		mock := &mockExecutionService{
			execution: &model.Execution{ID: 9, Status: model.ExecutionStatusPending},
		}
		handler := RequestExecutionHandler(mock)

		body := `{"user_id":7,"signal_id":5,"position_size":"2","position_size_usd":"200"}`
		req := httptest.NewRequest(http.MethodPost, "/executions", strings.NewReader(body))
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		require.Equal(t, http.StatusCreated, rr.Code)
		require.Equal(t, uint(7), mock.lastUserID)
		require.Equal(t, uint(5), mock.lastSignalID)
		require.True(t, mock.lastRequest.PositionSizeUSD.Equal(decimal.NewFromInt(200)))
	})

	t.Run("missing identifiers", func(t *testing.T) {
		handler := RequestExecutionHandler(&mockExecutionService{})

		req := httptest.NewRequest(http.MethodPost, "/executions",
			strings.NewReader(`{"position_size":"2","position_size_usd":"200"}`))
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		require.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("exposure rejection maps to 409", func(t *testing.T) {
		handler := RequestExecutionHandler(&mockExecutionService{err: risk.ErrExposureLimitExceeded})

		body := `{"user_id":7,"signal_id":5,"position_size":"2","position_size_usd":"2000"}`
		req := httptest.NewRequest(http.MethodPost, "/executions", strings.NewReader(body))
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		require.Equal(t, http.StatusConflict, rr.Code)
		require.Contains(t, rr.Body.String(), "exposure_limit_exceeded")
	})

	t.Run("auto-stop rejection maps to 409", func(t *testing.T) {
		handler := RequestExecutionHandler(&mockExecutionService{err: risk.ErrAutoStopActive})

		body := `{"user_id":7,"signal_id":5,"position_size":"1","position_size_usd":"10"}`
		req := httptest.NewRequest(http.MethodPost, "/executions", strings.NewReader(body))
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		require.Equal(t, http.StatusConflict, rr.Code)
		require.Contains(t, rr.Body.String(), "auto_stop_active")
	})

	t.Run("lock timeout maps to 503", func(t *testing.T) {
		handler := RequestExecutionHandler(&mockExecutionService{err: ledger.ErrLockTimeout})

		body := `{"user_id":7,"signal_id":5,"position_size":"1","position_size_usd":"10"}`
		req := httptest.NewRequest(http.MethodPost, "/executions", strings.NewReader(body))
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		require.Equal(t, http.StatusServiceUnavailable, rr.Code)
		require.Contains(t, rr.Body.String(), "lock_timeout")
	})
}

func TestReportFillHandler(t *testing.T) {
	mock := &mockExecutionService{
		execution: &model.Execution{ID: 9, Status: model.ExecutionStatusFilled},
	}
	handler := ReportFillHandler(mock)

	req := httptest.NewRequest(http.MethodPost, "/executions/9/fills",
		strings.NewReader(`{"price":"100","size":"2","status":"filled"}`))
	req = withURLParam(req, "id", "9")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, model.ExecutionStatusFilled, mock.lastStatus)
}

func TestCloseExecutionHandler(t *testing.T) {
	t.Run("already closed maps to 409", func(t *testing.T) {
		handler := CloseExecutionHandler(&mockExecutionService{err: model.ErrAlreadyClosed})

		req := httptest.NewRequest(http.MethodPost, "/executions/9/close",
			strings.NewReader(`{"close_price":"90","realized_pnl":"-50"}`))
		req = withURLParam(req, "id", "9")
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		require.Equal(t, http.StatusConflict, rr.Code)
		require.Contains(t, rr.Body.String(), "already_closed")
	})

	t.Run("missing execution maps to 404", func(t *testing.T) {
		handler := CloseExecutionHandler(&mockExecutionService{err: ledger.ErrExecutionNotFound})

		req := httptest.NewRequest(http.MethodPost, "/executions/9/close",
			strings.NewReader(`{"close_price":"90","realized_pnl":"-50"}`))
		req = withURLParam(req, "id", "9")
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		require.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestOpenExecutionsHandler(t *testing.T) {
	mock := &mockExecutionService{
		executions: []model.Execution{{ID: 1}, {ID: 2}},
	}
	handler := OpenExecutionsHandler(mock)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/users/7/executions", nil), "userID", "7")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, uint(7), mock.lastUserID)
}
