package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"signalledger/src/ledger"
	"signalledger/src/model"
)

type executionService interface {
	RequestExecution(ctx context.Context, userID, signalID uint, request ledger.ExecutionRequest) (*model.Execution, error)
	ReportFill(ctx context.Context, executionID uint, price, size decimal.Decimal, status string) (*model.Execution, error)
	CloseExecution(ctx context.Context, executionID uint, closePrice, realizedPnl decimal.Decimal) (*model.Execution, error)
	CancelExecution(ctx context.Context, executionID uint) error
	GetOpenExecutions(ctx context.Context, userID uint) ([]model.Execution, error)
}

type requestExecutionRequest struct {
	UserID          uint            `json:"user_id"`
	SignalID        uint            `json:"signal_id"`
	PositionSize    decimal.Decimal `json:"position_size"`
	PositionSizeUSD decimal.Decimal `json:"position_size_usd"`
}

// RequestExecutionHandler runs admission control and creates a pending
// execution on approval.
func RequestExecutionHandler(svc executionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req requestExecutionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.UserID == 0 || req.SignalID == 0 {
			http.Error(w, "user_id and signal_id are required", http.StatusBadRequest)
			return
		}

		execution, err := svc.RequestExecution(r.Context(), req.UserID, req.SignalID,
			ledger.ExecutionRequest{
				PositionSize:    req.PositionSize,
				PositionSizeUSD: req.PositionSizeUSD,
			})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, execution)
	}
}

type reportFillRequest struct {
	Price  decimal.Decimal `json:"price"`
	Size   decimal.Decimal `json:"size"`
	Status string          `json:"status"`
}

// ReportFillHandler confirms or fails a pending execution.
func ReportFillHandler(svc executionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		var req reportFillRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		execution, err := svc.ReportFill(r.Context(), id, req.Price, req.Size, req.Status)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, execution)
	}
}

type closeExecutionRequest struct {
	ClosePrice  decimal.Decimal `json:"close_price"`
	RealizedPnl decimal.Decimal `json:"realized_pnl"`
}

// CloseExecutionHandler closes an open execution exactly once.
func CloseExecutionHandler(svc executionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		var req closeExecutionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		execution, err := svc.CloseExecution(r.Context(), id, req.ClosePrice, req.RealizedPnl)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, execution)
	}
}

// CancelExecutionHandler cancels a pending execution.
func CancelExecutionHandler(svc executionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		if err := svc.CancelExecution(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// OpenExecutionsHandler lists a user's open executions.
func OpenExecutionsHandler(svc executionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := parseIDParam(w, r, "userID")
		if !ok {
			return
		}

		executions, err := svc.GetOpenExecutions(r.Context(), userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, executions)
	}
}
