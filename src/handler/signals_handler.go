package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"signalledger/src/model"
)

type signalService interface {
	IssueSignal(ctx context.Context, signal *model.TradingSignal) (uint, error)
	TransitionSignal(ctx context.Context, id uint, to string) error
	GetSignal(ctx context.Context, id uint) (*model.TradingSignal, error)
}

type issueSignalRequest struct {
	Symbol          string          `json:"symbol"`
	Direction       string          `json:"direction"`
	EntryPrice      decimal.Decimal `json:"entry_price"`
	TargetPrice     decimal.Decimal `json:"target_price"`
	StopLoss        decimal.Decimal `json:"stop_loss"`
	Confidence      decimal.Decimal `json:"confidence"`
	RiskLevel       string          `json:"risk_level"`
	RiskRewardRatio decimal.Decimal `json:"risk_reward_ratio"`
	TimeHorizon     string          `json:"time_horizon"`
	ExpiresAt       time.Time       `json:"expires_at"`
}

// IssueSignalHandler is the prediction-service ingress: it accepts a new
// signal payload and re-validates the price geometry before persisting.
func IssueSignalHandler(svc signalService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req issueSignalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		signal := &model.TradingSignal{
			Symbol:          req.Symbol,
			Direction:       req.Direction,
			EntryPrice:      req.EntryPrice,
			TargetPrice:     req.TargetPrice,
			StopLoss:        req.StopLoss,
			Confidence:      req.Confidence,
			RiskLevel:       req.RiskLevel,
			RiskRewardRatio: req.RiskRewardRatio,
			TimeHorizon:     req.TimeHorizon,
			ExpiresAt:       req.ExpiresAt,
		}

		id, err := svc.IssueSignal(r.Context(), signal)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]interface{}{"signal_id": id})
	}
}

type transitionSignalRequest struct {
	Status string `json:"status"`
}

// TransitionSignalHandler moves a signal across the transition table.
func TransitionSignalHandler(svc signalService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		var req transitionSignalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		if err := svc.TransitionSignal(r.Context(), id, req.Status); err != nil {
			writeServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// GetSignalHandler fetches one signal by id.
func GetSignalHandler(svc signalService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		signal, err := svc.GetSignal(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, signal)
	}
}

func parseIDParam(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		logger.WithField("param", name).Debug("invalid id parameter")
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return uint(id), true
}
