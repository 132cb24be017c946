package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"signalledger/src/ledger"
	"signalledger/src/model"
	"signalledger/src/risk"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeServiceError maps the ledger error taxonomy onto HTTP statuses:
// validation 422, policy and transition conflicts 409, not-found 404,
// transient consistency failures 503.
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"

	switch {
	case errors.Is(err, model.ErrInvalidSignalGeometry):
		status, code = http.StatusUnprocessableEntity, "invalid_signal_geometry"
	case errors.Is(err, ledger.ErrInvalidExecutionRequest):
		status, code = http.StatusUnprocessableEntity, "invalid_execution_request"

	case errors.Is(err, risk.ErrAutoStopActive):
		status, code = http.StatusConflict, "auto_stop_active"
	case errors.Is(err, risk.ErrConcurrencyLimitExceeded):
		status, code = http.StatusConflict, "concurrency_limit_exceeded"
	case errors.Is(err, risk.ErrExposureLimitExceeded):
		status, code = http.StatusConflict, "exposure_limit_exceeded"

	case errors.Is(err, ledger.ErrAlreadyInState):
		status, code = http.StatusConflict, "already_in_state"
	case errors.Is(err, model.ErrAlreadyClosed):
		status, code = http.StatusConflict, "already_closed"
	case errors.Is(err, model.ErrIllegalSignalTransition):
		status, code = http.StatusConflict, "illegal_signal_transition"
	case errors.Is(err, model.ErrIllegalExecutionTransition):
		status, code = http.StatusConflict, "illegal_execution_transition"

	case errors.Is(err, ledger.ErrSignalNotFound):
		status, code = http.StatusNotFound, "signal_not_found"
	case errors.Is(err, ledger.ErrExecutionNotFound):
		status, code = http.StatusNotFound, "execution_not_found"
	case errors.Is(err, ledger.ErrSignalNotTradable):
		status, code = http.StatusConflict, "signal_not_tradable"

	case errors.Is(err, ledger.ErrLockTimeout):
		status, code = http.StatusServiceUnavailable, "lock_timeout"

	default:
		logger.WithError(err).Error("unhandled service error")
	}

	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}
