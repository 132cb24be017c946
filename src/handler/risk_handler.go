package handler

import (
	"context"
	"net/http"

	"signalledger/src/model"
)

type riskService interface {
	GetRiskProfile(ctx context.Context, userID uint) (*model.RiskProfile, error)
	ResetAutoStop(ctx context.Context, userID uint) error
}

// GetRiskProfileHandler returns the user's risk profile. Users that have
// never traded have no profile yet and get a 404.
func GetRiskProfileHandler(svc riskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := parseIDParam(w, r, "userID")
		if !ok {
			return
		}

		profile, err := svc.GetRiskProfile(r.Context(), userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if profile == nil {
			writeJSON(w, http.StatusNotFound, errorResponse{
				Error: "risk profile not found",
				Code:  "risk_profile_not_found",
			})
			return
		}

		writeJSON(w, http.StatusOK, profile)
	}
}

// ResetAutoStopHandler is the administrative reset of the sticky auto-stop
// flag.
func ResetAutoStopHandler(svc riskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := parseIDParam(w, r, "userID")
		if !ok {
			return
		}

		if err := svc.ResetAutoStop(r.Context(), userID); err != nil {
			writeServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
