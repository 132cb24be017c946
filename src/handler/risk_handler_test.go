package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"signalledger/src/ledger"
	"signalledger/src/model"
)

type mockRiskService struct {
	profile  *model.RiskProfile
	err      error
	resetErr error
}

func (m *mockRiskService) GetRiskProfile(_ context.Context, _ uint) (*model.RiskProfile, error) {
	return m.profile, m.err
}

func (m *mockRiskService) ResetAutoStop(_ context.Context, _ uint) error {
	return m.resetErr
}

func TestGetRiskProfileHandler(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		handler := GetRiskProfileHandler(&mockRiskService{
			profile: &model.RiskProfile{
				UserID:             7,
				CurrentExposureUSD: decimal.NewFromInt(500),
			},
		})

		req := withURLParam(httptest.NewRequest(http.MethodGet, "/users/7/risk-profile", nil), "userID", "7")
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		require.Contains(t, rr.Body.String(), `"user_id":7`)
	})

	t.Run("never traded maps to 404", func(t *testing.T) {
		handler := GetRiskProfileHandler(&mockRiskService{profile: nil})

		req := withURLParam(httptest.NewRequest(http.MethodGet, "/users/7/risk-profile", nil), "userID", "7")
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		require.Equal(t, http.StatusNotFound, rr.Code)
		require.Contains(t, rr.Body.String(), "risk_profile_not_found")
	})
}

func TestResetAutoStopHandler(t *testing.T) {
	t.Run("no content on success", func(t *testing.T) {
		handler := ResetAutoStopHandler(&mockRiskService{})

		req := withURLParam(httptest.NewRequest(http.MethodPost, "/users/7/risk-profile/reset-auto-stop", nil), "userID", "7")
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		require.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("not active maps to 409", func(t *testing.T) {
		handler := ResetAutoStopHandler(&mockRiskService{
			resetErr: fmt.Errorf("%w: auto-stop is not active", ledger.ErrAlreadyInState),
		})

		req := withURLParam(httptest.NewRequest(http.MethodPost, "/users/7/risk-profile/reset-auto-stop", nil), "userID", "7")
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		require.Equal(t, http.StatusConflict, rr.Code)
		require.Contains(t, rr.Body.String(), "already_in_state")
	})
}
