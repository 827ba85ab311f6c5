package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"videoforge/internal/credits"
	"videoforge/internal/domain"
	"videoforge/internal/middleware"
	"videoforge/internal/pricing"
)

// GetBalance returns the caller's display balance (clamped at zero).
func (a *App) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	units, err := a.Ledger.DisplayBalance(r.Context(), userID)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("handlers: balance failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load balance")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"credits": pricing.UnitsToCredits(units)})
}

type grantRequest struct {
	Credits   float64    `json:"credits"`
	Reason    string     `json:"reason,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// GrantCredits posts a positive grant entry for the caller.
func (a *App) GrantCredits(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid grant payload")
		return
	}
	if req.Credits <= 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "credits must be positive")
		return
	}
	tx, err := a.Ledger.Post(r.Context(), userID, domain.TransactionTypeGrant, pricing.CreditsToUnits(req.Credits), "grant:"+uuid.NewString(), credits.PostOptions{
		Reason:    req.Reason,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("handlers: grant failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to post grant")
		return
	}
	a.json(w, http.StatusCreated, map[string]any{
		"transNo": tx.TransNo,
		"credits": pricing.UnitsToCredits(tx.Amount),
	})
}
