package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"videoforge/internal/domain"
	"videoforge/internal/middleware"
	"videoforge/internal/pricing"
)

// ExecuteRun accepts a workflow plan and drives it to a terminal status. The
// response carries the run's terminal outcome; a client that disconnects can
// rediscover it later through GetRun.
func (a *App) ExecuteRun(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var plan domain.WorkflowPlan
	if err := json.NewDecoder(r.Body).Decode(&plan); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid plan payload")
		return
	}

	// Execution must survive the caller: a dropped connection cannot be
	// allowed to abort a paid run mid-flight. The client that disconnected
	// rediscovers the terminal outcome through GetRun.
	result, err := a.Orchestrator.Execute(context.WithoutCancel(r.Context()), plan, userID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidPlan):
			a.error(w, http.StatusBadRequest, "invalid_plan", err.Error())
		case errors.Is(err, domain.ErrInsufficientCredits):
			a.error(w, http.StatusPaymentRequired, "insufficient_credits", err.Error())
		default:
			a.Logger.Error().Err(err).Msg("handlers: execute failed")
			a.error(w, http.StatusInternalServerError, "internal", "run execution failed")
		}
		return
	}
	a.json(w, http.StatusOK, result)
}

type runResponse struct {
	ID              string           `json:"id"`
	UserID          string           `json:"userId"`
	Status          domain.RunStatus `json:"status"`
	CreditsDeducted float64          `json:"creditsDeducted"`
	ErrorMessage    string           `json:"errorMessage,omitempty"`
	StartedAt       time.Time        `json:"startedAt"`
	CompletedAt     *time.Time       `json:"completedAt,omitempty"`
	Plan            json.RawMessage  `json:"plan"`
}

// GetRun returns a run by id for progress polling.
func (a *App) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := a.loadRun(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, runResponse{
		ID:              run.ID,
		UserID:          run.UserID,
		Status:          run.Status,
		CreditsDeducted: pricing.UnitsToCredits(run.CreditsDeducted),
		ErrorMessage:    run.ErrorMessage,
		StartedAt:       run.StartedAt,
		CompletedAt:     run.CompletedAt,
		Plan:            json.RawMessage(run.PlanJSON),
	})
}

type jobResponse struct {
	ID           string           `json:"id"`
	NodeID       string           `json:"nodeId"`
	Type         domain.NodeType  `json:"type"`
	Adapter      string           `json:"adapter"`
	Status       domain.JobStatus `json:"status"`
	CreditsUsed  float64          `json:"creditsUsed"`
	CacheHit     bool             `json:"cacheHit"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
	StartedAt    time.Time        `json:"startedAt"`
	CompletedAt  *time.Time       `json:"completedAt,omitempty"`
}

// ListRunJobs returns the jobs of a run in creation order.
func (a *App) ListRunJobs(w http.ResponseWriter, r *http.Request) {
	run, ok := a.loadRun(w, r)
	if !ok {
		return
	}
	jobs, err := a.Jobs.ListByRunID(r.Context(), run.ID)
	if err != nil {
		a.Logger.Error().Err(err).Str("run_id", run.ID).Msg("handlers: list jobs failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load jobs")
		return
	}
	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, jobResponse{
			ID:           j.ID,
			NodeID:       j.NodeID,
			Type:         j.Type,
			Adapter:      j.Adapter,
			Status:       j.Status,
			CreditsUsed:  pricing.UnitsToCredits(j.CreditsUsed),
			CacheHit:     j.CacheHit,
			ErrorMessage: j.ErrorMessage,
			StartedAt:    j.StartedAt,
			CompletedAt:  j.CompletedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"jobs": out})
}

type artifactResponse struct {
	ID              string              `json:"id"`
	JobID           string              `json:"jobId"`
	Kind            domain.ArtifactKind `json:"kind"`
	URL             string              `json:"url"`
	DurationSeconds float64             `json:"durationSeconds,omitempty"`
	Width           int                 `json:"width,omitempty"`
	Height          int                 `json:"height,omitempty"`
	ExpiresAt       *time.Time          `json:"expiresAt,omitempty"`
}

// ListRunArtifacts returns the artifacts produced by a run.
func (a *App) ListRunArtifacts(w http.ResponseWriter, r *http.Request) {
	run, ok := a.loadRun(w, r)
	if !ok {
		return
	}
	artifacts, err := a.Artifacts.ListByRunID(r.Context(), run.ID)
	if err != nil {
		a.Logger.Error().Err(err).Str("run_id", run.ID).Msg("handlers: list artifacts failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load artifacts")
		return
	}
	out := make([]artifactResponse, 0, len(artifacts))
	for _, art := range artifacts {
		out = append(out, artifactResponse{
			ID:              art.ID,
			JobID:           art.JobID,
			Kind:            art.Kind,
			URL:             art.URL,
			DurationSeconds: art.DurationSeconds,
			Width:           art.Width,
			Height:          art.Height,
			ExpiresAt:       art.ExpiresAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"artifacts": out})
}

// loadRun fetches the run named in the route and enforces ownership.
func (a *App) loadRun(w http.ResponseWriter, r *http.Request) (*domain.Run, bool) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return nil, false
	}
	run, err := a.Runs.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "run not found")
			return nil, false
		}
		a.Logger.Error().Err(err).Msg("handlers: load run failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load run")
		return nil, false
	}
	if run.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "run not found")
		return nil, false
	}
	return run, true
}
