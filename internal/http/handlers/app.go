package handlers

import (
	"encoding/json"
	"net/http"

	"videoforge/internal/credits"
	"videoforge/internal/domain"
	"videoforge/internal/infra"
	"videoforge/internal/orchestrator"
)

// App bundles the handler dependencies.
type App struct {
	Orchestrator *orchestrator.Orchestrator
	Ledger       *credits.Ledger
	Runs         domain.RunRepository
	Jobs         domain.JobRepository
	Artifacts    domain.ArtifactRepository
	Logger       infra.Logger
}

func NewApp(orch *orchestrator.Orchestrator, ledger *credits.Ledger, runs domain.RunRepository, jobs domain.JobRepository, artifacts domain.ArtifactRepository, logger infra.Logger) *App {
	return &App{
		Orchestrator: orch,
		Ledger:       ledger,
		Runs:         runs,
		Jobs:         jobs,
		Artifacts:    artifacts,
		Logger:       logger,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, map[string]string{"error": kind, "message": message})
}
