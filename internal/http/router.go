package httpapi

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"videoforge/internal/http/handlers"
	"videoforge/internal/middleware"
)

func NewRouter(app *handlers.App, logger zerolog.Logger) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimiddleware.RealIP, chimiddleware.Recoverer)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.UserID)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/runs", func(r chi.Router) {
		r.Post("/", app.ExecuteRun)
		r.Get("/{id}", app.GetRun)
		r.Get("/{id}/jobs", app.ListRunJobs)
		r.Get("/{id}/artifacts", app.ListRunArtifacts)
	})

	r.Route("/v1/credits", func(r chi.Router) {
		r.Get("/balance", app.GetBalance)
		r.Post("/grants", app.GrantCredits)
	})

	return r
}
