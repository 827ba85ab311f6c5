package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"videoforge/internal/adapter/memrepo"
	"videoforge/internal/adapter/repo"
	"videoforge/internal/cache"
	"videoforge/internal/credits"
	"videoforge/internal/domain"
	"videoforge/internal/http/handlers"
	httpapi "videoforge/internal/http"
	"videoforge/internal/infra"
	"videoforge/internal/orchestrator"
	"videoforge/internal/pricing"
	"videoforge/internal/providers/image"
	"videoforge/internal/providers/video"
	"videoforge/internal/providers/voice"
	"videoforge/internal/render"
	"videoforge/internal/sweeper"
	"videoforge/internal/tracker"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "videoforge-api")

	ctx := context.Background()

	var (
		runs      domain.RunRepository
		jobs      domain.JobRepository
		artifacts domain.ArtifactRepository
		creditTxs domain.CreditRepository
	)
	if cfg.DatabaseURL == "" {
		// Dev mode: everything lives in memory and dies with the process.
		logger.Warn().Msg("DATABASE_URL not set, using in-memory store")
		store := memrepo.NewStore()
		runs, jobs, artifacts, creditTxs = store.Runs(), store.Jobs(), store.Artifacts(), store.Credits()
	} else {
		dbpool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer dbpool.Close()
		runs = repo.NewRunRepository(dbpool)
		jobs = repo.NewJobRepository(dbpool)
		artifacts = repo.NewArtifactRepository(dbpool)
		creditTxs = repo.NewCreditRepository(dbpool)
	}

	priceTable := pricing.DefaultTable()
	if cfg.PricingPath != "" {
		priceTable, err = pricing.LoadTable(cfg.PricingPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.PricingPath).Msg("failed to load price table")
		}
	}

	renderClient, err := render.NewClient(render.Options{
		BaseURL: cfg.RenderBaseURL,
		APIKey:  cfg.RenderAPIKey,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build render client")
	}

	ledger := credits.NewLedger(creditTxs, logger)
	jobTracker := tracker.New(jobs, artifacts, ledger, logger)

	var artifactCache *cache.ArtifactCache
	if cfg.CacheEnabled {
		artifactCache = cache.New()
	}

	orch := orchestrator.New(orchestrator.Options{
		Runs:    runs,
		Jobs:    jobs,
		Tracker: jobTracker,
		Ledger:  ledger,
		Pricing: priceTable,
		Render:  renderClient,
		Adapters: orchestrator.Adapters{
			// The empty key is the fallback adapter for any model without a
			// dedicated entry.
			Image: map[string]image.Generator{"": image.NewSynthetic(cfg.ProviderBaseURL)},
			Video: map[string]video.Generator{"": video.NewSynthetic(cfg.ProviderBaseURL)},
			Voice: map[string]voice.Generator{"": voice.NewSynthetic(cfg.ProviderBaseURL)},
		},
		Cache:               artifactCache,
		Logger:              logger,
		MaxConcurrentScenes: cfg.MaxConcurrentScenes,
		ArtifactTTL:         cfg.ArtifactTTL,
	})

	app := handlers.NewApp(orch, ledger, runs, jobs, artifacts, logger)
	router := httpapi.NewRouter(app, logger)
	server := infra.NewHTTPServer(cfg, router)

	if cfg.SweepSchedule != "" {
		sw := sweeper.New(creditTxs, artifacts, ledger, logger)
		stopSweeper, err := sw.Schedule(ctx, cfg.SweepSchedule)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to schedule sweeper")
		}
		defer stopSweeper()
	}

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
