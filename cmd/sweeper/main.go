package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"videoforge/internal/adapter/repo"
	"videoforge/internal/credits"
	"videoforge/internal/infra"
	"videoforge/internal/sweeper"
)

func main() {
	var once bool
	flag.BoolVar(&once, "once", false, "run a single sweep pass and exit")
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "videoforge-sweeper")

	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("sweeper: DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("sweeper: db connection failed")
	}
	defer pool.Close()

	creditTxs := repo.NewCreditRepository(pool)
	artifacts := repo.NewArtifactRepository(pool)
	ledger := credits.NewLedger(creditTxs, logger)
	sw := sweeper.New(creditTxs, artifacts, ledger, logger)

	if once {
		if err := sw.Sweep(ctx); err != nil {
			logger.Fatal().Err(err).Msg("sweeper: sweep failed")
		}
		logger.Info().Msg("sweeper: pass complete")
		return
	}

	stopCron, err := sw.Schedule(ctx, cfg.SweepSchedule)
	if err != nil {
		logger.Fatal().Err(err).Msg("sweeper: failed to schedule")
	}
	logger.Info().Str("schedule", cfg.SweepSchedule).Msg("sweeper: running")

	<-ctx.Done()
	stopCron()
	logger.Info().Msg("sweeper: stopped")
}
