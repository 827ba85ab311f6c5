// Package sweeper retires expired state on a schedule: credit grants past
// their expiry get a compensating expire entry, and expired artifacts are
// purged. Both passes are idempotent, so overlapping or repeated sweeps are
// harmless.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"videoforge/internal/credits"
	"videoforge/internal/domain"
	"videoforge/internal/infra"
)

const batchSize = 100

// Sweeper runs the expiry passes.
type Sweeper struct {
	creditRepo   domain.CreditRepository
	artifactRepo domain.ArtifactRepository
	ledger       *credits.Ledger
	logger       infra.Logger
	now          func() time.Time
}

// New constructs a sweeper.
func New(creditRepo domain.CreditRepository, artifactRepo domain.ArtifactRepository, ledger *credits.Ledger, logger infra.Logger) *Sweeper {
	return &Sweeper{
		creditRepo:   creditRepo,
		artifactRepo: artifactRepo,
		ledger:       ledger,
		logger:       logger,
		now:          time.Now,
	}
}

// Sweep runs one pass of both expiries.
func (s *Sweeper) Sweep(ctx context.Context) error {
	if err := s.expireGrants(ctx); err != nil {
		return err
	}
	return s.purgeArtifacts(ctx)
}

// expireGrants posts a negative expire entry per lapsed grant. The entry's
// trans_no is derived from the grant's, so a rerun cannot expire twice. The
// clawback is always the grant's full amount; spend is not allocated against
// individual grants, so the raw balance can go negative.
func (s *Sweeper) expireGrants(ctx context.Context) error {
	grants, err := s.creditRepo.ListExpiredGrants(ctx, s.now().UTC(), batchSize)
	if err != nil {
		return fmt.Errorf("list expired grants: %w", err)
	}
	for _, grant := range grants {
		_, err := s.ledger.Post(ctx, grant.UserID, domain.TransactionTypeExpire, -grant.Amount, "expire:"+grant.TransNo, credits.PostOptions{
			Reason: grant.TransNo,
		})
		if err != nil {
			return fmt.Errorf("expire grant %s: %w", grant.TransNo, err)
		}
		s.logger.Info().Str("user_id", grant.UserID).Str("grant", grant.TransNo).Int64("amount", grant.Amount).Msg("sweeper: grant expired")
	}
	return nil
}

func (s *Sweeper) purgeArtifacts(ctx context.Context) error {
	expired, err := s.artifactRepo.ListExpired(ctx, s.now().UTC(), batchSize)
	if err != nil {
		return fmt.Errorf("list expired artifacts: %w", err)
	}
	for _, artifact := range expired {
		if err := s.artifactRepo.Delete(ctx, artifact.ID); err != nil {
			return fmt.Errorf("delete artifact %s: %w", artifact.ID, err)
		}
		s.logger.Info().Str("artifact_id", artifact.ID).Str("run_id", artifact.RunID).Msg("sweeper: artifact purged")
	}
	return nil
}

// Schedule registers the sweep on the given cron spec and starts the
// scheduler. The returned stop func waits for a running sweep to finish.
func (s *Sweeper) Schedule(ctx context.Context, spec string) (func(), error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if err := s.Sweep(ctx); err != nil {
			s.logger.Error().Err(err).Msg("sweeper: sweep failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule sweep %q: %w", spec, err)
	}
	c.Start()
	return func() {
		<-c.Stop().Done()
	}, nil
}
