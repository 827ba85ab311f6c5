package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"videoforge/internal/domain"
)

// RunRepositoryPG implements domain.RunRepository backed by PostgreSQL.
type RunRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewRunRepository creates a new run repository.
func NewRunRepository(pool *pgxpool.Pool) *RunRepositoryPG {
	return &RunRepositoryPG{pool: pool}
}

// Create inserts a new run record with its frozen plan snapshot.
func (r *RunRepositoryPG) Create(ctx context.Context, run *domain.Run) error {
	query := `
INSERT INTO runs (id, user_id, plan_json, status, credits_deducted, credits_refunded, error_message, started_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`
	_, err := r.pool.Exec(ctx, query,
		run.ID,
		run.UserID,
		run.PlanJSON,
		run.Status,
		run.CreditsDeducted,
		run.CreditsRefunded,
		run.ErrorMessage,
		run.StartedAt,
	)
	return err
}

// UpdateStatus updates run status; terminal statuses stamp completed_at.
func (r *RunRepositoryPG) UpdateStatus(ctx context.Context, runID string, status domain.RunStatus, errMsg string) error {
	query := `
UPDATE runs
SET status = $2,
    error_message = CASE WHEN $3 <> '' THEN $3 ELSE error_message END,
    completed_at = CASE WHEN $2 IN ('completed', 'failed') THEN NOW() ELSE completed_at END
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, runID, status, errMsg)
	return err
}

// SetCreditsDeducted records the run's cumulative spend.
func (r *RunRepositoryPG) SetCreditsDeducted(ctx context.Context, runID string, amount int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE runs SET credits_deducted = $2 WHERE id = $1;`, runID, amount)
	return err
}

// GetByID fetches a run by its identifier.
func (r *RunRepositoryPG) GetByID(ctx context.Context, runID string) (*domain.Run, error) {
	query := `
SELECT id, user_id, plan_json, status, credits_deducted, credits_refunded, error_message, started_at, completed_at
FROM runs
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, runID)
	var run domain.Run
	if err := row.Scan(
		&run.ID,
		&run.UserID,
		&run.PlanJSON,
		&run.Status,
		&run.CreditsDeducted,
		&run.CreditsRefunded,
		&run.ErrorMessage,
		&run.StartedAt,
		&run.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &run, nil
}
