package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"videoforge/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository backed by PostgreSQL.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO jobs (id, run_id, node_id, node_type, adapter, params_json, status, credits_used, cache_hit, provider_meta, error_message, started_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.RunID,
		job.NodeID,
		job.Type,
		job.Adapter,
		job.ParamsJSON,
		job.Status,
		job.CreditsUsed,
		job.CacheHit,
		nullableBytes(job.ProviderMeta),
		job.ErrorMessage,
		job.StartedAt,
	)
	return err
}

// UpdateStatus moves a job to a non-terminal status.
func (r *JobRepositoryPG) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus) error {
	_, err := r.pool.Exec(ctx, `UPDATE jobs SET status = $2 WHERE id = $1;`, jobID, status)
	return err
}

// Complete records a terminal successful (or cached) outcome.
func (r *JobRepositoryPG) Complete(ctx context.Context, jobID string, status domain.JobStatus, creditsUsed int64, cacheHit bool, providerMeta []byte) error {
	query := `
UPDATE jobs
SET status = $2,
    credits_used = $3,
    cache_hit = $4,
    provider_meta = COALESCE($5, provider_meta),
    completed_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, jobID, status, creditsUsed, cacheHit, nullableBytes(providerMeta))
	return err
}

// Fail records a terminal failed outcome.
func (r *JobRepositoryPG) Fail(ctx context.Context, jobID string, errMsg string) error {
	query := `
UPDATE jobs
SET status = 'failed',
    error_message = $2,
    completed_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, jobID, errMsg)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx, selectJobColumns+` WHERE id = $1;`, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// ListByRunID returns all jobs of a run in creation order.
func (r *JobRepositoryPG) ListByRunID(ctx context.Context, runID string) ([]domain.Job, error) {
	rows, err := r.pool.Query(ctx, selectJobColumns+` WHERE run_id = $1 ORDER BY started_at ASC;`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

// SumCreditsByRunID folds the charges recorded across a run's jobs.
func (r *JobRepositoryPG) SumCreditsByRunID(ctx context.Context, runID string) (int64, error) {
	var sum int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(credits_used), 0) FROM jobs WHERE run_id = $1;`, runID).Scan(&sum)
	return sum, err
}

const selectJobColumns = `
SELECT id, run_id, node_id, node_type, adapter, params_json, status, credits_used, cache_hit, provider_meta, error_message, started_at, completed_at
FROM jobs`

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.RunID,
		&job.NodeID,
		&job.Type,
		&job.Adapter,
		&job.ParamsJSON,
		&job.Status,
		&job.CreditsUsed,
		&job.CacheHit,
		&job.ProviderMeta,
		&job.ErrorMessage,
		&job.StartedAt,
		&job.CompletedAt,
	); err != nil {
		return nil, err
	}
	return &job, nil
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
