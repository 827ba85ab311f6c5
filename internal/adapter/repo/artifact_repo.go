package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"videoforge/internal/domain"
)

// ArtifactRepositoryPG implements domain.ArtifactRepository backed by PostgreSQL.
type ArtifactRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewArtifactRepository creates a new artifact repository.
func NewArtifactRepository(pool *pgxpool.Pool) *ArtifactRepositoryPG {
	return &ArtifactRepositoryPG{pool: pool}
}

// Create inserts an artifact record.
func (r *ArtifactRepositoryPG) Create(ctx context.Context, artifact *domain.Artifact) error {
	query := `
INSERT INTO artifacts (id, user_id, run_id, job_id, kind, url, bytes, duration_seconds, width, height, provider_meta, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);
`
	_, err := r.pool.Exec(ctx, query,
		artifact.ID,
		artifact.UserID,
		artifact.RunID,
		artifact.JobID,
		artifact.Kind,
		artifact.URL,
		artifact.Bytes,
		artifact.DurationSeconds,
		artifact.Width,
		artifact.Height,
		nullableBytes(artifact.ProviderMeta),
		artifact.ExpiresAt,
		artifact.CreatedAt,
	)
	return err
}

// GetByID fetches an artifact by its identifier.
func (r *ArtifactRepositoryPG) GetByID(ctx context.Context, artifactID string) (*domain.Artifact, error) {
	row := r.pool.QueryRow(ctx, selectArtifactColumns+` WHERE id = $1;`, artifactID)
	return scanArtifactRow(row)
}

// GetByJobID fetches the artifact produced by a job.
func (r *ArtifactRepositoryPG) GetByJobID(ctx context.Context, jobID string) (*domain.Artifact, error) {
	row := r.pool.QueryRow(ctx, selectArtifactColumns+` WHERE job_id = $1;`, jobID)
	return scanArtifactRow(row)
}

// ListByRunID returns all artifacts belonging to a run.
func (r *ArtifactRepositoryPG) ListByRunID(ctx context.Context, runID string) ([]domain.Artifact, error) {
	rows, err := r.pool.Query(ctx, selectArtifactColumns+` WHERE run_id = $1 ORDER BY created_at ASC;`, runID)
	if err != nil {
		return nil, err
	}
	return scanArtifacts(rows)
}

// ListExpired returns artifacts whose expiry has passed.
func (r *ArtifactRepositoryPG) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Artifact, error) {
	rows, err := r.pool.Query(ctx, selectArtifactColumns+`
WHERE expires_at IS NOT NULL AND expires_at < $1
ORDER BY expires_at ASC
LIMIT $2;`, now, limit)
	if err != nil {
		return nil, err
	}
	return scanArtifacts(rows)
}

// Delete removes an artifact record.
func (r *ArtifactRepositoryPG) Delete(ctx context.Context, artifactID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM artifacts WHERE id = $1;`, artifactID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const selectArtifactColumns = `
SELECT id, user_id, run_id, job_id, kind, url, bytes, duration_seconds, width, height, provider_meta, expires_at, created_at
FROM artifacts`

func scanArtifactRow(row pgx.Row) (*domain.Artifact, error) {
	var a domain.Artifact
	if err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.RunID,
		&a.JobID,
		&a.Kind,
		&a.URL,
		&a.Bytes,
		&a.DurationSeconds,
		&a.Width,
		&a.Height,
		&a.ProviderMeta,
		&a.ExpiresAt,
		&a.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanArtifacts(rows pgx.Rows) ([]domain.Artifact, error) {
	defer rows.Close()
	var out []domain.Artifact
	for rows.Next() {
		a, err := scanArtifactRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
