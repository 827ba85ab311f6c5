package domain

import (
	"context"
	"time"
)

// RunRepository defines persistence for runs.
type RunRepository interface {
	Create(ctx context.Context, run *Run) error
	UpdateStatus(ctx context.Context, runID string, status RunStatus, errMsg string) error
	SetCreditsDeducted(ctx context.Context, runID string, amount int64) error
	GetByID(ctx context.Context, runID string) (*Run, error)
}

// JobRepository defines persistence for jobs.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	UpdateStatus(ctx context.Context, jobID string, status JobStatus) error
	Complete(ctx context.Context, jobID string, status JobStatus, creditsUsed int64, cacheHit bool, providerMeta []byte) error
	Fail(ctx context.Context, jobID string, errMsg string) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	ListByRunID(ctx context.Context, runID string) ([]Job, error)
	SumCreditsByRunID(ctx context.Context, runID string) (int64, error)
}

// ArtifactRepository defines persistence for produced media.
type ArtifactRepository interface {
	Create(ctx context.Context, artifact *Artifact) error
	GetByID(ctx context.Context, artifactID string) (*Artifact, error)
	GetByJobID(ctx context.Context, jobID string) (*Artifact, error)
	ListByRunID(ctx context.Context, runID string) ([]Artifact, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]Artifact, error)
	Delete(ctx context.Context, artifactID string) error
}

// CreditRepository appends and reads ledger entries. Insert must fail with
// ErrDuplicateTransaction when the trans_no already exists.
type CreditRepository interface {
	Insert(ctx context.Context, tx *CreditTransaction) error
	GetByTransNo(ctx context.Context, transNo string) (*CreditTransaction, error)
	SumByUserID(ctx context.Context, userID string) (int64, error)
	ListExpiredGrants(ctx context.Context, now time.Time, limit int) ([]CreditTransaction, error)
}
