// Package tracker packages the per-unit-of-work bookkeeping protocol: record
// intent before an adapter is called, then record exactly one terminal outcome.
// A terminal job has either an artifact plus a ledger charge or neither.
package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"videoforge/internal/credits"
	"videoforge/internal/domain"
	"videoforge/internal/infra"
)

// TrackingError marks a bookkeeping write that failed after the adapter call
// already succeeded. It is orchestration-fatal: an uncharged artifact would
// break estimate/actual parity.
type TrackingError struct {
	JobID string
	Op    string
	Err   error
}

func (e *TrackingError) Error() string {
	return fmt.Sprintf("tracking write failed (job %s, %s): %v", e.JobID, e.Op, e.Err)
}

func (e *TrackingError) Unwrap() error { return e.Err }

// Tracker drives job, artifact and ledger writes for one unit of work.
type Tracker struct {
	jobs      domain.JobRepository
	artifacts domain.ArtifactRepository
	ledger    *credits.Ledger
	logger    infra.Logger
}

// New constructs a tracker.
func New(jobs domain.JobRepository, artifacts domain.ArtifactRepository, ledger *credits.Ledger, logger infra.Logger) *Tracker {
	return &Tracker{jobs: jobs, artifacts: artifacts, ledger: ledger, logger: logger}
}

// Begin persists a pending job before any money is spent and marks it running.
// If the write fails the unit of work must not proceed.
func (t *Tracker) Begin(ctx context.Context, run *domain.Run, nodeID string, nodeType domain.NodeType, adapter string, params map[string]any) (*domain.Job, error) {
	job := &domain.Job{
		ID:         uuid.NewString(),
		RunID:      run.ID,
		NodeID:     nodeID,
		Type:       nodeType,
		Adapter:    adapter,
		ParamsJSON: marshalParams(params),
		Status:     domain.JobStatusPending,
		StartedAt:  time.Now().UTC(),
	}
	if err := t.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job for node %s: %w", nodeID, err)
	}
	if err := t.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusRunning); err != nil {
		return nil, fmt.Errorf("mark job %s running: %w", job.ID, err)
	}
	job.Status = domain.JobStatusRunning
	return job, nil
}

// ArtifactFields carries the media produced by a successful adapter call.
type ArtifactFields struct {
	Kind            domain.ArtifactKind
	URL             string
	Bytes           int64
	DurationSeconds float64
	Width           int
	Height          int
	ExpiresAt       *time.Time
}

// Complete records a successful unit of work: artifact first, then the ledger
// charge keyed by the job id, then the terminal job row. Retrying after a
// crash cannot double-charge because the charge's trans_no is scoped to the job.
func (t *Tracker) Complete(ctx context.Context, run *domain.Run, job *domain.Job, fields ArtifactFields, creditsUsed int64, providerMeta map[string]any) (*domain.Artifact, error) {
	metaJSON := marshalParams(providerMeta)
	artifact := &domain.Artifact{
		ID:              uuid.NewString(),
		UserID:          run.UserID,
		RunID:           run.ID,
		JobID:           job.ID,
		Kind:            fields.Kind,
		URL:             fields.URL,
		Bytes:           fields.Bytes,
		DurationSeconds: fields.DurationSeconds,
		Width:           fields.Width,
		Height:          fields.Height,
		ProviderMeta:    metaJSON,
		ExpiresAt:       fields.ExpiresAt,
		CreatedAt:       time.Now().UTC(),
	}
	if err := t.artifacts.Create(ctx, artifact); err != nil {
		return nil, &TrackingError{JobID: job.ID, Op: "create artifact", Err: err}
	}
	_, err := t.ledger.Post(ctx, run.UserID, domain.TransactionTypeDeduct, -creditsUsed, TransNoForJob(job.ID), credits.PostOptions{
		Reason:       string(job.Type),
		RelatedJobID: job.ID,
	})
	if err != nil {
		return nil, &TrackingError{JobID: job.ID, Op: "post charge", Err: err}
	}
	if err := t.jobs.Complete(ctx, job.ID, domain.JobStatusCompleted, creditsUsed, false, metaJSON); err != nil {
		return nil, &TrackingError{JobID: job.ID, Op: "mark completed", Err: err}
	}
	job.Status = domain.JobStatusCompleted
	job.CreditsUsed = creditsUsed
	t.logger.Info().
		Str("run_id", run.ID).
		Str("job_id", job.ID).
		Str("node_id", job.NodeID).
		Int64("credits_used", creditsUsed).
		Msg("tracker: job completed")
	return artifact, nil
}

// CompleteCached records a cache hit: terminal cached status, no new artifact,
// no ledger charge. The reused artifact id lands in the job's provider meta.
func (t *Tracker) CompleteCached(ctx context.Context, run *domain.Run, job *domain.Job, reused *domain.Artifact) error {
	meta := marshalParams(map[string]any{"reused_artifact_id": reused.ID})
	if err := t.jobs.Complete(ctx, job.ID, domain.JobStatusCached, 0, true, meta); err != nil {
		return &TrackingError{JobID: job.ID, Op: "mark cached", Err: err}
	}
	job.Status = domain.JobStatusCached
	job.CacheHit = true
	t.logger.Info().
		Str("run_id", run.ID).
		Str("job_id", job.ID).
		Str("node_id", job.NodeID).
		Msg("tracker: job served from cache")
	return nil
}

// Fail records a failed unit of work: terminal failed status with no artifact
// and no transaction.
func (t *Tracker) Fail(ctx context.Context, job *domain.Job, errMsg string) error {
	if err := t.jobs.Fail(ctx, job.ID, errMsg); err != nil {
		return &TrackingError{JobID: job.ID, Op: "mark failed", Err: err}
	}
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = errMsg
	return nil
}

// TransNoForJob derives the ledger idempotency key for a job's charge.
func TransNoForJob(jobID string) string {
	return "job:" + jobID
}

// marshalParams serializes params with nil values stripped so stored inputs
// stay compact and stable.
func marshalParams(params map[string]any) []byte {
	if len(params) == 0 {
		return []byte("{}")
	}
	clean := make(map[string]any, len(params))
	for k, v := range params {
		if v == nil {
			continue
		}
		clean[k] = v
	}
	data, err := json.Marshal(clean)
	if err != nil {
		return []byte("{}")
	}
	return data
}
