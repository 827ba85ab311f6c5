// Package memrepo provides in-memory repository implementations. The api
// binary falls back to them when DATABASE_URL is unset so the service runs
// without PostgreSQL; tests use them as deterministic backing stores.
package memrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"videoforge/internal/domain"
)

// Store holds every table behind one mutex. Uniqueness of trans_no is enforced
// at insert, mirroring the database constraint.
type Store struct {
	mu           sync.Mutex
	runs         map[string]*domain.Run
	jobs         map[string]*domain.Job
	artifacts    map[string]*domain.Artifact
	transactions map[string]*domain.CreditTransaction // keyed by trans_no
	jobOrder     []string
	txOrder      []string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		runs:         make(map[string]*domain.Run),
		jobs:         make(map[string]*domain.Job),
		artifacts:    make(map[string]*domain.Artifact),
		transactions: make(map[string]*domain.CreditTransaction),
	}
}

// Runs returns the run repository view.
func (s *Store) Runs() domain.RunRepository { return (*runRepo)(s) }

// Jobs returns the job repository view.
func (s *Store) Jobs() domain.JobRepository { return (*jobRepo)(s) }

// Artifacts returns the artifact repository view.
func (s *Store) Artifacts() domain.ArtifactRepository { return (*artifactRepo)(s) }

// Credits returns the credit repository view.
func (s *Store) Credits() domain.CreditRepository { return (*creditRepo)(s) }

type runRepo Store

func (r *runRepo) Create(ctx context.Context, run *domain.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *run
	r.runs[run.ID] = &cp
	return nil
}

func (r *runRepo) UpdateStatus(ctx context.Context, runID string, status domain.RunStatus, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return domain.ErrNotFound
	}
	run.Status = status
	if errMsg != "" {
		run.ErrorMessage = errMsg
	}
	if status.Terminal() {
		now := time.Now().UTC()
		run.CompletedAt = &now
	}
	return nil
}

func (r *runRepo) SetCreditsDeducted(ctx context.Context, runID string, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return domain.ErrNotFound
	}
	run.CreditsDeducted = amount
	return nil
}

func (r *runRepo) GetByID(ctx context.Context, runID string) (*domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

type jobRepo Store

func (r *jobRepo) Create(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.ID] = &cp
	r.jobOrder = append(r.jobOrder, job.ID)
	return nil
}

func (r *jobRepo) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = status
	return nil
}

func (r *jobRepo) Complete(ctx context.Context, jobID string, status domain.JobStatus, creditsUsed int64, cacheHit bool, providerMeta []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now().UTC()
	job.Status = status
	job.CreditsUsed = creditsUsed
	job.CacheHit = cacheHit
	job.ProviderMeta = append([]byte(nil), providerMeta...)
	job.CompletedAt = &now
	return nil
}

func (r *jobRepo) Fail(ctx context.Context, jobID string, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now().UTC()
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = errMsg
	job.CompletedAt = &now
	return nil
}

func (r *jobRepo) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (r *jobRepo) ListByRunID(ctx context.Context, runID string) ([]domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Job
	for _, id := range r.jobOrder {
		if job := r.jobs[id]; job.RunID == runID {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (r *jobRepo) SumCreditsByRunID(ctx context.Context, runID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, job := range r.jobs {
		if job.RunID == runID {
			sum += job.CreditsUsed
		}
	}
	return sum, nil
}

type artifactRepo Store

func (r *artifactRepo) Create(ctx context.Context, artifact *domain.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *artifact
	r.artifacts[artifact.ID] = &cp
	return nil
}

func (r *artifactRepo) GetByID(ctx context.Context, artifactID string) (*domain.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.artifacts[artifactID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *artifactRepo) GetByJobID(ctx context.Context, jobID string) (*domain.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.artifacts {
		if a.JobID == jobID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *artifactRepo) ListByRunID(ctx context.Context, runID string) ([]domain.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Artifact
	for _, a := range r.artifacts {
		if a.RunID == runID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *artifactRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Artifact
	for _, a := range r.artifacts {
		if a.ExpiresAt != nil && a.ExpiresAt.Before(now) {
			out = append(out, *a)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *artifactRepo) Delete(ctx context.Context, artifactID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.artifacts[artifactID]; !ok {
		return domain.ErrNotFound
	}
	delete(r.artifacts, artifactID)
	return nil
}

type creditRepo Store

func (r *creditRepo) Insert(ctx context.Context, tx *domain.CreditTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.transactions[tx.TransNo]; exists {
		return domain.ErrDuplicateTransaction
	}
	cp := *tx
	r.transactions[tx.TransNo] = &cp
	r.txOrder = append(r.txOrder, tx.TransNo)
	return nil
}

func (r *creditRepo) GetByTransNo(ctx context.Context, transNo string) (*domain.CreditTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.transactions[transNo]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (r *creditRepo) SumByUserID(ctx context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, tx := range r.transactions {
		if tx.UserID == userID {
			sum += tx.Amount
		}
	}
	return sum, nil
}

func (r *creditRepo) ListExpiredGrants(ctx context.Context, now time.Time, limit int) ([]domain.CreditTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.CreditTransaction
	for _, transNo := range r.txOrder {
		tx := r.transactions[transNo]
		if tx.Type != domain.TransactionTypeGrant && tx.Type != domain.TransactionTypeBonus {
			continue
		}
		if tx.ExpiresAt == nil || !tx.ExpiresAt.Before(now) {
			continue
		}
		if _, done := r.transactions["expire:"+tx.TransNo]; done {
			continue
		}
		out = append(out, *tx)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
