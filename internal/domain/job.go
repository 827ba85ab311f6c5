package domain

import "time"

// NodeType tags the pipeline stage a job belongs to.
type NodeType string

const (
	NodeTypeImage     NodeType = "image"
	NodeTypeVideo     NodeType = "video"
	NodeTypeVoiceover NodeType = "voiceover"
	NodeTypeMerge     NodeType = "merge"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCached    JobStatus = "cached"
)

// Terminal reports whether the status is a sink state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCached
}

// Job is one trackable unit of work within a run: a single adapter call.
// CreditsUsed is set only on the completed transition and must equal the
// amount posted to the ledger for this job.
type Job struct {
	ID           string
	RunID        string
	NodeID       string
	Type         NodeType
	Adapter      string
	ParamsJSON   []byte
	Status       JobStatus
	CreditsUsed  int64 // micro-units
	CacheHit     bool
	ProviderMeta []byte
	ErrorMessage string
	StartedAt    time.Time
	CompletedAt  *time.Time
}
