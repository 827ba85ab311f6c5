package domain

import "time"

// RunStatus enumerates run lifecycle states.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status is a sink state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Run is one end-to-end orchestration attempt for a WorkflowPlan. The plan
// snapshot is frozen at creation so later edits elsewhere cannot change what a
// past run claims it executed.
type Run struct {
	ID              string
	UserID          string
	PlanJSON        []byte
	Status          RunStatus
	CreditsDeducted int64 // micro-units
	CreditsRefunded int64 // schema field; never written, no-refund policy
	ErrorMessage    string
	StartedAt       time.Time
	CompletedAt     *time.Time
}
