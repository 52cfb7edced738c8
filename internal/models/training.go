package models

import "time"

// TrainingPhase is the scheduler lifecycle state. A failed cycle returns
// straight to IDLE; the failure shows up as LastOutcome "failed".
type TrainingPhase string

const (
	PhaseIdle       TrainingPhase = "IDLE"
	PhaseFetching   TrainingPhase = "FETCHING"
	PhaseTraining   TrainingPhase = "TRAINING"
	PhasePublishing TrainingPhase = "PUBLISHING"
)

// KindTrainingStatus is the per-model part of TrainingCycleState
type KindTrainingStatus struct {
	Kind          ModelKind     `json:"kind"`
	Phase         TrainingPhase `json:"phase"`
	InProgress    bool          `json:"in_progress"`
	Version       uint64        `json:"version"`
	LastTrainedAt *time.Time    `json:"last_trained_at,omitempty"`
	LastRunAt     *time.Time    `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time    `json:"next_run_at,omitempty"`
	CycleCount    int64         `json:"cycle_count"`
	FailureCount  int64         `json:"failure_count"`
	LastOutcome   string        `json:"last_outcome,omitempty"` // RunStatus* of the last finished cycle
	LastError     string        `json:"last_error,omitempty"`
	LastFailureAt *time.Time    `json:"last_failure_at,omitempty"`
}

// TrainingCycleState is a point-in-time copy of the scheduler state
type TrainingCycleState struct {
	Phase         TrainingPhase        `json:"phase"`
	StartedAt     time.Time            `json:"started_at"`
	LastRunAt     *time.Time           `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time           `json:"next_run_at,omitempty"`
	CycleCount    int64                `json:"cycle_count"`
	FailureCount  int64                `json:"failure_count"`
	LastFailure   string               `json:"last_failure,omitempty"`
	LastFailureAt *time.Time           `json:"last_failure_at,omitempty"`
	Kinds         []KindTrainingStatus `json:"kinds"`
}

// TrainingRun records one training cycle for one model kind
type TrainingRun struct {
	ID           string     `json:"id" db:"id"`
	Kind         ModelKind  `json:"kind" db:"kind"`
	Trigger      string     `json:"trigger" db:"trigger_source"` // scheduled, forced, startup
	Status       string     `json:"status" db:"status"`
	SampleCount  int        `json:"sample_count" db:"sample_count"`
	Version      uint64     `json:"version,omitempty" db:"version"`
	ErrorMessage string     `json:"error_message,omitempty" db:"error_message"`
	StartedAt    time.Time  `json:"started_at" db:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// Run status constants
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusSkipped   = "skipped"
)

// Run trigger constants
const (
	TriggerScheduled = "scheduled"
	TriggerForced    = "forced"
	TriggerStartup   = "startup"
)

// ForceResult is the outcome of an on-demand retrain request
type ForceResult struct {
	Kind     ModelKind `json:"kind"`
	Accepted bool      `json:"accepted"`
	Reason   string    `json:"reason,omitempty"`
}
