package stores

import (
	"context"
	"time"
)

// RunStatusRunning marks a run that has been started but not finished.
// Finished runs carry the reconciler's final status.
const RunStatusRunning = "running"

// Event outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Run is one recorded reconciler run.
type Run struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"` // apply, destroy, drift, import, pull, bulk_create, bulk_delete
	Environment string     `json:"environment"`
	Status      string     `json:"status"`
	Summary     string     `json:"summary"`
	Succeeded   int        `json:"succeeded"`
	Failed      int        `json:"failed"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Duration returns how long the run took, or zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// Event is the outcome of one space within a run.
type Event struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	LogicalID string    `json:"logical_id"`
	Action    string    `json:"action"`
	Outcome   string    `json:"outcome"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RunFilter narrows ListRuns. Zero values match everything.
type RunFilter struct {
	Environment string
	Kind        string
	Limit       int
	Offset      int
}

// HistoryStore defines the interface for the run history persistence layer.
// It satisfies the engine's Recorder.
type HistoryStore interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Recording
	StartRun(ctx context.Context, kind, environment string) (string, error)
	RecordEvent(ctx context.Context, runID, logicalID, action, outcome, message string) error
	FinishRun(ctx context.Context, runID, status, summary string) error

	// Queries
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)
	ListEvents(ctx context.Context, runID string) ([]*Event, error)
	SpaceHistory(ctx context.Context, logicalID string, limit int) ([]*Event, error)

	// Retention
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
