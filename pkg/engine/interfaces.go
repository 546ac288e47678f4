package engine

import (
	"context"
	"time"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/config"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/state"
)

// RemoteSpace is a space as reported by the remote service.
type RemoteSpace struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	WarehouseID string `json:"warehouse_id,omitempty"`
	ParentPath  string `json:"parent_path,omitempty"`

	// ModifiedAt is the remote modification time as reported, either an
	// RFC 3339 string or epoch milliseconds. Empty when not reported.
	ModifiedAt string `json:"modified_at,omitempty"`

	// Raw is the decoded response body.
	Raw map[string]any `json:"-"`
}

// RemoteClient performs space CRUD against one remote endpoint.
//
// Any error is treated as retryable by the caller. The reconciler never
// retries internally; the client owns timeouts and request-level retries.
type RemoteClient interface {
	// Endpoint identifies the remote, e.g. the workspace URL.
	Endpoint() string

	// Create creates a space and returns its remote id.
	Create(ctx context.Context, cfg *config.SpaceConfig) (string, error)

	// Update replaces the space's configuration.
	Update(ctx context.Context, remoteID string, cfg *config.SpaceConfig) error

	// Delete deletes the space.
	Delete(ctx context.Context, remoteID string) error

	// Get fetches one space.
	Get(ctx context.Context, remoteID string) (*RemoteSpace, error)

	// List returns every space visible to the caller.
	List(ctx context.Context) ([]RemoteSpace, error)

	// FindByNamePattern returns spaces whose title matches a glob pattern.
	FindByNamePattern(ctx context.Context, pattern string) ([]RemoteSpace, error)
}

// StateStore holds the project state the reconciler reads and mutates.
type StateStore interface {
	// Load returns the project state, loading it on first use.
	Load() (*state.ProjectState, error)

	// Save persists the project state.
	Save() error

	// GetOrCreateEnvironment returns the environment, creating it bound to
	// endpoint if absent.
	GetOrCreateEnvironment(name, endpoint string) (*state.EnvironmentState, error)
}

// Recorder keeps an audit trail of reconciler runs.
type Recorder interface {
	// StartRun opens a run and returns its id.
	StartRun(ctx context.Context, kind, environment string) (string, error)

	// RecordEvent records the outcome of one item in a run.
	RecordEvent(ctx context.Context, runID, logicalID, action, outcome, message string) error

	// FinishRun closes a run with its final status and summary line.
	FinishRun(ctx context.Context, runID, status, summary string) error
}

// PolicyEvaluator checks plans and destroy requests against guard rails
// before anything is executed.
type PolicyEvaluator interface {
	// EvaluatePlan evaluates an apply of plan.
	EvaluatePlan(ctx context.Context, plan *Plan) (*PolicyResult, error)

	// EvaluateDestroy evaluates the destruction of the given logical ids.
	EvaluateDestroy(ctx context.Context, environment string, logicalIDs []string) (*PolicyResult, error)
}

// PolicyResult represents the result of policy evaluation.
type PolicyResult struct {
	// Allowed indicates if the operation is allowed.
	Allowed bool `json:"allowed"`

	// Violations lists policy violations.
	Violations []PolicyViolation `json:"violations,omitempty"`

	// Warnings lists policy warnings.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedAt is when the policy was evaluated.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// PolicyViolation represents a single policy violation.
type PolicyViolation struct {
	// Policy is the policy name that was violated.
	Policy string `json:"policy"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity (error, warning).
	Severity string `json:"severity"`

	// ResourceID is the logical id that violated the policy, if any.
	ResourceID string `json:"resource_id,omitempty"`
}
