package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for errors that should block operations.
	SeverityError Severity = "error"

	// SeverityCritical is for critical violations that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a violation of this severity denies the operation.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Operations evaluated by policies.
const (
	OperationApply   = "apply"
	OperationDestroy = "destroy"
)

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. Violations are read from the
	// package's deny set.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Builtin marks policies shipped with genie-forge.
	Builtin bool `json:"builtin"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Source is the file the policy was loaded from, if any.
	Source string `json:"source,omitempty"`
}

// PolicyInput is the document policies see as input.
type PolicyInput struct {
	// Operation is apply or destroy.
	Operation string `json:"operation"`

	// Environment is the target environment.
	Environment string `json:"environment"`

	// Items are the spaces the operation touches.
	Items []InputItem `json:"items"`

	// Summary counts items by action.
	Summary map[string]int `json:"summary"`

	// Context provides additional evaluation context.
	Context *PolicyContext `json:"context"`
}

// InputItem describes one space in a PolicyInput.
type InputItem struct {
	LogicalID   string   `json:"logical_id"`
	Action      string   `json:"action"`
	Title       string   `json:"title,omitempty"`
	WarehouseID string   `json:"warehouse_id,omitempty"`
	RemoteID    string   `json:"remote_id,omitempty"`
	Tables      []string `json:"tables,omitempty"`
	Changes     []string `json:"changes,omitempty"`
}

// PolicyContext provides context information for policy evaluation.
type PolicyContext struct {
	// User is the user performing the operation.
	User string `json:"user,omitempty"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`

	// ProtectedEnvironments lists environments where destroys are denied.
	ProtectedEnvironments []string `json:"protected_environments"`

	// MassChangeThreshold is the mutation count above which a warning is raised.
	MassChangeThreshold int `json:"mass_change_threshold"`
}
