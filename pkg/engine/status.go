package engine

import (
	"encoding/json"
	"fmt"
)

// PlanAction is the action a plan item requires.
type PlanAction string

const (
	// ActionCreate means the space is not tracked and must be created.
	ActionCreate PlanAction = "CREATE"

	// ActionUpdate means the tracked space's applied hash is stale.
	ActionUpdate PlanAction = "UPDATE"

	// ActionDestroy means the space is to be deleted.
	ActionDestroy PlanAction = "DESTROY"

	// ActionNoChange means the space is already up to date.
	ActionNoChange PlanAction = "NO_CHANGE"
)

// IsMutating returns true if the action calls the remote.
func (a PlanAction) IsMutating() bool {
	return a == ActionCreate || a == ActionUpdate || a == ActionDestroy
}

// Symbol returns the single-character marker used in plan output.
func (a PlanAction) Symbol() string {
	switch a {
	case ActionCreate:
		return "+"
	case ActionUpdate:
		return "~"
	case ActionDestroy:
		return "-"
	default:
		return "="
	}
}

// Validate checks if the plan action is valid.
func (a PlanAction) Validate() error {
	switch a {
	case ActionCreate, ActionUpdate, ActionDestroy, ActionNoChange:
		return nil
	default:
		return fmt.Errorf("invalid plan action: %s", a)
	}
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (a *PlanAction) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*a = PlanAction(str)
	return a.Validate()
}

// RunKind names the operation a history run records.
type RunKind string

const (
	RunKindApply      RunKind = "apply"
	RunKindDestroy    RunKind = "destroy"
	RunKindDrift      RunKind = "drift"
	RunKindImport     RunKind = "import"
	RunKindPull       RunKind = "pull"
	RunKindBulkCreate RunKind = "bulk_create"
	RunKindBulkDelete RunKind = "bulk_delete"
)

// RunStatus represents the overall outcome of a run.
type RunStatus string

const (
	// RunStatusSucceeded indicates every item succeeded.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates every attempted item failed.
	RunStatusFailed RunStatus = "failed"

	// RunStatusPartial indicates some items succeeded and some failed.
	RunStatusPartial RunStatus = "partial"

	// RunStatusDenied indicates a policy rejected the run before it started.
	RunStatusDenied RunStatus = "denied"
)

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusPartial, RunStatusDenied:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// runStatusFor derives a run status from success and failure counts.
func runStatusFor(succeeded, failed int) RunStatus {
	switch {
	case failed == 0:
		return RunStatusSucceeded
	case succeeded == 0:
		return RunStatusFailed
	default:
		return RunStatusPartial
	}
}

// BulkStatus is the outcome of one bulk item.
type BulkStatus string

const (
	BulkStatusSuccess BulkStatus = "SUCCESS"
	BulkStatusFailed  BulkStatus = "FAILED"
)
