package engine

import (
	"fmt"
	"time"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/config"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/state"
)

// Plan is the ordered set of actions that reconciles configs with state
// for one environment. Plans are never persisted.
type Plan struct {
	// ID correlates the plan with traces and history.
	ID string `json:"id"`

	// Environment is the target environment.
	Environment string `json:"environment"`

	// Timestamp is when the plan was computed.
	Timestamp time.Time `json:"timestamp"`

	// Items are in input config order.
	Items []PlanItem `json:"items"`
}

// PlanItem is one space's entry in a plan.
type PlanItem struct {
	LogicalID string              `json:"logical_id"`
	Action    PlanAction          `json:"action"`
	Config    *config.SpaceConfig `json:"-"`
	Current   *state.SpaceState   `json:"current,omitempty"`
	Changes   []string            `json:"changes,omitempty"`
}

func (p *Plan) filter(action PlanAction) []PlanItem {
	var items []PlanItem
	for _, item := range p.Items {
		if item.Action == action {
			items = append(items, item)
		}
	}
	return items
}

// Creates returns the CREATE items.
func (p *Plan) Creates() []PlanItem { return p.filter(ActionCreate) }

// Updates returns the UPDATE items.
func (p *Plan) Updates() []PlanItem { return p.filter(ActionUpdate) }

// Destroys returns the DESTROY items.
func (p *Plan) Destroys() []PlanItem { return p.filter(ActionDestroy) }

// NoChanges returns the NO_CHANGE items.
func (p *Plan) NoChanges() []PlanItem { return p.filter(ActionNoChange) }

// HasChanges reports whether any item requires a remote call.
func (p *Plan) HasChanges() bool {
	for _, item := range p.Items {
		if item.Action.IsMutating() {
			return true
		}
	}
	return false
}

// Summary returns the one-line plan summary.
func (p *Plan) Summary() string {
	return fmt.Sprintf("Plan: %d to create, %d to update, %d to destroy, %d unchanged",
		len(p.Creates()), len(p.Updates()), len(p.Destroys()), len(p.NoChanges()))
}

// FailedItem is a space whose operation failed.
type FailedItem struct {
	LogicalID string `json:"logical_id"`
	Error     string `json:"error"`
}

// ApplyResult summarises an apply.
type ApplyResult struct {
	Created   []string     `json:"created"`
	Updated   []string     `json:"updated"`
	Unchanged []string     `json:"unchanged"`
	Failed    []FailedItem `json:"failed"`
	DryRun    bool         `json:"dry_run"`
}

func newApplyResult(dryRun bool) *ApplyResult {
	return &ApplyResult{
		Created:   []string{},
		Updated:   []string{},
		Unchanged: []string{},
		Failed:    []FailedItem{},
		DryRun:    dryRun,
	}
}

// Succeeded is the number of created and updated spaces.
func (r *ApplyResult) Succeeded() int {
	return len(r.Created) + len(r.Updated)
}

// Status derives the run status of the apply.
func (r *ApplyResult) Status() RunStatus {
	return runStatusFor(r.Succeeded(), len(r.Failed))
}

// Summary returns a one-line description of the result.
func (r *ApplyResult) Summary() string {
	return fmt.Sprintf("%d created, %d updated, %d unchanged, %d failed",
		len(r.Created), len(r.Updated), len(r.Unchanged), len(r.Failed))
}

// DestroyResult is the outcome of destroying one space.
type DestroyResult struct {
	LogicalID string `json:"logical_id"`
	Success   bool   `json:"success"`
	RemoteID  string `json:"databricks_space_id,omitempty"`
	Error     string `json:"error,omitempty"`
	DryRun    bool   `json:"dry_run,omitempty"`
}

// DestroySummary summarises a multi-target destroy.
type DestroySummary struct {
	Destroyed []string         `json:"destroyed"`
	Failed    []FailedItem     `json:"failed"`
	Excluded  []string         `json:"excluded"`
	Results   []*DestroyResult `json:"results"`
	DryRun    bool             `json:"dry_run"`
}

// Summary returns a one-line description of the result.
func (s *DestroySummary) Summary() string {
	return fmt.Sprintf("%d destroyed, %d failed, %d excluded",
		len(s.Destroyed), len(s.Failed), len(s.Excluded))
}

// DriftItem is one checked space in a drift report.
type DriftItem struct {
	LogicalID string   `json:"logical_id"`
	RemoteID  string   `json:"databricks_space_id,omitempty"`
	Title     string   `json:"title"`
	Reason    string   `json:"reason,omitempty"`
	Changes   []string `json:"changes,omitempty"`
}

// DriftReport is the result of comparing state with the remote.
type DriftReport struct {
	Environment  string      `json:"environment"`
	WorkspaceURL string      `json:"workspace_url,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
	Drifted      []DriftItem `json:"drifted"`
	Deleted      []DriftItem `json:"deleted"`
	Synced       []DriftItem `json:"synced"`
	TotalChecked int         `json:"total_checked"`
	HasDrift     bool        `json:"has_drift"`
	Error        string      `json:"error,omitempty"`
}

// Summary returns a one-line description of the report.
func (r *DriftReport) Summary() string {
	return fmt.Sprintf("%d checked: %d drifted, %d deleted, %d synced",
		r.TotalChecked, len(r.Drifted), len(r.Deleted), len(r.Synced))
}

// ImportResult is the outcome of importing an existing remote space.
type ImportResult struct {
	LogicalID   string `json:"logical_id"`
	RemoteID    string `json:"databricks_space_id"`
	Environment string `json:"environment"`
	ConfigHash  string `json:"config_hash"`
}

// StatusEntry describes one tracked space.
type StatusEntry struct {
	LogicalID   string            `json:"logical_id"`
	Title       string            `json:"title"`
	RemoteID    string            `json:"databricks_space_id,omitempty"`
	Status      state.SpaceStatus `json:"status"`
	LastApplied *time.Time        `json:"last_applied,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// EnvironmentStatus describes all tracked spaces of an environment.
type EnvironmentStatus struct {
	Environment  string        `json:"environment"`
	WorkspaceURL string        `json:"workspace_url,omitempty"`
	LastApplied  *time.Time    `json:"last_applied,omitempty"`
	Spaces       []StatusEntry `json:"spaces"`
}

// PullResult is the outcome of refreshing state from the remote.
type PullResult struct {
	Environment string       `json:"environment"`
	Verified    []string     `json:"verified"`
	Updated     []string     `json:"updated"`
	Missing     []FailedItem `json:"missing"`
	VerifyOnly  bool         `json:"verify_only"`
	Saved       bool         `json:"saved"`
}
