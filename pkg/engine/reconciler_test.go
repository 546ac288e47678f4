package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/config"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/state"
)

func TestReconciler_CreateApplyConverges(t *testing.T) {
	ctx := context.Background()
	rec, store := newTestReconciler(t)
	remote := newMockRemote()
	alpha := space("alpha", "Alpha")

	plan, err := rec.Plan(ctx, []*config.SpaceConfig{alpha}, remote, "dev")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(plan.Items) != 1 || plan.Items[0].Action != ActionCreate {
		t.Fatalf("expected one CREATE item, got %+v", plan.Items)
	}
	if got := plan.Items[0].Changes; len(got) != 1 || got[0] != "Create new space 'Alpha'" {
		t.Errorf("unexpected create changes: %v", got)
	}

	result, err := rec.Apply(ctx, plan, remote, false)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !reflect.DeepEqual(result.Created, []string{"alpha"}) || len(result.Failed) != 0 {
		t.Fatalf("unexpected apply result: %+v", result)
	}

	store.Refresh()
	envState, ok := store.Environment("dev")
	if !ok {
		t.Fatal("environment dev not saved")
	}
	entry, ok := envState.Space("alpha")
	if !ok {
		t.Fatal("alpha not tracked after apply")
	}
	if entry.Status != "APPLIED" || entry.AppliedHash == nil || *entry.AppliedHash != alpha.ConfigHash() {
		t.Errorf("unexpected entry after apply: %+v", entry)
	}
	if entry.RemoteIDOrEmpty() != "r1" {
		t.Errorf("expected remote id r1, got %q", entry.RemoteIDOrEmpty())
	}
	if envState.LastApplied == nil || !envState.LastApplied.Equal(fixedNow) {
		t.Errorf("environment last_applied not stamped: %v", envState.LastApplied)
	}

	replan, err := rec.Plan(ctx, []*config.SpaceConfig{alpha}, remote, "dev")
	if err != nil {
		t.Fatalf("re-Plan failed: %v", err)
	}
	if replan.HasChanges() || len(replan.NoChanges()) != 1 {
		t.Errorf("expected convergence, got %s", replan.Summary())
	}
}

func TestReconciler_TitleChangeUpdates(t *testing.T) {
	ctx := context.Background()
	rec, store := newTestReconciler(t)
	remote := newMockRemote()

	old := space("alpha", "Old")
	plan, _ := rec.Plan(ctx, []*config.SpaceConfig{old}, remote, "dev")
	if _, err := rec.Apply(ctx, plan, remote, false); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	renamed := space("alpha", "New")
	plan, err := rec.Plan(ctx, []*config.SpaceConfig{renamed}, remote, "dev")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(plan.Updates()) != 1 {
		t.Fatalf("expected one UPDATE, got %s", plan.Summary())
	}
	want := []string{"Title: 'Old' → 'New'", "Configuration updated"}
	if got := plan.Items[0].Changes; !reflect.DeepEqual(got, want) {
		t.Errorf("changes = %v, want %v", got, want)
	}

	result, err := rec.Apply(ctx, plan, remote, false)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !reflect.DeepEqual(result.Updated, []string{"alpha"}) {
		t.Fatalf("unexpected apply result: %+v", result)
	}

	store.Refresh()
	envState, _ := store.Environment("dev")
	entry, _ := envState.Space("alpha")
	if *entry.AppliedHash != renamed.ConfigHash() || entry.Title != "New" {
		t.Errorf("entry not updated: %+v", entry)
	}
	if got := remote.mutatingCalls(); !reflect.DeepEqual(got, []string{"create:alpha", "update:r1"}) {
		t.Errorf("unexpected remote calls: %v", got)
	}
}

func TestReconciler_PlanIsIdempotent(t *testing.T) {
	ctx := context.Background()
	rec, store := newTestReconciler(t)
	remote := newMockRemote()
	seed(t, store, "dev", space("alpha", "Alpha"), "r1")

	configs := []*config.SpaceConfig{space("alpha", "Alpha v2"), space("beta", "Beta"), space("gamma", "Gamma")}
	first, err := rec.Plan(ctx, configs, remote, "dev")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	second, err := rec.Plan(ctx, configs, remote, "dev")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if !reflect.DeepEqual(first.Items, second.Items) {
		t.Errorf("plan items differ between runs:\n%+v\n%+v", first.Items, second.Items)
	}
	for i, id := range []string{"alpha", "beta", "gamma"} {
		if first.Items[i].LogicalID != id {
			t.Errorf("item %d = %s, want %s (input order)", i, first.Items[i].LogicalID, id)
		}
	}
	if len(remote.calls) != 0 {
		t.Errorf("plan called the remote: %v", remote.calls)
	}
}

func TestReconciler_PlanIgnoresUntrackedConfigs(t *testing.T) {
	ctx := context.Background()
	rec, store := newTestReconciler(t)
	seed(t, store, "dev", space("orphan", "Orphan"), "r9")

	plan, err := rec.Plan(ctx, []*config.SpaceConfig{space("alpha", "Alpha")}, newMockRemote(), "dev")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(plan.Destroys()) != 0 || len(plan.Items) != 1 {
		t.Errorf("plan must not schedule destroys for absent configs: %s", plan.Summary())
	}
}

func TestReconciler_DryRunIsNoOp(t *testing.T) {
	ctx := context.Background()
	rec, store := newTestReconciler(t)
	remote := newMockRemote()
	seed(t, store, "dev", space("alpha", "Alpha"), "r1")

	before, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	configs := []*config.SpaceConfig{space("alpha", "Alpha v2"), space("beta", "Beta"), space("gamma", "Gamma")}
	plan, _ := rec.Plan(ctx, configs, remote, "dev")
	result, err := rec.Apply(ctx, plan, remote, true)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if len(result.Created) != 2 || len(result.Updated) != 1 || !result.DryRun {
		t.Errorf("unexpected dry-run classification: %+v", result)
	}
	if calls := remote.mutatingCalls(); len(calls) != 0 {
		t.Errorf("dry run called the remote: %v", calls)
	}
	after, _ := os.ReadFile(store.Path())
	if !bytes.Equal(before, after) {
		t.Error("dry run wrote the state file")
	}
}

func TestReconciler_PartialFailure(t *testing.T) {
	ctx := context.Background()
	recorder := newMockRecorder()
	rec, store := newTestReconciler(t, WithRecorder(recorder))
	remote := newMockRemote()
	remote.fail["beta"] = errors.New("quota exceeded")

	configs := []*config.SpaceConfig{space("alpha", "Alpha"), space("beta", "Beta"), space("gamma", "Gamma")}
	plan, _ := rec.Plan(ctx, configs, remote, "dev")
	result, err := rec.Apply(ctx, plan, remote, false)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if !reflect.DeepEqual(result.Created, []string{"alpha", "gamma"}) {
		t.Errorf("created = %v", result.Created)
	}
	if len(result.Failed) != 1 || result.Failed[0].LogicalID != "beta" ||
		!strings.Contains(result.Failed[0].Error, "quota exceeded") {
		t.Errorf("failed = %+v", result.Failed)
	}
	if result.Status() != RunStatusPartial {
		t.Errorf("status = %s, want partial", result.Status())
	}

	envState, _ := store.Environment("dev")
	if _, ok := envState.Space("beta"); ok {
		t.Error("failed create must not be tracked")
	}
	if recorder.finished["run-1"] != string(RunStatusPartial) {
		t.Errorf("history status = %q", recorder.finished["run-1"])
	}
	if len(recorder.events) != 3 {
		t.Errorf("expected 3 history events, got %v", recorder.events)
	}
}

func TestReconciler_FailedUpdateRecordsError(t *testing.T) {
	ctx := context.Background()
	rec, store := newTestReconciler(t)
	remote := newMockRemote()
	remote.spaces["r1"] = &RemoteSpace{ID: "r1", Title: "Alpha"}
	seed(t, store, "dev", space("alpha", "Alpha"), "r1")
	remote.fail["alpha"] = errors.New("boom")

	plan, _ := rec.Plan(ctx, []*config.SpaceConfig{space("alpha", "Alpha v2")}, remote, "dev")
	result, err := rec.Apply(ctx, plan, remote, false)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(result.Failed) != 1 {
		t.Fatalf("expected one failure, got %+v", result)
	}

	store.Refresh()
	envState, _ := store.Environment("dev")
	entry, _ := envState.Space("alpha")
	if entry.Error == nil || !strings.Contains(*entry.Error, "boom") {
		t.Errorf("entry error not recorded: %+v", entry)
	}
	if entry.Title != "Alpha" {
		t.Errorf("failed update changed title to %q", entry.Title)
	}
	// The entry keeps its previous status and hashes, so the next apply
	// plans the update again.
	hash := space("alpha", "Alpha").ConfigHash()
	if entry.Status != state.StatusApplied || entry.ConfigHash != hash || entry.AppliedHash == nil || *entry.AppliedHash != hash {
		t.Errorf("failed update rewrote status or hashes: %+v", entry)
	}
	replan, _ := rec.Plan(ctx, []*config.SpaceConfig{space("alpha", "Alpha v2")}, remote, "dev")
	if replan.Items[0].Action != ActionUpdate {
		t.Errorf("failed update not replanned: %s", replan.Items[0].Action)
	}
}

func TestReconciler_UpdateWithoutRemoteIDIsInvariantViolation(t *testing.T) {
	ctx := context.Background()
	rec, store := newTestReconciler(t)
	remote := newMockRemote()
	entry := seed(t, store, "dev", space("alpha", "Alpha"), "r1")
	entry.RemoteID = nil

	plan, _ := rec.Plan(ctx, []*config.SpaceConfig{space("alpha", "Alpha v2"), space("beta", "Beta")}, remote, "dev")
	result, err := rec.Apply(ctx, plan, remote, false)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if len(result.Failed) != 1 || result.Failed[0].LogicalID != "alpha" {
		t.Fatalf("expected alpha to fail, got %+v", result)
	}
	if !strings.Contains(result.Failed[0].Error, "No existing space ID for update") {
		t.Errorf("unexpected error text: %s", result.Failed[0].Error)
	}
	if !reflect.DeepEqual(result.Created, []string{"beta"}) {
		t.Errorf("other items must still run, created = %v", result.Created)
	}
	for _, call := range remote.mutatingCalls() {
		if strings.HasPrefix(call, "update:") {
			t.Errorf("update must not reach the remote: %v", call)
		}
	}
}

func TestReconciler_PolicyDeniesApply(t *testing.T) {
	ctx := context.Background()
	recorder := newMockRecorder()
	rec, store := newTestReconciler(t, WithPolicy(&mockPolicy{denyApply: true}), WithRecorder(recorder))
	remote := newMockRemote()

	plan, _ := rec.Plan(ctx, []*config.SpaceConfig{space("alpha", "Alpha")}, remote, "prod")
	_, err := rec.Apply(ctx, plan, remote, false)
	if err == nil {
		t.Fatal("expected policy denial")
	}
	if ErrorCodeOf(err) != ErrCodePolicyDenied || !strings.Contains(err.Error(), "apply blocked") {
		t.Errorf("unexpected error: %v", err)
	}
	if calls := remote.mutatingCalls(); len(calls) != 0 {
		t.Errorf("denied apply called the remote: %v", calls)
	}
	if _, statErr := os.Stat(store.Path()); !os.IsNotExist(statErr) {
		t.Error("denied apply wrote state")
	}
	if recorder.finished["run-1"] != string(RunStatusDenied) {
		t.Errorf("denial not recorded: %v", recorder.finished)
	}
}

func TestReconciler_DestroyRemovesTracking(t *testing.T) {
	ctx := context.Background()
	rec, store := newTestReconciler(t)
	remote := newMockRemote()

	plan, _ := rec.Plan(ctx, []*config.SpaceConfig{space("alpha", "Alpha")}, remote, "dev")
	if _, err := rec.Apply(ctx, plan, remote, false); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	res, err := rec.Destroy(ctx, "alpha", remote, "dev", false)
	if err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if !res.Success || res.RemoteID != "r1" {
		t.Fatalf("unexpected destroy result: %+v", res)
	}

	store.Refresh()
	envState, _ := store.Environment("dev")
	if _, ok := envState.Space("alpha"); ok {
		t.Error("alpha still tracked after destroy")
	}

	again, err := rec.Destroy(ctx, "alpha", remote, "dev", false)
	if err != nil {
		t.Fatalf("second Destroy returned error: %v", err)
	}
	if again.Success || !strings.Contains(again.Error, "not found") {
		t.Errorf("expected not-found failure, got %+v", again)
	}
	if want := "Space 'alpha' not found in state for environment 'dev'"; again.Error != want {
		t.Errorf("error = %q, want %q", again.Error, want)
	}
}

func TestReconciler_DestroyFailureKeepsEntry(t *testing.T) {
	ctx := context.Background()
	rec, store := newTestReconciler(t)
	remote := newMockRemote()
	seed(t, store, "dev", space("alpha", "Alpha"), "r1")
	remote.fail["r1"] = errors.New("permission denied")

	res, err := rec.Destroy(ctx, "alpha", remote, "dev", false)
	if err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if res.Success || !strings.Contains(res.Error, "permission denied") {
		t.Errorf("unexpected result: %+v", res)
	}
	envState, _ := store.Environment("dev")
	if _, ok := envState.Space("alpha"); !ok {
		t.Error("entry dropped after failed delete")
	}
}

func TestReconciler_DestroyDryRun(t *testing.T) {
	ctx := context.Background()
	rec, store := newTestReconciler(t)
	remote := newMockRemote()
	seed(t, store, "dev", space("alpha", "Alpha"), "r1")

	res, err := rec.Destroy(ctx, "alpha", remote, "dev", true)
	if err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if !res.Success || res.RemoteID != "r1" || !res.DryRun {
		t.Errorf("unexpected dry-run result: %+v", res)
	}
	if calls := remote.mutatingCalls(); len(calls) != 0 {
		t.Errorf("dry run called the remote: %v", calls)
	}
	if _, ok := mustEnv(t, store, "dev").Space("alpha"); !ok {
		t.Error("dry run removed the entry")
	}
}

func TestReconciler_DestroyTargets(t *testing.T) {
	ctx := context.Background()
	policy := &mockPolicy{}
	rec, store := newTestReconciler(t, WithPolicy(policy))
	remote := newMockRemote()
	for i, id := range []string{"alpha", "beta", "gamma", "delta"} {
		seed(t, store, "dev", space(id, strings.ToUpper(id)), "r"+string(rune('1'+i)))
	}

	summary, err := rec.DestroyTargets(ctx, "*[beta, delta]", remote, "dev", false)
	if err != nil {
		t.Fatalf("DestroyTargets failed: %v", err)
	}
	if !reflect.DeepEqual(summary.Destroyed, []string{"alpha", "gamma"}) {
		t.Errorf("destroyed = %v", summary.Destroyed)
	}
	if !reflect.DeepEqual(summary.Excluded, []string{"beta", "delta"}) {
		t.Errorf("excluded = %v", summary.Excluded)
	}
	if len(policy.destroyed) != 1 || !reflect.DeepEqual(policy.destroyed[0], []string{"alpha", "gamma"}) {
		t.Errorf("policy should see the selection once, got %v", policy.destroyed)
	}

	store.Refresh()
	if got := mustEnv(t, store, "dev").LogicalIDs(); !reflect.DeepEqual(got, []string{"beta", "delta"}) {
		t.Errorf("remaining = %v", got)
	}
}

func TestReconciler_PolicyDeniesDestroy(t *testing.T) {
	ctx := context.Background()
	rec, store := newTestReconciler(t, WithPolicy(&mockPolicy{denyDestroy: true}))
	remote := newMockRemote()
	seed(t, store, "prod", space("alpha", "Alpha"), "r1")

	_, err := rec.Destroy(ctx, "alpha", remote, "prod", false)
	if ErrorCodeOf(err) != ErrCodePolicyDenied {
		t.Fatalf("expected policy denial, got %v", err)
	}
	if calls := remote.mutatingCalls(); len(calls) != 0 {
		t.Errorf("denied destroy called the remote: %v", calls)
	}
}

func TestReconciler_DriftDeletedWhenGetFails(t *testing.T) {
	ctx := context.Background()
	rec, store := newTestReconciler(t)
	remote := newMockRemote()
	seed(t, store, "dev", space("beta", "Beta"), "r1")
	remote.getFail["r1"] = errors.New("404 not found")

	report, err := rec.DetectDrift(ctx, remote, "dev")
	if err != nil {
		t.Fatalf("DetectDrift failed: %v", err)
	}
	if !report.HasDrift || len(report.Deleted) != 1 || report.Deleted[0].LogicalID != "beta" {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.Synced) != 0 || len(report.Drifted) != 0 {
		t.Errorf("beta classified twice: %+v", report)
	}
	if !strings.HasPrefix(report.Deleted[0].Reason, "Space not found in workspace: ") {
		t.Errorf("reason = %q", report.Deleted[0].Reason)
	}
}

func TestReconciler_DriftTitleChange(t *testing.T) {
	ctx := context.Background()
	rec, store := newTestReconciler(t)
	remote := newMockRemote()
	seed(t, store, "dev", space("gamma", "Gamma"), "r2")
	remote.spaces["r2"] = &RemoteSpace{ID: "r2", Title: "Gamma-Renamed"}

	report, err := rec.DetectDrift(ctx, remote, "dev")
	if err != nil {
		t.Fatalf("DetectDrift failed: %v", err)
	}
	if len(report.Drifted) != 1 {
		t.Fatalf("expected gamma drifted, got %+v", report)
	}
	changes := strings.Join(report.Drifted[0].Changes, "\n")
	if !strings.Contains(changes, "Gamma") || !strings.Contains(changes, "Gamma-Renamed") {
		t.Errorf("change line lacks titles: %q", changes)
	}
}

func TestReconciler_DriftClassification(t *testing.T) {
	ctx := context.Background()
	rec, store := newTestReconciler(t)
	remote := newMockRemote()

	seed(t, store, "dev", space("synced", "Synced"), "r1")
	remote.spaces["r1"] = &RemoteSpace{ID: "r1", Title: "Synced", ModifiedAt: "not a time"}

	seed(t, store, "dev", space("touched", "Touched"), "r2")
	later := fixedNow.Add(time.Minute).Format(time.RFC3339)
	remote.spaces["r2"] = &RemoteSpace{ID: "r2", Title: "Touched", ModifiedAt: later}

	seed(t, store, "dev", space("old", "Old"), "r3")
	earlier := fixedNow.Add(-2 * time.Hour).UnixMilli()
	remote.spaces["r3"] = &RemoteSpace{ID: "r3", Title: "Old", ModifiedAt: itoa(earlier)}

	orphan := seed(t, store, "dev", space("orphan", "Orphan"), "r4")
	orphan.RemoteID = nil

	report, err := rec.DetectDrift(ctx, remote, "dev")
	if err != nil {
		t.Fatalf("DetectDrift failed: %v", err)
	}
	if report.TotalChecked != 4 {
		t.Errorf("total checked = %d", report.TotalChecked)
	}
	if ids := driftIDs(report.Synced); !reflect.DeepEqual(ids, []string{"old", "synced"}) {
		t.Errorf("synced = %v", ids)
	}
	if len(report.Drifted) != 1 || report.Drifted[0].Changes[0] != "Modified after last apply: "+later {
		t.Errorf("drifted = %+v", report.Drifted)
	}
	if len(report.Deleted) != 1 || report.Deleted[0].Reason != "No remote space ID recorded in state" {
		t.Errorf("deleted = %+v", report.Deleted)
	}
}

func TestReconciler_DriftIsReadOnly(t *testing.T) {
	ctx := context.Background()
	rec, store := newTestReconciler(t)
	remote := newMockRemote()
	seed(t, store, "dev", space("alpha", "Alpha"), "r1")
	remote.getFail["r1"] = errors.New("gone")

	info, _ := os.Stat(store.Path())
	before, _ := os.ReadFile(store.Path())

	if _, err := rec.DetectDrift(ctx, remote, "dev"); err != nil {
		t.Fatalf("DetectDrift failed: %v", err)
	}
	report, err := rec.DetectDrift(ctx, remote, "staging")
	if err != nil {
		t.Fatalf("DetectDrift failed: %v", err)
	}
	if report.Error != "Environment 'staging' not found in state" {
		t.Errorf("error = %q", report.Error)
	}

	after, _ := os.ReadFile(store.Path())
	infoAfter, _ := os.Stat(store.Path())
	if !bytes.Equal(before, after) || !info.ModTime().Equal(infoAfter.ModTime()) {
		t.Error("drift detection modified the state file")
	}
	ps, _ := store.Load()
	if _, ok := ps.Environment("staging"); ok {
		t.Error("drift detection created an environment")
	}
}

func TestReconciler_ImportThenPlanIsNoChange(t *testing.T) {
	ctx := context.Background()
	rec, store := newTestReconciler(t)
	cfg := space("imported", "Imported")

	res, err := rec.Import(ctx, cfg, "r42", "dev", "https://example.cloud.databricks.com")
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if res.ConfigHash != cfg.ConfigHash() || res.RemoteID != "r42" {
		t.Errorf("unexpected import result: %+v", res)
	}

	plan, err := rec.Plan(ctx, []*config.SpaceConfig{cfg}, newMockRemote(), "dev")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if plan.HasChanges() {
		t.Errorf("imported space should be unchanged: %s", plan.Summary())
	}

	store.Refresh()
	if mustEnv(t, store, "dev").WorkspaceURL != "https://example.cloud.databricks.com" {
		t.Error("workspace url not recorded")
	}
}

func TestReconciler_StatusAndRemove(t *testing.T) {
	ctx := context.Background()
	rec, store := newTestReconciler(t)
	seed(t, store, "dev", space("beta", "Beta"), "r2")
	alpha := seed(t, store, "dev", space("alpha", "Alpha"), "r1")
	alpha.MarkFailed("last update failed")

	status, err := rec.Status(ctx, "dev")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if len(status.Spaces) != 2 || status.Spaces[0].LogicalID != "alpha" || status.Spaces[0].Error != "last update failed" {
		t.Errorf("unexpected status: %+v", status.Spaces)
	}

	empty, _ := rec.Status(ctx, "prod")
	if len(empty.Spaces) != 0 {
		t.Errorf("untracked environment should be empty: %+v", empty)
	}

	if err := rec.Remove(ctx, "alpha", "dev"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	store.Refresh()
	if got := mustEnv(t, store, "dev").LogicalIDs(); !reflect.DeepEqual(got, []string{"beta"}) {
		t.Errorf("remaining = %v", got)
	}

	err = rec.Remove(ctx, "alpha", "dev")
	if ErrorCodeOf(err) != ErrCodeNotFound || !strings.Contains(err.Error(), "not found in state") {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestReconciler_Pull(t *testing.T) {
	ctx := context.Background()
	rec, store := newTestReconciler(t)
	remote := newMockRemote()
	seed(t, store, "dev", space("alpha", "Alpha"), "r1")
	seed(t, store, "dev", space("beta", "Beta"), "r2")
	seed(t, store, "dev", space("gamma", "Gamma"), "r3")
	remote.spaces["r1"] = &RemoteSpace{ID: "r1", Title: "Alpha"}
	remote.spaces["r2"] = &RemoteSpace{ID: "r2", Title: "Beta (renamed)"}

	verify, err := rec.Pull(ctx, remote, "dev", true)
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if verify.Saved || len(verify.Updated) != 1 || len(verify.Missing) != 1 {
		t.Errorf("unexpected verify result: %+v", verify)
	}
	if entry, _ := mustEnv(t, store, "dev").Space("beta"); entry.Title != "Beta" {
		t.Error("verify-only pull changed a title")
	}

	pulled, err := rec.Pull(ctx, remote, "dev", false)
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if !pulled.Saved || !reflect.DeepEqual(pulled.Verified, []string{"alpha", "beta"}) {
		t.Errorf("unexpected pull result: %+v", pulled)
	}
	if pulled.Missing[0].LogicalID != "gamma" || !strings.HasPrefix(pulled.Missing[0].Error, "Not found in workspace: ") {
		t.Errorf("missing = %+v", pulled.Missing)
	}

	store.Refresh()
	envState := mustEnv(t, store, "dev")
	if entry, _ := envState.Space("beta"); entry.Title != "Beta (renamed)" {
		t.Errorf("title not refreshed: %q", entry.Title)
	}
	if envState.LastApplied != nil {
		t.Errorf("pull must not stamp last_applied, got %v", envState.LastApplied)
	}

	if _, err := rec.Pull(ctx, remote, "prod", false); ErrorCodeOf(err) != ErrCodeNotFound {
		t.Errorf("expected not found for untracked environment, got %v", err)
	}
}

func TestReconciler_ApplyParallelMatchesSequential(t *testing.T) {
	ctx := context.Background()
	rec, store := newTestReconciler(t)
	remote := newMockRemote()
	remote.delay = 5 * time.Millisecond
	remote.fail["c3"] = errors.New("rejected")

	var configs []*config.SpaceConfig
	for _, id := range []string{"c1", "c2", "c3", "c4", "c5", "c6"} {
		configs = append(configs, space(id, strings.ToUpper(id)))
	}
	plan, _ := rec.Plan(ctx, configs, remote, "dev")

	result, err := rec.ApplyParallel(ctx, plan, remote, BulkOptions{Workers: 3})
	if err != nil {
		t.Fatalf("ApplyParallel failed: %v", err)
	}
	if !reflect.DeepEqual(result.Created, []string{"c1", "c2", "c4", "c5", "c6"}) {
		t.Errorf("created = %v (plan order expected)", result.Created)
	}
	if len(result.Failed) != 1 || result.Failed[0].LogicalID != "c3" {
		t.Errorf("failed = %+v", result.Failed)
	}
	if peak := remote.maxSeen.Load(); peak > 3 {
		t.Errorf("observed %d concurrent calls with 3 workers", peak)
	}

	store.Refresh()
	if got := len(mustEnv(t, store, "dev").Spaces); got != 5 {
		t.Errorf("tracked %d spaces, want 5", got)
	}
	replan, _ := rec.Plan(ctx, configs, remote, "dev")
	if len(replan.Creates()) != 1 || replan.Creates()[0].LogicalID != "c3" {
		t.Errorf("only the failed space should remain to create: %s", replan.Summary())
	}
}

func TestReconciler_DestroyItemInApplyFails(t *testing.T) {
	ctx := context.Background()
	rec, _ := newTestReconciler(t)
	remote := newMockRemote()
	plan := &Plan{Environment: "dev", Items: []PlanItem{{LogicalID: "alpha", Action: ActionDestroy}}}

	result, err := rec.Apply(ctx, plan, remote, false)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(result.Failed) != 1 || !strings.Contains(result.Failed[0].Error, "DESTROY") {
		t.Errorf("unexpected result: %+v", result)
	}
	if calls := remote.mutatingCalls(); len(calls) != 0 {
		t.Errorf("remote called: %v", calls)
	}
}

func TestParseRemoteTime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2024-03-01T12:00:00Z", fixedNow, false},
		{"2024-03-01T13:00:00+01:00", fixedNow, false},
		{"1709294400000", fixedNow, false},
		{"yesterday", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseRemoteTime(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
