package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/state"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/telemetry"
)

// DetectDrift compares every tracked space of env with the remote.
//
// DetectDrift is read-only: it never creates environments, mutates
// entries or saves. An untracked environment yields a report with Error
// set rather than an error.
func (r *Reconciler) DetectDrift(ctx context.Context, remote RemoteClient, env string) (*DriftReport, error) {
	ctx, span := r.startSpan(ctx, "engine.drift", telemetry.AttrEnvironment.String(env))
	var err error
	defer func() { telemetry.EndSpan(span, err) }()

	report := &DriftReport{
		Environment: env,
		Timestamp:   r.now().UTC(),
		Drifted:     []DriftItem{},
		Deleted:     []DriftItem{},
		Synced:      []DriftItem{},
	}

	envState, err := r.lookupEnvironment(env)
	if err != nil {
		return nil, err
	}
	if envState == nil {
		report.Error = fmt.Sprintf("Environment '%s' not found in state", env)
		return report, nil
	}
	report.WorkspaceURL = envState.WorkspaceURL

	timer := telemetry.NewTimer()
	runID := r.startRun(ctx, RunKindDrift, env)

	for _, id := range envState.LogicalIDs() {
		current := envState.Spaces[id]
		report.TotalChecked++

		item := DriftItem{LogicalID: id, RemoteID: current.RemoteIDOrEmpty(), Title: current.Title}
		if !current.HasRemoteID() {
			item.Reason = "No remote space ID recorded in state"
			report.Deleted = append(report.Deleted, item)
			report.HasDrift = true
			r.metrics.RecordDriftDetection(env, "deleted")
			r.recordEvent(ctx, runID, id, ActionNoChange, errors.New(item.Reason))
			continue
		}

		actual, getErr := remote.Get(ctx, item.RemoteID)
		if getErr != nil {
			item.Reason = fmt.Sprintf("Space not found in workspace: %v", getErr)
			report.Deleted = append(report.Deleted, item)
			report.HasDrift = true
			r.metrics.RecordDriftDetection(env, "deleted")
			r.recordEvent(ctx, runID, id, ActionNoChange, getErr)
			continue
		}

		if item.Changes = r.compareSpace(current, actual); len(item.Changes) > 0 {
			report.Drifted = append(report.Drifted, item)
			report.HasDrift = true
			r.metrics.RecordDriftDetection(env, "drifted")
			r.recordEvent(ctx, runID, id, ActionUpdate, nil)
			continue
		}
		report.Synced = append(report.Synced, item)
		r.metrics.RecordDriftDetection(env, "synced")
		r.recordEvent(ctx, runID, id, ActionNoChange, nil)
	}

	status := RunStatusSucceeded
	if report.HasDrift {
		status = RunStatusPartial
	}
	r.metrics.RecordRunCompleted(string(RunKindDrift), string(status), timer.Duration())
	r.finishRun(ctx, runID, status, report.Summary())
	r.logger.Info().Str("env", env).Bool("has_drift", report.HasDrift).Msg(report.Summary())

	return report, nil
}

// compareSpace lists the differences between a tracked entry and the
// remote space. An empty list means the space is in sync.
func (r *Reconciler) compareSpace(current *state.SpaceState, actual *RemoteSpace) []string {
	var changes []string
	if current.Title != actual.Title {
		changes = append(changes, fmt.Sprintf("Title changed: '%s' → '%s'", current.Title, actual.Title))
	}

	if actual.ModifiedAt != "" && current.LastApplied != nil {
		modified, err := parseRemoteTime(actual.ModifiedAt)
		switch {
		case err != nil:
			r.logger.Debug().Err(err).Str("logical_id", current.LogicalID).Msg("Ignoring unparseable remote timestamp")
		case modified.After(*current.LastApplied):
			changes = append(changes, fmt.Sprintf("Modified after last apply: %s", actual.ModifiedAt))
		}
	}
	return changes
}

// parseRemoteTime parses an RFC 3339 timestamp or epoch milliseconds.
func parseRemoteTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unsupported timestamp %q: %w", s, err)
	}
	return t, nil
}
