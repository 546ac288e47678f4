package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/state"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/telemetry"
)

func notFoundInState(logicalID, env string) string {
	return fmt.Sprintf("Space '%s' not found in state for environment '%s'", logicalID, env)
}

// Destroy deletes one tracked space from the remote and drops it from
// state.
//
// An unknown logical id or a failed remote delete is reported in the
// result and leaves state untouched. Entries without a remote id are
// dropped without a remote call. The returned error is reserved for
// policy denials and save failures.
func (r *Reconciler) Destroy(ctx context.Context, logicalID string, remote RemoteClient, env string, dryRun bool) (*DestroyResult, error) {
	ctx, span := r.startSpan(ctx, "engine.destroy",
		telemetry.AttrEnvironment.String(env),
		telemetry.AttrLogicalID.String(logicalID),
		telemetry.AttrDryRun.Bool(dryRun),
	)
	var err error
	defer func() { telemetry.EndSpan(span, err) }()

	if err = r.checkDestroyPolicy(ctx, env, []string{logicalID}, dryRun); err != nil {
		return nil, err
	}

	envState, err := r.lookupEnvironment(env)
	if err != nil {
		return nil, err
	}

	timer := telemetry.NewTimer()
	var runID string
	if !dryRun {
		runID = r.startRun(ctx, RunKindDestroy, env)
	}

	result, err := r.destroyOne(ctx, envState, logicalID, remote, env, dryRun, runID)

	if !dryRun {
		status := RunStatusSucceeded
		if err != nil || !result.Success {
			status = RunStatusFailed
		}
		r.metrics.RecordRunCompleted(string(RunKindDestroy), string(status), timer.Duration())
		r.finishRun(ctx, runID, status, destroySummaryLine(result))
	}
	return result, err
}

// DestroyTargets destroys every tracked space selected by pattern (see
// ParseTargets). The policy is consulted once for the whole selection and
// state is saved after each successful destroy.
func (r *Reconciler) DestroyTargets(ctx context.Context, pattern string, remote RemoteClient, env string, dryRun bool) (*DestroySummary, error) {
	ctx, span := r.startSpan(ctx, "engine.destroy_targets",
		telemetry.AttrEnvironment.String(env),
		telemetry.AttrDryRun.Bool(dryRun),
	)
	var err error
	defer func() { telemetry.EndSpan(span, err) }()

	envState, err := r.lookupEnvironment(env)
	if err != nil {
		return nil, err
	}
	var tracked []string
	if envState != nil {
		tracked = envState.LogicalIDs()
	}

	targets, excluded, err := ParseTargets(pattern, tracked)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(telemetry.AttrItemCount.Int(len(targets)))

	if err = r.checkDestroyPolicy(ctx, env, targets, dryRun); err != nil {
		return nil, err
	}

	summary := &DestroySummary{
		Destroyed: []string{},
		Failed:    []FailedItem{},
		Excluded:  excluded,
		Results:   make([]*DestroyResult, 0, len(targets)),
		DryRun:    dryRun,
	}

	timer := telemetry.NewTimer()
	var runID string
	if !dryRun {
		runID = r.startRun(ctx, RunKindDestroy, env)
	}

	for _, id := range targets {
		var res *DestroyResult
		res, err = r.destroyOne(ctx, envState, id, remote, env, dryRun, runID)
		if err != nil {
			break
		}
		summary.Results = append(summary.Results, res)
		if res.Success {
			summary.Destroyed = append(summary.Destroyed, id)
		} else {
			summary.Failed = append(summary.Failed, FailedItem{LogicalID: id, Error: res.Error})
		}
	}

	if !dryRun {
		status := runStatusFor(len(summary.Destroyed), len(summary.Failed))
		if err != nil {
			status = RunStatusFailed
		}
		r.metrics.RecordRunCompleted(string(RunKindDestroy), string(status), timer.Duration())
		r.finishRun(ctx, runID, status, summary.Summary())
	}
	r.logger.Info().Str("env", env).Bool("dry_run", dryRun).Msg(summary.Summary())
	return summary, err
}

// destroyOne destroys a single entry of envState, which may be nil when
// the environment is not tracked.
func (r *Reconciler) destroyOne(ctx context.Context, envState *state.EnvironmentState, logicalID string, remote RemoteClient, env string, dryRun bool, runID string) (*DestroyResult, error) {
	result := &DestroyResult{LogicalID: logicalID, DryRun: dryRun}

	var current *state.SpaceState
	if envState != nil {
		current, _ = envState.Space(logicalID)
	}
	if current == nil {
		result.Error = notFoundInState(logicalID, env)
		r.recordFailure(NewPermanentError(result.Error, nil).WithCode(ErrCodeNotFound))
		r.recordEvent(ctx, runID, logicalID, ActionDestroy, errors.New(result.Error))
		return result, nil
	}
	result.RemoteID = current.RemoteIDOrEmpty()

	if dryRun {
		result.Success = true
		return result, nil
	}

	logger := r.logger.With().Str("logical_id", logicalID).Str("remote_id", result.RemoteID).Logger()

	if current.HasRemoteID() {
		opCtx, span := r.startSpan(ctx, "engine.space.delete",
			telemetry.AttrLogicalID.String(logicalID),
			telemetry.AttrRemoteID.String(result.RemoteID),
		)
		timer := telemetry.NewTimer()
		err := remote.Delete(opCtx, result.RemoteID)
		if err != nil {
			err = NewRemoteOperationError("delete", logicalID, err)
		}
		r.metrics.RecordSpaceOperation("delete", outcome(err), timer.Duration())
		telemetry.EndSpan(span, err)

		if err != nil {
			result.Error = err.Error()
			r.recordFailure(err)
			r.recordEvent(ctx, runID, logicalID, ActionDestroy, err)
			logger.Error().Err(err).Msg("Failed to destroy space")
			return result, nil
		}
	}

	delete(envState.Spaces, logicalID)
	result.Success = true
	r.recordEvent(ctx, runID, logicalID, ActionDestroy, nil)
	logger.Info().Msg("Space destroyed")

	if err := r.store.Save(); err != nil {
		return result, NewStateError("failed to save state", err)
	}
	return result, nil
}

// lookupEnvironment returns the tracked environment without creating it.
// A nil environment with a nil error means env is not tracked.
func (r *Reconciler) lookupEnvironment(env string) (*state.EnvironmentState, error) {
	ps, err := r.store.Load()
	if err != nil {
		return nil, NewStateError("failed to load state", err)
	}
	envState, _ := ps.Environment(env)
	return envState, nil
}

func (r *Reconciler) checkDestroyPolicy(ctx context.Context, env string, logicalIDs []string, dryRun bool) error {
	if r.policy == nil {
		return nil
	}
	res, err := r.policy.EvaluateDestroy(ctx, env, logicalIDs)
	if err != nil {
		return fmt.Errorf("policy evaluation failed: %w", err)
	}
	return r.enforce(ctx, res, RunKindDestroy, env, dryRun)
}

func destroySummaryLine(res *DestroyResult) string {
	if res.Success {
		return fmt.Sprintf("destroyed %s", res.LogicalID)
	}
	return fmt.Sprintf("failed to destroy %s: %s", res.LogicalID, res.Error)
}
