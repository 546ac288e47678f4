package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/state"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/telemetry"
)

// Apply executes plan against remote, one item at a time in plan order.
//
// A failing item is recorded in the result and never stops the run. State
// is saved once after the loop. With dryRun the items are only classified
// and nothing is called, mutated or saved. The returned error is reserved
// for failures that prevent the run as a whole, such as a policy denial or
// a failed save.
func (r *Reconciler) Apply(ctx context.Context, plan *Plan, remote RemoteClient, dryRun bool) (*ApplyResult, error) {
	if plan == nil {
		return nil, NewPermanentError("plan is nil", nil).WithCode(ErrCodeValidation)
	}

	ctx, span := r.startSpan(ctx, "engine.apply",
		telemetry.AttrEnvironment.String(plan.Environment),
		telemetry.AttrPlanID.String(plan.ID),
		telemetry.AttrDryRun.Bool(dryRun),
	)
	var err error
	defer func() { telemetry.EndSpan(span, err) }()

	if err = r.checkPlanPolicy(ctx, plan, dryRun); err != nil {
		return nil, err
	}

	result := newApplyResult(dryRun)
	if dryRun {
		for _, item := range plan.Items {
			classify(result, item)
		}
		r.logger.Info().Str("env", plan.Environment).Bool("dry_run", true).Msg(result.Summary())
		return result, nil
	}

	envState, err := r.store.GetOrCreateEnvironment(plan.Environment, remote.Endpoint())
	if err != nil {
		err = NewStateError(fmt.Sprintf("failed to load environment %q", plan.Environment), err)
		return nil, err
	}

	timer := telemetry.NewTimer()
	runID := r.startRun(ctx, RunKindApply, plan.Environment)

	for _, item := range plan.Items {
		if item.Action == ActionNoChange {
			result.Unchanged = append(result.Unchanged, item.LogicalID)
			continue
		}

		remoteID, itemErr := validateItem(item, envState)
		if itemErr == nil {
			remoteID, itemErr = r.callRemote(ctx, item, remote, remoteID)
		}
		r.commitItem(envState, item, remoteID, itemErr, result)
		r.recordEvent(ctx, runID, item.LogicalID, item.Action, itemErr)
	}

	err = r.finishApply(ctx, envState, result, runID, timer)
	return result, err
}

// ApplyParallel executes the remote calls of plan through a BulkRunner and
// then commits the outcomes to state sequentially in plan order, saving
// once. Policy and dry-run handling match Apply.
func (r *Reconciler) ApplyParallel(ctx context.Context, plan *Plan, remote RemoteClient, opts BulkOptions) (*ApplyResult, error) {
	if plan == nil {
		return nil, NewPermanentError("plan is nil", nil).WithCode(ErrCodeValidation)
	}

	ctx, span := r.startSpan(ctx, "engine.apply_parallel",
		telemetry.AttrEnvironment.String(plan.Environment),
		telemetry.AttrPlanID.String(plan.ID),
	)
	var err error
	defer func() { telemetry.EndSpan(span, err) }()

	if err = r.checkPlanPolicy(ctx, plan, false); err != nil {
		return nil, err
	}

	envState, err := r.store.GetOrCreateEnvironment(plan.Environment, remote.Endpoint())
	if err != nil {
		err = NewStateError(fmt.Sprintf("failed to load environment %q", plan.Environment), err)
		return nil, err
	}

	timer := telemetry.NewTimer()
	runID := r.startRun(ctx, RunKindApply, plan.Environment)

	remoteIDs := make([]string, len(plan.Items))
	errs := make([]error, len(plan.Items))
	var pending []int
	for i, item := range plan.Items {
		if item.Action == ActionNoChange {
			continue
		}
		remoteIDs[i], errs[i] = validateItem(item, envState)
		if errs[i] == nil {
			pending = append(pending, i)
		}
	}

	runner := r.BulkRunner(opts)
	callErrs := runner.run(ctx, len(pending), func(ctx context.Context, n int) error {
		i := pending[n]
		id, callErr := r.callRemote(ctx, plan.Items[i], remote, remoteIDs[i])
		remoteIDs[i] = id
		return callErr
	})
	for n, i := range pending {
		errs[i] = callErrs[n]
	}

	result := newApplyResult(false)
	for i, item := range plan.Items {
		if item.Action == ActionNoChange {
			result.Unchanged = append(result.Unchanged, item.LogicalID)
			continue
		}
		r.commitItem(envState, item, remoteIDs[i], errs[i], result)
		r.recordEvent(ctx, runID, item.LogicalID, item.Action, errs[i])
	}

	err = r.finishApply(ctx, envState, result, runID, timer)
	return result, err
}

func classify(result *ApplyResult, item PlanItem) {
	switch item.Action {
	case ActionCreate:
		result.Created = append(result.Created, item.LogicalID)
	case ActionUpdate:
		result.Updated = append(result.Updated, item.LogicalID)
	case ActionNoChange:
		result.Unchanged = append(result.Unchanged, item.LogicalID)
	default:
		result.Failed = append(result.Failed, FailedItem{
			LogicalID: item.LogicalID,
			Error:     destroyInApplyError(item.LogicalID).Error(),
		})
	}
}

func destroyInApplyError(logicalID string) *EngineError {
	return NewPermanentError("DESTROY items are executed by destroy, not apply", nil).
		WithResource(logicalID).
		WithCode(ErrCodeValidation)
}

// validateItem checks that item can be executed against envState and
// returns the remote id an update targets.
func validateItem(item PlanItem, envState *state.EnvironmentState) (string, error) {
	switch item.Action {
	case ActionCreate, ActionUpdate:
	default:
		return "", destroyInApplyError(item.LogicalID)
	}
	if item.Config == nil {
		return "", NewPermanentError("plan item has no config", nil).
			WithResource(item.LogicalID).
			WithCode(ErrCodeValidation)
	}
	if item.Action == ActionCreate {
		return "", nil
	}

	current, ok := envState.Space(item.LogicalID)
	if !ok || !current.HasRemoteID() {
		return "", NewInvariantError(item.LogicalID, "No existing space ID for update")
	}
	return current.RemoteIDOrEmpty(), nil
}

// callRemote performs the remote call of a validated item. It touches no
// state and is safe to run concurrently for distinct items.
func (r *Reconciler) callRemote(ctx context.Context, item PlanItem, remote RemoteClient, remoteID string) (string, error) {
	op := strings.ToLower(string(item.Action))
	ctx, span := r.startSpan(ctx, "engine.space."+op,
		telemetry.AttrLogicalID.String(item.LogicalID),
		telemetry.AttrOperation.String(op),
	)
	timer := telemetry.NewTimer()

	var err error
	switch item.Action {
	case ActionCreate:
		remoteID, err = remote.Create(ctx, item.Config)
	case ActionUpdate:
		err = remote.Update(ctx, remoteID, item.Config)
	}
	if err != nil {
		err = NewRemoteOperationError(op, item.LogicalID, err)
	} else {
		span.SetAttributes(telemetry.AttrRemoteID.String(remoteID))
	}

	r.metrics.RecordSpaceOperation(op, outcome(err), timer.Duration())
	telemetry.EndSpan(span, err)
	return remoteID, err
}

// commitItem records the outcome of one executed item in state and result.
func (r *Reconciler) commitItem(envState *state.EnvironmentState, item PlanItem, remoteID string, err error, result *ApplyResult) {
	logger := r.logger.With().Str("logical_id", item.LogicalID).Str("action", string(item.Action)).Logger()

	if err != nil {
		if current, ok := envState.Space(item.LogicalID); ok {
			current.MarkFailed(err.Error())
		}
		result.Failed = append(result.Failed, FailedItem{LogicalID: item.LogicalID, Error: err.Error()})
		r.recordFailure(err)
		logger.Error().Err(err).Msg("Space operation failed")
		return
	}

	now := r.now()
	hash := item.Config.ConfigHash()
	switch item.Action {
	case ActionCreate:
		entry := &state.SpaceState{LogicalID: item.LogicalID}
		entry.MarkApplied(remoteID, item.Config.Title, hash, now)
		envState.Spaces[item.LogicalID] = entry
		result.Created = append(result.Created, item.LogicalID)
	case ActionUpdate:
		current, _ := envState.Space(item.LogicalID)
		current.MarkApplied(remoteID, item.Config.Title, hash, now)
		result.Updated = append(result.Updated, item.LogicalID)
	}
	logger.Info().Str("remote_id", remoteID).Msg("Space applied")
}

func (r *Reconciler) finishApply(ctx context.Context, envState *state.EnvironmentState, result *ApplyResult, runID string, timer *telemetry.Timer) error {
	now := r.now()
	envState.LastApplied = &now

	var err error
	if saveErr := r.store.Save(); saveErr != nil {
		err = NewStateError("failed to save state", saveErr)
	}

	status := result.Status()
	if err != nil {
		status = RunStatusFailed
	}
	r.metrics.RecordRunCompleted(string(RunKindApply), string(status), timer.Duration())
	r.finishRun(ctx, runID, status, result.Summary())
	r.logger.Info().Str("run_id", runID).Str("status", string(status)).Msg(result.Summary())
	return err
}

// checkPlanPolicy consults the policy evaluator, if any. A denied plan
// returns a POLICY_DENIED error; outside dry runs the denial is recorded
// in history.
func (r *Reconciler) checkPlanPolicy(ctx context.Context, plan *Plan, dryRun bool) error {
	if r.policy == nil {
		return nil
	}
	res, err := r.policy.EvaluatePlan(ctx, plan)
	if err != nil {
		return fmt.Errorf("policy evaluation failed: %w", err)
	}
	return r.enforce(ctx, res, RunKindApply, plan.Environment, dryRun)
}

func (r *Reconciler) enforce(ctx context.Context, res *PolicyResult, kind RunKind, env string, dryRun bool) error {
	for _, w := range res.Warnings {
		r.logger.Warn().Str("env", env).Msg(w)
	}
	if res.Allowed {
		return nil
	}

	msgs := make([]string, 0, len(res.Violations))
	for _, v := range res.Violations {
		msgs = append(msgs, v.Message)
	}
	err := NewPermanentError("policy denied: "+strings.Join(msgs, "; "), nil).
		WithCode(ErrCodePolicyDenied).
		WithOperation(string(kind)).
		WithDetail("violations", res.Violations)
	r.recordFailure(err)

	if !dryRun {
		runID := r.startRun(ctx, kind, env)
		r.finishRun(ctx, runID, RunStatusDenied, err.Message)
	}
	return err
}

func outcome(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}
