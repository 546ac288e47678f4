package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/config"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/state"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/telemetry"
)

// Plan compares configs with the tracked state of env and returns one
// item per config in input order.
//
// Plan binds env to the remote endpoint on first use but never saves and
// never calls the remote.
func (r *Reconciler) Plan(ctx context.Context, configs []*config.SpaceConfig, remote RemoteClient, env string) (*Plan, error) {
	_, span := r.startSpan(ctx, "engine.plan",
		telemetry.AttrEnvironment.String(env),
		telemetry.AttrItemCount.Int(len(configs)),
	)
	var err error
	defer func() { telemetry.EndSpan(span, err) }()

	envState, err := r.store.GetOrCreateEnvironment(env, remote.Endpoint())
	if err != nil {
		err = NewStateError(fmt.Sprintf("failed to load environment %q", env), err)
		return nil, err
	}

	plan := &Plan{
		ID:          uuid.New().String(),
		Environment: env,
		Timestamp:   r.now(),
		Items:       make([]PlanItem, 0, len(configs)),
	}
	span.SetAttributes(telemetry.AttrPlanID.String(plan.ID))

	for _, cfg := range configs {
		if cfg == nil {
			err = NewPermanentError("nil space config in plan input", nil).WithCode(ErrCodeValidation)
			return nil, err
		}
		plan.Items = append(plan.Items, planItem(cfg, envState))
	}

	for _, action := range []PlanAction{ActionCreate, ActionUpdate, ActionDestroy, ActionNoChange} {
		r.metrics.SetPlannedChanges(env, string(action), len(plan.filter(action)))
	}

	r.logger.Debug().
		Str("env", env).
		Str("plan_id", plan.ID).
		Msg(plan.Summary())

	return plan, nil
}

func planItem(cfg *config.SpaceConfig, envState *state.EnvironmentState) PlanItem {
	hash := cfg.ConfigHash()
	current, ok := envState.Space(cfg.LogicalID)

	switch {
	case !ok:
		return PlanItem{
			LogicalID: cfg.LogicalID,
			Action:    ActionCreate,
			Config:    cfg,
			Changes:   []string{fmt.Sprintf("Create new space '%s'", cfg.Title)},
		}
	case current.AppliedHash == nil || *current.AppliedHash != hash:
		return PlanItem{
			LogicalID: cfg.LogicalID,
			Action:    ActionUpdate,
			Config:    cfg,
			Current:   current,
			Changes:   detectChanges(cfg, current, hash),
		}
	default:
		return PlanItem{
			LogicalID: cfg.LogicalID,
			Action:    ActionNoChange,
			Config:    cfg,
			Current:   current,
		}
	}
}

// detectChanges describes why a tracked space needs an update.
func detectChanges(cfg *config.SpaceConfig, current *state.SpaceState, hash string) []string {
	var changes []string
	if current.Title != "" && current.Title != cfg.Title {
		changes = append(changes, fmt.Sprintf("Title: '%s' → '%s'", current.Title, cfg.Title))
	}
	if current.ConfigHash != hash {
		changes = append(changes, "Configuration updated")
	}
	if len(changes) == 0 {
		changes = append(changes, "Hash mismatch (content changed)")
	}
	return changes
}
