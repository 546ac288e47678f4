package engine

import (
	"context"
	"fmt"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/config"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/state"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/telemetry"
)

// Import starts tracking a space that already exists on the remote. The
// entry is recorded as applied with cfg's hash, so a following plan for
// the same cfg yields NO_CHANGE.
func (r *Reconciler) Import(ctx context.Context, cfg *config.SpaceConfig, remoteID, env, endpoint string) (*ImportResult, error) {
	if cfg == nil || remoteID == "" {
		return nil, NewPermanentError("import requires a config and a remote id", nil).WithCode(ErrCodeValidation)
	}

	ctx, span := r.startSpan(ctx, "engine.import",
		telemetry.AttrEnvironment.String(env),
		telemetry.AttrLogicalID.String(cfg.LogicalID),
		telemetry.AttrRemoteID.String(remoteID),
	)
	var err error
	defer func() { telemetry.EndSpan(span, err) }()

	envState, err := r.store.GetOrCreateEnvironment(env, endpoint)
	if err != nil {
		err = NewStateError(fmt.Sprintf("failed to load environment %q", env), err)
		return nil, err
	}
	if envState.WorkspaceURL == "" {
		envState.WorkspaceURL = endpoint
	}

	now := r.now()
	hash := cfg.ConfigHash()
	entry := &state.SpaceState{LogicalID: cfg.LogicalID}
	entry.MarkApplied(remoteID, cfg.Title, hash, now)
	envState.Spaces[cfg.LogicalID] = entry
	envState.LastApplied = &now

	runID := r.startRun(ctx, RunKindImport, env)
	if err = r.store.Save(); err != nil {
		err = NewStateError("failed to save state", err)
		r.recordEvent(ctx, runID, cfg.LogicalID, ActionCreate, err)
		r.finishRun(ctx, runID, RunStatusFailed, err.Error())
		return nil, err
	}
	r.recordEvent(ctx, runID, cfg.LogicalID, ActionCreate, nil)
	r.finishRun(ctx, runID, RunStatusSucceeded, fmt.Sprintf("imported %s as %s", remoteID, cfg.LogicalID))

	r.logger.Info().
		Str("env", env).
		Str("logical_id", cfg.LogicalID).
		Str("remote_id", remoteID).
		Msg("Space imported")

	return &ImportResult{
		LogicalID:   cfg.LogicalID,
		RemoteID:    remoteID,
		Environment: env,
		ConfigHash:  hash,
	}, nil
}

// Status lists the tracked spaces of env in logical id order. An untracked
// environment has no spaces.
func (r *Reconciler) Status(ctx context.Context, env string) (*EnvironmentStatus, error) {
	envState, err := r.lookupEnvironment(env)
	if err != nil {
		return nil, err
	}

	status := &EnvironmentStatus{Environment: env, Spaces: []StatusEntry{}}
	if envState == nil {
		return status, nil
	}
	status.WorkspaceURL = envState.WorkspaceURL
	status.LastApplied = envState.LastApplied

	counts := make(map[state.SpaceStatus]int)
	for _, id := range envState.LogicalIDs() {
		s := envState.Spaces[id]
		entry := StatusEntry{
			LogicalID:   id,
			Title:       s.Title,
			RemoteID:    s.RemoteIDOrEmpty(),
			Status:      s.Status,
			LastApplied: s.LastApplied,
		}
		if s.Error != nil {
			entry.Error = *s.Error
		}
		status.Spaces = append(status.Spaces, entry)
		counts[s.Status]++
	}
	for s, n := range counts {
		r.metrics.SetManagedSpaces(env, string(s), n)
	}
	return status, nil
}

// Remove stops tracking a space without deleting it remotely.
func (r *Reconciler) Remove(ctx context.Context, logicalID, env string) error {
	envState, err := r.lookupEnvironment(env)
	if err != nil {
		return err
	}
	if envState == nil {
		return NewPermanentError(notFoundInState(logicalID, env), nil).WithCode(ErrCodeNotFound)
	}
	if _, ok := envState.Space(logicalID); !ok {
		return NewPermanentError(notFoundInState(logicalID, env), nil).WithCode(ErrCodeNotFound)
	}

	delete(envState.Spaces, logicalID)
	if err := r.store.Save(); err != nil {
		return NewStateError("failed to save state", err)
	}
	r.logger.Info().Str("env", env).Str("logical_id", logicalID).Msg("Space removed from state")
	return nil
}

// Pull checks every tracked remote id of env against the remote and, unless
// verifyOnly, refreshes titles that changed remotely. State is saved only
// when something was updated or found missing.
func (r *Reconciler) Pull(ctx context.Context, remote RemoteClient, env string, verifyOnly bool) (*PullResult, error) {
	ctx, span := r.startSpan(ctx, "engine.pull", telemetry.AttrEnvironment.String(env))
	var err error
	defer func() { telemetry.EndSpan(span, err) }()

	envState, err := r.lookupEnvironment(env)
	if err != nil {
		return nil, err
	}
	if envState == nil {
		err = NewPermanentError(fmt.Sprintf("Environment '%s' not found in state", env), nil).WithCode(ErrCodeNotFound)
		return nil, err
	}

	result := &PullResult{
		Environment: env,
		Verified:    []string{},
		Updated:     []string{},
		Missing:     []FailedItem{},
		VerifyOnly:  verifyOnly,
	}

	timer := telemetry.NewTimer()
	var runID string
	if !verifyOnly {
		runID = r.startRun(ctx, RunKindPull, env)
	}

	for _, id := range envState.LogicalIDs() {
		current := envState.Spaces[id]
		if !current.HasRemoteID() {
			result.Missing = append(result.Missing, FailedItem{LogicalID: id, Error: "No remote space ID recorded in state"})
			continue
		}

		actual, getErr := remote.Get(ctx, current.RemoteIDOrEmpty())
		if getErr != nil {
			result.Missing = append(result.Missing, FailedItem{
				LogicalID: id,
				Error:     fmt.Sprintf("Not found in workspace: %v", getErr),
			})
			r.recordEvent(ctx, runID, id, ActionNoChange, getErr)
			continue
		}

		result.Verified = append(result.Verified, id)
		if actual.Title != "" && actual.Title != current.Title {
			result.Updated = append(result.Updated, id)
			if !verifyOnly {
				r.logger.Info().Str("logical_id", id).Str("title", actual.Title).Msg("Refreshing title from remote")
				current.Title = actual.Title
			}
			r.recordEvent(ctx, runID, id, ActionUpdate, nil)
		}
	}

	// last_applied is left alone: pull refreshes titles, it applies nothing.
	if !verifyOnly && (len(result.Updated) > 0 || len(result.Missing) > 0) {
		if err = r.store.Save(); err != nil {
			err = NewStateError("failed to save state", err)
			r.finishRun(ctx, runID, RunStatusFailed, err.Error())
			return result, err
		}
		result.Saved = true
	}

	if !verifyOnly {
		status := runStatusFor(len(result.Verified), len(result.Missing))
		r.metrics.RecordRunCompleted(string(RunKindPull), string(status), timer.Duration())
		r.finishRun(ctx, runID, status, fmt.Sprintf("%d verified, %d updated, %d missing",
			len(result.Verified), len(result.Updated), len(result.Missing)))
	}
	return result, nil
}
