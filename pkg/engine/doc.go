// Package engine reconciles declared space configurations with a remote
// service and the tracked state of each environment.
//
// # Overview
//
// The engine works in four phases, each a method on Reconciler:
//
//  1. Plan - Compare configs with tracked state (CREATE/UPDATE/NO_CHANGE)
//  2. Apply - Execute a plan against a RemoteClient and record results
//  3. Destroy - Delete tracked spaces, singly or by target pattern
//  4. Drift - Compare tracked state with the remote without mutating it
//
// Import, Status, Remove and Pull maintain state for spaces that already
// exist remotely.
//
// # Change Detection
//
// A space needs an update when the content hash of its config differs from
// the hash recorded at its last successful apply. The remote is never
// consulted while planning, so a plan is cheap and deterministic.
//
// # Error Handling
//
// Per-space failures never abort a run. They are captured as FailedItems
// and, when the entry exists, in its error field. Errors that stop a run,
// such as a policy denial or a failed save, are returned as EngineErrors:
//
//   - Transient: network timeouts, temporary service unavailability
//   - Throttled: rate limiting or quota exhaustion
//   - Conflict: concurrent modifications on the remote
//   - Permanent: invalid input, denied policy, missing resources
//
// The reconciler does not retry. Remote clients own request-level retries
// and a failed space is retried by running apply again.
//
// # Concurrency
//
// Apply, Destroy and DetectDrift process items sequentially in input
// order. ApplyParallel and BulkRunner fan remote calls out to a bounded
// worker pool with an optional submission rate limit; state is only
// mutated after the pool drains.
//
// # Usage Example
//
//	store := state.NewFileStore(state.Options{Path: ".genie-forge.json"})
//	rec := engine.NewReconciler(store, engine.WithLogger(logger))
//
//	plan, err := rec.Plan(ctx, configs, client, "dev")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(plan.Summary())
//
//	result, err := rec.Apply(ctx, plan, client, false)
//	if err != nil {
//	    return err
//	}
//	for _, f := range result.Failed {
//	    log.Printf("%s: %s", f.LogicalID, f.Error)
//	}
package engine
