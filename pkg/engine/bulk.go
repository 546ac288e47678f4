package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/config"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/telemetry"
)

// DefaultBulkWorkers is the worker pool size used when none is given.
const DefaultBulkWorkers = 20

// BulkOptions configures a BulkRunner.
type BulkOptions struct {
	// Workers bounds the number of in-flight remote calls.
	Workers int `json:"workers"`

	// RatePerSecond caps submissions per second. Zero means unlimited.
	RatePerSecond float64 `json:"rate_per_second"`
}

// BulkItem is the outcome of one bulk operation.
type BulkItem struct {
	LogicalID string     `json:"logical_id"`
	RemoteID  string     `json:"databricks_space_id,omitempty"`
	Status    BulkStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
}

// BulkResult summarises a bulk run. Results are in input order.
type BulkResult struct {
	Total          int           `json:"total"`
	Success        int           `json:"success"`
	Failed         int           `json:"failed"`
	Elapsed        time.Duration `json:"-"`
	ElapsedSeconds float64       `json:"elapsed_seconds"`
	RatePerSecond  float64       `json:"rate_per_second"`
	Results        []BulkItem    `json:"results"`
}

// ApplyResult folds the bulk result into the sequential apply shape,
// counting successes as created.
func (b *BulkResult) ApplyResult() *ApplyResult {
	result := newApplyResult(false)
	for _, item := range b.Results {
		if item.Status == BulkStatusSuccess {
			result.Created = append(result.Created, item.LogicalID)
			continue
		}
		result.Failed = append(result.Failed, FailedItem{LogicalID: item.LogicalID, Error: item.Error})
	}
	return result
}

// Summary returns a one-line description of the result.
func (b *BulkResult) Summary() string {
	return fmt.Sprintf("%d total, %d succeeded, %d failed in %.2fs (%.2f/s)",
		b.Total, b.Success, b.Failed, b.ElapsedSeconds, b.RatePerSecond)
}

// BulkRunner runs independent remote calls on a bounded worker pool with
// an optional submission rate limit.
type BulkRunner struct {
	workers  int
	interval time.Duration
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
}

// NewBulkRunner creates a runner. Non-positive workers default to
// DefaultBulkWorkers.
func NewBulkRunner(opts BulkOptions, logger zerolog.Logger, metrics *telemetry.Metrics) *BulkRunner {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultBulkWorkers
	}
	var interval time.Duration
	if opts.RatePerSecond > 0 {
		interval = time.Duration(float64(time.Second) / opts.RatePerSecond)
	}
	return &BulkRunner{
		workers:  workers,
		interval: interval,
		logger:   logger.With().Str("component", "bulk").Logger(),
		metrics:  metrics,
	}
}

// BulkRunner returns a runner sharing the reconciler's logger and metrics.
func (r *Reconciler) BulkRunner(opts BulkOptions) *BulkRunner {
	return NewBulkRunner(opts, r.logger, r.metrics)
}

// run calls fn for indexes 0..n-1 and returns the per-index errors.
//
// Successive submissions are at least one rate interval apart, measured
// when the call actually starts; the first is immediate. A worker slot is
// taken before the rate token, so time spent waiting on a full pool never
// counts toward the interval. When ctx is cancelled, items not yet
// submitted fail with the context error.
func (b *BulkRunner) run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) []error {
	errs := make([]error, n)
	if n == 0 {
		return errs
	}

	var g errgroup.Group
	slots := semaphore.NewWeighted(int64(b.workers))

	var limiter *rate.Limiter
	if b.interval > 0 {
		limiter = rate.NewLimiter(rate.Every(b.interval), 1)
	}

	submitted := 0
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		if err := slots.Acquire(ctx, 1); err != nil {
			break
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				slots.Release(1)
				break
			}
		}

		b.metrics.AddBulkInFlight(1)
		g.Go(func() error {
			defer slots.Release(1)
			defer b.metrics.AddBulkInFlight(-1)
			errs[i] = fn(ctx, i)
			return nil
		})
		submitted++
	}

	_ = g.Wait()

	for i := submitted; i < n; i++ {
		errs[i] = ctx.Err()
	}
	if submitted < n {
		b.logger.Warn().Int("skipped", n-submitted).Err(ctx.Err()).Msg("Bulk run cancelled")
	}
	return errs
}

// BulkCreate creates every config on the remote without touching state.
func (b *BulkRunner) BulkCreate(ctx context.Context, remote RemoteClient, configs []*config.SpaceConfig) *BulkResult {
	start := time.Now()
	ids := make([]string, len(configs))
	errs := b.run(ctx, len(configs), func(ctx context.Context, i int) error {
		cfg := configs[i]
		timer := telemetry.NewTimer()
		id, err := remote.Create(ctx, cfg)
		if err != nil {
			err = NewRemoteOperationError("create", cfg.LogicalID, err)
		}
		ids[i] = id
		b.metrics.RecordSpaceOperation("create", outcome(err), timer.Duration())
		return err
	})

	items := make([]BulkItem, len(configs))
	for i, cfg := range configs {
		items[i] = bulkItem(cfg.LogicalID, ids[i], errs[i])
	}
	return b.result(items, time.Since(start))
}

// BulkDelete deletes every remote id. Items are keyed by remote id.
func (b *BulkRunner) BulkDelete(ctx context.Context, remote RemoteClient, remoteIDs []string) *BulkResult {
	start := time.Now()
	errs := b.run(ctx, len(remoteIDs), func(ctx context.Context, i int) error {
		timer := telemetry.NewTimer()
		err := remote.Delete(ctx, remoteIDs[i])
		if err != nil {
			err = NewRemoteOperationError("delete", remoteIDs[i], err)
		}
		b.metrics.RecordSpaceOperation("delete", outcome(err), timer.Duration())
		return err
	})

	items := make([]BulkItem, len(remoteIDs))
	for i, id := range remoteIDs {
		items[i] = bulkItem(id, id, errs[i])
	}
	return b.result(items, time.Since(start))
}

func bulkItem(logicalID, remoteID string, err error) BulkItem {
	if err != nil {
		return BulkItem{LogicalID: logicalID, Status: BulkStatusFailed, Error: err.Error()}
	}
	return BulkItem{LogicalID: logicalID, RemoteID: remoteID, Status: BulkStatusSuccess}
}

func (b *BulkRunner) result(items []BulkItem, elapsed time.Duration) *BulkResult {
	res := &BulkResult{
		Total:          len(items),
		Elapsed:        elapsed,
		ElapsedSeconds: elapsed.Seconds(),
		Results:        items,
	}
	for _, item := range items {
		if item.Status == BulkStatusSuccess {
			res.Success++
		} else {
			res.Failed++
		}
	}
	if elapsed > 0 {
		res.RatePerSecond = float64(res.Total) / elapsed.Seconds()
	}
	return res
}

// BulkCreate runs a stateless bulk create and records it in history.
func (r *Reconciler) BulkCreate(ctx context.Context, remote RemoteClient, configs []*config.SpaceConfig, env string, opts BulkOptions) *BulkResult {
	ctx, span := r.startSpan(ctx, "engine.bulk_create",
		telemetry.AttrEnvironment.String(env),
		telemetry.AttrItemCount.Int(len(configs)),
	)
	defer span.End()

	runID := r.startRun(ctx, RunKindBulkCreate, env)
	res := r.BulkRunner(opts).BulkCreate(ctx, remote, configs)
	r.finishBulk(ctx, RunKindBulkCreate, runID, ActionCreate, res)
	return res
}

// BulkDelete runs a stateless bulk delete and records it in history.
func (r *Reconciler) BulkDelete(ctx context.Context, remote RemoteClient, remoteIDs []string, env string, opts BulkOptions) *BulkResult {
	ctx, span := r.startSpan(ctx, "engine.bulk_delete",
		telemetry.AttrEnvironment.String(env),
		telemetry.AttrItemCount.Int(len(remoteIDs)),
	)
	defer span.End()

	runID := r.startRun(ctx, RunKindBulkDelete, env)
	res := r.BulkRunner(opts).BulkDelete(ctx, remote, remoteIDs)
	r.finishBulk(ctx, RunKindBulkDelete, runID, ActionDestroy, res)
	return res
}

func (r *Reconciler) finishBulk(ctx context.Context, kind RunKind, runID string, action PlanAction, res *BulkResult) {
	for _, item := range res.Results {
		var err error
		if item.Status == BulkStatusFailed {
			err = errors.New(item.Error)
		}
		r.recordEvent(ctx, runID, item.LogicalID, action, err)
	}
	status := runStatusFor(res.Success, res.Failed)
	r.metrics.RecordRunCompleted(string(kind), string(status), res.Elapsed)
	r.finishRun(ctx, runID, status, res.Summary())
	r.logger.Info().Str("kind", string(kind)).Msg(res.Summary())
}
