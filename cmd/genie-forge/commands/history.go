package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/stores"
)

var errNoHistory = errors.New("run history is not available (see history_db)")

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past apply, destroy, import and bulk runs",
	}

	runs := newHistoryRunsCommand()
	cmd.RunE = runs.RunE
	cmd.Flags().AddFlagSet(runs.Flags())

	cmd.AddCommand(runs)
	cmd.AddCommand(newHistoryEventsCommand())
	cmd.AddCommand(newHistorySpaceCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

func newHistoryRunsCommand() *cobra.Command {
	var (
		all   bool
		kind  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List runs, newest first",
		Example: `  genie-forge history
  genie-forge history runs --kind destroy --all --limit 50`,
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if a.history == nil {
				return errNoHistory
			}
			filter := stores.RunFilter{Kind: kind, Limit: limit}
			if !all {
				filter.Environment = a.cfg.Env
			}
			runs, err := a.history.ListRuns(ctx, filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.cfg.JSON {
				return renderJSON(out, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}
			t := newTable(out, "Run", "Kind", "Env", "Status", "OK", "Failed", "Started", "Duration", "Summary")
			for _, r := range runs {
				t.AppendRow([]any{
					r.ID, r.Kind, r.Environment, r.Status, r.Succeeded, r.Failed,
					formatTime(&r.StartedAt), r.Duration().Round(time.Millisecond), r.Summary,
				})
			}
			t.Render()
			return nil
		}),
	}

	cmd.Flags().BoolVar(&all, "all", false, "include every environment")
	cmd.Flags().StringVar(&kind, "kind", "", "only runs of this kind (apply, destroy, drift, import, pull, bulk_create, bulk_delete)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs, 0 for all")

	return cmd
}

func newHistoryEventsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events <run-id>",
		Short: "List the per-space events of a run",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if a.history == nil {
				return errNoHistory
			}
			run, err := a.history.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			events, err := a.history.ListEvents(ctx, run.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.cfg.JSON {
				return renderJSON(out, map[string]any{"run": run, "events": events})
			}
			fmt.Fprintf(out, "Run %s: %s %s, %s\n", run.ID, run.Kind, run.Environment, run.Status)
			printEvents(cmd, events)
			summaryLine(out, "%s", orDash(run.Summary))
			return nil
		}),
	}

	return cmd
}

func newHistorySpaceCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "space <space-id>",
		Short: "List the most recent events of one space",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if a.history == nil {
				return errNoHistory
			}
			events, err := a.history.SpaceHistory(ctx, args[0], limit)
			if err != nil {
				return err
			}
			if a.cfg.JSON {
				return renderJSON(cmd.OutOrStdout(), events)
			}
			printEvents(cmd, events)
			return nil
		}),
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of events, 0 for all")

	return cmd
}

func newHistoryPruneCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than a duration",
		Example: `  # Keep the last 30 days
  genie-forge history prune --older-than 720h`,
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if a.history == nil {
				return errNoHistory
			}
			n, err := a.history.PruneBefore(ctx, time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Pruned %d run(s)\n", n)
			return nil
		}),
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 90*24*time.Hour, "age of the runs to delete")

	return cmd
}

func printEvents(cmd *cobra.Command, events []*stores.Event) {
	out := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(out, "No events recorded.")
		return
	}
	t := newTable(out, "Time", "Run", "Space", "Action", "Outcome", "Message")
	for _, e := range events {
		t.AppendRow([]any{formatTime(&e.CreatedAt), e.RunID, e.LogicalID, e.Action, e.Outcome, e.Message})
	}
	t.Render()
}
