package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/engine"
)

func newApplyCommand() *cobra.Command {
	var (
		dryRun   bool
		parallel int
		rate     float64
		targets  []string
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Create and update spaces to match the space files",
		Long: `Plan the selected environment and execute the plan.

Spaces are applied one at a time in file order, saving state after each
one, unless --parallel is given. A failed space does not stop the others.
Guard-rail policies are evaluated before anything is changed.`,
		Example: `  # Preview without changing anything
  genie-forge apply --dry-run

  # Apply prod
  genie-forge apply --env prod

  # Apply with eight workers, at most ten requests a second
  genie-forge apply --parallel 8 --rate 10`,
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			client, err := a.remote()
			if err != nil {
				return err
			}
			spaces, err := a.loadSpaces(ctx)
			if err != nil {
				return err
			}
			spaces, err = selectTargets(spaces, targets)
			if err != nil {
				return err
			}

			plan, err := a.reconciler.Plan(ctx, spaces, client, a.cfg.Env)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !a.cfg.JSON {
				if err := printPlan(out, plan, false); err != nil {
					return err
				}
				if !plan.HasChanges() {
					fmt.Fprintln(out, "\nNo changes. Spaces are up to date.")
					return nil
				}
				fmt.Fprintln(out)
			}

			var result *engine.ApplyResult
			if cmd.Flags().Changed("parallel") && a.cfg.Bulk.Workers > 1 && !dryRun {
				result, err = a.reconciler.ApplyParallel(ctx, plan, client, engine.BulkOptions{
					Workers:       a.cfg.Bulk.Workers,
					RatePerSecond: a.cfg.Bulk.Rate,
				})
			} else {
				result, err = a.reconciler.Apply(ctx, plan, client, dryRun)
			}
			if err != nil {
				return err
			}

			if err := printApplyResult(out, result, a.cfg.JSON); err != nil {
				return err
			}
			return failuresError(len(result.Failed), "space(s)")
		}),
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would change without calling the workspace")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 1, "apply with this many workers")
	cmd.Flags().Float64Var(&rate, "rate", 0, "cap parallel requests per second (0 uses the project setting)")
	cmd.Flags().StringSliceVarP(&targets, "target", "t", nil, "apply only these space ids")

	return cmd
}

func printApplyResult(w io.Writer, result *engine.ApplyResult, asJSON bool) error {
	if asJSON {
		return renderJSON(w, result)
	}

	verb := ""
	if result.DryRun {
		verb = "would be "
	}
	t := newTable(w, "Space", "Result")
	for _, id := range result.Created {
		t.AppendRow([]any{id, verb + "created"})
	}
	for _, id := range result.Updated {
		t.AppendRow([]any{id, verb + "updated"})
	}
	for _, f := range result.Failed {
		t.AppendRow([]any{f.LogicalID, "failed: " + f.Error})
	}
	if t.Length() > 0 {
		t.Render()
	}

	prefix := "Apply complete"
	if result.DryRun {
		prefix = "Dry run"
	}
	summaryLine(w, "%s: %s", prefix, result.Summary())
	return nil
}
