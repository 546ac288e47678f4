package commands

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/config"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/engine"
)

func newPlanCommand() *cobra.Command {
	var (
		watch   bool
		targets []string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the changes apply would make",
		Long: `Compare the space files with the tracked state of an environment and
list what would be created or updated. Nothing is changed remotely and the
state file is not written.

With --watch the plan is recomputed whenever a space file changes.`,
		Example: `  # Plan the dev environment
  genie-forge plan

  # Plan prod for two spaces only
  genie-forge plan --env prod --target sales,finance

  # Re-plan on every edit
  genie-forge plan --watch`,
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			client, err := a.remote()
			if err != nil {
				return err
			}

			runPlan := func() error {
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
				return printPlan(cmd.OutOrStdout(), plan, a.cfg.JSON)
			}

			if err := runPlan(); err != nil {
				if !watch {
					return err
				}
				a.logger.Error().Err(err).Msg("Plan failed")
			}
			if !watch {
				return nil
			}

			watcher := config.NewWatcher(a.logger, 300*time.Millisecond)
			defer watcher.Close()
			if err := watcher.Watch(ctx, []string{a.cfg.ConfigPath}, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "\n--- %s: config changed, re-planning ---\n", time.Now().Format(time.TimeOnly))
				a.store.Refresh()
				if err := runPlan(); err != nil {
					a.logger.Error().Err(err).Msg("Plan failed")
				}
			}); err != nil {
				return err
			}

			<-ctx.Done()
			return nil
		}),
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-plan when space files change")
	cmd.Flags().StringSliceVarP(&targets, "target", "t", nil, "limit the plan to these space ids")

	return cmd
}

// selectTargets keeps the spaces named in targets, in input order. An
// empty targets keeps everything.
func selectTargets(spaces []*config.SpaceConfig, targets []string) ([]*config.SpaceConfig, error) {
	if len(targets) == 0 {
		return spaces, nil
	}
	wanted := make(map[string]bool, len(targets))
	for _, t := range targets {
		wanted[t] = true
	}

	var selected []*config.SpaceConfig
	for _, s := range spaces {
		if wanted[s.LogicalID] {
			selected = append(selected, s)
			delete(wanted, s.LogicalID)
		}
	}
	if len(wanted) > 0 {
		missing := make([]string, 0, len(wanted))
		for id := range wanted {
			missing = append(missing, id)
		}
		sort.Strings(missing)
		return nil, fmt.Errorf("targets not defined in the space files: %s", strings.Join(missing, ", "))
	}
	return selected, nil
}

func printPlan(w io.Writer, plan *engine.Plan, asJSON bool) error {
	if asJSON {
		return renderJSON(w, plan)
	}

	fmt.Fprintf(w, "Plan for %s (%s)\n", plan.Environment, plan.ID)
	if len(plan.Items) > 0 {
		t := newTable(w, "", "Space", "Title", "Action", "Changes")
		for _, item := range plan.Items {
			t.AppendRow([]any{
				item.Action.Symbol(),
				item.LogicalID,
				item.Config.Title,
				item.Action,
				joinChanges(item.Changes),
			})
		}
		t.Render()
	}
	summaryLine(w, "%s", plan.Summary())
	return nil
}
