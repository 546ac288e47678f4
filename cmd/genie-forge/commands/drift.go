package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/engine"
)

func newDriftCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Compare tracked state with the workspace",
		Long: `Fetch every tracked space from the workspace and report spaces that were
changed or deleted outside genie-forge. State is not modified.

Exits non-zero when drift is found.`,
		Example: `  # Check prod for drift
  genie-forge drift --env prod

  # Machine-readable report
  genie-forge drift --json`,
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			client, err := a.remote()
			if err != nil {
				return err
			}

			report, err := a.reconciler.DetectDrift(ctx, client, a.cfg.Env)
			if err != nil {
				return err
			}
			if err := printDriftReport(cmd.OutOrStdout(), report, a.cfg.JSON); err != nil {
				return err
			}

			switch {
			case report.Error != "":
				return errors.New(report.Error)
			case report.HasDrift:
				return fmt.Errorf("drift detected in %s: run apply to restore the local configuration", a.cfg.Env)
			}
			return nil
		}),
	}

	return cmd
}

func printDriftReport(w io.Writer, report *engine.DriftReport, asJSON bool) error {
	if asJSON {
		return renderJSON(w, report)
	}

	fmt.Fprintf(w, "Drift report for %s (%s)\n", report.Environment, orDash(report.WorkspaceURL))
	rows := 0
	t := newTable(w, "Space", "Remote ID", "Status", "Details")
	add := func(items []engine.DriftItem, status string) {
		for _, item := range items {
			details := item.Reason
			if len(item.Changes) > 0 {
				details = joinChanges(item.Changes)
			}
			t.AppendRow([]any{item.LogicalID, orDash(item.RemoteID), status, details})
			rows++
		}
	}
	add(report.Drifted, "drifted")
	add(report.Deleted, "deleted")
	add(report.Synced, "in sync")
	if rows > 0 {
		t.Render()
	}
	summaryLine(w, "Drift: %s", report.Summary())
	return nil
}
