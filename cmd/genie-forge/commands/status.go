package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/engine"
)

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the tracked spaces of an environment",
		Long: `List every space tracked in state for the selected environment with its
remote id, status and last apply time. The workspace is not contacted.`,
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			status, err := a.reconciler.Status(ctx, a.cfg.Env)
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), status, a.cfg.JSON)
		}),
	}

	return cmd
}

func printStatus(w io.Writer, status *engine.EnvironmentStatus, asJSON bool) error {
	if asJSON {
		return renderJSON(w, status)
	}

	fmt.Fprintf(w, "Environment: %s\n", status.Environment)
	fmt.Fprintf(w, "Workspace:   %s\n", orDash(status.WorkspaceURL))
	fmt.Fprintf(w, "Last apply:  %s\n", formatTime(status.LastApplied))
	if len(status.Spaces) == 0 {
		fmt.Fprintln(w, "\nNo spaces tracked.")
		return nil
	}

	t := newTable(w, "Space", "Title", "Remote ID", "Status", "Last Applied", "Error")
	for _, s := range status.Spaces {
		t.AppendRow([]any{s.LogicalID, s.Title, orDash(s.RemoteID), s.Status, formatTime(s.LastApplied), s.Error})
	}
	fmt.Fprintln(w)
	t.Render()
	summaryLine(w, "%d space(s) tracked", len(status.Spaces))
	return nil
}
