package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/engine"
)

func newDestroyCommand() *cobra.Command {
	var (
		target string
		dryRun bool
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Delete tracked spaces from the workspace",
		Long: `Delete the tracked spaces selected by --target and remove them from state.

--target is a space id, "*" for every tracked space, or a pattern with
exclusions such as "* [staging_space, demo_space]". Destroys are checked
against policy; protected environments refuse them.`,
		Example: `  # Preview destroying one space
  genie-forge destroy --target sales --dry-run

  # Destroy everything except two spaces without prompting
  genie-forge destroy --target "* [sales, finance]" --force`,
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			client, err := a.remote()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !dryRun && !force {
				ok, err := confirm(cmd.InOrStdin(), out,
					fmt.Sprintf("Destroy %q in %s? This deletes the spaces from the workspace.", target, a.cfg.Env))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(out, "Destroy cancelled.")
					return nil
				}
			}

			summary, err := a.reconciler.DestroyTargets(ctx, target, client, a.cfg.Env, dryRun)
			if err != nil {
				return err
			}

			if err := printDestroySummary(out, summary, a.cfg.JSON); err != nil {
				return err
			}
			return failuresError(len(summary.Failed), "destroy(s)")
		}),
	}

	cmd.Flags().StringVarP(&target, "target", "t", "", "space id or pattern to destroy")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be destroyed")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "do not ask for confirmation")
	_ = cmd.MarkFlagRequired("target")

	return cmd
}

func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s\nType 'yes' to continue: ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	return strings.TrimSpace(line) == "yes", nil
}

func printDestroySummary(w io.Writer, summary *engine.DestroySummary, asJSON bool) error {
	if asJSON {
		return renderJSON(w, summary)
	}

	if len(summary.Results) > 0 {
		t := newTable(w, "Space", "Remote ID", "Result")
		for _, res := range summary.Results {
			result := "destroyed"
			switch {
			case !res.Success:
				result = "failed: " + res.Error
			case res.DryRun:
				result = "would be destroyed"
			}
			t.AppendRow([]any{res.LogicalID, orDash(res.RemoteID), result})
		}
		t.Render()
	}
	if len(summary.Excluded) > 0 {
		fmt.Fprintf(w, "Excluded: %s\n", strings.Join(summary.Excluded, ", "))
	}
	summaryLine(w, "Destroy: %s", summary.Summary())
	return nil
}
