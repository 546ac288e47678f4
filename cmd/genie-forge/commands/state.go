package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/engine"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/state"
)

func newStateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and modify tracked state",
	}

	cmd.AddCommand(newStateListCommand())
	cmd.AddCommand(newStateShowCommand())
	cmd.AddCommand(newStateRemoveCommand())
	cmd.AddCommand(newStatePullCommand())

	return cmd
}

type stateListEntry struct {
	Environment string            `json:"environment"`
	LogicalID   string            `json:"logical_id"`
	Title       string            `json:"title"`
	RemoteID    string            `json:"databricks_space_id,omitempty"`
	Status      state.SpaceStatus `json:"status"`
}

func newStateListCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked spaces",
		Example: `  genie-forge state list --env prod
  genie-forge state list --all`,
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			st, err := a.store.Load()
			if err != nil {
				return err
			}

			envs := []string{a.cfg.Env}
			if all {
				envs = st.EnvironmentNames()
			}

			entries := []stateListEntry{}
			for _, name := range envs {
				envState, ok := st.Environment(name)
				if !ok {
					continue
				}
				for _, id := range envState.LogicalIDs() {
					s := envState.Spaces[id]
					entries = append(entries, stateListEntry{
						Environment: name,
						LogicalID:   id,
						Title:       s.Title,
						RemoteID:    s.RemoteIDOrEmpty(),
						Status:      s.Status,
					})
				}
			}

			out := cmd.OutOrStdout()
			if a.cfg.JSON {
				return renderJSON(out, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No spaces tracked.")
				return nil
			}
			t := newTable(out, "Environment", "Space", "Title", "Remote ID", "Status")
			for _, e := range entries {
				t.AppendRow([]any{e.Environment, e.LogicalID, e.Title, orDash(e.RemoteID), e.Status})
			}
			t.Render()
			summaryLine(out, "%d space(s) in %s", len(entries), a.store.Path())
			return nil
		}),
	}

	cmd.Flags().BoolVar(&all, "all", false, "list every environment")

	return cmd
}

func newStateShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <space-id>",
		Short: "Show the tracked record of one space",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			envState, ok := a.store.Environment(a.cfg.Env)
			if !ok {
				return fmt.Errorf("environment '%s' not found in state", a.cfg.Env)
			}
			s, ok := envState.Space(args[0])
			if !ok {
				return fmt.Errorf("space '%s' not found in environment '%s'", args[0], a.cfg.Env)
			}

			out := cmd.OutOrStdout()
			if a.cfg.JSON {
				return renderJSON(out, s)
			}
			printSpaceState(out, a.cfg.Env, s)
			return nil
		}),
	}

	return cmd
}

func printSpaceState(w io.Writer, env string, s *state.SpaceState) {
	applied := "-"
	if s.AppliedHash != nil {
		applied = *s.AppliedHash
	}
	lastErr := "-"
	if s.Error != nil {
		lastErr = *s.Error
	}

	t := newTable(w)
	t.AppendRows([]table.Row{
		{"Environment", env},
		{"Space", s.LogicalID},
		{"Title", s.Title},
		{"Remote ID", orDash(s.RemoteIDOrEmpty())},
		{"Status", s.Status},
		{"Config hash", s.ConfigHash},
		{"Applied hash", applied},
		{"Last applied", formatTime(s.LastApplied)},
		{"Last error", lastErr},
	})
	t.Render()
}

func newStateRemoveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <space-id>",
		Short: "Stop tracking a space without deleting it",
		Long: `Remove a space from state. The workspace space is left untouched; a later
apply would create a new one unless it is imported again.`,
		Args: cobra.ExactArgs(1),
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if err := a.reconciler.Remove(ctx, args[0], a.cfg.Env); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %s from %s state\n", args[0], a.cfg.Env)
			return nil
		}),
	}

	return cmd
}

func newStatePullCommand() *cobra.Command {
	var verifyOnly bool

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Refresh tracked titles from the workspace",
		Long: `Check every tracked remote id against the workspace. Titles changed in the
workspace are copied into state unless --verify-only is given.`,
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			client, err := a.remote()
			if err != nil {
				return err
			}
			res, err := a.reconciler.Pull(ctx, client, a.cfg.Env, verifyOnly)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.cfg.JSON {
				if err := renderJSON(out, res); err != nil {
					return err
				}
			} else {
				printPull(out, res)
			}
			return failuresError(len(res.Missing), "space(s)")
		}),
	}

	cmd.Flags().BoolVar(&verifyOnly, "verify-only", false, "check without writing state")

	return cmd
}

func printPull(w io.Writer, res *engine.PullResult) {
	t := newTable(w, "Space", "Result")
	updated := make(map[string]bool, len(res.Updated))
	for _, id := range res.Updated {
		updated[id] = true
	}
	for _, id := range res.Verified {
		result := "verified"
		if updated[id] {
			result = "title changed"
		}
		t.AppendRow([]any{id, result})
	}
	for _, m := range res.Missing {
		t.AppendRow([]any{m.LogicalID, "missing: " + m.Error})
	}
	if t.Length() > 0 {
		t.Render()
	}
	summaryLine(w, "Pull: %d verified, %d updated, %d missing (saved: %t)",
		len(res.Verified), len(res.Updated), len(res.Missing), res.Saved)
}
