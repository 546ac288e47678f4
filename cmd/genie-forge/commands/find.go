package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newFindCommand() *cobra.Command {
	var caseSensitive bool

	cmd := &cobra.Command{
		Use:   "find <pattern>",
		Short: "Search workspace spaces by title",
		Long: `List workspace spaces whose title matches a glob pattern. Matching is
case-insensitive unless --case-sensitive is given.`,
		Example: `  genie-forge find "Sales*"
  genie-forge find "*[Qq]uarterly*" --case-sensitive`,
		Args: cobra.ExactArgs(1),
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			client, err := a.remote()
			if err != nil {
				return err
			}
			spaces, err := client.FindByName(ctx, args[0], caseSensitive)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.cfg.JSON {
				return renderJSON(out, spaces)
			}
			if len(spaces) == 0 {
				fmt.Fprintf(out, "No spaces match %q.\n", args[0])
				return nil
			}
			t := newTable(out, "ID", "Title", "Warehouse", "Modified")
			for _, sp := range spaces {
				t.AppendRow([]any{sp.ID, sp.Title, orDash(sp.WarehouseID), orDash(sp.ModifiedAt)})
			}
			t.Render()
			summaryLine(out, "%d space(s) found", len(spaces))
			return nil
		}),
	}

	cmd.Flags().BoolVar(&caseSensitive, "case-sensitive", false, "match titles case-sensitively")

	return cmd
}
