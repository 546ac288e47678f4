package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/engine"
)

func newBulkCommand() *cobra.Command {
	var (
		parallel int
		rate     float64
	)

	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Create or delete many spaces concurrently",
		Long: `Run creates or deletes through a bounded worker pool. Bulk operations are
stateless: they do not read or write the state file. Every run is still
recorded in the run history.`,
	}

	cmd.PersistentFlags().IntVarP(&parallel, "parallel", "p", 0, "number of workers (default: bulk.workers)")
	cmd.PersistentFlags().Float64Var(&rate, "rate", 0, "requests per second, 0 for unlimited (default: bulk.rate)")

	cmd.AddCommand(newBulkCreateCommand())
	cmd.AddCommand(newBulkDeleteCommand())

	return cmd
}

func bulkOptions(a *app) engine.BulkOptions {
	return engine.BulkOptions{
		Workers:       a.cfg.Bulk.Workers,
		RatePerSecond: a.cfg.Bulk.Rate,
	}
}

func newBulkCreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create [path]",
		Short: "Create every space in the space files",
		Example: `  # Load-test a workspace with 16 workers
  genie-forge bulk create conf/load-test --parallel 16 --rate 20`,
		Args: cobra.MaximumNArgs(1),
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			client, err := a.remote()
			if err != nil {
				return err
			}
			path := a.cfg.ConfigPath
			if len(args) == 1 {
				path = args[0]
			}
			spaces, err := a.loadSpacesFrom(ctx, path)
			if err != nil {
				return err
			}

			res := a.reconciler.BulkCreate(ctx, client, spaces, a.cfg.Env, bulkOptions(a))
			if err := printBulkResult(cmd.OutOrStdout(), "create", res, a.cfg.JSON); err != nil {
				return err
			}
			return failuresError(res.Failed, "create(s)")
		}),
	}

	return cmd
}

func newBulkDeleteCommand() *cobra.Command {
	var pattern string

	cmd := &cobra.Command{
		Use:   "delete [remote-id...]",
		Short: "Delete spaces by remote id or title pattern",
		Example: `  # Delete two spaces
  genie-forge bulk delete 01ef01 01ef02

  # Delete every space titled "LoadTest*"
  genie-forge bulk delete --pattern "LoadTest*" --parallel 8`,
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if (len(args) > 0) == (pattern != "") {
				return errors.New("give either remote ids or --pattern")
			}
			client, err := a.remote()
			if err != nil {
				return err
			}

			ids := args
			if pattern != "" {
				found, err := client.FindByNamePattern(ctx, pattern)
				if err != nil {
					return err
				}
				ids = make([]string, 0, len(found))
				for _, sp := range found {
					ids = append(ids, sp.ID)
				}
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to delete.")
				return nil
			}

			res := a.reconciler.BulkDelete(ctx, client, ids, a.cfg.Env, bulkOptions(a))
			if err := printBulkResult(cmd.OutOrStdout(), "delete", res, a.cfg.JSON); err != nil {
				return err
			}
			return failuresError(res.Failed, "delete(s)")
		}),
	}

	cmd.Flags().StringVar(&pattern, "pattern", "", "delete spaces whose title matches this glob")

	return cmd
}

func printBulkResult(w io.Writer, op string, res *engine.BulkResult, asJSON bool) error {
	if asJSON {
		return renderJSON(w, res)
	}

	t := newTable(w, "Space", "Remote ID", "Status", "Error")
	for _, item := range res.Results {
		t.AppendRow([]any{orDash(item.LogicalID), orDash(item.RemoteID), item.Status, item.Error})
	}
	if t.Length() > 0 {
		t.Render()
	}
	summaryLine(w, "Bulk %s: %s", op, res.Summary())
	return nil
}
