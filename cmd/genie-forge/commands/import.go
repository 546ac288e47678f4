package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/config"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/engine"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/remote"
)

type importOutcome struct {
	RemoteID  string `json:"databricks_space_id"`
	LogicalID string `json:"logical_id,omitempty"`
	File      string `json:"file,omitempty"`
	Error     string `json:"error,omitempty"`
}

func newImportCommand() *cobra.Command {
	var (
		pattern   string
		as        string
		outputDir string
		overwrite bool
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "import [remote-id]",
		Short: "Adopt existing workspace spaces",
		Long: `Fetch existing spaces from the workspace, write them as space files and
track them in state, so the next plan shows no changes for them.

Select a single space by id, or every space whose title matches --pattern
(glob, case-insensitive). A space id that is already tracked in state is
refused unless --force is given.`,
		Example: `  # Import one space under a chosen id
  genie-forge import 01ef2a3b4c5d6e7f --as sales

  # Import every space titled "Sales*" into a separate directory
  genie-forge import --pattern "Sales*" --output-dir conf/imported`,
		Args: cobra.MaximumNArgs(1),
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if (len(args) == 1) == (pattern != "") {
				return errors.New("give either a remote id or --pattern")
			}
			if as != "" && pattern != "" {
				return errors.New("--as can only be used when importing a single space")
			}
			if outputDir == "" {
				outputDir = a.cfg.ConfigPath
			}

			client, err := a.remote()
			if err != nil {
				return err
			}

			var ids []string
			if pattern != "" {
				found, err := client.FindByNamePattern(ctx, pattern)
				if err != nil {
					return err
				}
				for _, sp := range found {
					ids = append(ids, sp.ID)
				}
			} else {
				ids = args
			}

			serializer := remote.NewSerializer()
			used := make(map[string]bool)
			outcomes := make([]importOutcome, 0, len(ids))
			failed := 0
			for _, id := range ids {
				outcome := importOutcome{RemoteID: id}
				logicalID, file, err := importSpace(ctx, a, client, serializer, id, as, outputDir, overwrite, force, used)
				outcome.LogicalID = logicalID
				outcome.File = file
				if err != nil {
					outcome.Error = err.Error()
					failed++
				}
				outcomes = append(outcomes, outcome)
			}

			if err := printImport(cmd.OutOrStdout(), outcomes, failed, a.cfg.JSON); err != nil {
				return err
			}
			return failuresError(failed, "import(s)")
		}),
	}

	cmd.Flags().StringVar(&pattern, "pattern", "", "import spaces whose title matches this glob")
	cmd.Flags().StringVar(&as, "as", "", "logical id for the imported space (default: derived from the title)")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "directory for the space files (default: config_path)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace existing space files")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "replace spaces already tracked in state, and their files")

	return cmd
}

func importSpace(ctx context.Context, a *app, client *remote.Client, serializer *remote.Serializer,
	remoteID, as, outputDir string, overwrite, force bool, used map[string]bool) (string, string, error) {
	sp, err := client.Get(ctx, remoteID)
	if err != nil {
		return "", "", err
	}

	logicalID := as
	if logicalID == "" {
		logicalID = uniqueID(config.SanitizeLogicalID(sp.Title), used)
	}
	used[logicalID] = true

	if envState, ok := a.store.Environment(a.cfg.Env); ok && !force {
		if tracked, ok := envState.Space(logicalID); ok {
			return logicalID, "", engine.NewPermanentError(fmt.Sprintf(
				"space '%s' already exists in state for environment '%s' (remote id %s); use --force to replace it",
				logicalID, a.cfg.Env, orDash(tracked.RemoteIDOrEmpty())), nil).
				WithResource(logicalID).WithCode(engine.ErrCodeAlreadyExists)
		}
	}

	cfg, err := serializer.FromRemote(sp, logicalID)
	if err != nil {
		return logicalID, "", err
	}
	file, err := config.WriteSpaceFile(outputDir, cfg, overwrite || force)
	if err != nil {
		return logicalID, "", err
	}
	if _, err := a.reconciler.Import(ctx, cfg, sp.ID, a.cfg.Env, client.Endpoint()); err != nil {
		return logicalID, file, err
	}
	return logicalID, file, nil
}

// uniqueID suffixes id until it is not in used.
func uniqueID(id string, used map[string]bool) string {
	if !used[id] {
		return id
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s_%d", id, n)
		if !used[candidate] {
			return candidate
		}
	}
}

func printImport(w io.Writer, outcomes []importOutcome, failed int, asJSON bool) error {
	if asJSON {
		return renderJSON(w, outcomes)
	}
	if len(outcomes) == 0 {
		fmt.Fprintln(w, "No matching spaces found.")
		return nil
	}

	t := newTable(w, "Remote ID", "Space", "File", "Result")
	for _, o := range outcomes {
		result := "imported"
		if o.Error != "" {
			result = "failed: " + o.Error
		}
		t.AppendRow([]any{o.RemoteID, orDash(o.LogicalID), orDash(o.File), result})
	}
	t.Render()
	summaryLine(w, "Import: %d imported, %d failed", len(outcomes)-failed, failed)
	return nil
}
