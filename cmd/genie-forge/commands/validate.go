package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/config"
)

type validationReport struct {
	Files  map[string][]string `json:"files"`
	Spaces int                 `json:"spaces"`
	Valid  bool                `json:"valid"`
	Error  string              `json:"error,omitempty"`
}

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate space configuration files",
		Long: `Check space files for structural problems without contacting the
workspace, then resolve them for the selected environment.

Defaults to the project's config_path.`,
		Example: `  # Validate the project's spaces
  genie-forge validate

  # Validate one file against prod variables
  genie-forge validate conf/spaces/sales.yaml --env prod`,
		Args: cobra.MaximumNArgs(1),
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			path := a.cfg.ConfigPath
			if len(args) == 1 {
				path = args[0]
			}

			files, err := validationTargets(path)
			if err != nil {
				return err
			}

			parser := config.NewParser(config.WithParserLogger(a.logger))
			report := validationReport{Files: make(map[string][]string), Valid: true}
			for _, f := range files {
				problems := parser.Validate(f)
				report.Files[f] = problems
				if len(problems) > 0 {
					report.Valid = false
				}
			}

			// Structure is fine; make sure variables resolve and ids are unique.
			if report.Valid {
				spaces, err := a.loadSpacesFrom(ctx, path)
				if err != nil {
					report.Valid = false
					report.Error = err.Error()
				}
				report.Spaces = len(spaces)
			}

			out := cmd.OutOrStdout()
			if a.cfg.JSON {
				if err := renderJSON(out, report); err != nil {
					return err
				}
			} else {
				for _, f := range files {
					problems := report.Files[f]
					if len(problems) == 0 {
						fmt.Fprintf(out, "✓ %s\n", f)
						continue
					}
					fmt.Fprintf(out, "✗ %s\n", f)
					for _, p := range problems {
						fmt.Fprintf(out, "    %s\n", p)
					}
				}
				if report.Error != "" {
					fmt.Fprintf(out, "✗ %s\n", report.Error)
				}
				summaryLine(out, "%d file(s) checked, %d space(s) resolved for %s", len(files), report.Spaces, a.cfg.Env)
			}

			if !report.Valid {
				return fmt.Errorf("validation failed")
			}
			return nil
		}),
	}

	return cmd
}

// validationTargets returns path itself or the config files directly in it.
func validationTargets(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config path %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", path, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
