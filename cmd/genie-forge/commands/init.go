package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/project"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/stores"
)

const projectTemplate = `# genie-forge project
project_name: %s
state_file: .genie-forge.json
config_path: conf/spaces
history_db: .genie-forge/history.db
policy_dir: policies

# Destroys are denied in these environments.
protected_environments: [prod]

environments:
  dev:
    host: https://your-workspace.cloud.databricks.com
    token_env: DATABRICKS_TOKEN

bulk:
  workers: 4
  rate: 5
`

const exampleSpaceTemplate = `spaces:
  - space_id: example_space
    title: Example Analytics Space
    warehouse_id: ${warehouse_id}
    description: An example space.
    data_sources:
      tables:
        - identifier: ${catalog}.${schema}.orders
          description: One row per order.
    instructions:
      text_instructions:
        - content: Format currency values with two decimal places.
    sample_questions:
      - What are the top 10 items by sales?
`

const exampleEnvironmentTemplate = `# Variables referenced as ${name} in space files.
warehouse_id: your_dev_warehouse_id
variables:
  catalog: dev_catalog
  schema: dev_schema
`

func newInitCommand() *cobra.Command {
	var (
		dir   string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a genie-forge project",
		Long: `Create a project file, an example space, environment variables for dev
and the run history database.

Existing files are kept unless --force is given.`,
		Example: `  # Initialize in the current directory
  genie-forge init

  # Initialize elsewhere, replacing existing files
  genie-forge init --dir ./analytics --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Info().Str("dir", dir).Bool("force", force).Msg("Initializing project")

			abs, err := filepath.Abs(dir)
			if err != nil {
				return err
			}

			files := []struct {
				path    string
				content string
			}{
				{filepath.Join(dir, project.FileName), fmt.Sprintf(projectTemplate, filepath.Base(abs))},
				{filepath.Join(dir, project.DefaultConfigPath, "example.yaml"), exampleSpaceTemplate},
				{filepath.Join(dir, "conf", "environments", project.DefaultEnvironment+".yaml"), exampleEnvironmentTemplate},
			}

			out := cmd.OutOrStdout()
			for _, f := range files {
				written, err := writeTemplate(f.path, f.content, force)
				if err != nil {
					return err
				}
				if written {
					fmt.Fprintf(out, "✓ Created %s\n", f.path)
				} else {
					fmt.Fprintf(out, "- Kept existing %s\n", f.path)
				}
			}

			if err := os.MkdirAll(filepath.Join(dir, "policies"), 0o755); err != nil {
				return fmt.Errorf("failed to create policies directory: %w", err)
			}

			dbPath := filepath.Join(dir, stores.DefaultPath)
			store, err := stores.Open(context.WithoutCancel(cmd.Context()), dbPath)
			if err != nil {
				return fmt.Errorf("failed to initialize run history: %w", err)
			}
			if err := store.Close(); err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ Initialized run history at %s\n", dbPath)

			fmt.Fprintln(out, "\nNext steps:")
			fmt.Fprintln(out, "  1. Set environments.dev.host and export DATABRICKS_TOKEN")
			fmt.Fprintln(out, "  2. Edit conf/spaces/example.yaml")
			fmt.Fprintln(out, "  3. genie-forge plan")
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "project directory")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")

	return cmd
}

func writeTemplate(path, content string, force bool) (bool, error) {
	if _, err := os.Stat(path); err == nil && !force {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}
