package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/project"
)

var (
	// Global flags
	configPath  string
	envName     string
	stateFile   string
	profileHost string
	verbose     bool
	jsonOutput  bool

	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	buildVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "genie-forge",
		Short: "Declarative management of Genie spaces",
		Long: `genie-forge manages Genie spaces as code.

Spaces are described in YAML or JSON files. genie-forge compares them with
the state it tracks per environment and creates, updates or destroys the
remote spaces to match:
  - plan shows what would change
  - apply makes the changes
  - drift compares tracked state with the workspace
  - import adopts spaces that already exist`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "project file (default ./"+project.FileName+")")
	rootCmd.PersistentFlags().StringVarP(&envName, "env", "e", project.DefaultEnvironment, "target environment")
	rootCmd.PersistentFlags().StringVarP(&stateFile, "state-file", "s", "", "state file path")
	rootCmd.PersistentFlags().StringVar(&profileHost, "profile-host", "", "workspace URL, overriding the environment's host")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newDestroyCommand())
	rootCmd.AddCommand(newDriftCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newImportCommand())
	rootCmd.AddCommand(newFindCommand())
	rootCmd.AddCommand(newBulkCommand())
	rootCmd.AddCommand(newStateCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newVersionCommand(version, commit, buildDate))

	return rootCmd
}
