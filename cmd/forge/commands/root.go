package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	jsonOutput bool
	user       string
	groups     []string
	version    string
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	opts := &globalOptions{version: version}

	rootCmd := &cobra.Command{
		Use:   "forge",
		Short: "appforge - application import and export",
		Long: `appforge stores low-code applications and moves them between instances
and branches as JSON manifests.

Importing a manifest reconciles its pages and action collections with what
is already stored: resources are matched by their sync id, colliding page
names are renamed, and resources on a git branch share the canonical ids of
their counterparts on other branches.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file path")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (overrides config and LOG_LEVEL)")
	flags.BoolVar(&opts.jsonOutput, "json", false, "output in JSON format")
	flags.StringVar(&opts.user, "user", "", "user the command acts as (overrides config)")
	flags.StringSliceVar(&opts.groups, "group", nil, "permission group of the user, repeatable (overrides config)")

	rootCmd.AddCommand(newInitCommand(opts))
	rootCmd.AddCommand(newMigrateCommand(opts))
	rootCmd.AddCommand(newValidateCommand(opts))
	rootCmd.AddCommand(newImportCommand(opts))
	rootCmd.AddCommand(newExportCommand(opts))

	return rootCmd
}
