package app

import (
	"context"

	"github.com/spf13/cobra"
)

// Execute runs the CLI with the given arguments
func (a *App) Execute(ctx context.Context, args []string) error {
	rootCmd := a.createRootCommand()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func (a *App) createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "uls-ingress",
		Short:   "FCC ULS amateur license ingestion",
		Version: a.version,
		Long: `uls-ingress downloads the FCC ULS amateur radio license archive,
reconciles its HD, EN and AM record files into one row per callsign and
loads the result into PostgreSQL, MySQL or Snowflake.

Configuration is read from the environment and from .env files in the
working directory.`,
		PersistentPreRunE: a.setupCommand,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: json, console (overrides LOG_FORMAT)")
	rootCmd.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", a.envFiles, "env files to load, earlier files take precedence")

	rootCmd.SetVersionTemplate("uls-ingress {{.Version}}\n")

	rootCmd.AddCommand(a.NewRunCommand())
	rootCmd.AddCommand(a.NewScheduleCommand())
	rootCmd.AddCommand(a.NewMigrateCommand())

	return rootCmd
}

func (a *App) setupCommand(_ *cobra.Command, _ []string) error {
	return a.setup()
}
