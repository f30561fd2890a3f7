package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/1vers1on/uls-ingress/pkg/config"
	"github.com/1vers1on/uls-ingress/pkg/connector"
	"github.com/1vers1on/uls-ingress/pkg/migration"
)

// NewMigrateCommand creates the migrate command and its version subcommand
func (a *App) NewMigrateCommand() *cobra.Command {
	migrateConfig := &migration.Config{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the destination schema",
		Long: `Migrate applies the embedded schema migrations to the PostgreSQL or
MySQL destination. For Snowflake the license table is created if missing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.migrate(cmd.Context(), migrateConfig)
		},
	}

	cmd.Flags().UintVar(&migrateConfig.Version, "to", 0, "migrate to this version instead of the latest")
	cmd.Flags().IntVar(&migrateConfig.Force, "force", 0, "force the recorded version before migrating")
	cmd.Flags().BoolVar(&migrateConfig.AutoRollback, "auto-rollback", false, "force a dirty version back to the previous one on failure")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			version, dirty, err := migration.NewService(a.logger, nil).DestinationVersion(a.cfg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
			return err
		},
	})

	return cmd
}

func (a *App) migrate(ctx context.Context, migrateConfig *migration.Config) error {
	if a.cfg.Destination != config.DestinationSnowflake {
		return migration.NewService(a.logger, migrateConfig).MigrateDestination(a.cfg)
	}

	dest, err := connector.NewSnowflakeConnector(ctx, a.cfg.Snowflake, a.cfg.Table, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := dest.Close(); err != nil {
			a.logger.Warn("Failed to close destination", zap.Error(err))
		}
	}()

	return dest.CreateTableIfNotExists(ctx)
}
