package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/medreport-analyzer/internal/app"
)

func migrateCmd(flags *globalFlags) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL history schema",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "path to migrations directory (default: history.migrations_path)")

	run := func(direction app.MigrateDirection) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if dir != "" {
				cfg.History.MigrationsPath = dir
			}
			logger, err := flags.logger(cfg)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := app.Migrate(ctx, cfg.History, logger, direction); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrations %s completed.\n", direction)
			return nil
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE:  run(app.MigrateUp),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE:  run(app.MigrateDown),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the applied migration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if dir != "" {
				cfg.History.MigrationsPath = dir
			}
			logger, err := flags.logger(cfg)
			if err != nil {
				return err
			}

			version, dirty, err := app.MigrationVersion(cfg.History, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
			return nil
		},
	})

	return cmd
}
