package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/railhead-io/railhead/internal/infrastructure/persistence"
	"github.com/railhead-io/railhead/internal/infrastructure/persistence/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage database schema migrations",
	Long: `Apply, roll back or inspect the PostgreSQL schema migrations.

Requires database.dsn to be configured. The daemon can also apply
pending migrations itself at start when database.auto_migrate is set.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrationDB(cmd.Context(), func(ctx context.Context, db *postgres.DB) error {
			if err := persistence.Migrate(ctx, db.SQL()); err != nil {
				return err
			}
			printSuccess("Migrations applied")
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrationDB(cmd.Context(), func(ctx context.Context, db *postgres.DB) error {
			if err := persistence.MigrateDown(ctx, db.SQL()); err != nil {
				return err
			}
			printSuccess("Rolled back one migration")
			return nil
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the migration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrationDB(cmd.Context(), func(ctx context.Context, db *postgres.DB) error {
			return persistence.MigrationStatus(ctx, db.SQL())
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

// withMigrationDB opens the configured database for one migration
// operation and closes it afterwards.
func withMigrationDB(ctx context.Context, fn func(ctx context.Context, db *postgres.DB) error) error {
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is not configured")
	}
	db, err := postgres.Open(ctx, postgres.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(ctx, db)
}
