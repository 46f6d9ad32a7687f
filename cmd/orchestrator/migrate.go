package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/example/session-orchestrator/internal/config"
	"github.com/example/session-orchestrator/internal/logging"
	"github.com/example/session-orchestrator/internal/persistence/sqlite"
	"github.com/example/session-orchestrator/internal/persistence/sqlite/migration"
)

func newMigrateCommand(root *rootOptions) *cobra.Command {
	var statusOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			logger := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
			return runMigrations(cmd.Context(), cfg.SQLite, statusOnly, cmd.OutOrStdout(), logger)
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "report migration status without applying")
	return cmd
}

func runMigrations(ctx context.Context, cfg config.SQLiteConfig, statusOnly bool, out io.Writer, logger *slog.Logger) error {
	storage, err := sqlite.Open(migration.DefaultSQLiteConfig(cfg.Path, cfg.BusyTimeout))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if cerr := storage.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if !statusOnly {
		if err := storage.Migrate(ctx, logger); err != nil {
			return err
		}
	}

	status, err := storage.Pool().MigrationStatus(ctx, logger)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	version := status.CurrentVersion
	if version == "" {
		version = "none"
	}
	_, err = fmt.Fprintf(out, "schema version %s, %d applied, %d pending\n",
		version, len(status.AppliedMigrations), status.PendingCount)
	return err
}
