package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ryckox/syntagma/internal/app"
	"github.com/ryckox/syntagma/internal/database"
	"github.com/ryckox/syntagma/pkg/logger"
	"github.com/ryckox/syntagma/pkg/migrate"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage database schema migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: withRunner(func(cmd *cobra.Command, runner *migrate.Runner) error {
		result, err := app.Migrate(cmd.Context(), runner)
		if err != nil {
			return err
		}
		if result.UpToDate {
			fmt.Println("Database is up to date")
			return nil
		}
		for _, s := range result.Applied {
			fmt.Printf("Applied %s\n", s.ID())
		}
		if result.BackupPath != "" {
			fmt.Printf("Backup: %s\n", result.BackupPath)
		}
		return nil
	}),
}

var migrateRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Revert the most recently applied migration",
	RunE: withRunner(func(cmd *cobra.Command, runner *migrate.Runner) error {
		reverted, err := app.Rollback(cmd.Context(), runner)
		if err != nil {
			return err
		}
		if reverted == nil {
			fmt.Println("No migrations to roll back")
			return nil
		}
		fmt.Printf("Rolled back %03d_%s\n", reverted.Version, reverted.Name)
		return nil
	}),
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	RunE: withRunner(func(cmd *cobra.Command, runner *migrate.Runner) error {
		entries, err := runner.Status(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
		for _, e := range entries {
			status, appliedAt := "pending", "-"
			if e.Applied {
				status = "applied"
				if e.AppliedAt != nil {
					appliedAt = e.AppliedAt.Format("2006-01-02 15:04:05")
				}
			}
			fmt.Fprintf(w, "%03d\t%s\t%s\t%s\n", e.Version, e.Name, status, appliedAt)
		}
		return w.Flush()
	}),
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateRollbackCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

// withRunner 打开数据库并构造迁移器
func withRunner(fn func(cmd *cobra.Command, runner *migrate.Runner) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()

		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close(db)

		runner, err := app.NewMigrationRunner(db, cfg)
		if err != nil {
			return err
		}
		return fn(cmd, runner)
	}
}
