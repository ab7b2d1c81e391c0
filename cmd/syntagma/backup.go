package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ryckox/syntagma/internal/database"
	"github.com/ryckox/syntagma/internal/service"
	"github.com/ryckox/syntagma/pkg/logger"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create a database backup",
	RunE: func(cmd *cobra.Command, args []string) error {
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

		backuper, err := database.NewBackuper(db, &cfg.Database, &cfg.Migration)
		if err != nil {
			return err
		}
		path, err := service.NewBackupService(backuper).Run(cmd.Context(), service.BackupTriggerCLI)
		if err != nil {
			return err
		}
		fmt.Printf("Backup: %s\n", path)
		return nil
	},
}
