package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ryckox/syntagma/internal/app"
	"github.com/ryckox/syntagma/internal/database"
	"github.com/ryckox/syntagma/pkg/logger"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Migrate and insert default ruleset types, topics and the bootstrap admin",
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

		report, err := app.Seed(cmd.Context(), db, cfg)
		if err != nil {
			return err
		}
		fmt.Printf("Types created: %d\nTopics created: %d\n",
			report.Taxonomy.TypesCreated, report.Taxonomy.TopicsCreated)
		if report.AdminCreated {
			fmt.Printf("Admin created: %s\n", cfg.Bootstrap.AdminUsername)
		}
		return nil
	},
}
