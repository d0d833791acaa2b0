package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"repairhub-backend/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if _, err := db.Init(&cfg.Database); err != nil {
			return err
		}
		log.Println("Migrations applied")
		return nil
	},
}
