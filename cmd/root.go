package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"repairhub-backend/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "repairhubd",
	Short: "Repair-shop hub: authoritative ticket store, lock arbitration and sync endpoint",
	RunE:  runServe,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default ./config/config.yaml, or CONFIG_PATH)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "./config/config.yaml" // Default path for local development
	}
	return config.Load(path)
}
