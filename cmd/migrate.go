/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/mautops/timesheet-gin/internal/api"
	"github.com/mautops/timesheet-gin/internal/config"
	"github.com/mautops/timesheet-gin/internal/database"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Run database migrations to create or update database schema.
This command will:
- Create all required tables if they don't exist
- Update table schemas if needed
- Create composite indexes used by the approval queries
- Verify every table exists afterwards

The command uses the database configuration from the config file or environment variables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger, err := api.NewLoggerFromConfig(cfg)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}

		retries, _ := cmd.Flags().GetInt("retries")
		logger.WithFields(logrus.Fields{
			"driver":  cfg.Database.Driver,
			"host":    cfg.Database.Host,
			"dbname":  cfg.Database.DBName,
			"retries": retries,
		}).Info("Connecting to database")
		db, err := database.ConnectWithRetry(cfg.Database, retries, 2*time.Second)
		if err != nil {
			return fmt.Errorf("failed to connect database: %w", err)
		}
		defer func() {
			sqlDB, _ := db.DB()
			if sqlDB != nil {
				sqlDB.Close()
			}
		}()

		logger.Info("Running database migrations")
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		if missing := database.MissingTables(db); len(missing) > 0 {
			return fmt.Errorf("tables missing after migration: %s", strings.Join(missing, ", "))
		}
		logger.WithField("tables", len(database.Models())).Info("Database migrations completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().Int("retries", 1, "Connection attempts before giving up, waiting between attempts with exponential backoff")
}
