package cmd_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/mautops/timesheet-gin/cmd"
	"github.com/mautops/timesheet-gin/internal/config"
	"github.com/mautops/timesheet-gin/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	rootCmd := cmd.GetRootCmd()
	for _, name := range []string{"migrate", "server"} {
		found, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, "%s command should exist", name)
		assert.Equal(t, name, found.Name())
	}
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}

// TestMigrateCommandWithSQLite 使用 SQLite 文件库执行迁移
func TestMigrateCommandWithSQLite(t *testing.T) {
	t.Setenv("APP_ENV", "")
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "migrate.db")
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(fmt.Sprintf(`
database:
  driver: sqlite
  path: %q
log:
  level: error
`, dbPath)), 0644))

	rootCmd := cmd.GetRootCmd()
	rootCmd.SetArgs([]string{"migrate", "--config", configPath})
	require.NoError(t, rootCmd.Execute())

	db, err := database.Connect(config.DatabaseConfig{Driver: "sqlite", Path: dbPath})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()
	assert.True(t, db.Migrator().HasTable("timesheets"))
	assert.True(t, db.Migrator().HasTable("approval_history"))
}

func TestMigrateCommandInvalidConfig(t *testing.T) {
	rootCmd := cmd.GetRootCmd()
	rootCmd.SetArgs([]string{"migrate", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	assert.Error(t, rootCmd.Execute())
}
