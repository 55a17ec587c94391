package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mautops/timesheet-gin/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// TestLoadConfigFromFile 测试从配置文件加载配置
func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
database:
  driver: sqlite
  path: "/tmp/timesheet-test.db"
approval:
  min_rejection_reason_length: 5
  default_page_size: 10
  max_page_size: 50
sla:
  query_max_time: 250ms
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/timesheet-test.db", cfg.Database.Path)
	assert.Equal(t, 5, cfg.Approval.MinRejectionReasonLength)
	assert.Equal(t, 10, cfg.Approval.DefaultPageSize)
	assert.Equal(t, 50, cfg.Approval.MaxPageSize)
	assert.Equal(t, 250*time.Millisecond, cfg.SLA.QueryMaxTime)
}

// TestLoadConfigFromEnv 测试环境变量覆盖
func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("APP_SERVER_PORT", "9090")
	t.Setenv("APP_APPROVAL_MIN_REJECTION_REASON_LENGTH", "3")

	path := writeConfig(t, "server:\n  port: 8080\n")
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Approval.MinRejectionReasonLength)
}

func TestDefault(t *testing.T) {
	t.Setenv("APP_ENV", "")
	cfg := config.Default()

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 10, cfg.Database.MaxIdleConns)
	assert.Equal(t, 100, cfg.Database.MaxOpenConns)
	assert.Equal(t, "role", cfg.Auth.RoleClaim)
	assert.Equal(t, 10, cfg.Approval.MinRejectionReasonLength)
	assert.Equal(t, 20, cfg.Approval.DefaultPageSize)
	assert.Equal(t, 100, cfg.Approval.MaxPageSize)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "logs/timesheet-gin.log", cfg.Log.File)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRatio)
	assert.True(t, cfg.SLA.Enabled)
	assert.Equal(t, 2*time.Second, cfg.SLA.ApprovalMaxTime)
	assert.Equal(t, 15*time.Second, cfg.SLA.ExportMaxTime)
	assert.False(t, config.IsProduction(cfg))
}

func TestDefault_Production(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	cfg := config.Default()

	assert.True(t, config.IsProduction(cfg))
	assert.Equal(t, 200, cfg.Database.MaxOpenConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 0.1, cfg.Tracing.SampleRatio)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
	}{
		{"defaults", func(*config.Config) {}, false},
		{"unknown driver", func(c *config.Config) { c.Database.Driver = "mysql" }, true},
		{"negative reason length", func(c *config.Config) { c.Approval.MinRejectionReasonLength = -1 }, true},
		{"default page above max", func(c *config.Config) { c.Approval.DefaultPageSize = 200 }, true},
		{"production without key source", func(c *config.Config) { c.Env = "production" }, true},
		{"production with hmac", func(c *config.Config) {
			c.Env = "production"
			c.Auth.HMACSecret = "secret"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("APP_ENV", "")
			cfg := config.Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := writeConfig(t, "database:\n  driver: oracle\n")
	_, err = config.Load(path)
	assert.Error(t, err)
}

// TestConfigWatcher_ReloadsApprovalSettings 修改配置文件后回调收到新的审批参数
func TestConfigWatcher_ReloadsApprovalSettings(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
approval:
  min_rejection_reason_length: 10
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	watcher := config.NewConfigWatcher(cfg, path, logger)

	var mu sync.Mutex
	var reloaded *config.Config
	watcher.OnConfigChange(func(c *config.Config) {
		mu.Lock()
		defer mu.Unlock()
		reloaded = c
	})
	require.NoError(t, watcher.Start())
	defer watcher.Stop()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: sqlite
approval:
  min_rejection_reason_length: 4
`), 0644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reloaded != nil && reloaded.Approval.MinRejectionReasonLength == 4 &&
			watcher.GetConfig().Approval.MinRejectionReasonLength == 4
	}, 3*time.Second, 50*time.Millisecond)
}

func TestConfigWatcher_StartFailsWithoutFile(t *testing.T) {
	watcher := config.NewConfigWatcher(config.Default(), filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, watcher.Start())
}
