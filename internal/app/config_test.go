package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)

	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "./data/notifyd.sqlite", cfg.Database.Path)

	require.Equal(t, 64, cfg.Dispatcher.BufferSize)

	require.True(t, cfg.Reconcile.Enabled)
	require.Equal(t, "@every 5m", cfg.Reconcile.Schedule)

	require.True(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
	require.True(t, cfg.Monitoring.Health.Enabled)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
server:
  port: 9100
  log_level: debug
  shutdown_timeout: 5s
database:
  driver: postgres
  postgres:
    host: db.internal
    port: 5432
    database: notifyd
    username: svc
    password: secret
dispatcher:
  buffer_size: 128
reconcile:
  enabled: false
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	require.Equal(t, 9100, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.internal", cfg.Database.Postgres.Host)
	require.Equal(t, "svc", cfg.Database.Postgres.Username)
	require.Equal(t, 128, cfg.Dispatcher.BufferSize)
	require.False(t, cfg.Reconcile.Enabled)

	// Values the file leaves out still come from defaults.
	require.Equal(t, "@every 5m", cfg.Reconcile.Schedule)
	require.True(t, cfg.Monitoring.Prometheus.Enabled)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("NOTIFYD_SERVER_PORT", "9200")
	t.Setenv("NOTIFYD_DATABASE_DRIVER", "mysql")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 9200, cfg.Server.Port)
	require.Equal(t, "mysql", cfg.Database.Driver)
}

func TestLoadConfigRejectsInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [unbalanced"), 0o600))

	_, err := LoadConfig(dir)
	require.Error(t, err)
}
