package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wailbentafat/showbus/metrics"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Redis.Address)
	assert.Equal(t, 6379, cfg.Redis.Port)
	assert.Equal(t, 16, cfg.Redis.PoolSize)
	assert.Equal(t, 2*time.Second, cfg.Redis.ConnectTimeout)
	assert.Equal(t, "showmanager", cfg.Bus.RootTopic)
	assert.Equal(t, time.Second, cfg.Bus.ReconnectDelay)
	assert.Equal(t, 100*time.Millisecond, cfg.Bus.SweepInterval)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
redis:
  address: "10.0.0.5"
  port: 6380
  password: "stage"
  pool_size: 4
  connect_timeout: 500ms

bus:
  root_topic: "festival"
  sweep_interval: 250ms

log:
  level: debug

metrics:
  enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5:6380", cfg.Redis.Credentials().Addr())
	assert.Equal(t, "stage", cfg.Redis.Credentials().Password)
	assert.Equal(t, 4, cfg.Redis.PoolSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Redis.ConnectTimeout)
	assert.Equal(t, "festival", cfg.Bus.RootTopic)
	assert.Equal(t, 250*time.Millisecond, cfg.Bus.SweepInterval)
	assert.Equal(t, time.Second, cfg.Bus.ReconnectDelay)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Metrics.Enabled)

	assert.Len(t, cfg.BusOptions(nil), 6)
	assert.Len(t, cfg.BusOptions(metrics.Noop{}), 7)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SHOWBUS_REDIS_PORT", "7000")
	t.Setenv("SHOWBUS_BUS_ROOT_TOPIC", "rehearsal")

	cfg, err := Load(writeConfig(t, "redis:\n  port: 6380\n"))
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Redis.Port)
	assert.Equal(t, "rehearsal", cfg.Bus.RootTopic)
}

func TestValidation(t *testing.T) {
	_, err := Load(writeConfig(t, `
redis:
  port: 0
  pool_size: -1
bus:
  reconnect_delay: 0s
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.port")
	assert.Contains(t, err.Error(), "redis.pool_size")
	assert.Contains(t, err.Error(), "bus.reconnect_delay")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
