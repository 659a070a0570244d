package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, 64, cfg.Replication.SessionQueueSize)
	assert.Equal(t, time.Minute, cfg.API.RateLimit.Window)
	assert.Equal(t, 600, cfg.API.RateLimit.MaxRequests)
	assert.Equal(t, 30, cfg.Replication.HandshakeLimit.MaxRequests)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Retry.Enable)
	assert.False(t, cfg.Notify.Enabled)
	assert.Equal(t, 10*time.Second, cfg.Notify.Timeout)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: ":9090"
database:
  driver: postgres
  dsn: postgres://confhub@localhost/confhub
replication:
  session_queue_size: 8
events:
  redis:
    enabled: true
    addr: redis:6379
`), 0o644))
	t.Setenv("CONFHUB_DATABASE_DSN", "postgres://override@db/confhub")
	t.Setenv("CONFHUB_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://override@db/confhub", cfg.Database.DSN)
	assert.Equal(t, 8, cfg.Replication.SessionQueueSize)
	assert.True(t, cfg.Events.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Events.Redis.Addr)
	assert.Equal(t, "confhub:config-changes", cfg.Events.Redis.Channel)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unsupported driver", "database:\n  driver: oracle\n"},
		{"tls without files", "server:\n  tls:\n    enabled: true\n"},
		{"kafka without topic", "events:\n  kafka:\n    enabled: true\n    topic: \"\"\n"},
		{"bad log level", "log:\n  level: loud\n"},
		{"pong before ping", "replication:\n  ping_interval: 1m\n  pong_timeout: 30s\n"},
		{"webhook without url", "notify:\n  enabled: true\n  webhook:\n    enabled: true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "server.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))

			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}
