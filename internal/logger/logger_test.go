package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWritesJSONFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "confhub.log")
	var console bytes.Buffer

	log, err := newWithConsole(&Config{Level: "debug", File: file}, &console)
	require.NoError(t, err)

	log.Info("config updated", zap.String("config", "limit"), zap.Int64("version", 4))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(file)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "config updated", entry["msg"])
	assert.Equal(t, "limit", entry["config"])
	assert.Contains(t, console.String(), "config updated")
}

func TestNewRespectsLevel(t *testing.T) {
	var console bytes.Buffer
	log, err := newWithConsole(&Config{Level: "warn", Format: "json"}, &console)
	require.NoError(t, err)

	log.Info("dropped")
	log.Warn("kept")
	_ = log.Sync()

	assert.NotContains(t, console.String(), "dropped")
	assert.Contains(t, console.String(), "kept")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", *DefaultConfig(), false},
		{"bad level", Config{Level: "trace", Format: "console", MaxSize: 1}, true},
		{"bad format", Config{Level: "info", Format: "xml", MaxSize: 1}, true},
		{"bad size", Config{Level: "info", Format: "console"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
