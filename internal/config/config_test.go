package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "friendsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  backend: bolt
  path: /var/lib/friendsync/data.bolt
dispatch:
  workers: 8
  poll_interval: 1s
mqtt:
  mode: publish
  broker: tcp://broker:1883
log:
  level: debug
  format: json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendBolt, cfg.Store.Backend)
	assert.Equal(t, "/var/lib/friendsync/data.bolt", cfg.Store.Path)
	assert.Equal(t, 8, cfg.Dispatch.Workers)
	assert.Equal(t, time.Second, cfg.Dispatch.PollInterval.Std())
	assert.Equal(t, MQTTPublish, cfg.MQTT.Mode)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())

	// untouched keys keep their defaults
	assert.Equal(t, 64, cfg.Dispatch.BatchSize)
	assert.Equal(t, 5, cfg.Txn.MaxAttempts)
	assert.Equal(t, "friendsync/changes", cfg.MQTT.TopicPrefix)
}

func TestParse_OffModeIsAString(t *testing.T) {
	cfg, err := Parse([]byte("mqtt:\n  mode: off\n"))
	require.NoError(t, err)
	assert.Equal(t, MQTTOff, cfg.MQTT.Mode)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown top-level key", "stroe:\n  path: x\n", "stroe"},
		{"unknown nested key", "store:\n  pth: x\n", "pth"},
		{"bad backend", "store:\n  backend: postgres\n", "backend"},
		{"zero workers", "dispatch:\n  workers: 0\n", "workers"},
		{"negative attempts", "txn:\n  max_attempts: -1\n", "max_attempts"},
		{"bare number duration", "txn:\n  backoff: 10\n", "backoff"},
		{"wildcard in topic prefix", "mqtt:\n  topic_prefix: a/+/b\n", "topic_prefix"},
		{"bad log level", "log:\n  level: loud\n", "level"},
		{"broker required", "mqtt:\n  mode: subscribe\n  broker: \"\"\n", "mqtt.broker is required"},
		{"invalid yaml", "store: [\n", "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read config")
}

func TestDuration_MarshalYAML(t *testing.T) {
	v, err := Duration(1500 * time.Millisecond).MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "1.5s", v)
}
