package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "teamsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BrokerStomp, c.Broker.Kind)
	assert.Equal(t, 10*time.Second, c.TransportConfig().ConnectTimeout)
	assert.Equal(t, 3*time.Second, c.TransportConfig().ReconnectBaseDelay)
	assert.Equal(t, 3, c.TransportConfig().MaxReconnectAttempts)
	assert.Equal(t, 100*time.Millisecond, c.ReviewConfig().PollInterval)
	assert.Equal(t, 100*time.Millisecond, c.ReviewConfig().SettleDelay)
	assert.Equal(t, zerolog.InfoLevel, c.LogLevel())
}

func TestMissingFileKeepsDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", c.API.BaseURL)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
api:
  base_url: https://teamsync.example.com
broker:
  kind: nats
  url: nats://broker.example.com:4222
transport:
  reconnect_base_delay: 500ms
  max_reconnect_attempts: 5
review:
  settle_delay: 0s
log:
  level: debug
`)

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://teamsync.example.com", c.API.BaseURL)
	assert.Equal(t, 30*time.Second, c.API.Timeout, "unset keys keep their default")
	assert.Equal(t, BrokerNATS, c.Broker.Kind)
	assert.Equal(t, 500*time.Millisecond, c.Transport.ReconnectBaseDelay)
	assert.Equal(t, 5, c.Transport.MaxReconnectAttempts)
	assert.Zero(t, c.Review.SettleDelay)
	assert.Equal(t, zerolog.DebugLevel, c.LogLevel())
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, `
broker:
  url: ws://file.example.com/ws
`)
	t.Setenv("TEAMSYNC_BROKER_URL", "ws://env.example.com/ws")
	t.Setenv("TEAMSYNC_MAX_RECONNECT_ATTEMPTS", "7")
	t.Setenv("TEAMSYNC_POLL_INTERVAL", "250ms")
	t.Setenv("TEAMSYNC_LOG_LEVEL", "WARN")
	t.Setenv("TEAMSYNC_CONNECT_TIMEOUT", "not-a-duration")

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://env.example.com/ws", c.Broker.URL)
	assert.Equal(t, 7, c.Transport.MaxReconnectAttempts)
	assert.Equal(t, 250*time.Millisecond, c.Review.PollInterval)
	assert.Equal(t, zerolog.WarnLevel, c.LogLevel())
	assert.Equal(t, 10*time.Second, c.Transport.ConnectTimeout, "unparseable value is ignored")
}

func TestInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown broker", "broker:\n  kind: kafka\n"},
		{"bad log level", "log:\n  level: loud\n"},
		{"zero connect timeout", "transport:\n  connect_timeout: 0s\n"},
		{"malformed yaml", "api: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.content))
			assert.Error(t, err)
		})
	}
}
