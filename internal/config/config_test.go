// ABOUTME: Tests for configuration loading
// ABOUTME: Covers YAML parsing, env var expansion, durations, and defaults

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  ws_url: "wss://chat.example.com/ws"
  api_base_url: "https://api.example.com"
chat:
  inbound_queue: "/user/queue/inbox"
  send_destination: "/app/outbox"
  accept_version: "1.2"
  heart_beat: "5000,5000"
  page_size: 25
discovery:
  initial_delay: "500ms"
  retry_delay: "2s"
  max_attempts: 4
reconnect:
  enabled: true
  delay: "10s"
logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://chat.example.com/ws", cfg.Server.WSURL)
	assert.Equal(t, "https://api.example.com", cfg.Server.APIBaseURL)
	assert.Equal(t, "/user/queue/inbox", cfg.Chat.InboundQueue)
	assert.Equal(t, "/app/outbox", cfg.Chat.SendDestination)
	assert.Equal(t, "1.2", cfg.Chat.AcceptVersion)
	assert.Equal(t, "5000,5000", cfg.Chat.HeartBeat)
	assert.Equal(t, 25, cfg.Chat.PageSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Discovery.InitialDelay)
	assert.Equal(t, 2*time.Second, cfg.Discovery.RetryDelay)
	assert.Equal(t, 4, cfg.Discovery.MaxAttempts)
	assert.True(t, cfg.Reconnect.Enabled)
	assert.Equal(t, 10*time.Second, cfg.Reconnect.Delay)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  ws_url: "wss://chat.example.com/ws"
  api_base_url: "https://api.example.com"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/user/queue/messages", cfg.Chat.InboundQueue)
	assert.Equal(t, "/app/chat.sendMessage", cfg.Chat.SendDestination)
	assert.Equal(t, "1.1,1.2", cfg.Chat.AcceptVersion)
	assert.Equal(t, "10000,10000", cfg.Chat.HeartBeat)
	assert.Equal(t, 50, cfg.Chat.PageSize)
	assert.Equal(t, time.Second, cfg.Discovery.InitialDelay)
	assert.Equal(t, 1500*time.Millisecond, cfg.Discovery.RetryDelay)
	assert.Equal(t, 8, cfg.Discovery.MaxAttempts)
	assert.False(t, cfg.Reconnect.Enabled, "reconnect is opt-in")
	assert.Equal(t, 3*time.Second, cfg.Reconnect.Delay)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("CHAT_TEST_WS_URL", "wss://env.example.com/ws")
	t.Setenv("CHAT_TEST_API_URL", "https://env.example.com")

	path := writeConfig(t, `
server:
  ws_url: "${CHAT_TEST_WS_URL}"
  api_base_url: "${CHAT_TEST_API_URL}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://env.example.com/ws", cfg.Server.WSURL)
	assert.Equal(t, "https://env.example.com", cfg.Server.APIBaseURL)
}

func TestLoad_UnsetEnvVarBecomesEmpty(t *testing.T) {
	path := writeConfig(t, `
server:
  ws_url: "${CHAT_TEST_DEFINITELY_UNSET}"
  api_base_url: "https://api.example.com"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ws_url is required")
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	path := writeConfig(t, `
server:
  ws_url: "wss://chat.example.com/ws"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_base_url is required")
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, `
server:
  ws_url: "wss://chat.example.com/ws"
  api_base_url: "https://api.example.com"
discovery:
  retry_delay: "soon"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry_delay")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unclosed")
	_, err := Load(path)
	assert.Error(t, err)
}
