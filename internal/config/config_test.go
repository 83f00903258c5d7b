package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, c.Chat.PollInterval)
	assert.Equal(t, 15, c.Chat.MaxPollAttempts)
	assert.Equal(t, "ko", c.Chat.LanguageCode)
	assert.Equal(t, "testUser123", c.Chat.UserID)
	assert.Equal(t, "cs", c.Chat.DefaultChatMode)
	assert.True(t, c.Chat.DefaultDemoMode)
	assert.Equal(t, "http://localhost:8080/api/messages/receive", c.Backend.SendURL)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
backend:
  send_url: "http://backend:9000/send"
  result_url: "http://backend:9000/result"
  request_timeout: "3s"
chat:
  poll_interval: "500ms"
  max_poll_attempts: 4
  welcome_message: "hello"
kafka:
  enabled: true
  brokers: "kafka:9092"
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://backend:9000/send", c.Backend.SendURL)
	assert.Equal(t, 3*time.Second, c.Backend.RequestTimeout)
	assert.Equal(t, 500*time.Millisecond, c.Chat.PollInterval)
	assert.Equal(t, 4, c.Chat.MaxPollAttempts)
	assert.Equal(t, "hello", c.Chat.WelcomeMessage)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, "shopchat-transcript", c.Kafka.Topic)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SHOPCHAT_CHAT_USER_ID", "env-user")
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-user", c.Chat.UserID)
}

func TestLoadRejectsInvalidPolling(t *testing.T) {
	path := writeConfig(t, "chat:\n  max_poll_attempts: 0\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
