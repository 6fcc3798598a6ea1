package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAPIBaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"http://localhost:3000", "http://localhost:3000/api"},
		{"http://localhost:3000/", "http://localhost:3000/api"},
		{"https://chat.example.com/api", "https://chat.example.com/api"},
		{"https://chat.example.com/api/", "https://chat.example.com/api"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeAPIBaseURL(tt.in), tt.in)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Mode)
	assert.Equal(t, "http://localhost:3000/api", cfg.API.BaseURL)
	assert.Equal(t, "http://localhost:3000", cfg.Socket.URL)
	assert.Equal(t, []string{"websocket", "polling"}, cfg.Socket.Transports)
	assert.Equal(t, 5, cfg.Socket.ReconnectAttempts)
	assert.Equal(t, time.Second, cfg.Socket.ReconnectDelay)
	assert.Equal(t, "token", cfg.Auth.Strategy)
	assert.Equal(t, "local", cfg.Auth.Storage)
	assert.Equal(t, 3*time.Second, cfg.Client.TypingTimeout)
	assert.Equal(t, time.Duration(0), cfg.Client.PendingTimeout)
	assert.Equal(t, DefaultSessionId(), cfg.Token.SessionId)
	assert.Equal(t, 24*time.Hour, cfg.Token.SessionTTL)
}

func TestLoad_SessionId(t *testing.T) {
	t.Setenv("NEXO_TOKEN_SESSION_ID", "tty-7")

	first, err := Load("")
	require.NoError(t, err)
	second, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "tty-7", first.Token.SessionId)
	assert.Equal(t, first.Token.SessionId, second.Token.SessionId)
	assert.Equal(t, fmt.Sprintf("ppid-%d", os.Getppid()), DefaultSessionId())
}

func TestLoad_ProductionHasNoFallback(t *testing.T) {
	t.Setenv("NEXO_MODE", "production")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.API.BaseURL)
	assert.Empty(t, cfg.Socket.URL)

	problems, _ := cfg.Validate()
	assert.Contains(t, problems, "api base url is not configured")
	assert.Contains(t, problems, "socket url is not configured")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  base_url: https://file.example.com
auth:
  strategy: token
  storage: memory
socket:
  reconnect_attempts: 2
`), 0o600))

	t.Setenv("NEXO_API_BASE_URL", "https://env.example.com/")
	t.Setenv("NEXO_AUTH_STRATEGY", "cookie")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, "https://env.example.com", cfg.Socket.URL)
	assert.Equal(t, 2, cfg.Socket.ReconnectAttempts)
	assert.Equal(t, "cookie", cfg.Auth.Strategy)
	// cookie strategy forces cookie storage
	assert.Equal(t, "cookie", cfg.Auth.Storage)
}

func TestValidate_Warnings(t *testing.T) {
	cfg := &Config{
		Mode:   "production",
		API:    APIConfig{BaseURL: "https://chat.example.com/api"},
		Socket: SocketConfig{URL: "http://chat.example.com"},
		Auth:   AuthConfig{Strategy: "token", Storage: "local"},
	}

	problems, warnings := cfg.Validate()
	assert.Empty(t, problems)
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "protocol mismatch")
	assert.Contains(t, warnings[1], "insecure socket url")

	cfg.Auth.Storage = "indexeddb"
	problems, _ = cfg.Validate()
	assert.Len(t, problems, 1)
}
