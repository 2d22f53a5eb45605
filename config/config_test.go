package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/cqstream/errors"
	"github.com/c360/cqstream/handler"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "ws://127.0.0.1:6700/event", cfg.Listener.URL)
	assert.Equal(t, 500*time.Millisecond, cfg.Listener.Reconnect.InitialDelay)
	assert.False(t, cfg.NATS.Enabled)
}

func TestLoader_LoadJSON(t *testing.T) {
	path := writeConfig(t, "cqstream.json", `{
		"listener": {
			"url": "wss://bot.example.com/event",
			"access_token": "s3cret",
			"shutdown_timeout": "3s",
			"reconnect": {"max_attempts": 5, "initial_delay": "250ms"}
		},
		"api": {"timeout": 2000000000},
		"nats": {"enabled": true, "reconnect_wait": "5s", "ping_interval": "1m", "drain_timeout": "3s"},
		"requests": {"friend": "approve", "friend_remark": "pal"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://bot.example.com/event", cfg.Listener.URL)
	assert.Equal(t, "s3cret", cfg.Listener.AccessToken)
	assert.Equal(t, 3*time.Second, cfg.Listener.ShutdownTimeout)
	assert.Equal(t, 5, cfg.Listener.Reconnect.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Listener.Reconnect.InitialDelay)
	assert.Equal(t, 2*time.Second, cfg.API.Timeout)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, 5*time.Second, cfg.NATS.ReconnectWait)
	assert.Equal(t, time.Minute, cfg.NATS.PingInterval)
	assert.Equal(t, 3*time.Second, cfg.NATS.DrainTimeout)
	assert.Equal(t, handler.ActionApprove, cfg.Requests.Friend)

	// Fields the file leaves out keep their defaults
	assert.Equal(t, 30*time.Second, cfg.Listener.Reconnect.MaxDelay)
	assert.Equal(t, 45*time.Second, cfg.Listener.HandshakeTimeout)
	assert.Equal(t, "http://127.0.0.1:5700", cfg.API.BaseURL)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
}

func TestLoader_LoadYAML(t *testing.T) {
	path := writeConfig(t, "cqstream.yaml", `
listener:
  url: ws://10.0.0.2:6700/event
  max_concurrent_dispatch: 8
  reconnect:
    max_delay: 1m
api:
  base_url: https://bot.example.com
  rate_limit: 5
log:
  level: debug
  format: text
echo:
  enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://10.0.0.2:6700/event", cfg.Listener.URL)
	assert.Equal(t, 8, cfg.Listener.MaxConcurrentDispatch)
	assert.Equal(t, time.Minute, cfg.Listener.Reconnect.MaxDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Listener.Reconnect.InitialDelay)
	assert.Equal(t, "https://bot.example.com", cfg.API.BaseURL)
	assert.InDelta(t, 5.0, cfg.API.RateLimit, 0.001)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.True(t, cfg.Echo.Enabled)
	assert.Equal(t, "/echo", cfg.Echo.Prefix)
}

func TestLoader_LayersOverride(t *testing.T) {
	base := writeConfig(t, "base.json", `{"listener": {"url": "ws://base/event"}, "log": {"level": "warn"}}`)
	override := writeConfig(t, "override.yml", "listener:\n  url: ws://override/event\n")

	loader := NewLoader()
	loader.AddLayer(base)
	loader.AddLayer(override)
	loader.EnableValidation(true)

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "ws://override/event", cfg.Listener.URL)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"bad duration", "c.json", `{"listener": {"shutdown_timeout": "soon"}}`},
		{"malformed json", "c.json", `{"listener": `},
		{"malformed yaml", "c.yaml", "listener: [unclosed"},
		{"too deep", "c.json", `{"x": ` + strings.Repeat("[", 101) + strings.Repeat("]", 101) + `}`},
		{"wrong extension", "c.toml", `listener = {}`},
		{"invalid value", "c.json", `{"listener": {"url": "http://not-a-websocket"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.content))
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err), "got %v", err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestValidateConfigPath(t *testing.T) {
	assert.Error(t, validateConfigPath(""))
	assert.Error(t, validateConfigPath("../outside.json"))
	assert.Error(t, validateConfigPath("config.ini"))
	assert.NoError(t, validateConfigPath("config.json"))
	assert.NoError(t, validateConfigPath("nested/config.YAML"))
}

func TestSafeReadFile_RejectsDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dir.json")
	require.NoError(t, os.Mkdir(dir, 0700))

	_, err := safeReadFile(dir)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("CQSTREAM_LISTENER_URL", "ws://env/event")
	t.Setenv("CQSTREAM_ACCESS_TOKEN", "from-env")
	t.Setenv("CQSTREAM_NATS_ENABLED", "true")
	t.Setenv("CQSTREAM_MAX_RECONNECT_ATTEMPTS", "7")
	t.Setenv("CQSTREAM_SHUTDOWN_TIMEOUT", "2s")
	t.Setenv("CQSTREAM_LOG_LEVEL", "")

	cfg := Default()
	require.NoError(t, ApplyEnv(cfg))

	assert.Equal(t, "ws://env/event", cfg.Listener.URL)
	assert.Equal(t, "from-env", cfg.Listener.AccessToken)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, 7, cfg.Listener.Reconnect.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Listener.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Log.Level, "empty variables are ignored")
}

func TestApplyEnv_OverridesFile(t *testing.T) {
	t.Setenv("CQSTREAM_LISTENER_URL", "ws://env/event")
	path := writeConfig(t, "c.json", `{"listener": {"url": "ws://file/event"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://env/event", cfg.Listener.URL)
}

func TestApplyEnv_Errors(t *testing.T) {
	tests := map[string]string{
		"CQSTREAM_NATS_ENABLED":           "maybe",
		"CQSTREAM_MAX_RECONNECT_ATTEMPTS": "many",
		"CQSTREAM_SHUTDOWN_TIMEOUT":       "later",
		"CQSTREAM_API_URL":                strings.Repeat("x", maxEnvVarLen+1),
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			assert.Error(t, ApplyEnv(Default()))
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty listener url", func(c *Config) { c.Listener.URL = "" }},
		{"negative queue", func(c *Config) { c.Listener.DispatchQueueSize = -1 }},
		{"ftp api url", func(c *Config) { c.API.BaseURL = "ftp://bot" }},
		{"negative rate", func(c *Config) { c.API.RateLimit = -1 }},
		{"nats without url", func(c *Config) { c.NATS.Enabled = true; c.NATS.URL = "" }},
		{"nats user without password", func(c *Config) { c.NATS.Enabled = true; c.NATS.Username = "bot" }},
		{"nats wildcard subject", func(c *Config) { c.NATS.Enabled = true; c.NATS.SubjectPrefix = "posts.>" }},
		{"negative nats drain", func(c *Config) { c.NATS.Enabled = true; c.NATS.DrainTimeout = -time.Second }},
		{"metrics without addr", func(c *Config) { c.Metrics.Addr = "" }},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }},
		{"unknown request action", func(c *Config) { c.Requests.Friend = "maybe" }},
		{"echo without prefix", func(c *Config) { c.Echo.Enabled = true; c.Echo.Prefix = " " }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestConfig_StringRedactsSecrets(t *testing.T) {
	cfg := Default()
	cfg.Listener.AccessToken = "listener-secret"
	cfg.API.AccessToken = "api-secret"
	cfg.NATS.Password = "nats-secret"

	s := cfg.String()
	assert.NotContains(t, s, "listener-secret")
	assert.NotContains(t, s, "api-secret")
	assert.NotContains(t, s, "nats-secret")
	assert.Contains(t, s, "[REDACTED]")
	assert.Equal(t, "listener-secret", cfg.Listener.AccessToken, "String does not modify the config")
}

func TestValidateJSONDepth(t *testing.T) {
	assert.NoError(t, validateJSONDepth([]byte(`{"a": "[[[{{{", "b": [1, {"c": "\"]"}]}`)))
	assert.Error(t, validateJSONDepth([]byte(`{"a": 1}}`)))
	assert.Error(t, validateJSONDepth([]byte(`{"a": [`)))
	assert.Error(t, validateJSONDepth([]byte(strings.Repeat("[", maxJSONDepth+1))))
}
