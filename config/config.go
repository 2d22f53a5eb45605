package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/c360/cqstream/api"
	"github.com/c360/cqstream/errors"
	"github.com/c360/cqstream/handler"
	"github.com/c360/cqstream/input/websocket"
	"github.com/c360/cqstream/natsclient"
)

// Config represents the complete application configuration
type Config struct {
	Listener websocket.Config      `json:"listener" yaml:"listener"`
	API      api.Config            `json:"api" yaml:"api"`
	NATS     NATSConfig            `json:"nats" yaml:"nats"`
	Metrics  MetricsConfig         `json:"metrics" yaml:"metrics"`
	Log      LogConfig             `json:"log" yaml:"log"`
	Requests handler.RequestPolicy `json:"requests" yaml:"requests"`
	Echo     EchoConfig            `json:"echo" yaml:"echo"`
}

// NATSConfig controls forwarding of raw events to NATS
type NATSConfig struct {
	Enabled       bool          `json:"enabled" yaml:"enabled"`
	URL           string        `json:"url" yaml:"url"`
	SubjectPrefix string        `json:"subject_prefix" yaml:"subject_prefix"`
	Username      string        `json:"username,omitempty" yaml:"username,omitempty"`
	Password      string        `json:"password,omitempty" yaml:"password,omitempty"`
	Token         string        `json:"token,omitempty" yaml:"token,omitempty"`
	MaxReconnects int           `json:"max_reconnects" yaml:"max_reconnects"`
	ReconnectWait time.Duration `json:"reconnect_wait" yaml:"reconnect_wait"`
	PingInterval  time.Duration `json:"ping_interval" yaml:"ping_interval"`
	DrainTimeout  time.Duration `json:"drain_timeout" yaml:"drain_timeout"`
}

// MetricsConfig controls the metrics and health endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
	Path    string `json:"path" yaml:"path"`
}

// LogConfig controls logging. File enables rotated file output next to stdout.
type LogConfig struct {
	Level      string `json:"level" yaml:"level"`
	Format     string `json:"format" yaml:"format"` // json or text
	File       string `json:"file,omitempty" yaml:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
}

// EchoConfig enables the echo reply handler
type EchoConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Prefix  string `json:"prefix" yaml:"prefix"`
}

// Default returns the default configuration. Unlike the listener package
// default, the binary backs off between reconnect attempts.
func Default() *Config {
	listener := websocket.DefaultConfig()
	listener.Reconnect = websocket.ReconnectConfig{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}

	return &Config{
		Listener: listener,
		API: api.Config{
			BaseURL: "http://127.0.0.1:5700",
			Timeout: 10 * time.Second,
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			SubjectPrefix: natsclient.DefaultSubjectPrefix,
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			PingInterval:  30 * time.Second,
			DrainTimeout:  5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Requests: handler.RequestPolicy{
			Friend:      handler.ActionIgnore,
			GroupAdd:    handler.ActionIgnore,
			GroupInvite: handler.ActionIgnore,
		},
		Echo: EchoConfig{
			Prefix: "/echo",
		},
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if c.Listener.URL == "" {
		return invalid("listener.url is required")
	}
	if _, err := websocket.NewEndpoint(c.Listener.URL, c.Listener.AccessToken); err != nil {
		return err
	}
	if err := c.Listener.Validate(); err != nil {
		return err
	}

	if c.API.BaseURL != "" {
		u, err := url.Parse(c.API.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return invalid(fmt.Sprintf("api.base_url %q must be an http or https URL", c.API.BaseURL))
		}
	}
	if c.API.RateLimit < 0 || c.API.Burst < 0 {
		return invalid("api.rate_limit and api.burst must not be negative")
	}

	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return invalid("nats.url is required when nats is enabled")
		}
		if (c.NATS.Username == "") != (c.NATS.Password == "") {
			return invalid("nats.username and nats.password must be set together")
		}
		if c.NATS.SubjectPrefix == "" || strings.ContainsAny(c.NATS.SubjectPrefix, " *>") {
			return invalid(fmt.Sprintf("nats.subject_prefix %q is not a valid subject", c.NATS.SubjectPrefix))
		}
		if c.NATS.PingInterval < 0 || c.NATS.DrainTimeout < 0 {
			return invalid("nats.ping_interval and nats.drain_timeout must not be negative")
		}
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return invalid("metrics.addr is required when metrics are enabled")
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return invalid(fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "", "json", "text":
	default:
		return invalid(fmt.Sprintf("log.format %q is not json or text", c.Log.Format))
	}

	if err := c.Requests.Validate(); err != nil {
		return err
	}

	if c.Echo.Enabled && strings.TrimSpace(c.Echo.Prefix) == "" {
		return invalid("echo.prefix is required when echo is enabled")
	}

	return nil
}

// String returns the configuration as JSON with secrets redacted
func (c *Config) String() string {
	redacted := *c
	redact := func(s *string) {
		if *s != "" {
			*s = "[REDACTED]"
		}
	}
	redact(&redacted.Listener.AccessToken)
	redact(&redacted.API.AccessToken)
	redact(&redacted.NATS.Password)
	redact(&redacted.NATS.Token)

	data, err := json.MarshalIndent(redacted, "", "  ")
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}

func invalid(msg string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, msg), "Config", "Validate", "validate config")
}
