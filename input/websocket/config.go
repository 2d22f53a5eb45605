package websocket

import (
	"fmt"
	"time"

	"github.com/c360/cqstream/errors"
	"github.com/c360/cqstream/pkg/retry"
	"github.com/c360/cqstream/pkg/tlsutil"
)

// Config holds configuration for the event listener
type Config struct {
	// URL is the event endpoint, ws:// or wss://
	URL string `json:"url" yaml:"url"`
	// AccessToken is sent as the access_token query parameter when set
	AccessToken string `json:"access_token" yaml:"access_token"`

	HandshakeTimeout time.Duration `json:"handshake_timeout" yaml:"handshake_timeout"`
	ReadBufferSize   int           `json:"read_buffer_size" yaml:"read_buffer_size"`

	// TLS applies to wss endpoints
	TLS tlsutil.ClientConfig `json:"tls" yaml:"tls"`

	// MaxMessageSize caps a reassembled message in bytes (0 = unlimited)
	MaxMessageSize int `json:"max_message_size" yaml:"max_message_size"`

	// MaxConcurrentDispatch bounds in-flight dispatches (0 = one goroutine per message)
	MaxConcurrentDispatch int `json:"max_concurrent_dispatch" yaml:"max_concurrent_dispatch"`
	DispatchQueueSize     int `json:"dispatch_queue_size" yaml:"dispatch_queue_size"`

	// ShutdownTimeout limits how long a finished loop waits for in-flight dispatches
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`

	Reconnect ReconnectConfig `json:"reconnect" yaml:"reconnect"`
}

// ReconnectConfig holds the reconnect policy. The zero value retries forever
// without delay.
type ReconnectConfig struct {
	MaxAttempts  int           `json:"max_attempts" yaml:"max_attempts"` // 0 = unlimited
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay" yaml:"max_delay"`
	Multiplier   float64       `json:"multiplier" yaml:"multiplier"`
	Jitter       bool          `json:"jitter" yaml:"jitter"`
}

// Policy converts the configuration into a retry policy
func (r ReconnectConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts:  r.MaxAttempts,
		InitialDelay: r.InitialDelay,
		MaxDelay:     r.MaxDelay,
		Multiplier:   r.Multiplier,
		AddJitter:    r.Jitter,
	}
}

// DefaultConfig returns the default listener configuration
func DefaultConfig() Config {
	return Config{
		URL:               "ws://127.0.0.1:6700/event",
		HandshakeTimeout:  45 * time.Second,
		ReadBufferSize:    1024,
		DispatchQueueSize: 1000,
		ShutdownTimeout:   10 * time.Second,
	}
}

// Validate checks numeric limits. The URL is checked by NewEndpoint.
func (c Config) Validate() error {
	check := func(ok bool, field string) error {
		if ok {
			return nil
		}
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s must not be negative", errors.ErrInvalidConfig, field),
			"Config", "Validate", "validate listener config")
	}

	for _, err := range []error{
		check(c.HandshakeTimeout >= 0, "handshake_timeout"),
		check(c.ReadBufferSize >= 0, "read_buffer_size"),
		check(c.MaxMessageSize >= 0, "max_message_size"),
		check(c.MaxConcurrentDispatch >= 0, "max_concurrent_dispatch"),
		check(c.DispatchQueueSize >= 0, "dispatch_queue_size"),
		check(c.ShutdownTimeout >= 0, "shutdown_timeout"),
		check(c.Reconnect.MaxAttempts >= 0, "reconnect.max_attempts"),
		check(c.Reconnect.InitialDelay >= 0, "reconnect.initial_delay"),
		check(c.Reconnect.MaxDelay >= 0, "reconnect.max_delay"),
		check(c.Reconnect.Multiplier >= 0, "reconnect.multiplier"),
	} {
		if err != nil {
			return err
		}
	}
	return c.TLS.Validate()
}

func (c Config) readBufferSize() int {
	if c.ReadBufferSize <= 0 {
		return 1024
	}
	return c.ReadBufferSize
}

func (c Config) shutdownTimeout() time.Duration {
	if c.ShutdownTimeout <= 0 {
		return 10 * time.Second
	}
	return c.ShutdownTimeout
}
