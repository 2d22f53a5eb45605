package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/cqstream/errors"
)

// durationKeys lists the duration fields that accept strings like "30s" in JSON
var durationKeys = map[string][]string{
	"listener":           {"handshake_timeout", "shutdown_timeout"},
	"listener.reconnect": {"initial_delay", "max_delay"},
	"api":                {"timeout"},
	"nats":               {"reconnect_wait", "ping_interval", "drain_timeout"},
}

// Loader loads configuration layers on top of the defaults
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:    []string{},
		envPrefix: EnvPrefix,
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// WithEnvPrefix changes the prefix of environment overrides
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load loads the defaults, every layer and then environment overrides
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		if err := l.loadLayer(cfg, path); err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", fmt.Sprintf("load %s", path))
		}
	}

	if err := applyEnv(cfg, l.envPrefix); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "apply environment")
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Load is a shortcut for a validated single-file load. An empty path loads
// defaults and environment overrides only.
func Load(path string) (*Config, error) {
	l := NewLoader()
	if path != "" {
		l.AddLayer(path)
	}
	l.EnableValidation(true)
	return l.Load()
}

func (l *Loader) loadLayer(cfg *Config, path string) error {
	data, err := safeReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
		}
		return nil
	default:
		return l.loadJSON(cfg, data)
	}
}

// loadJSON decodes onto cfg, so fields absent from the file keep their values
func (l *Loader) loadJSON(cfg *Config, data []byte) error {
	if err := validateJSONDepth(data); err != nil {
		return fmt.Errorf("invalid JSON structure: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
	}
	if err := parseDurations(raw); err != nil {
		return err
	}

	processed, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(processed, cfg); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
	}
	return nil
}

// parseDurations converts duration strings to nanoseconds for json unmarshaling
func parseDurations(data map[string]any) error {
	for section, keys := range durationKeys {
		m := data
		for _, part := range strings.Split(section, ".") {
			next, ok := m[part].(map[string]any)
			if !ok {
				m = nil
				break
			}
			m = next
		}
		if m == nil {
			continue
		}

		for _, key := range keys {
			s, ok := m[key].(string)
			if !ok {
				continue
			}
			d, err := time.ParseDuration(s)
			if err != nil {
				return fmt.Errorf("%w: %s.%s: %v", errors.ErrInvalidConfig, section, key, err)
			}
			m[key] = d.Nanoseconds()
		}
	}
	return nil
}
