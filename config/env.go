package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// EnvPrefix is the default prefix of environment overrides
const EnvPrefix = "CQSTREAM"

// ApplyEnv overrides cfg with CQSTREAM_* environment variables
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, EnvPrefix)
}

func applyEnv(cfg *Config, prefix string) error {
	strs := map[string]*string{
		"LISTENER_URL":  &cfg.Listener.URL,
		"ACCESS_TOKEN":  &cfg.Listener.AccessToken,
		"API_URL":       &cfg.API.BaseURL,
		"API_TOKEN":     &cfg.API.AccessToken,
		"NATS_URL":      &cfg.NATS.URL,
		"NATS_SUBJECT":  &cfg.NATS.SubjectPrefix,
		"NATS_USER":     &cfg.NATS.Username,
		"NATS_PASSWORD": &cfg.NATS.Password,
		"NATS_TOKEN":    &cfg.NATS.Token,
		"METRICS_ADDR":  &cfg.Metrics.Addr,
		"LOG_LEVEL":     &cfg.Log.Level,
		"LOG_FORMAT":    &cfg.Log.Format,
		"LOG_FILE":      &cfg.Log.File,
	}
	for key, dst := range strs {
		value, ok, err := lookupEnv(prefix + "_" + key)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}

	bools := map[string]*bool{
		"NATS_ENABLED":    &cfg.NATS.Enabled,
		"METRICS_ENABLED": &cfg.Metrics.Enabled,
		"ECHO_ENABLED":    &cfg.Echo.Enabled,
	}
	for key, dst := range bools {
		value, ok, err := lookupEnv(prefix + "_" + key)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s_%s: %w", prefix, key, err)
		}
		*dst = b
	}

	if value, ok, err := lookupEnv(prefix + "_MAX_RECONNECT_ATTEMPTS"); err != nil {
		return err
	} else if ok {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s_MAX_RECONNECT_ATTEMPTS: %w", prefix, err)
		}
		cfg.Listener.Reconnect.MaxAttempts = n
	}

	if value, ok, err := lookupEnv(prefix + "_SHUTDOWN_TIMEOUT"); err != nil {
		return err
	} else if ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s_SHUTDOWN_TIMEOUT: %w", prefix, err)
		}
		cfg.Listener.ShutdownTimeout = d
	}

	return nil
}

// lookupEnv treats an empty variable as unset
func lookupEnv(key string) (string, bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", false, nil
	}
	if err := validateEnvVar(key, value); err != nil {
		return "", false, err
	}
	return value, true, nil
}
