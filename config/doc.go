// Package config loads the cqstream configuration.
//
// Configuration is built in three steps: the defaults from Default, zero or
// more JSON or YAML file layers, and CQSTREAM_* environment variables. Fields
// a layer does not mention keep their previous value, so a file only needs to
// carry what differs from the defaults.
//
// # Basic Usage
//
//	cfg, err := config.Load("cqstream.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Layering several files:
//
//	loader := config.NewLoader()
//	loader.AddLayer("config/base.json")
//	loader.AddLayer("config/production.yaml") // Overrides base
//	loader.EnableValidation(true)
//	cfg, err := loader.Load()
//
// # Durations
//
// Duration fields take Go duration strings ("500ms", "30s"). JSON files may
// also give plain nanosecond integers.
//
// # Environment Variables
//
//	CQSTREAM_LISTENER_URL           listener.url
//	CQSTREAM_ACCESS_TOKEN           listener.access_token
//	CQSTREAM_MAX_RECONNECT_ATTEMPTS listener.reconnect.max_attempts
//	CQSTREAM_SHUTDOWN_TIMEOUT       listener.shutdown_timeout
//	CQSTREAM_API_URL                api.base_url
//	CQSTREAM_API_TOKEN              api.access_token
//	CQSTREAM_NATS_ENABLED           nats.enabled
//	CQSTREAM_NATS_URL               nats.url
//	CQSTREAM_NATS_SUBJECT           nats.subject_prefix
//	CQSTREAM_NATS_USER              nats.username
//	CQSTREAM_NATS_PASSWORD          nats.password
//	CQSTREAM_NATS_TOKEN             nats.token
//	CQSTREAM_METRICS_ENABLED        metrics.enabled
//	CQSTREAM_METRICS_ADDR           metrics.addr
//	CQSTREAM_LOG_LEVEL              log.level
//	CQSTREAM_LOG_FORMAT             log.format
//	CQSTREAM_LOG_FILE               log.file
//	CQSTREAM_ECHO_ENABLED           echo.enabled
//
// Empty variables are ignored.
//
// # Security
//
// Config files must be regular files of at most 10MB with a .json, .yaml or
// .yml extension, and relative paths may not escape the working directory.
// JSON nesting is limited to 100 levels. Config.String redacts tokens and
// passwords and is safe to log.
package config
