package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/cqstream/config"
	"github.com/c360/cqstream/metric"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestParseFlags(t *testing.T) {
	t.Setenv("CQSTREAM_CONFIG", "from-env.yaml")

	cfg, err := parseFlags(newFlagSet(), []string{"-log-level", "debug", "-validate"})
	require.NoError(t, err)
	assert.Equal(t, "from-env.yaml", cfg.ConfigPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Validate)

	cfg, err = parseFlags(newFlagSet(), []string{"-c", "flag.json"})
	require.NoError(t, err)
	assert.Equal(t, "flag.json", cfg.ConfigPath)

	_, err = parseFlags(newFlagSet(), []string{"-unknown"})
	assert.Error(t, err)
}

func TestValidateFlags(t *testing.T) {
	assert.NoError(t, validateFlags(&CLIConfig{}))
	assert.NoError(t, validateFlags(&CLIConfig{ShowVersion: true, ConfigPath: "missing.json"}))
	assert.Error(t, validateFlags(&CLIConfig{ConfigPath: filepath.Join(t.TempDir(), "missing.json")}))
	assert.Error(t, validateFlags(&CLIConfig{LogLevel: "loud"}))
	assert.Error(t, validateFlags(&CLIConfig{LogFormat: "xml"}))
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cqstream.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\n  format: text\n"), 0600))

	cfg, err := loadConfig(&CLIConfig{ConfigPath: path, LogLevel: "debug"})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestSetupLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cqstream.log")
	logger, closer := setupLogger(config.LogConfig{Level: "info", Format: "json", File: path, MaxSizeMB: 1})

	logger.Info("hello file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello file")
}

func TestSetupHandlers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.Default()
	cfg.API.BaseURL = ""
	opts, err := setupHandlers(cfg, logger)
	require.NoError(t, err)
	assert.Len(t, opts, 1, "handler only without an API")

	cfg = config.Default()
	cfg.Echo.Enabled = true
	opts, err = setupHandlers(cfg, logger)
	require.NoError(t, err)
	assert.Len(t, opts, 2)
}

func TestServe_StopsOnCancel(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"post_type":"meta_event","meta_event_type":"heartbeat"}`))
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Listener.URL = "ws" + server.URL[4:]
	cfg.API.BaseURL = ""
	cfg.Metrics.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestServe_ConnectFailure(t *testing.T) {
	cfg := config.Default()
	cfg.Listener.URL = "ws://127.0.0.1:1/event"
	cfg.API.BaseURL = ""
	cfg.Metrics.Enabled = false

	err := serve(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start listener")
}

func TestConnectNATS_StopsWhenCancelled(t *testing.T) {
	cfg := config.Default().NATS
	cfg.URL = "nats://127.0.0.1:1"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	registry := metric.NewMetricsRegistry()
	_, err := connectNATS(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), registry)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "connect to NATS")

	gauges, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range gauges {
		if mf.GetName() == "cqstream_nats_connected" {
			found = true
			assert.Equal(t, float64(0), mf.GetMetric()[0].GetGauge().GetValue())
		}
	}
	assert.True(t, found, "connection gauge is registered")
}

func TestBoolGauge(t *testing.T) {
	assert.Equal(t, float64(1), boolGauge(true))
	assert.Equal(t, float64(0), boolGauge(false))
}
