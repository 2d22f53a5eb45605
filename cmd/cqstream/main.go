// Package main implements the cqstream command. cqstream connects to the
// event websocket of a CQHTTP bot server, answers friend and group requests
// by policy, optionally forwards every raw event to NATS and serves
// Prometheus metrics with a health endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/cqstream/api"
	"github.com/c360/cqstream/config"
	pkgerrors "github.com/c360/cqstream/errors"
	"github.com/c360/cqstream/handler"
	"github.com/c360/cqstream/health"
	"github.com/c360/cqstream/input/websocket"
	"github.com/c360/cqstream/metric"
	"github.com/c360/cqstream/natsclient"
	"github.com/c360/cqstream/pkg/retry"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "cqstream"
)

const shutdownGrace = 5 * time.Second

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	cliCfg, err := parseFlags(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("invalid flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp(fs)
		return nil
	}

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}

	logger, logCloser := setupLogger(cfg.Log)
	defer func() { _ = logCloser.Close() }()
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("Configuration is valid", "config_path", cliCfg.ConfigPath)
		fmt.Println(cfg.String())
		return nil
	}

	logger.Info("Starting cqstream",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

// loadConfig loads the config file and applies command-line overrides
func loadConfig(cliCfg *CLIConfig) (*config.Config, error) {
	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}
	if cliCfg.LogFile != "" {
		cfg.Log.File = cliCfg.LogFile
	}
	return cfg, nil
}

// serve runs the listener until ctx is cancelled or reconnecting gives up
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	registry := metric.NewMetricsRegistry()
	monitor := health.NewMonitor()

	opts := []websocket.Option{
		websocket.WithLogger(logger),
		websocket.WithMetrics(registry),
	}

	handlerOpts, err := setupHandlers(cfg, logger)
	if err != nil {
		return err
	}
	opts = append(opts, handlerOpts...)

	if cfg.NATS.Enabled {
		natsClient, err := connectNATS(ctx, cfg.NATS, logger, registry)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := natsClient.Close(closeCtx); err != nil {
				logger.Warn("Closing NATS failed", "error", err)
			}
		}()

		monitor.Register("nats", natsClient.Health)
		opts = append(opts, websocket.WithRawObserver(natsclient.NewForwarder(natsClient, cfg.NATS.SubjectPrefix)))
	}

	listener, err := websocket.New(cfg.Listener, opts...)
	if err != nil {
		return fmt.Errorf("create listener: %w", err)
	}
	monitor.Register("listener", listener.Health)

	if cfg.Metrics.Enabled {
		server := metric.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, registry, func() health.Status {
			return monitor.AggregateHealth(appName)
		})
		if err := server.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		logger.Info("Metrics server started", "addr", server.Address(), "path", cfg.Metrics.Path)
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := server.Stop(stopCtx); err != nil {
				logger.Warn("Stopping metrics server failed", "error", err)
			}
		}()
	}

	if err := listener.StartListening(ctx); err != nil {
		return fmt.Errorf("start listener: %w", err)
	}
	logger.Info("cqstream started")

	// The loop ends on cancellation or when the reconnect policy gives up
	if err := listener.Wait(context.Background()); err != nil {
		return fmt.Errorf("listener stopped: %w", err)
	}

	logger.Info("cqstream shutdown complete")
	return nil
}

// setupHandlers builds the post handler and the request API from config.
// Without an API base URL posts are only observed and logged.
func setupHandlers(cfg *config.Config, logger *slog.Logger) ([]websocket.Option, error) {
	mux := handler.NewMux(logger)
	opts := []websocket.Option{websocket.WithHandler(mux)}

	if cfg.API.BaseURL == "" {
		logger.Warn("No API base URL configured, requests will not be answered")
		return opts, nil
	}

	client, err := api.NewClient(cfg.API, api.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("create API client: %w", err)
	}
	opts = append(opts, websocket.WithRequestAPI(client))

	policy := cfg.Requests
	policy.Logger = logger
	mux.OnRequest(policy.HandleRequest)

	if cfg.Echo.Enabled {
		mux.OnMessage(handler.Echo(client, cfg.Echo.Prefix))
	}

	return opts, nil
}

// connectNATS creates the NATS client and connects it
func connectNATS(
	ctx context.Context,
	cfg config.NATSConfig,
	logger *slog.Logger,
	registry *metric.MetricsRegistry,
) (*natsclient.Client, error) {
	connected := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: appName,
		Subsystem: "nats",
		Name:      "connected",
		Help:      "1 while the NATS connection is up",
	})
	if err := registry.RegisterGauge("nats", "connected", connected); err != nil {
		return nil, fmt.Errorf("register NATS metrics: %w", err)
	}

	clientOpts := []natsclient.ClientOption{
		natsclient.WithName(appName),
		natsclient.WithLogger(logger),
		natsclient.WithMaxReconnects(cfg.MaxReconnects),
		natsclient.WithReconnectWait(cfg.ReconnectWait),
		natsclient.WithStatusHandler(func(status natsclient.ConnectionStatus, _ error) {
			connected.Set(boolGauge(status == natsclient.StatusConnected))
		}),
	}
	if cfg.PingInterval > 0 {
		clientOpts = append(clientOpts, natsclient.WithPingInterval(cfg.PingInterval))
	}
	if cfg.DrainTimeout > 0 {
		clientOpts = append(clientOpts, natsclient.WithDrainTimeout(cfg.DrainTimeout))
	}
	if cfg.Username != "" {
		clientOpts = append(clientOpts, natsclient.WithCredentials(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		clientOpts = append(clientOpts, natsclient.WithToken(cfg.Token))
	}

	client, err := natsclient.NewClient(cfg.URL, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err = retry.Do(connectCtx, retry.Quick(), func() error {
		err := client.Connect(connectCtx)
		if pkgerrors.IsFatal(err) || pkgerrors.IsInvalid(err) {
			return retry.NonRetryable(err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	connected.Set(1)

	return client, nil
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
