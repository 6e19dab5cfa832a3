// Package main is the entry point for the service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jsamuelsen/go-scope-hub/internal/adapters/http"
	"github.com/jsamuelsen/go-scope-hub/internal/adapters/http/handlers"
	"github.com/jsamuelsen/go-scope-hub/internal/hub"
	"github.com/jsamuelsen/go-scope-hub/internal/platform/config"
	"github.com/jsamuelsen/go-scope-hub/internal/platform/logging"
	"github.com/jsamuelsen/go-scope-hub/internal/platform/telemetry"
	"github.com/jsamuelsen/go-scope-hub/internal/ports"
	"github.com/jsamuelsen/go-scope-hub/internal/sink"
)

// Build-time variables, injected via ldflags.
// Example: go build -ldflags "-X main.Version=1.0.0 -X main.Commit=$(git rev-parse HEAD) -X main.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	// Version is the semantic version of the service.
	Version = "dev"

	// Commit is the git commit SHA.
	Commit = "unknown"

	// BuildTime is the timestamp when the binary was built.
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// 1. Determine profile from environment
	profile := os.Getenv("APP_ENVIRONMENT")
	if profile == "" {
		profile = "local"
	}

	// 2. Load and validate configuration (fail fast)
	cfg, err := config.Load(profile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// 3. Initialize logging
	logger := logging.New(&logging.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: cfg.App.Name,
		Version: cfg.App.Version,
		File: logging.FileConfig{
			Enabled:    cfg.Log.File.Enabled,
			Path:       cfg.Log.File.Path,
			MaxSizeMB:  cfg.Log.File.MaxSizeMB,
			MaxBackups: cfg.Log.File.MaxBackups,
			MaxAgeDays: cfg.Log.File.MaxAgeDays,
			Compress:   cfg.Log.File.Compress,
		},
	})
	logging.SetDefault(logger)

	logger.Info("starting service",
		slog.String("version", Version),
		slog.String("commit", Commit),
		slog.String("environment", cfg.App.Environment),
		slog.Bool("global_mode", cfg.Scope.GlobalMode),
	)

	// 4. Initialize telemetry (noop if disabled)
	telProvider, err := telemetry.New(ctx, &telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		Endpoint:     cfg.Telemetry.Endpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
		Version:      cfg.App.Version,
		Environment:  cfg.App.Environment,
		SamplingRate: cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	defer func() {
		if shutdownErr := telProvider.Shutdown(ctx); shutdownErr != nil {
			logger.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	// 5. Create health registry and the event sinks
	healthRegistry := ports.NewHealthRegistry()

	rootSink, err := newRootSink(cfg, logger, healthRegistry)
	if err != nil {
		return err
	}

	// 6. Create the hub that owns the scope stack
	h, err := hub.New(hub.Config{
		RootSink:       rootSink,
		GlobalMode:     cfg.Scope.GlobalMode,
		MaxBreadcrumbs: cfg.Scope.MaxBreadcrumbs,
		Release:        releaseName(cfg),
		Environment:    cfg.App.Environment,
		Debug:          cfg.Scope.Debug,
		Logger:         logger,
		Registerer:     prometheus.DefaultRegisterer,
	})
	if err != nil {
		return fmt.Errorf("creating hub: %w", err)
	}

	defer func() {
		closeCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
		defer cancel()

		if closeErr := h.Close(closeCtx); closeErr != nil {
			logger.Error("hub close error", slog.Any("error", closeErr))
		}
	}()

	err = healthRegistry.Register(ports.CheckerFunc{
		CheckName: "sinks",
		Fn: func(ctx context.Context) error {
			if !sink.IsEnabled(h.Sink(ctx)) {
				return errors.New("no sink enabled, events are dropped")
			}

			return nil
		},
	}, ports.Optional())
	if err != nil {
		return fmt.Errorf("registering sinks health check: %w", err)
	}

	// 7. Create handlers
	buildInfo := handlers.NewBuildInfo(Version, Commit, BuildTime)
	healthHandler := handlers.NewHealthHandler(healthRegistry, buildInfo)

	// 8. Create HTTP server
	server := http.New(&cfg.Server, logger)

	// 9. Setup router with all middleware and routes
	http.SetupRouter(server.Engine(), http.NewDefaultRouterConfig(logger, &cfg.App, h, healthHandler))

	// 10. Start server (non-blocking)
	serverErr := server.Start()

	// 11. Wait for shutdown signal
	return waitForShutdown(ctx, logger, server, serverErr, cfg.Server.ShutdownTimeout)
}

// newRootSink builds the sink events go to when no other sink is bound.
// Multiple enabled sinks are combined with a fan-out; none yields nil, which
// the hub treats as disabled.
func newRootSink(cfg *config.Config, logger *slog.Logger, registry ports.HealthRegistry) (sink.Sink, error) {
	var sinks []sink.Sink

	if cfg.Sinks.Log.Enabled {
		sinks = append(sinks, sink.NewLog(logger))
	}

	if cfg.Sinks.Redis.Enabled {
		redisSink := sink.NewRedis(sink.RedisConfig{
			Addr:     cfg.Sinks.Redis.Addr,
			Password: cfg.Sinks.Redis.Password,
			DB:       cfg.Sinks.Redis.DB,
			Stream:   cfg.Sinks.Redis.Stream,
			MaxLen:   cfg.Sinks.Redis.MaxLen,
			Timeout:  cfg.Sinks.Redis.Timeout,
			Logger:   logger,
		})

		if err := registry.Register(redisSink, ports.Optional()); err != nil {
			return nil, fmt.Errorf("registering redis health check: %w", err)
		}

		sinks = append(sinks, redisSink)
	}

	if cfg.Sinks.HTTP.Enabled {
		httpCfg := cfg.Sinks.HTTP

		httpSink, err := sink.NewHTTP(sink.HTTPConfig{
			URL:             httpCfg.URL,
			Token:           httpCfg.Token,
			Timeout:         httpCfg.Timeout,
			MaxAttempts:     httpCfg.Retry.MaxAttempts,
			InitialInterval: httpCfg.Retry.InitialInterval,
			MaxInterval:     httpCfg.Retry.MaxInterval,
			Multiplier:      httpCfg.Retry.Multiplier,
			Breaker: sink.BreakerConfig{
				MaxFailures:   httpCfg.CircuitBreaker.MaxFailures,
				Cooldown:      httpCfg.CircuitBreaker.Timeout,
				HalfOpenLimit: httpCfg.CircuitBreaker.HalfOpenLimit,
			},
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating http sink: %w", err)
		}

		if err := registry.Register(httpSink, ports.Optional()); err != nil {
			return nil, fmt.Errorf("registering http sink health check: %w", err)
		}

		sinks = append(sinks, httpSink)
	}

	switch len(sinks) {
	case 0:
		logger.Warn("no event sinks enabled, captured events will be dropped")
		return nil, nil
	case 1:
		return sinks[0], nil
	default:
		return sink.NewFanOut(sinks...), nil
	}
}

// releaseName returns the configured release, falling back to the app name
// and version.
func releaseName(cfg *config.Config) string {
	if cfg.Scope.Release != "" {
		return cfg.Scope.Release
	}

	return cfg.App.Name + "@" + cfg.App.Version
}

// waitForShutdown blocks until a shutdown signal is received or server error occurs.
// It then performs graceful shutdown of the HTTP server.
func waitForShutdown(
	ctx context.Context,
	logger *slog.Logger,
	server *http.Server,
	serverErr <-chan error,
	shutdownTimeout time.Duration,
) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)

	case sig := <-quit:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	logger.Info("initiating graceful shutdown",
		slog.Duration("timeout", shutdownTimeout),
	)

	// Stop accepting new requests, drain in-flight; the deferred hub close
	// then flushes the sinks.
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("shutdown complete")

	return nil
}
