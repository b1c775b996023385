package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/telhawk-relay/common/logging"
	"github.com/telhawk-systems/telhawk-relay/internal/config"
	"github.com/telhawk-systems/telhawk-relay/internal/handlers"
	"github.com/telhawk-systems/telhawk-relay/internal/mirror"
	"github.com/telhawk-systems/telhawk-relay/internal/ratelimit"
	"github.com/telhawk-systems/telhawk-relay/internal/server"
	"github.com/telhawk-systems/telhawk-relay/internal/service"
	"github.com/telhawk-systems/telhawk-relay/internal/telemetry"

	natsclient "github.com/telhawk-systems/telhawk-relay/common/messaging/nats"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay HTTP server",
	Long: `Start the HTTP server that accepts delivery events and forwards them to
Application Insights. The instrumentation key is read from
APPINSIGHTS_INSTRUMENTATIONKEY; the server refuses to start without it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), cfgFile)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize structured logging
	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("relay"))
	logging.SetDefault(logger)

	slog.Info("Starting relay",
		slog.Int("port", cfg.Server.Port),
		slog.String("route", cfg.Server.Route),
		slog.String("log_level", cfg.Logging.Level),
		slog.String("log_format", cfg.Logging.Format),
	)
	if configPath != "" {
		slog.Info("Loaded configuration", slog.String("config_path", configPath))
	}

	telemetryClient, err := telemetry.New(telemetry.Config{
		InstrumentationKey: cfg.Telemetry.InstrumentationKey,
		EndpointURL:        cfg.Telemetry.EndpointURL,
		RoleName:           cfg.Telemetry.RoleName,
		MaxBatchSize:       cfg.Telemetry.MaxBatchSize,
		MaxBatchInterval:   cfg.Telemetry.MaxBatchInterval,
		FlushTimeout:       cfg.Telemetry.FlushTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create telemetry client: %w", err)
	}

	// Initialize rate limiter
	var rateLimiter ratelimit.RateLimiter = &ratelimit.NoOpRateLimiter{}
	if cfg.RateLimit.Enabled {
		limiter, err := ratelimit.NewRedisRateLimiter(
			cfg.RateLimit.RedisURL,
			cfg.RateLimit.Requests,
			cfg.RateLimit.Window,
			false,
		)
		if err != nil {
			slog.Warn("Failed to initialize Redis rate limiter, continuing without rate limiting",
				logging.Error(err),
			)
		} else {
			rateLimiter = limiter
			slog.Info("Rate limiting enabled",
				slog.Int("requests", cfg.RateLimit.Requests),
				slog.Duration("window", cfg.RateLimit.Window),
			)
		}
	} else {
		slog.Info("Rate limiting disabled in configuration")
	}
	defer rateLimiter.Close()

	// Initialize event mirror
	var eventMirror mirror.Mirror
	if cfg.Mirror.Enabled {
		natsCfg := natsclient.DefaultConfig()
		natsCfg.URL = cfg.Mirror.NatsURL
		natsCfg.Token = cfg.Mirror.Token
		natsCfg.Logger = logger.Logger

		natsClient, err := natsclient.NewClient(natsCfg)
		if err != nil {
			slog.Warn("Failed to connect to NATS, continuing without event mirror",
				logging.Error(err),
			)
		} else {
			m := mirror.New(natsClient, cfg.Mirror.Subject)
			defer m.Close()
			eventMirror = m
			slog.Info("Event mirror enabled",
				slog.String("nats_url", cfg.Mirror.NatsURL),
				slog.String("subject", cfg.Mirror.Subject),
			)
		}
	}

	forwarder := service.NewForwarder(telemetryClient, eventMirror, logger)
	handler := handlers.NewEventHandler(forwarder, rateLimiter, cfg.Server.MaxBodyBytes, logger)
	router := server.NewRouter(handler, cfg.Server.Route, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Relay listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
	case err := <-serverErr:
		_ = telemetryClient.Close(context.Background())
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", logging.Error(err))
	}

	flushCtx, flushCancel := context.WithTimeout(context.Background(), cfg.Telemetry.FlushTimeout)
	defer flushCancel()
	if err := telemetryClient.Close(flushCtx); err != nil {
		slog.Warn("Telemetry flush incomplete", logging.Error(err))
	}

	slog.Info("Server stopped")
	return nil
}
