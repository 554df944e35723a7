package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	ginapi "github.com/pilab-dev/frigg/api/gin"
	"github.com/pilab-dev/frigg/config"
	"github.com/pilab-dev/frigg/internal/bootstrap"
	"github.com/pilab-dev/frigg/internal/metrics"
	"github.com/pilab-dev/frigg/internal/server"
	"github.com/pilab-dev/frigg/internal/telemetry"
	"github.com/pilab-dev/frigg/log"
	"github.com/pilab-dev/frigg/tracing"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		stdLog := zerolog.New(os.Stdout).With().Timestamp().Logger()
		stdLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := log.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
		zerolog.New(os.Stdout).With().Timestamp().Logger().Warn().
			Str("configured_log_level", cfg.LogLevel).
			Err(parseErr).
			Msg("Invalid LOG_LEVEL configured, defaulting to 'info'")
	}
	appLogger := log.NewZerologAdapter(logLevel, cfg.LogPretty)

	ctx := context.Background()
	appLogger.Info(ctx, "Starting frigg server", map[string]interface{}{
		"http_port":    cfg.HTTPPort,
		"storage":      cfg.Storage,
		"log_level":    cfg.LogLevel,
		"otel_service": cfg.OtelServiceName,
	})

	tracerProvider, err := tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize TracerProvider", err)
	}
	metrics.InitCustomMetrics(prometheus.DefaultRegisterer)
	meterProvider, err := telemetry.InitMeterProvider(prometheus.DefaultRegisterer)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize MeterProvider", err)
	}

	storage, err := bootstrap.OpenStorage(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to open storage", err)
	}
	states, closeStates, err := bootstrap.NewStateStore(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize state store", err)
	}
	registry, err := bootstrap.NewRegistry(cfg, appLogger)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to register modules", err)
	}
	if len(registry.Names()) == 0 {
		appLogger.Warn(ctx, "No module is configured")
	}

	api := ginapi.NewAPI(ginapi.Options{
		Registry:    registry,
		Credentials: storage.Credentials,
		Entities:    storage.Entities,
		States:      states,
		Storage:     storage,
		Logger:      appLogger,
	})

	httpServer := server.NewHTTPServer(cfg, appLogger, api)
	go func() {
		appLogger.Info(ctx, fmt.Sprintf("HTTP server listening on port %s", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal(ctx, "Failed to start HTTP server", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	receivedSignal := <-quit

	appLogger.Info(ctx, fmt.Sprintf("Received signal: %v. Shutting down server...", receivedSignal))

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "HTTP server shutdown error", err)
	}
	closeStates()
	storage.Close(shutdownCtx)
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "TracerProvider shutdown error", err)
	}
	telemetry.Shutdown(shutdownCtx, meterProvider)

	appLogger.Info(shutdownCtx, "Server gracefully stopped.")
}
