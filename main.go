package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"proxy-healer/api"
	"proxy-healer/config"
	"proxy-healer/healer/implementations"
	"proxy-healer/healer/interfaces"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	ServiceName = "proxy-healer"
	Version     = "1.0.0"
)

func main() {
	if err := config.LoadEnvFile(".env"); err != nil {
		log.Fatalf("Failed to load environment: %v", err)
	}

	settings, err := config.Load(config.ConfigPath())
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := initLogger(settings.LogLevel)
	defer func() {
		// Ignore sync errors for stdout/stderr
		_ = logger.Sync()
	}()

	logger.Info("Starting Proxy Healer Service",
		zap.String("service", ServiceName),
		zap.String("version", Version),
	)

	registry := createRegistry(settings, logger)

	if err := registry.Start(); err != nil {
		logger.Fatal("Failed to start registry", zap.Error(err))
	}

	for _, proxyCfg := range settings.Proxies {
		if err := registry.Register(proxyCfg.ToProxy()); err != nil {
			logger.Error("Failed to register configured proxy",
				zap.String("proxy", proxyCfg.ID),
				zap.Error(err),
			)
		}
	}

	// Setup API handlers
	handler := api.NewHandler(registry, logger)
	router := handler.SetupRoutes()

	server := &http.Server{
		Addr:         ":" + settings.Port,
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	// Start HTTP server in a goroutine
	go func() {
		logger.Info("Starting HTTP server", zap.String("port", settings.Port))
		printStartupMessage(settings, logger)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Service ready - Press Ctrl+C to shutdown")
	sig := <-quit
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	// Shutdown HTTP server first so no new registrations arrive
	logger.Info("Shutting down HTTP server...")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
	}

	logger.Info("Shutting down registry...")
	if err := registry.Stop(); err != nil {
		logger.Error("Failed to shutdown registry gracefully", zap.Error(err))
	}

	logger.Info("Service shutdown complete")
}

// initLogger initializes the zap logger with appropriate configuration
func initLogger(level string) *zap.Logger {
	atomicLevel := zap.NewAtomicLevelAt(zap.InfoLevel)
	if err := atomicLevel.UnmarshalText([]byte(level)); err != nil {
		log.Printf("Unknown log level %q, using info", level)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = atomicLevel
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true

	// Use console encoder for better readability in development
	cfg.Encoding = "console"
	cfg.EncoderConfig = zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	logger, err := cfg.Build()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	return logger
}

// createRegistry creates a registry with explicit dependency injection
func createRegistry(settings *config.Settings, logger *zap.Logger) interfaces.Registry {
	prober := implementations.NewHTTPProber(implementations.HTTPProberConfig{
		StatusPath:       settings.Polling.StatusPath,
		MinHealthyStatus: settings.Polling.MinHealthyStatus,
		MaxHealthyStatus: settings.Polling.MaxHealthyStatus,
	}, logger)

	policy := implementations.NewThresholdPolicy(implementations.ThresholdPolicyConfig{
		QuarantineAfter: settings.Policy.QuarantineAfter,
		RestartAfter:    settings.Policy.RestartAfter,
		Window:          settings.Policy.Window,
		Cooldown:        settings.Policy.Cooldown,
	})

	restartHandler := implementations.NewRestartHandler(implementations.RestartHandlerConfig{
		MaxRetries:     settings.Restart.MaxRetries,
		InitialDelay:   settings.Restart.InitialDelay,
		MaxDelay:       settings.Restart.MaxDelay,
		DeadLetterFile: settings.Persistence.DeadLetterFile,
	}, logger)

	registryConfig := &implementations.RegistryConfig{
		Monitor: implementations.HealthMonitorConfig{
			Interval:       settings.Polling.Interval,
			ProbeTimeout:   settings.Polling.Timeout,
			RestartTimeout: settings.Restart.Timeout,
			Prober:         prober,
			Policy:         policy,
			Validator:      implementations.NewEventValidator(),
			RestartHandler: restartHandler,
		},
		Selector:           implementations.NewProxySelector(logger),
		PersistenceMgr:     implementations.NewPersistenceManager(settings.Persistence.StateFile, logger),
		CheckpointSchedule: settings.Persistence.CheckpointSchedule,
	}

	return implementations.NewRegistry(logger, registryConfig)
}

// printStartupMessage prints service information
func printStartupMessage(settings *config.Settings, logger *zap.Logger) {
	logger.Info("=== Proxy Healer Configuration ===")
	logger.Info("Service Details",
		zap.String("service", ServiceName),
		zap.String("version", Version),
		zap.String("port", settings.Port),
	)
	logger.Info("Polling Configuration",
		zap.Duration("interval", settings.Polling.Interval),
		zap.Duration("timeout", settings.Polling.Timeout),
		zap.String("status_path", settings.Polling.StatusPath),
	)
	logger.Info("Reaction Policy",
		zap.Int("quarantine_after", settings.Policy.QuarantineAfter),
		zap.Int("restart_after", settings.Policy.RestartAfter),
		zap.Duration("window", settings.Policy.Window),
		zap.Duration("cooldown", settings.Policy.Cooldown),
	)
	logger.Info("Proxies",
		zap.Int("configured", len(settings.Proxies)),
		zap.String("checkpoint_schedule", settings.Persistence.CheckpointSchedule),
	)
	logger.Info("API Endpoints Available",
		zap.String("health", "GET /api/v1/health"),
		zap.String("stats", "GET /api/v1/stats"),
		zap.String("proxies", "GET|POST /api/v1/proxies"),
		zap.String("events", "GET|POST /api/v1/proxies/:id/events"),
		zap.String("polling", "POST /api/v1/proxies/:id/polling/{start,stop}"),
		zap.String("dead_letter", "GET /api/v1/dead-letter"),
	)
	logger.Info("=========================================")
}
