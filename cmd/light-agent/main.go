package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Kaiede/RPiLight-sub000/internal/engine"
	"github.com/Kaiede/RPiLight-sub000/internal/events"
	"github.com/Kaiede/RPiLight-sub000/internal/hardware"
	"github.com/Kaiede/RPiLight-sub000/internal/remote"
	"github.com/Kaiede/RPiLight-sub000/internal/schedule"
	"github.com/Kaiede/RPiLight-sub000/internal/telemetry"
	"github.com/Kaiede/RPiLight-sub000/pkg/config"
	"github.com/Kaiede/RPiLight-sub000/pkg/health"
	"github.com/Kaiede/RPiLight-sub000/pkg/metrics"
	"github.com/Kaiede/RPiLight-sub000/pkg/mqtt"
	"github.com/Kaiede/RPiLight-sub000/pkg/redis"
)

func main() {
	os.Exit(run())
}

func run() int {
	// A missing .env file is normal outside development
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
	}

	// Load configuration with hierarchy: defaults → env → flags
	cfg := config.NewConfig()
	cfg.LoadFromEnv()
	cfg.LoadFromFlags()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("Starting RPiLight light agent",
		"service_name", cfg.ServiceName,
		"config", cfg.ConfigFile,
		"schedule", cfg.ScheduleFile,
		"preview", cfg.Preview,
		"mqtt_enabled", cfg.MQTTEnabled(),
		"redis_enabled", cfg.RedisEnabled(),
		"log_level", cfg.LogLevel)

	hwCfg, err := hardware.Load(cfg.ConfigFile)
	if err != nil {
		logger.Error("Failed to load hardware configuration", "error", err)
		return 1
	}
	sched, err := schedule.Load(cfg.ScheduleFile)
	if err != nil {
		logger.Error("Failed to load schedule", "error", err)
		return 1
	}
	schedules, err := sched.Build(hwCfg.GammaValue())
	if err != nil {
		logger.Error("Invalid schedule", "error", err)
		return 1
	}
	sources, err := sched.Events(events.MoonPhase{}, logger)
	if err != nil {
		logger.Error("Invalid schedule events", "error", err)
		return 1
	}

	channels, closers, err := hardware.Build(hwCfg, logger)
	if err != nil {
		logger.Error("Failed to open light hardware", "error", err)
		return 1
	}
	defer func() {
		if err := closers.Close(); err != nil {
			logger.Error("Error releasing light hardware", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	collector := metrics.NewCollector("rpilight")

	// Disabled integrations stay nil interfaces
	var (
		mqttClient  mqtt.Client
		redisClient redis.Client
		publisher   mqtt.Publisher
		store       redis.Writer
	)
	if cfg.MQTTEnabled() {
		mqttClient = mqtt.NewClient(cfg, logger)
		publisher = mqttClient
	}
	if cfg.RedisEnabled() {
		redisClient = redis.NewClient(cfg, logger)
		store = redisClient
	}

	var controller *engine.LightController
	reporter := telemetry.NewReporter(telemetry.Options{
		Service:   cfg.ServiceName,
		Publisher: publisher,
		Store:     store,
		Status: telemetry.StatusFunc(func(ctx context.Context) (engine.Status, error) {
			return controller.Status(ctx)
		}),
		Recorder: collector,
		RateHz:   cfg.TelemetryRateHz,
		TTL:      time.Duration(cfg.StatusTTLSec) * time.Second,
		Logger:   logger,
	})
	channels = reporter.Wrap(channels)

	opts := engine.Options{
		Logger:   logger,
		Gamma:    hwCfg.GammaValue(),
		Recorder: collector,
	}
	if cfg.Preview {
		opts.Behavior = engine.NewPreviewBehavior()
	}
	controller, err = engine.New(channels, schedules, opts)
	if err != nil {
		logger.Error("Failed to create light controller", "error", err)
		return 1
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := controller.Run(ctx); err != nil {
			logger.Error("Light controller loop error", "error", err)
		}
	}()

	// Preview plays the bare schedule; daily events only run in normal operation
	if !cfg.Preview {
		for _, source := range sources {
			controller.SetEvent(source)
		}
	}

	exitCode := make(chan int, 1)
	controller.SetStopHandler(func(_ *engine.LightController, err error) {
		if cfg.Preview && err == nil {
			logger.Info("Preview complete")
			exitCode <- 0
			return
		}
		logger.Error("Controller unexpectedly stopped", "error", err)
		exitCode <- 1
	})

	controller.Start()

	if mqttClient != nil {
		var storm engine.EventSource
		if s, err := sched.StormEvent(logger); err != nil {
			logger.Warn("Storm command unavailable", "error", err)
		} else if s != nil {
			storm = s.Forced()
		}
		router := remote.NewRouter(cfg.ServiceName, controller, storm, logger)
		if err := router.Subscribe(mqttClient); err != nil {
			logger.Error("Failed to subscribe to commands", "error", err)
		}

		// The broker may be down; startup must not wait for it
		go func() {
			if err := mqttClient.Connect(ctx); err != nil {
				logger.Warn("MQTT broker not reachable, retrying in background", "error", err)
			}
		}()
	}

	if redisClient != nil {
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx); err != nil {
			logger.Warn("Redis not reachable, telemetry will retry", "error", err)
		}
		pingCancel()
	}

	if publisher != nil || store != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := reporter.Run(ctx); err != nil {
				logger.Error("Telemetry reporter error", "error", err)
			}
		}()
	}

	healthChecker := health.NewChecker(mqttClient, redisClient, controller, logger)
	httpServer := startHealthServer(cfg.HealthPort, healthChecker.Router(collector.Handler()), logger)

	code := 0
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received (SIGTERM/SIGINT)")
	case code = <-exitCode:
	}

	logger.Info("Initiating graceful shutdown")
	cancel()
	wg.Wait()

	if mqttClient != nil {
		mqttClient.Disconnect()
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Error closing Redis client", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down health server", "error", err)
	}

	logger.Info("Light agent shutdown complete", "exit_code", code)
	return code
}

func startHealthServer(port int, handler http.Handler, logger *slog.Logger) *http.Server {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Starting health check server", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Health server error", "error", err)
		}
	}()

	return server
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
