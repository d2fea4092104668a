package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/joho/godotenv"

	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/clock"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/credential"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/database"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/geo"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/identity"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/logging"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/routes"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func main() {
	// Structured logging (JSON to stdout)
	logging.Setup()

	// .env is optional; real environment variables win
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg := config.Load()

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}

	// Metric combine policies
	registry, err := metrics.LoadFromFile(cfg.MetricsConfigPath)
	if err != nil {
		slog.Error("failed to load metric policies", "path", cfg.MetricsConfigPath, "error", err)
		os.Exit(1)
	}
	slog.Info("metric policies loaded", "count", registry.Len())

	// Database
	db, err := database.Connect(cfg)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(db); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	pgLogHandler := logging.NewPGHandler(db, 5*time.Second)
	logging.Install(pgLogHandler)

	cleanupDone := make(chan struct{})
	logging.StartCleanup(db, cfg.LogRetention, cleanupDone)

	// Core
	clk := clock.Real()
	codec := credential.NewCodec(cfg.JWTSecret, cfg.JWTExpiry, clk)

	// Services
	projectService := services.NewProjectService(db, codec)
	authService := services.NewAuthService(db, codec, clk, cfg.AdminEmails)
	userService := services.NewUserService(db)
	deviceService := services.NewDeviceService(db, geo.Default())
	metricService := services.NewMetricService(db, registry, clk)
	eventService := services.NewEventService(db, deviceService, metricService, clk, cfg.MaxBatchSize)
	resolver := identity.NewResolver(codec, projectService)

	// Handlers
	healthHandler := handlers.NewHealthHandler(db, registry, clk)
	authHandler := handlers.NewAuthHandler(authService, projectService)
	userHandler := handlers.NewUserHandler(userService)
	projectHandler := handlers.NewProjectHandler(projectService)
	eventHandler := handlers.NewEventHandler(eventService)
	deviceHandler := handlers.NewDeviceHandler(deviceService)
	metricHandler := handlers.NewMetricHandler(metricService)

	// Sentry error tracking
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.AppEnv,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	app := fiber.New(fiber.Config{
		BodyLimit:    4 * 1024 * 1024,
		ErrorHandler: handlers.ErrorHandler,
	})

	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(middleware.SecurityHeaders())

	routes.Setup(app, codec, resolver,
		healthHandler, authHandler, userHandler, projectHandler,
		eventHandler, deviceHandler, metricHandler,
	)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	if err := app.Shutdown(); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	close(cleanupDone)
	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if err := database.Close(db); err != nil {
		slog.Error("database close error", "error", err)
	}

	slog.Info("server stopped")
}
