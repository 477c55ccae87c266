package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fenilmodi00/lottery-backend/config"
	"github.com/fenilmodi00/lottery-backend/database"
	"github.com/fenilmodi00/lottery-backend/handlers"
	"github.com/fenilmodi00/lottery-backend/jobs"
	"github.com/fenilmodi00/lottery-backend/services"
	"github.com/fenilmodi00/lottery-backend/shared"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load config
	cfg := config.LoadConfig()
	unified, err := cfg.Unified()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	shared.ConfigureLogging(unified.Logging)
	logEffectiveConfig(unified)

	// `lottery-backend token [subject]` prints an admin bearer token
	if len(os.Args) > 1 && os.Args[1] == "token" {
		subject := "admin"
		if len(os.Args) > 2 {
			subject = os.Args[2]
		}
		if cfg.AdminJWTSecret == "" {
			logrus.Fatal("ADMIN_JWT_SECRET must be set to issue admin tokens")
		}
		token, err := handlers.NewAdminToken(cfg.AdminJWTSecret, subject, 24*time.Hour)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to sign admin token")
		}
		fmt.Println(token)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to the key-value store
	store, err := database.OpenStore(ctx, unified.Store)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open store")
	}
	defer store.Close()

	clients := shared.NewHTTPClientFactory(unified.Scraper.StaticFetchTimeout)
	defer clients.CleanupAllClients()

	var parser services.PreferenceParser
	if cfg.PreferenceParsingEnabled() {
		parser = services.NewLLMPreferenceParser(cfg.PreferenceAPIKey, cfg.PreferenceAPIURL, cfg.PreferenceModel, clients)
	} else {
		logrus.Warn("PREFERENCE_API_KEY not set; preference text is stored unparsed and only overrides select shows")
	}

	pacer := shared.NewPacer()
	platforms := services.DefaultPlatformTable()
	sessions := services.NewChromeSessionFactory(unified.Browser)

	registry := services.NewScraperRegistry(sessions, platforms, unified.Scraper, unified.Pacing, pacer)
	catalog := services.NewCatalogCache(registry, store, unified.Cache)
	users := services.NewUserService(store, parser)
	overrides := services.NewOverrideService(store)
	history := services.NewResultHistory(store, unified.Cache.HistoryCap)
	decisions := services.NewDecisionService(catalog, users, overrides)
	automation := services.NewFormAutomation(platforms, unified.Scraper, unified.Pacing, pacer)
	orchestrator := services.NewApplyOrchestrator(decisions, users, history, sessions, automation,
		unified.Pacing, pacer, cfg.AutoSubmitEnabled())
	if publisher := services.NewAMQPResultPublisher(cfg.AMQPURL, cfg.AMQPQueue); publisher != nil {
		orchestrator.WithPublisher(publisher)
	}

	logrus.WithFields(logrus.Fields{
		"store":        unified.Store.Backend,
		"catalog_ttl":  unified.Cache.CatalogTTL,
		"platforms":    len(platforms.Definitions()),
		"auto_submit":  cfg.AutoSubmitEnabled(),
		"headless":     unified.Browser.Headless,
		"parsing":      parser != nil,
		"publish_amqp": cfg.AMQPURL != "",
	}).Info("Lottery backend services initialized")

	// Jobs
	warmupJob := jobs.NewCatalogWarmupJob(catalog)
	refreshJob := jobs.NewCatalogRefreshJob(catalog)
	applyJob := jobs.NewApplyJob(orchestrator)

	go warmupJob.Run()

	scheduler := jobs.NewScheduler()
	if err := scheduler.Schedule("catalog_refresh", cfg.CatalogSchedule, refreshJob.Run); err != nil {
		logrus.WithError(err).Fatal("Invalid CATALOG_SCHEDULE")
	}
	if err := scheduler.Schedule("apply", cfg.ApplySchedule, func() { _ = applyJob.Run() }); err != nil {
		logrus.WithError(err).Fatal("Invalid APPLY_SCHEDULE")
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Handlers
	catalogHandler := handlers.NewCatalogHandler(catalog, platforms)
	userHandler := handlers.NewUserHandler(users, history)
	decisionHandler := handlers.NewDecisionHandler(decisions, overrides, platforms)
	adminHandler := handlers.NewAdminHandler(orchestrator, catalog)
	performanceHandler := handlers.NewPerformanceHandler(catalog.RefreshCount, registry, orchestrator)

	// Setup Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout: 30 * time.Second,
	})

	// Middleware
	app.Use(logger.New())
	app.Use(cors.New())

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		if err := store.HealthCheck(c.Context()); err != nil {
			logrus.WithError(err).Warn("Store health check failed")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status":    "degraded",
				"store":     unified.Store.Backend,
				"error":     "store unavailable",
				"timestamp": time.Now().Unix(),
			})
		}
		return c.JSON(fiber.Map{
			"status":    "ok",
			"apply_run": applyJob.IsRunning(),
			"timestamp": time.Now().Unix(),
		})
	})

	// Routes
	api := app.Group("/api/v1")
	handlers.RegisterRoutes(api, handlers.Routes{
		Catalog:     catalogHandler,
		Users:       userHandler,
		Decisions:   decisionHandler,
		Admin:       adminHandler,
		Performance: performanceHandler,
		AdminSecret: cfg.AdminJWTSecret,
	})

	go func() {
		<-ctx.Done()
		logrus.Info("Shutting down server")
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			logrus.WithError(err).Warn("Server shutdown did not complete cleanly")
		}
	}()

	// Start server
	logrus.Infof("Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		logrus.WithError(err).Fatal("Server failed to start")
	}
}

// logEffectiveConfig prints the merged configuration at debug level with
// connection strings removed
func logEffectiveConfig(unified *shared.UnifiedConfiguration) {
	if !logrus.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	redacted := *unified
	redacted.Store.DatabaseURL = ""
	redacted.Store.RedisURL = ""
	data, err := redacted.ToJSON()
	if err != nil {
		logrus.WithError(err).Warn("Failed to serialize configuration")
		return
	}
	logrus.WithField("config", string(data)).Debug("Effective configuration")
}
