package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"budget-backend/internal/audit"
	"budget-backend/internal/auth"
	"budget-backend/internal/budgetrequest"
	"budget-backend/internal/cache"
	"budget-backend/internal/config"
	"budget-backend/internal/database"
	"budget-backend/internal/dispatch"
	"budget-backend/internal/finance"
	"budget-backend/internal/logging"
	"budget-backend/internal/metrics"
	"budget-backend/internal/models"
	"budget-backend/internal/notify"
	"budget-backend/internal/webhook"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg)
	defer log.Sync()

	db, err := database.Open(cfg, log)
	if err != nil {
		log.Fatal("database init failed", zap.Error(err))
	}

	var store cache.Cache = cache.NewMemory()
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		cancel()
		if err != nil {
			log.Warn("redis unavailable, using in-process cache", zap.Error(err))
		} else {
			defer client.Close()
			store = cache.NewRedis(client)
		}
	}

	financeClient := finance.NewClient(cfg.FinanceAPIURL, cfg.FinanceTimeout)
	mirror := finance.NewMirror(db, financeClient, store, finance.MirrorOptions{
		SyntheticAllocation: cfg.SyntheticBudgetAllocation,
		CacheTTL:            cfg.BudgetCacheTTL,
	}, log)

	dispatcher := dispatch.New(dispatch.Options{
		Workers:      cfg.DispatchWorkers,
		QueueSize:    cfg.DispatchQueueSize,
		RetryBackoff: cfg.DispatchRetryBackoff,
	}, log)

	auditClient := audit.NewClient(cfg.AuditAPIURL, cfg.ServiceName, cfg.WebhookTimeout, db, log)
	registry := webhook.NewRegistry(db)
	publisher := webhook.NewPublisher(registry, cfg.WebhookTimeout, log)

	var transport notify.Transport = notify.NewLogTransport(log)
	if cfg.NotificationAPIURL != "" {
		transport = notify.NewHTTPTransport(cfg.NotificationAPIURL, cfg.WebhookTimeout)
	}
	notifier := notify.NewNotifier(db, transport, log)

	effects := dispatch.NewEffects(dispatcher, auditClient, publisher, notifier, financeClient, log)
	requests := budgetrequest.NewStore(db, store, mirror, budgetrequest.StoreOptions{
		ListTTL:      cfg.ListCacheTTL,
		DetailTTL:    cfg.DetailCacheTTL,
		AnalyticsTTL: cfg.AnalyticsCacheTTL,
	}, log)
	engine := budgetrequest.NewEngine(requests, effects, log)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if e, ok := err.(*fiber.Error); ok {
				return c.Status(e.Code).JSON(fiber.Map{
					"error": e.Message,
				})
			}
			log.Error("unexpected error", zap.String("path", c.Path()), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "unexpected server error",
			})
		},
	})

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))
	app.Use(metrics.Middleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.ServiceName})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")
	authHandler := auth.NewHandler(db, cfg.JWTSecret, log)

	// Public auth
	api.Post("/auth/register-super-admin", authHandler.RegisterSuperAdmin())
	api.Post("/auth/login", authHandler.Login())

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg.JWTSecret))

	protected.Get("/auth/me", authHandler.Me())

	// Super admin routes
	adminRoutes := protected.Group("/admin")
	adminRoutes.Use(auth.RequireRole(models.RoleSuperAdmin))

	adminRoutes.Post("/users", authHandler.CreateUser())
	adminRoutes.Get("/users", authHandler.ListUsers())

	adminRoutes.Post("/webhooks", webhook.CreateSubscriptionHandler(registry))
	adminRoutes.Get("/webhooks", webhook.ListSubscriptionsHandler(registry))
	adminRoutes.Delete("/webhooks/:id", webhook.DeleteSubscriptionHandler(registry))

	budgetrequest.NewHandler(engine, log).Register(protected)
	protected.Get("/budgets/:department", finance.DepartmentBudgetHandler(mirror))

	// Audit logs
	protected.Get("/audit-logs", auth.RequireRole(models.RoleSuperAdmin), audit.ListAuditLogsHandler(db))

	go func() {
		log.Info("server listening", zap.String("port", cfg.HTTPPort))
		if err := app.Listen(":" + cfg.HTTPPort); err != nil {
			log.Error("server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := dispatcher.Close(ctx); err != nil {
		log.Warn("dispatcher drain incomplete", zap.Error(err))
	}
	if err := database.Close(db); err != nil {
		log.Warn("database close", zap.Error(err))
	}
}
