package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/separator/internal/auth"
	"github.com/makeasinger/separator/internal/client"
	"github.com/makeasinger/separator/internal/config"
	"github.com/makeasinger/separator/internal/handler"
	"github.com/makeasinger/separator/internal/metrics"
	"github.com/makeasinger/separator/internal/middleware"
	"github.com/makeasinger/separator/internal/model"
	"github.com/makeasinger/separator/internal/scheduler"
	"github.com/makeasinger/separator/internal/service"
	"github.com/makeasinger/separator/internal/store"
	"github.com/makeasinger/separator/internal/worker"
	ws "github.com/makeasinger/separator/internal/websocket"
)

// mockJobDuration is how long the in-process remote takes per job
const mockJobDuration = 90 * time.Second

// @title          Make-Singer Separation API
// @version        1.0
// @description    Admission-controlled queue in front of the stem separation workers.
// @host           localhost:8000
// @BasePath       /
// @schemes        http https
// @securityDefinitions.apikey BearerAuth
// @in             header
// @name           Authorization
// @description    Enter your bearer token in the format **Bearer &lt;token&gt;**
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run(ctx)

	// Remote separation workers (mock when not configured)
	var remote client.SeparationAPI
	separatorClient := client.NewSeparatorClient(&cfg.Separator)
	if separatorClient.IsConfigured() {
		remote = separatorClient
	} else {
		log.Println("Info: separator API not configured, using mock workers")
		remote = client.NewMockSeparator(mockJobDuration)
	}

	// Initialize R2 client (optional - continues if not configured)
	var storage client.InputStorage
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		} else {
			storage = r2Client
		}
	} else {
		log.Println("Info: R2 storage not configured, using mock storage")
	}

	// Initialize Zitadel JWKS verifier (optional - falls back to legacy JWT)
	var tokenVerifier auth.TokenVerifier
	if cfg.Zitadel.Issuer != "" {
		jwksVerifier, err := auth.NewJWKSVerifier(&cfg.Zitadel)
		if err != nil {
			log.Printf("Warning: JWKS verifier not initialized: %v", err)
		} else {
			defer jwksVerifier.Close()
			tokenVerifier = jwksVerifier
		}
	}

	// Scheduler
	sched := scheduler.New(
		cfg.Scheduler,
		store.NewStatusStore(redisClient, cfg.Scheduler.StatusTTL),
		store.NewQueueStore(redisClient),
		store.NewQuotaStore(redisClient, cfg.Scheduler.QuotaIdleTTL),
		remote,
		scheduler.WithListener(hub),
		scheduler.WithListener(service.NewWebhookNotifier(asynqClient)),
	)
	go func() {
		if err := sched.Run(ctx); err != nil {
			log.Printf("Scheduler stopped: %v", err)
		}
	}()

	// Initialize services and handlers
	separationService := service.NewSeparationService(sched, storage)
	separationHandler := handler.NewSeparationHandler(separationService, validate)
	healthHandler := handler.NewHealthHandler(sched)

	authenticator := auth.NewAuthenticator(tokenVerifier, cfg.JWT.Secret)
	authHandler := handler.NewAuthHandler(authenticator)

	// Initialize middleware
	var identify fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		log.Println("Info: Gateway mode enabled, using header-based auth")
		identify = middleware.GatewayAuthMiddleware()
	} else {
		identify = middleware.NewAuthMiddleware(authenticator).Identify()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Prometheus registry
	registry := prometheus.NewRegistry()
	for _, c := range metrics.Collectors() {
		registry.MustRegister(c)
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    50 * 1024 * 1024, // 50MB
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Operator routes
	app.Get("/health", healthHandler.Health)
	app.Get("/stats", healthHandler.Stats)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// ForwardAuth verification endpoint (internal, called by Traefik)
	app.Get("/auth/verify", authHandler.Verify)

	// API routes
	api := app.Group("/api", identify)

	api.Post("/separate", separationHandler.Submit)
	separate := api.Group("/separate")
	separate.Post("/upload", separationHandler.Upload)
	separate.Get("/status/:jobId", rateLimiter.StatusLimit(cfg.RateLimit.StatusPerMin), separationHandler.Status)
	separate.Post("/cancel/:jobId", separationHandler.Cancel)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		current, err := sched.GetStatus(context.Background(), jobID)
		if err != nil {
			current = nil
		}
		hub.HandleConnection(c, jobID, current)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		stop()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(cfg *config.Config) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				"webhooks": 1,
			},
			LogLevel: asynqLogLevel,
		},
	)

	webhookWorker := worker.NewWebhookWorker()

	mux := asynq.NewServeMux()
	mux.HandleFunc(model.TaskTypeWebhook, webhookWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
