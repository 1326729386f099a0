package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/cyrus-trixie/djmoviestore/internal/config"
	"github.com/cyrus-trixie/djmoviestore/internal/database"
	"github.com/cyrus-trixie/djmoviestore/internal/handlers"
	"github.com/cyrus-trixie/djmoviestore/internal/ingestion"
	"github.com/cyrus-trixie/djmoviestore/internal/jobs"
	"github.com/cyrus-trixie/djmoviestore/internal/logging"
	"github.com/cyrus-trixie/djmoviestore/internal/middleware"
	"github.com/cyrus-trixie/djmoviestore/internal/preflight"
	"github.com/cyrus-trixie/djmoviestore/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting DJ Movie Store...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	log.Printf("📋 Configuration loaded (Port: %s, Sessions: %s, Environment: %s)", cfg.Port, cfg.SessionStore, cfg.Environment)

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}

	if results := preflight.NewChecker(db, cfg).RunAll(); preflight.HasFailures(results) {
		log.Fatal("❌ Pre-flight checks failed")
	}

	catalogService := services.NewCatalogService(db)

	if cfg.CatalogSeedFile != "" {
		if err := applySeedFile(cfg.CatalogSeedFile, catalogService); err != nil {
			log.Printf("⚠️  Failed to apply catalog seed: %v", err)
		}
		go startSeedFileWatcher(cfg.CatalogSeedFile, catalogService)
	}

	// Redis is optional unless sessions are shared between instances
	var redisService *services.RedisService
	if cfg.RedisURL != "" {
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			if cfg.SessionStore == config.SessionStoreRedis {
				log.Fatalf("❌ Failed to connect to Redis: %v", err)
			}
			log.Printf("⚠️ Redis unavailable, continuing with in-process state: %v", err)
			redisService = nil
		} else {
			defer redisService.Close()
		}
	}

	var sessionStore ingestion.SessionStore
	var reaper jobs.ExpiredSessionReaper
	var locker ingestion.Locker
	var inboundLimiter services.InboundLimiter
	if cfg.SessionStore == config.SessionStoreRedis {
		sessionStore = ingestion.NewRedisSessionStore(redisService, cfg.SessionIdleTimeout)
		locker = ingestion.NewRedisLocker(redisService, 30*time.Second)
		log.Printf("✅ Ingestion sessions stored in Redis (idle timeout %v)", cfg.SessionIdleTimeout)
	} else {
		memoryStore := ingestion.NewMemorySessionStore(cfg.SessionIdleTimeout)
		sessionStore = memoryStore
		reaper = memoryStore
		locker = ingestion.NewKeyedMutex()
		log.Printf("✅ Ingestion sessions stored in memory (idle timeout %v)", cfg.SessionIdleTimeout)
	}
	if redisService != nil {
		inboundLimiter = services.NewRedisInboundLimiter(redisService, cfg.IngestRateLimit)
	} else {
		inboundLimiter = services.NewMemoryInboundLimiter(cfg.IngestRateLimit)
	}

	metrics := services.InitMetrics(prometheus.DefaultRegisterer, func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := sessionStore.Count(ctx)
		if err != nil {
			return 0
		}
		return float64(n)
	})

	var telegramService *services.TelegramService
	var mediaResolver *services.MediaResolverService
	if cfg.TelegramBotToken != "" {
		telegramService = services.NewTelegramService(cfg.TelegramBotToken)
		mediaResolver = services.NewMediaResolverService(telegramService, 50*time.Minute)
	} else {
		log.Println("⚠️  TELEGRAM_BOT_TOKEN not set - ingestion bot disabled, serving read API only")
		mediaResolver = services.NewMediaResolverService(nil, 50*time.Minute)
	}

	var telegramHandler *handlers.TelegramHandler
	if telegramService != nil {
		engine := ingestion.NewEngine(catalogService, sessionStore, telegramService, ingestion.Options{
			Locker:                locker,
			Recorder:              metrics,
			Resolver:              mediaResolver,
			VerifyMediaReferences: cfg.VerifyMediaReferences,
		})
		telegramHandler = handlers.NewTelegramHandler(engine, telegramService, handlers.TelegramHandlerConfig{
			WebhookSecret:   cfg.TelegramWebhookSecret,
			AllowGroupChats: cfg.AllowGroupChats,
			Limiter:         inboundLimiter,
			Metrics:         metrics,
		})
		log.Printf("✅ Ingestion engine initialized (verify media references: %v)", cfg.VerifyMediaReferences)
	}

	jobScheduler, err := jobs.NewJobScheduler()
	if err != nil {
		log.Fatalf("❌ Failed to create job scheduler: %v", err)
	}
	if err := jobScheduler.Register("session-reaper", jobs.NewSessionReaperJob(reaper, sessionStore, cfg.SessionReaperCron)); err != nil {
		log.Fatalf("❌ Failed to register session reaper: %v", err)
	}
	jobScheduler.Start()

	app := fiber.New(fiber.Config{
		AppName:      "DJ Movie Store",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // Streams run as long as the client keeps reading
		IdleTimeout:  120 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"success": false, "error": err.Error()})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prom := fiberprometheus.New("djmoviestore")
	prom.RegisterAt(app, "/metrics")
	app.Use(prom.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	rateLimitConfig := middleware.LoadRateLimitConfig()
	log.Printf("🛡️  [RATE-LIMIT] Loaded config: Global=%d/min, Public=%d/min, Stream=%d/min",
		rateLimitConfig.GlobalAPIMax,
		rateLimitConfig.PublicReadMax,
		rateLimitConfig.StreamMax,
	)

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Range",
		AllowCredentials: cfg.AllowedOrigins != "*",
	}))
	log.Printf("🔒 [SECURITY] CORS allowed origins: %s", cfg.AllowedOrigins)

	// Telegram delivers from a small shared pool of IPs, and users are limited
	// per Telegram account instead. Registered ahead of the IP limiter.
	if telegramHandler != nil {
		app.Post("/api/telegram/webhook/:secret", telegramHandler.Webhook)
	}

	// Applies to all /api/* routes, excludes health checks and metrics
	app.Use("/api", middleware.GlobalAPIRateLimiter(rateLimitConfig))

	var redisPinger handlers.Pinger
	if redisService != nil {
		redisPinger = handlers.PingFunc(redisService.Ping)
	}
	healthHandler := handlers.NewHealthHandler(db, redisPinger, sessionStore)
	movieHandler := handlers.NewMovieHandler(catalogService, mediaResolver)
	referenceHandler := handlers.NewReferenceHandler(catalogService)
	streamHandler := handlers.NewStreamHandler(catalogService, mediaResolver)

	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api")
	publicRead := middleware.PublicReadRateLimiter(rateLimitConfig)
	streamLimit := middleware.StreamRateLimiter(rateLimitConfig)

	api.Get("/movies/export", publicRead, movieHandler.Export)
	api.Get("/movies/:id/stream", streamLimit, streamHandler.StreamMovie)
	api.Get("/movies/:id", publicRead, movieHandler.Get)
	api.Get("/movies", publicRead, movieHandler.List)
	api.Get("/categories", publicRead, referenceHandler.Categories)
	api.Get("/djs", publicRead, referenceHandler.DJs)
	api.Get("/stream_video", streamLimit, streamHandler.StreamURL)

	if telegramHandler != nil {
		startTelegramDelivery(cfg, telegramService, telegramHandler)
	}

	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)
	log.Printf("🎬 Catalog API: http://localhost:%s/api/movies", cfg.Port)
	log.Printf("🕐 Background jobs: session reaper (%s)", cfg.SessionReaperCron)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		if telegramService != nil {
			telegramService.StopPolling()
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}

		// Let accepted webhook deliveries finish their conversation step
		if telegramHandler != nil {
			telegramHandler.Wait()
		}

		jobScheduler.Stop()
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

// startTelegramDelivery registers the webhook when a public URL is configured
// and falls back to long polling otherwise
func startTelegramDelivery(cfg *config.Config, telegram *services.TelegramService, handler *handlers.TelegramHandler) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if username, err := telegram.GetMe(ctx); err != nil {
		log.Printf("⚠️ [TELEGRAM] Failed to verify bot token: %v", err)
	} else {
		log.Printf("🤖 [TELEGRAM] Bot @%s ready", username)
	}

	if cfg.TelegramWebhookURL != "" {
		webhookURL := fmt.Sprintf("%s/api/telegram/webhook/%s", strings.TrimSuffix(cfg.TelegramWebhookURL, "/"), cfg.TelegramWebhookSecret)
		if err := telegram.SetWebhook(ctx, webhookURL, cfg.TelegramWebhookSecret); err != nil {
			log.Printf("❌ [TELEGRAM] Failed to register webhook, falling back to polling: %v", err)
		} else {
			return
		}
	}

	telegram.StartPolling(context.Background(), handler.PollingHandler())
}
