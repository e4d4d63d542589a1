package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/supai/backend/internal/api/handlers"
	"github.com/supai/backend/internal/budget"
	"github.com/supai/backend/internal/cache/redis"
	"github.com/supai/backend/internal/classify"
	"github.com/supai/backend/internal/diagnostic"
	"github.com/supai/backend/internal/metrics"
	"github.com/supai/backend/internal/middleware/ratelimit"
	"github.com/supai/backend/internal/middleware/security"
	"github.com/supai/backend/internal/pipeline"
	"github.com/supai/backend/internal/provider"
	"github.com/supai/backend/internal/provider/cached"
	"github.com/supai/backend/internal/provider/openai"
	"github.com/supai/backend/internal/rewrite"
	"github.com/supai/backend/pkg/config"
	appLogger "github.com/supai/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting document QA API server")

	metrics.Init()

	store, err := diagnostic.NewStore(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to open diagnostic store", zap.Error(err))
	}
	defer store.Close()

	var cache *redis.Client
	if cfg.Redis.Host != "" {
		cache, err = redis.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLHours)*time.Hour,
		)
		if err != nil {
			appLogger.Warn("Redis unavailable, running without cache", zap.Error(err))
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	llmClient := openai.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.TimeoutSec,
	)

	rates := budget.Rates{
		EmbeddingPerToken:        cfg.LLM.EmbeddingCostPerToken,
		CompletionInputPerToken:  cfg.LLM.CompletionInputCostPerToken,
		CompletionOutputPerToken: cfg.LLM.CompletionOutputCostPerToken,
	}
	thresholds := classify.Thresholds{
		Confident: cfg.Retrieval.ConfidentThreshold,
		Uncertain: cfg.Retrieval.UncertainThreshold,
	}
	limits := pipeline.Limits{
		MaxSources:     cfg.Limits.MaxSources,
		MaxFileSizeMB:  cfg.Limits.MaxFileSizeMB,
		MaxChunks:      cfg.Limits.MaxChunks,
		TopK:           cfg.Limits.TopK,
		EmbedBatchSize: cfg.Limits.EmbedBatchSize,
	}

	var embedder provider.EmbeddingProvider = llmClient
	if cache != nil {
		embedder = cached.NewEmbedder(llmClient, cache)
	}

	rewriter := rewrite.New(llmClient, cache)
	judge := classify.NewJudge(llmClient)
	pipe := pipeline.New(embedder, llmClient, rewriter, judge, store, rates, thresholds, limits)
	manager := pipeline.NewManager(cfg.Limits.SessionBudgetUSD)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: 60,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Logging.Level == "debug",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	sessionHandler := handlers.NewSessionHandler(manager)
	documentHandler := handlers.NewDocumentHandler(manager, pipe)
	questionHandler := handlers.NewQuestionHandler(manager, pipe)
	diagnosticsHandler := handlers.NewDiagnosticsHandler(manager, store)
	ingestWSHandler := handlers.NewIngestWSHandler(manager, pipe)

	api := app.Group("/api/v1", limiter.Middleware())

	api.Post("/sessions", sessionHandler.CreateSession)
	api.Delete("/sessions/:id", sessionHandler.DeleteSession)
	api.Get("/sessions/:id/cost", sessionHandler.GetCost)
	api.Post("/sessions/:id/documents", documentHandler.AddDocuments)
	api.Post("/sessions/:id/questions", questionHandler.AskQuestion)
	api.Get("/sessions/:id/diagnostics", diagnosticsHandler.GetDiagnostics)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/sessions/:id/ingest", websocket.New(ingestWSHandler.HandleConnection))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})
	app.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
