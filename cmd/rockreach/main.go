package main

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/akashmahlaz/rockreach-sub000/internal/agent"
	rockconfig "github.com/akashmahlaz/rockreach-sub000/internal/config"
	"github.com/akashmahlaz/rockreach-sub000/internal/export"
	"github.com/akashmahlaz/rockreach-sub000/internal/gateway"
	"github.com/akashmahlaz/rockreach-sub000/internal/leads"
	"github.com/akashmahlaz/rockreach-sub000/internal/notify"
	"github.com/akashmahlaz/rockreach-sub000/internal/provider"
	"github.com/akashmahlaz/rockreach-sub000/internal/tools"
	"github.com/akashmahlaz/rockreach-sub000/internal/usage"
	"github.com/akashmahlaz/rockreach-sub000/pkg/config"
	"github.com/akashmahlaz/rockreach-sub000/pkg/crypto"
	"github.com/akashmahlaz/rockreach-sub000/pkg/email"
	"github.com/akashmahlaz/rockreach-sub000/pkg/llm"
	"github.com/akashmahlaz/rockreach-sub000/pkg/logging"
	"github.com/akashmahlaz/rockreach-sub000/pkg/monitoring"
	"github.com/akashmahlaz/rockreach-sub000/pkg/server"
	"github.com/akashmahlaz/rockreach-sub000/pkg/version"
)

func main() {
	logger := logging.NewLoggerWithService("rockreach")

	config.LoadEnv(logger)

	logger.Info("Starting RockReach API")

	cfg := rockconfig.LoadConfig()
	jwtSecret := config.RequireEnv("JWT_SECRET")
	encryptionSecret := config.RequireEnv("FIELD_ENCRYPTION_SECRET")

	mongoClient, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURL))
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to mongo")
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		logger.WithError(err).Warn("Mongo not reachable at startup")
	}
	cancel()
	db := mongoClient.Database(cfg.MongoDatabase)

	var redisClient goredis.UniversalClient
	if cfg.RedisURL != "" {
		redisOpts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Fatal("Invalid REDIS_URL")
		}
		redisClient = goredis.NewClient(redisOpts)
		defer func() { _ = redisClient.Close() }()
	} else {
		logger.Warn("REDIS_URL not set - exports disabled")
	}

	encryptor, err := crypto.DeriveFieldEncryptor([]byte(encryptionSecret), "provider-api-key")
	if err != nil {
		logger.WithError(err).Fatal("Failed to derive field encryptor")
	}

	healthChecker := monitoring.NewHealthChecker("rockreach", version.Version)
	healthChecker.AddCheck("mongo", monitoring.MongoHealthCheck(mongoClient))
	if redisClient != nil {
		healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(redisClient))
	}
	metricsCollector := monitoring.NewMetricsCollector("rockreach", version.Version, version.GitCommit)

	// Outbound provider stack.
	settings := provider.NewMongoSettingsStore(db, encryptor, cfg.ProviderName)
	policies := provider.NewPolicyCache(settings)
	ledger := usage.NewLedger(db, logger, nil)
	client := provider.NewClient(policies, ledger, logger, cfg.ProviderName)

	// Tenant-scoped data access.
	queryGateway := gateway.New(gateway.NewMongoRunner(db), logger)
	leadStore := leads.NewStore(db, logger)
	artifacts := export.NewArtifacts(redisClient, []byte(jwtSecret), cfg.PublicURL)

	sender := email.NewSender(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	channel := notify.NewEmailChannel(sender, logger)

	registry := tools.NewRegistry(logger)
	registry.RegisterProviderTools(client)
	registry.RegisterDataTools(queryGateway, leadStore, artifacts, channel)

	llmProvider, err := llm.NewProvider(llm.Config{
		Provider:  cfg.LLMProvider,
		Model:     cfg.LLMModel,
		APIKey:    cfg.LLMAPIKey,
		APIURL:    cfg.LLMAPIURL,
		MaxTokens: cfg.LLMMaxTokens,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to configure LLM provider")
	}

	sink := agent.NewLogSink(logger, nil)
	orchestrator := agent.NewOrchestrator(llmProvider, registry, sink, logger)
	conversations := agent.NewConversationStore(db)

	limiter := agent.NewRateLimiter(cfg.ChatRateLimitHour, cfg.RateLimitOverrides)
	limiter.StartCleanup(context.Background())

	handler := agent.NewHandler(orchestrator, conversations, artifacts, limiter, logger)

	router := server.SetupRouter(logger, "rockreach")
	router.Use(metricsCollector.MetricsMiddleware())
	router.GET("/health", healthChecker.Handler())
	router.GET("/metrics", metricsCollector.Handler())
	handler.RegisterRoutes(router)

	serverCfg := server.DefaultConfig("rockreach", cfg.Port)
	if err := server.Start(serverCfg, router, logger); err != nil {
		logger.WithError(err).Fatal("Server exited with error")
	}
}
