package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/promptforge-app/promptforge/internal/audit"
	"github.com/promptforge-app/promptforge/internal/auth"
	"github.com/promptforge-app/promptforge/internal/config"
	"github.com/promptforge-app/promptforge/internal/database"
	"github.com/promptforge-app/promptforge/internal/gemini"
	"github.com/promptforge-app/promptforge/internal/nats"
	"github.com/promptforge-app/promptforge/internal/prompts"
	"github.com/promptforge-app/promptforge/internal/quota"
	"github.com/promptforge-app/promptforge/internal/redis"
	"github.com/promptforge-app/promptforge/internal/server"
	"github.com/promptforge-app/promptforge/internal/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.DB.DSN(), "migrations"); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("migrations applied")

	redisClient, err := redis.NewClient(ctx, cfg.Redis)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS carries only the audit trail. A broker outage degrades auditing
	// but must not block prompt generation, so startup continues without it.
	var natsClient *nats.Client
	var publisher *nats.Publisher
	natsClient, err = nats.NewClient(ctx, cfg.NATS)
	if err != nil {
		logger.Warn("nats unavailable, audit trail disabled", "error", err)
		natsClient = nil
	} else {
		defer natsClient.Close()
		publisher = nats.NewPublisher(natsClient.JetStream())

		consumerMgr := nats.NewConsumerManager(natsClient.JetStream())
		auditConsumer := audit.NewConsumer(audit.NewRepository(pool), consumerMgr)
		go func() {
			if err := auditConsumer.Start(ctx); err != nil {
				logger.Error("audit consumer stopped", "error", err)
			}
		}()
	}

	jwtManager := auth.NewJWTManager(
		cfg.JWT.AccessSecret, cfg.JWT.RefreshSecret,
		cfg.JWT.AccessExpiry, cfg.JWT.RefreshExpiry,
	)
	authService := auth.NewService(jwtManager, redisClient)
	userService := users.NewService(users.NewRepository(pool))
	authHandler := auth.NewHandler(authService, userService)

	quotaStore := quota.NewStore(pool, cfg.Quota.TxAttempts)
	quotaGuard := quota.NewGuard(quotaStore, cfg.Quota.DailyLimit, nil)

	geminiClient := gemini.NewClient(cfg.Gemini)

	var eventPublisher prompts.EventPublisher
	if publisher != nil {
		eventPublisher = publisher
	}
	promptService := prompts.NewService(quotaGuard, geminiClient, eventPublisher, cfg.Gemini, logger)
	promptHandler := prompts.NewHandler(promptService, logger)

	auditHandler := audit.NewHandler(audit.NewRepository(pool))

	router := server.NewRouter(server.RouterDeps{
		Config:         cfg,
		Logger:         logger,
		Pool:           pool,
		NATS:           natsClient,
		Redis:          redisClient,
		AuthService:    authService,
		AuthHandler:    authHandler,
		PromptsHandler: promptHandler,
		AuditHandler:   auditHandler,
	})

	srv := server.New(cfg.Server, router, logger)
	if err := srv.Start(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
