package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Lucca-Muniz/Chat/chat-service/internal/cache"
	"github.com/Lucca-Muniz/Chat/chat-service/internal/config"
	"github.com/Lucca-Muniz/Chat/chat-service/internal/domain"
	"github.com/Lucca-Muniz/Chat/chat-service/internal/handler"
	"github.com/Lucca-Muniz/Chat/chat-service/internal/hub"
	"github.com/Lucca-Muniz/Chat/chat-service/internal/mq"
	"github.com/Lucca-Muniz/Chat/chat-service/internal/repository"
	"github.com/Lucca-Muniz/Chat/chat-service/internal/service"
	"github.com/Lucca-Muniz/Chat/pkg/database"
	"github.com/Lucca-Muniz/Chat/pkg/jwt"
	pkglog "github.com/Lucca-Muniz/Chat/pkg/log"
	"github.com/Lucca-Muniz/Chat/pkg/middleware"
	"github.com/Lucca-Muniz/Chat/pkg/pubsub"
	"github.com/Lucca-Muniz/Chat/pkg/queue"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "chat-service",
	})
	logger := pkglog.L()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = pkglog.WithLogger(ctx, logger)

	// Connect to database using GORM
	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close(db)

	if err := database.AutoMigrate(db, &domain.MessageModel{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database migration completed")

	// Recent-messages cache (optional)
	var recentCache cache.RecentCache
	if cfg.Cache.Enabled {
		redisCache, err := cache.NewRedisRecentCache(cfg.Redis, cfg.Cache.Prefix)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis cache")
		}
		defer redisCache.Close()
		recentCache = redisCache
		logger.Info().Str("address", cfg.Redis.Address).Msg("redis cache connected")
	}

	// Room fan-out bus; nil when running a single instance
	bus, err := pubsub.NewPubSub(cfg.Bus)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to room bus")
	}
	if bus != nil {
		defer bus.Close()
	}
	logger.Info().Str("driver", cfg.Bus.Driver).Msg("room bus ready")

	// One broker connection shared by the publisher and the consumer
	broker, err := queue.NewBroker(cfg.Queue)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to message broker")
	}
	defer broker.Close()
	logger.Info().Str("driver", cfg.Queue.Driver).Msg("message broker connected")

	// Hub
	wsHub := hub.NewHub(bus)
	if err := wsHub.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start hub")
	}

	// Services
	messageService := service.NewMessageService(repository.NewGormMessageRepository(db), recentCache, cfg.Cache.TTL)
	publisher := mq.NewBrokerCommandPublisher(broker, cfg.Queue.CommandQueue)
	chatService := service.NewChatService(wsHub, messageService, publisher, cfg.Chat.RecentLimit)

	// Stock responses back into rooms
	responses := mq.NewResponseConsumer(broker, cfg.Queue.ResponseQueue, cfg.Queue.RetryPolicy(), messageService, wsHub)
	consumerDone := make(chan error, 1)
	go func() {
		consumerDone <- responses.Run(ctx)
	}()

	// Identity
	auth := newAuthMiddleware(cfg.JWT)

	// Setup router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(pkglog.GinMiddleware(logger, "/health", "/healthz"))

	handler.NewWSHandler(ctx, wsHub, chatService, auth, cfg.WebSocket).RegisterRoutes(router)
	handler.NewHTTPHandler(messageService, auth, cfg.Chat.RecentLimit, cfg.Chat.MaxRecentLimit).RegisterRoutes(router)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("chat-service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down chat-service")
	case err := <-consumerDone:
		logger.Error().Err(err).Msg("response consumer stopped, shutting down")
		cancel()
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	select {
	case <-wsHub.Done():
	case <-shutdownCtx.Done():
	}

	logger.Info().Msg("chat-service stopped")
}

// newAuthMiddleware builds identity resolution. Without a secret every
// connection is anonymous.
func newAuthMiddleware(cfg config.JWTConfig) *middleware.AuthMiddleware {
	if cfg.Secret == "" {
		return middleware.NewAuthMiddleware(nil, cfg.Required)
	}
	tokens, err := jwt.NewManager(cfg.Manager())
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to create token validator")
	}
	return middleware.NewAuthMiddleware(tokens, cfg.Required)
}
