package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"unipulse-chat/internal/auth"
	"unipulse-chat/internal/config"
	"unipulse-chat/internal/db"
	grpcserver "unipulse-chat/internal/grpc"
	"unipulse-chat/internal/handlers"
	"unipulse-chat/internal/logger"
	"unipulse-chat/internal/middleware"
	"unipulse-chat/internal/observability"
	"unipulse-chat/internal/rabbitmq"
	"unipulse-chat/internal/relay"
	"unipulse-chat/internal/repositories"
	"unipulse-chat/internal/storage"
	"unipulse-chat/internal/telemetry"
	"unipulse-chat/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	flush, err := logger.Init(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Environment)
	if err != nil {
		zap.L().Fatal("failed to init tracing", zap.Error(err))
	}

	database, err := db.Connect(ctx, db.Options{
		DSN:             cfg.DatabaseDSN,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		zap.L().Fatal("failed to connect to db", zap.Error(err))
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	zap.L().Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)))
	observability.SetPublisher(publisher)
	auditEmitter := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Environment)

	attachments, err := storage.NewDiskStore(cfg.UploadDir, cfg.UploadBaseURL)
	if err != nil {
		zap.L().Fatal("failed to prepare upload dir", zap.Error(err))
	}

	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	hub := ws.NewHub()
	dispatcher := newDispatcher(ctx, cfg, hub)
	eventRouter := ws.NewEventRouter(hub, dispatcher, chatRepo, messageRepo)

	validator := auth.NewJWTValidator(cfg.JWTSecret)
	chatHandler := handlers.NewChatHandler(chatRepo, dispatcher, dispatcher, auditEmitter)
	messageHandler := handlers.NewMessageHandler(chatRepo, messageRepo, attachments, dispatcher, auditEmitter)
	chatWS := ws.NewChatWebSocketHandler(eventRouter, validator)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// middlewares
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		otelgin.Middleware(cfg.ServiceName),
		observability.HTTPMetricsMiddleware(),
		middleware.RequestLogger(),
	)

	router.GET("/metrics", gin.WrapH(observability.MetricsHandler()))
	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": hub.RoomCount()})
	})
	router.Static(cfg.UploadBaseURL, cfg.UploadDir)

	authMiddleware := middleware.AuthMiddleware(validator)

	chats := router.Group("/chats", authMiddleware)
	chats.GET("", chatHandler.ListChats)
	chats.POST("", chatHandler.CreateChat)
	chats.GET("/:chat_id/participants", chatHandler.ListParticipants)
	chats.POST("/:chat_id/participants", chatHandler.AddParticipant)
	chats.DELETE("/:chat_id/participants/me", chatHandler.LeaveChat)
	chats.GET("/:chat_id/messages", messageHandler.GetChatMessages)
	chats.POST("/:chat_id/messages", messageHandler.PostChatMessage)
	chats.POST("/:chat_id/messages/:message_id/read", messageHandler.MarkMessageRead)
	chats.DELETE("/:chat_id/messages/:message_id", messageHandler.DeleteMessage)

	router.GET("/ws", chatWS.Handle)

	handlers.RegisterDebugRoutes(router.Group("", authMiddleware), auditEmitter, cfg.DebugRoutes)

	healthServer := grpcserver.NewHealthServer(database)
	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		zap.L().Fatal("failed to listen for grpc", zap.String("addr", cfg.GRPCAddr()), zap.Error(err))
	}
	go healthServer.Watch(ctx, 15*time.Second)
	go func() {
		zap.L().Info("grpc health server listening", zap.String("addr", cfg.GRPCAddr()))
		if err := healthServer.Serve(lis); err != nil {
			zap.L().Error("grpc server error", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zap.L().Info("http server listening", zap.String("addr", cfg.HTTPAddr()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zap.L().Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("http shutdown", zap.Error(err))
	}
	healthServer.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		zap.L().Warn("tracing shutdown", zap.Error(err))
	}
}

// newDispatcher wires the Redis relay when configured and falls back to
// local-only delivery otherwise.
func newDispatcher(ctx context.Context, cfg config.Config, hub *ws.Hub) *ws.Dispatcher {
	if cfg.RedisURL == "" {
		return ws.NewDispatcher(hub, nil)
	}

	eventRelay, err := relay.NewRedisRelay(ctx, cfg.RedisURL, cfg.RelayChannel)
	if err != nil {
		zap.L().Warn("relay disabled", zap.Error(err))
		return ws.NewDispatcher(hub, nil)
	}

	dispatcher := ws.NewDispatcher(hub, eventRelay)
	if err := eventRelay.Run(ctx, dispatcher); err != nil {
		zap.L().Warn("relay disabled", zap.Error(err))
		_ = eventRelay.Close()
		return ws.NewDispatcher(hub, nil)
	}
	zap.L().Info("relay enabled", zap.String("channel", cfg.RelayChannel))
	return dispatcher
}
