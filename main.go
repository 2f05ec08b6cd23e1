package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messaging-service/internal/auth"
	"messaging-service/internal/config"
	"messaging-service/internal/db"
	"messaging-service/internal/handlers"
	"messaging-service/internal/logger"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
	"messaging-service/internal/storage"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

const serviceName = "messaging-service"

func main() {
	cfg, err := config.Load(os.Getenv("APP_CONFIG_FILE"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Telemetry.Environment == "dev")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer zlog.Sync()

	ctx := context.Background()
	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Telemetry.OTLPEndpoint, serviceName, cfg.Telemetry.Environment)
	if err != nil {
		zlog.Fatalw("failed to set up tracing", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	if cfg.AMQP.URL != "" {
		publisher, err := observability.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			zlog.Fatalw("failed to connect to amqp", "error", err)
		}
		defer publisher.Close()
		observability.SetPublisher(publisher)
	}

	database, err := db.Connect(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		zlog.Fatalw("failed to connect to db", "error", err)
	}
	defer database.Close()

	store, err := storage.NewLocalStore(cfg.Storage.UploadDir)
	if err != nil {
		zlog.Fatalw("failed to init attachment store", "error", err)
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.TokenTTL)
	audit := telemetry.NewAuditEmitter(cfg.Telemetry.AuditRoutingKey, serviceName, cfg.Telemetry.Environment, zlog)

	userRepo := repositories.NewUserRepo(database)
	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	friendshipRepo := repositories.NewFriendshipRepo(database)

	hub := ws.NewHub()

	authHandler := handlers.NewAuthHandler(userRepo, tokens, audit, zlog)
	userHandler := handlers.NewUserHandler(userRepo)
	conversationHandler := handlers.NewConversationHandler(conversationRepo)
	messageHandler := handlers.NewMessageHandler(messageRepo, conversationRepo, store, hub)
	friendHandler := handlers.NewFriendHandler(friendshipRepo, audit)
	attachmentHandler := handlers.NewAttachmentHandler(messageRepo, conversationRepo, store)

	userWS := ws.NewUserWebSocketHandler(hub, messageRepo, conversationRepo, tokens)
	conversationWS := ws.NewConversationWebSocketHandler(hub, conversationRepo, tokens)

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())
	router.MaxMultipartMemory = cfg.Storage.MaxAttachmentBytes

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	router.POST("/auth/register", authHandler.Register)
	router.POST("/auth/login", authHandler.Login)

	authMiddleware := middleware.AuthMiddleware(tokens)

	router.GET("/users/me", authMiddleware, userHandler.Me)
	router.PUT("/users/me", authMiddleware, userHandler.UpdateProfile)
	router.GET("/users/search", authMiddleware, userHandler.Search)
	router.GET("/users/:user_id", authMiddleware, userHandler.GetUser)

	router.GET("/conversations", authMiddleware, conversationHandler.List)
	router.POST("/conversations", authMiddleware, conversationHandler.Start)
	router.GET("/conversations/:conversation_id", authMiddleware, conversationHandler.Get)

	router.POST("/messages", authMiddleware, messageHandler.SendDirect)
	router.POST("/messages/:message_id/delivered", authMiddleware, messageHandler.MarkDelivered)
	router.GET("/conversations/:conversation_id/messages", authMiddleware, messageHandler.GetMessages)
	router.POST("/conversations/:conversation_id/messages", authMiddleware, messageHandler.PostMessage)
	router.GET("/conversations/:conversation_id/messages/before/:message_id", authMiddleware, messageHandler.GetMessagesBefore)
	router.GET("/conversations/:conversation_id/messages/after/:message_id", authMiddleware, messageHandler.GetMessagesAfter)
	router.POST("/conversations/:conversation_id/read", authMiddleware, messageHandler.MarkRead)
	router.DELETE("/conversations/:conversation_id/messages/:message_id", authMiddleware, messageHandler.DeleteMessage)

	router.GET("/attachments/:attachment_id", authMiddleware, attachmentHandler.Download)

	router.POST("/friends/requests", authMiddleware, friendHandler.SendRequest)
	router.GET("/friends/requests/received", authMiddleware, friendHandler.ListReceived)
	router.GET("/friends/requests/sent", authMiddleware, friendHandler.ListSent)
	router.POST("/friends/requests/:request_id/accept", authMiddleware, friendHandler.Accept)
	router.POST("/friends/requests/:request_id/reject", authMiddleware, friendHandler.Reject)
	router.GET("/friends", authMiddleware, friendHandler.ListFriends)
	router.GET("/friends/relationship/:user_id", authMiddleware, friendHandler.CheckRelationship)
	router.DELETE("/friends/:friend_id", authMiddleware, friendHandler.Remove)

	router.GET("/ws", userWS.Handle)
	router.GET("/ws/conversations/:conversation_id", conversationWS.Handle)

	handlers.RegisterDebugRoutes(router, audit, cfg.Telemetry.Debug)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	zlog.Infow("server starting", "port", cfg.Server.Port, "driver", cfg.Database.Driver)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		zlog.Fatalw("server error", "error", err)
	}
}
