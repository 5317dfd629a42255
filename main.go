package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messenger-service/internal/blob"
	"messenger-service/internal/config"
	"messenger-service/internal/db"
	"messenger-service/internal/handlers"
	"messenger-service/internal/middleware"
	"messenger-service/internal/observability"
	"messenger-service/internal/rabbitmq"
	"messenger-service/internal/repositories"
	"messenger-service/internal/telemetry"
	"messenger-service/internal/ws"
)

const serviceName = "messenger-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	if cfg.OTLPEndpoint != "" {
		shutdown, err := telemetry.SetupTracing(context.Background(), serviceName, cfg.OTLPEndpoint)
		if err != nil {
			log.Fatalf("failed to set up tracing: %v", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Printf("tracing shutdown: %v", err)
			}
		}()
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	if mode := rabbitmq.PublisherMode(publisher); mode == "noop" {
		log.Printf("event publisher mode=%s reason=%q", mode, rabbitmq.PublisherNoopReason(publisher))
	} else {
		log.Printf("event publisher mode=%s", mode)
	}
	observability.SetPublisher(publisher)

	audit := telemetry.NewAuditEmitter(publisher, "audit_logs.messenger", serviceName, cfg.Environment)

	chatRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	friendRepo := repositories.NewFriendRequestRepo(database)

	registry := ws.NewRegistry()
	dispatcher := ws.NewDispatcher(registry)
	verifier := middleware.NewVerifier(cfg.JWTSecret)
	uploader := blob.NewUploader(cfg.UploadEndpoint)

	chatHandler := handlers.NewChatHandler(chatRepo, messageRepo, friendRepo, uploader, dispatcher, audit)
	groupHandler := handlers.NewGroupHandler(chatRepo, audit)
	friendHandler := handlers.NewFriendHandler(friendRepo, chatRepo, audit)
	sessionHandler := ws.NewSessionHandler(registry, dispatcher, chatRepo, messageRepo, verifier)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/chats", authMiddleware, chatHandler.ListChats)
	router.POST("/chats/start", authMiddleware, chatHandler.StartChat)
	router.GET("/chats/:chat_id/messages", authMiddleware, chatHandler.GetChatMessages)
	router.POST("/chats/:chat_id/messages", authMiddleware, chatHandler.PostChatMessage)
	router.POST("/chats/:chat_id/seen", authMiddleware, chatHandler.MarkSeen)

	router.POST("/groups", authMiddleware, groupHandler.CreateGroup)
	router.POST("/groups/:chat_id/members", authMiddleware, groupHandler.AddMembers)
	router.DELETE("/groups/:chat_id/members/:user_id", authMiddleware, groupHandler.RemoveMember)
	router.POST("/groups/:chat_id/leave", authMiddleware, groupHandler.LeaveGroup)
	router.PATCH("/groups/:chat_id", authMiddleware, groupHandler.UpdateGroup)

	router.POST("/friends/requests", authMiddleware, friendHandler.SendRequest)
	router.PATCH("/friends/requests/:request_id", authMiddleware, friendHandler.RespondRequest)
	router.DELETE("/friends/requests/:request_id", authMiddleware, friendHandler.WithdrawRequest)
	router.GET("/friends/requests/incoming", authMiddleware, friendHandler.IncomingRequests)
	router.GET("/friends/requests/pending", authMiddleware, friendHandler.PendingRequests)
	router.GET("/friends", authMiddleware, friendHandler.ListFriends)
	router.PUT("/friends/:user_id/block", authMiddleware, friendHandler.BlockUser)
	router.PUT("/friends/:user_id/unblock", authMiddleware, friendHandler.UnblockUser)

	router.GET("/ws", sessionHandler.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)

	log.Printf("listening on :%s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
