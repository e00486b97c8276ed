package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"realtime-chat/internal/auth"
	"realtime-chat/internal/config"
	"realtime-chat/internal/db"
	"realtime-chat/internal/grpcserver"
	"realtime-chat/internal/handlers"
	"realtime-chat/internal/logger"
	"realtime-chat/internal/middleware"
	"realtime-chat/internal/observability"
	"realtime-chat/internal/rabbitmq"
	"realtime-chat/internal/realtime"
	"realtime-chat/internal/repositories"
	"realtime-chat/internal/retention"
	"realtime-chat/internal/storage"
	"realtime-chat/internal/telemetry"
	"realtime-chat/internal/ws"
)

const (
	shutdownTimeout = 10 * time.Second
	healthInterval  = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		logger.Log.Fatal("tracer_init_failed", zap.Error(err))
	}

	database, err := db.Connect(ctx, cfg.DBDSN)
	if err != nil {
		logger.Log.Fatal("db_connect_failed", zap.Error(err))
	}
	defer database.Close()

	store := openRealtime(ctx, cfg)
	defer store.Close()

	files, err := storage.NewFileStore(cfg.StorageDir, cfg.PublicBaseURL)
	if err != nil {
		logger.Log.Fatal("storage_init_failed", zap.Error(err))
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Environment)
	logger.Log.Info("publisher_ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("reason", rabbitmq.PublisherNoopReason(publisher)))

	userRepo := repositories.NewUserRepo(database)
	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	appealRepo := repositories.NewAppealRepo(database)

	hub := ws.NewHub(&ws.SnapshotLoader{
		Users:    userRepo,
		Chats:    chatRepo,
		Messages: messageRepo,
		Appeals:  appealRepo,
		Realtime: store,
		PageSize: cfg.MessagePageSize,
	})
	go hub.Run(ctx, store.Watch(ctx))

	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	sessions := ws.NewSessionHandler(hub, verifier, store, userRepo)

	routes := handlers.Routes{
		Chats:    handlers.NewChatHandler(chatRepo, userRepo, hub, audit, cfg.PublicBaseURL),
		Messages: handlers.NewMessageHandler(chatRepo, messageRepo, userRepo, files, hub, audit, cfg.MessagePageSize),
		Profile:  handlers.NewProfileHandler(userRepo, hub),
		Appeals:  handlers.NewAppealHandler(appealRepo, userRepo, hub, audit),
		Admin:    handlers.NewAdminHandler(userRepo, chatRepo, messageRepo, appealRepo, store, hub, publisher, audit),
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.RequestIDMiddleware())
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.Static("/files", files.Dir())
	router.GET("/ws", sessions.Handle)

	routes.Register(router, middleware.AuthMiddleware(verifier))
	handlers.RegisterDebugRoutes(router, audit, hub, cfg.DebugRoutes)

	sweeper := &retention.Sweeper{
		Realtime:        store,
		Appeals:         appealRepo,
		Hub:             hub,
		AppealRetention: cfg.AppealRetention,
		AppealsTopic:    ws.TopicAppeals,
	}
	stopRetention, err := retention.Start(ctx, cfg.RetentionCron, sweeper)
	if err != nil {
		logger.Log.Fatal("retention_start_failed", zap.Error(err))
	}
	defer stopRetention()

	grpcSrv := grpcserver.New()
	grpcSrv.Check(ctx, database)
	go func() {
		if err := grpcSrv.Serve(":" + cfg.GRPCPort); err != nil {
			logger.Log.Error("grpc_server_stopped", zap.Error(err))
		}
	}()
	go watchHealth(ctx, grpcSrv, database)

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: cors.New(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id", "X-Device-Id"},
			AllowCredentials: true,
		}).Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Log.Info("http_listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("http_server_failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Log.Info("shutdown_started")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	grpcSrv.SetServing(false)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warn("http_shutdown_failed", zap.Error(err))
	}
	grpcSrv.Stop()
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Log.Warn("tracer_shutdown_failed", zap.Error(err))
	}
}

// openRealtime uses Redis when an address is configured, otherwise the
// in-process store, which only works for a single replica.
func openRealtime(ctx context.Context, cfg config.Config) realtime.Store {
	if cfg.RedisAddr == "" {
		logger.Log.Warn("realtime_store_memory")
		return realtime.NewMemoryStore()
	}
	store, err := realtime.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Log.Fatal("redis_connect_failed", zap.Error(err))
	}
	return store
}

func watchHealth(ctx context.Context, srv *grpcserver.Server, pinger grpcserver.Pinger) {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			srv.Check(ctx, pinger)
		}
	}
}
