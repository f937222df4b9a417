// Package main runs the live-session platform HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/edulive/backend/config"
	"github.com/edulive/backend/internal/auth"
	"github.com/edulive/backend/internal/egress"
	"github.com/edulive/backend/internal/middleware"
	"github.com/edulive/backend/internal/replay"
	"github.com/edulive/backend/internal/rtc"
	"github.com/edulive/backend/internal/sessions"
	"github.com/edulive/backend/internal/webhooks"
	"github.com/edulive/backend/internal/worker"
	"github.com/edulive/backend/pkg/database"
	"github.com/edulive/backend/pkg/metrics"
	"github.com/edulive/backend/pkg/queue"
	"github.com/edulive/backend/pkg/redis"
	"github.com/edulive/backend/pkg/response"
	"github.com/edulive/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Client, err := storage.NewS3(ctx, storage.S3Config{
		Region:           cfg.AWS.Region,
		AccessKeyID:      cfg.AWS.AccessKeyID,
		SecretAccessKey:  cfg.AWS.SecretAccessKey,
		RecordingsBucket: cfg.AWS.RecordingsBucket,
	}, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	m := metrics.New()
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	// RTC provider
	minter := rtc.NewTokenMinter(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret,
		time.Duration(cfg.LiveKit.TokenTTLMinutes)*time.Minute)
	egressClient := rtc.NewEgress(cfg.LiveKit.URL, cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, rtc.S3Output{
		AccessKey: cfg.AWS.AccessKeyID,
		Secret:    cfg.AWS.SecretAccessKey,
		Region:    cfg.AWS.Region,
		Bucket:    cfg.AWS.RecordingsBucket,
	})
	verifier := rtc.NewVerifier(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret)
	replayTokens := replay.NewTokens(cfg.Replay.TokenSecret,
		time.Duration(cfg.Replay.TokenTTLMinutes)*time.Minute)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Sessions
	sessionRepo := sessions.NewRepository(pool)
	participants := sessions.NewRedisParticipants(rdb.Client)
	sessionHandler := sessions.NewHandler(sessionRepo, participants, minter, replayTokens, cfg.LiveKit.URL, logger)

	// Recording control + webhook ingestion
	egressHandler := egress.NewHandler(sessionRepo, egressClient, s3Client,
		time.Duration(cfg.LiveKit.EgressTimeoutSec)*time.Second, m, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	webhookHandler := webhooks.NewHandler(sessionRepo, participants, verifier, jobQueue,
		s3Client, s3Client.RecordingsBucket(), m, logger)

	// Replay proxy
	replayHandler := replay.NewHandler(sessionRepo, s3Client, jwtService, replayTokens, m, logger)

	// Recording verification worker
	verifyWorker := worker.New(jobQueue, sessionRepo, s3Client, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/sessions", sessionHandler.List)
		api.POST("/sessions", middleware.RequireRole("teacher", "admin"), sessionHandler.Create)
		api.GET("/sessions/:id/status", sessionHandler.Status)
		api.POST("/sessions/:id/recording/start", egressHandler.StartRecording)
		api.POST("/sessions/:id/recording/upload", egressHandler.UploadRecording)
	}

	// Webhooks (no JWT; signature verified in handler)
	router.POST("/webhooks/livekit", webhookHandler.HandleEvent)

	// Replay (platform JWT or replay token; checked in handler so players can
	// pass the token in the query string)
	router.GET("/replay", replayHandler.Serve)

	srv := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     router,
		ReadTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		// No write timeout: replay streams run for the lifetime of the
		// client connection.
		WriteTimeout: 0,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go verifyWorker.Run(workerCtx)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
