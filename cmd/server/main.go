// Package main runs the transcription backend HTTP server with graceful
// shutdown.
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

	"github.com/soundscribe/backend/config"
	"github.com/soundscribe/backend/internal/audios"
	"github.com/soundscribe/backend/internal/auth"
	"github.com/soundscribe/backend/internal/jobs"
	"github.com/soundscribe/backend/internal/keywords"
	"github.com/soundscribe/backend/internal/middleware"
	"github.com/soundscribe/backend/internal/prompts"
	"github.com/soundscribe/backend/internal/transcripts"
	"github.com/soundscribe/backend/pkg/database"
	"github.com/soundscribe/backend/pkg/progress"
	"github.com/soundscribe/backend/pkg/queue"
	"github.com/soundscribe/backend/pkg/redis"
	"github.com/soundscribe/backend/pkg/response"
	"github.com/soundscribe/backend/pkg/storage"
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

	media, err := storage.NewMedia(cfg.Media.Dir)
	if err != nil {
		logger.Fatal("media storage", zap.Error(err))
	}

	var s3Client *storage.S3
	if cfg.AWS.Region != "" && cfg.AWS.AudioBucket != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			AudioBucket:          cfg.AWS.AudioBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 archive disabled", zap.Error(err))
			s3Client = nil
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	progressStore := progress.NewStore(rdb.Client, 0, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Audios and transcripts
	audioRepo := audios.NewRepository(pool)
	transcriptRepo := transcripts.NewRepository(pool)
	audioHandler := audios.NewHandler(audioRepo, transcriptRepo, media, s3Client, jobQueue, cfg.Media.MaxUploadSize, logger)
	transcriptHandler := transcripts.NewHandler(transcriptRepo, audioRepo, logger)

	// Prompts and keywords
	promptRepo := prompts.NewRepository(pool)
	promptHandler := prompts.NewHandler(promptRepo, logger)
	keywordRepo := keywords.NewRepository(pool)
	keywordHandler := keywords.NewHandler(keywordRepo, logger)

	// Job progress
	jobHandler := jobs.NewHandler(progressStore, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

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
		api.GET("/auth/me", authHandler.Me)
		api.GET("/users", middleware.RequireRole("admin"), authHandler.List)

		// Audios
		api.POST("/audios", audioHandler.Upload)
		api.GET("/audios", audioHandler.List)
		api.GET("/audios/:id", audioHandler.Get)
		api.PATCH("/audios/:id", audioHandler.Update)
		api.DELETE("/audios/:id", audioHandler.Delete)
		api.GET("/audios/:id/status", audioHandler.GetStatus)
		api.PUT("/audios/:id/status", audioHandler.PutStatus)
		api.POST("/audios/:id/reprocess", audioHandler.Reprocess)
		api.GET("/audios/:id/download-url", audioHandler.DownloadURL)

		// Transcripts
		api.GET("/audios/:id/text", transcriptHandler.Get)
		api.PUT("/audios/:id/text", transcriptHandler.Put)
		api.GET("/audios/:id/export", transcriptHandler.Export)

		// Categories
		api.GET("/categories", audioHandler.ListCategories)

		// Prompts (admin only)
		api.GET("/prompts", middleware.RequireRole("admin"), promptHandler.List)
		api.POST("/prompts", middleware.RequireRole("admin"), promptHandler.Create)
		api.PUT("/prompts/:id", middleware.RequireRole("admin"), promptHandler.Update)
		api.DELETE("/prompts/:id", middleware.RequireRole("admin"), promptHandler.Delete)

		// Keywords
		api.GET("/keywords", keywordHandler.List)
		api.POST("/keywords", middleware.RequireRole("admin"), keywordHandler.Create)
		api.PUT("/keywords/:id", middleware.RequireRole("admin"), keywordHandler.Update)
		api.DELETE("/keywords/:id", middleware.RequireRole("admin"), keywordHandler.Delete)

		// Job progress
		api.GET("/jobs/:id/progress", jobHandler.Get)

		// Admin maintenance
		api.POST("/admin/audios/fix-status", middleware.RequireRole("admin"), audioHandler.FixStatuses)
	}

	// WebSocket progress push (token validation happens at upgrade via the
	// same JWT middleware; browsers pass the token in the query string).
	router.GET("/ws/jobs/:id", wsAuth(jwtService), jobHandler.Watch)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// wsAuth validates the JWT from the token query parameter, since websocket
// clients cannot set an Authorization header.
func wsAuth(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			response.Unauthorized(c, "missing token")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(middleware.ContextUserID, claims.UserID)
		c.Set(middleware.ContextUserRole, claims.Role)
		c.Next()
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
