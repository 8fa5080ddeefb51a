// Package main runs the learning platform HTTP server with SSE streams,
// proctoring WebSocket monitor, and graceful shutdown.
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

	"github.com/lumina-edu/backend/config"
	"github.com/lumina-edu/backend/internal/assignments"
	"github.com/lumina-edu/backend/internal/auth"
	"github.com/lumina-edu/backend/internal/courses"
	"github.com/lumina-edu/backend/internal/discussions"
	"github.com/lumina-edu/backend/internal/gamification"
	"github.com/lumina-edu/backend/internal/middleware"
	"github.com/lumina-edu/backend/internal/notifications"
	"github.com/lumina-edu/backend/internal/proctor"
	"github.com/lumina-edu/backend/internal/worker"
	"github.com/lumina-edu/backend/pkg/database"
	"github.com/lumina-edu/backend/pkg/queue"
	"github.com/lumina-edu/backend/pkg/redis"
	"github.com/lumina-edu/backend/pkg/response"
	"github.com/lumina-edu/backend/pkg/storage"
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

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			AssignmentsBucket:    cfg.AWS.AssignmentsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Discussion board fan-out: local SSE hub bridged over Redis pub/sub so
	// every instance broadcasts posts published on any instance.
	boardPubSub := discussions.NewRedisPubSub(rdb.Client, logger)
	boardHub := discussions.NewHub(logger, boardPubSub, boardPubSub)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Courses
	courseRepo := courses.NewRepository(pool)
	courseHandler := courses.NewHandler(courseRepo)

	// Proctoring
	proctorMonitor := proctor.NewMonitor(logger)
	proctorRepo := proctor.NewRepository(pool)
	proctorHandler := proctor.NewHandler(proctorRepo, proctorMonitor, float64(cfg.Proctor.AwayThresholdSeconds), logger)

	// Discussions
	postRepo := discussions.NewRepository(pool)
	keepAlive := time.Duration(cfg.Stream.KeepAliveSeconds) * time.Second
	boardHandler := discussions.NewHandler(postRepo, boardHub, jobQueue, keepAlive, cfg.Stream.RetryMillis, logger)

	// Assignments
	submissionRepo := assignments.NewRepository(pool)
	assignmentHandler := assignments.NewHandler(submissionRepo, s3Client, jobQueue, logger)

	// Gamification
	badgeRepo := gamification.NewRepository(pool)
	leaderboard := gamification.NewLeaderboard(rdb.Client)
	gamificationHandler := gamification.NewHandler(badgeRepo, leaderboard)

	// Notifications
	notifRepo := notifications.NewRepository(pool)
	notifHandler := notifications.NewHandler(notifRepo)

	engagementProcessor := worker.NewEngagementProcessor(badgeRepo, leaderboard, notifRepo, jobQueue, logger)

	jwtValidate := func(token string) (userID, role string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", "", err
		}
		return claims.UserID.String(), claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
	}

	// Discussion board reads and streams are public; writes require JWT.
	router.GET("/api/discussions", boardHandler.List)
	router.GET("/api/discussions/stream", boardHandler.Stream)
	router.GET("/api/courses/:id/discussions", boardHandler.ListCourse)
	router.GET("/api/courses/:id/discussions/stream", boardHandler.StreamCourse)

	// Protected API (JWT required)
	api := router.Group("/api")
	api.Use(middleware.JWT(jwtService))
	{
		// Users (admin only)
		api.GET("/users", middleware.RequireRole("admin"), authHandler.List)
		api.PATCH("/users/:id/role", middleware.RequireRole("admin"), authHandler.UpdateRole)

		// Courses
		api.GET("/courses", courseHandler.List)
		api.POST("/courses", middleware.RequireRole("instructor", "admin"), courseHandler.Create)
		api.GET("/courses/:id", courseHandler.GetByID)
		api.DELETE("/courses/:id", middleware.RequireRole("admin"), courseHandler.Delete)

		// Proctoring sessions (session id travels in the body; the client
		// holds it from start until end)
		api.POST("/proctor/start", proctorHandler.Start)
		api.POST("/proctor/heartbeat", proctorHandler.Heartbeat)
		api.POST("/proctor/end", proctorHandler.End)
		api.GET("/proctor/sessions/:id", proctorHandler.GetSession)
		api.GET("/proctor/sessions/:id/events", proctorHandler.ListEvents)
		api.GET("/proctor/exams/:examId/sessions", middleware.RequireRole("instructor", "admin"), proctorHandler.ListByExam)

		// Discussion board writes
		api.POST("/discussions", boardHandler.Create)
		api.DELETE("/discussions/:id", boardHandler.Delete)
		api.POST("/courses/:id/discussions", boardHandler.CreateCourse)
		api.DELETE("/courses/:id/discussions/:postId", boardHandler.DeleteCourse)

		// Assignments
		api.POST("/assignments", assignmentHandler.Submit)
		api.GET("/assignments", assignmentHandler.List)

		// Gamification
		api.GET("/gamification/badges", gamificationHandler.ListBadges)
		api.POST("/gamification/badges", middleware.RequireRole("admin"), gamificationHandler.AwardBadge)
		api.GET("/gamification/leaderboard", gamificationHandler.Leaderboard)

		// Notifications
		api.GET("/notifications", notifHandler.List)
		api.POST("/notifications/:id/read", notifHandler.MarkRead)
	}

	// WebSocket alert feed for instructors (token in query)
	router.GET("/ws/proctor", proctorMonitor.Serve(jwtValidate))

	srv := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     router,
		ReadTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		// WriteTimeout stays at the configured value; the default of 0 keeps
		// long-lived SSE streams from being cut off.
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (engagement points and badges)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go engagementProcessor.Run(workerCtx)
	logger.Info("engagement worker started")

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
