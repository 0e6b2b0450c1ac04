package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/aite-labs/aite-api/api/swagger"
	"github.com/aite-labs/aite-api/internal/handler"
	"github.com/aite-labs/aite-api/internal/middleware"
	"github.com/aite-labs/aite-api/internal/models"
	"github.com/aite-labs/aite-api/internal/repository"
	"github.com/aite-labs/aite-api/internal/service"
	"github.com/aite-labs/aite-api/pkg/cache"
	"github.com/aite-labs/aite-api/pkg/config"
	"github.com/aite-labs/aite-api/pkg/database"
	"github.com/aite-labs/aite-api/pkg/export"
	"github.com/aite-labs/aite-api/pkg/jobs"
	"github.com/aite-labs/aite-api/pkg/logger"
	"github.com/aite-labs/aite-api/pkg/media"
	corsmiddleware "github.com/aite-labs/aite-api/pkg/middleware/cors"
	reqidmiddleware "github.com/aite-labs/aite-api/pkg/middleware/requestid"
	"github.com/aite-labs/aite-api/pkg/storage"
)

// @title Aite API
// @version 0.1.0
// @description Registration, QR check-in, community feed and messaging backend
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, feed caching disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close() //nolint:errcheck
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	postRepo := repository.NewPostRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	reportRepo := repository.NewReportRepository(db)

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if redisClient != nil && cfg.Feed.Enabled {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, logr, cfg.Feed.CacheTTL)
	}

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		Audience:           cfg.JWT.Audience,
		SingleSession:      cfg.JWT.SingleSession,
	})
	registrationSvc := service.NewRegistrationService(registrationRepo, validate, logr, cfg.CheckIn.CodePrefix)
	attendanceSvc := service.NewAttendanceService(registrationRepo, attendanceRepo, logr)
	messageSvc := service.NewMessageService(messageRepo, userRepo, validate, logr)

	var postSvc *service.PostService
	if cfg.Media.Enabled {
		uploader := media.NewCloudinaryClient(cfg.Media.CloudName, cfg.Media.APIKey, cfg.Media.APISecret, cfg.Media.Folder)
		postSvc = service.NewPostService(postRepo, uploader, cacheSvc, validate, logr)
	} else {
		postSvc = service.NewPostService(postRepo, nil, cacheSvc, validate, logr)
	}

	var reportSvc *service.ReportService
	var reportQueue *jobs.Queue
	if cfg.Reports.Enabled {
		store, storeErr := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if storeErr != nil {
			logr.Sugar().Fatalw("failed to init report storage", "error", storeErr)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		exportSvc := service.NewExportService(
			attendanceRepo,
			registrationRepo,
			store,
			signer,
			service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Reports.SignedURLTTL},
			logr,
			metricsSvc,
			export.NewCSVExporter(),
			export.NewPDFExporter(),
		)
		worker := service.NewReportWorker(reportRepo, exportSvc, cfg.Reports.WorkerRetries, logr)
		reportQueue = jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		reportSvc = service.NewReportService(reportRepo, registrationRepo, reportQueue, exportSvc, logr, service.ReportServiceConfig{
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
			MaxRetries:      cfg.Reports.WorkerRetries,
		})

		reportQueue.Start(ctx)
		reportSvc.RecoverPendingJobs(ctx)
		reportSvc.StartCleanup(ctx)
	}

	authHandler := handler.NewAuthHandler(authSvc)
	registrationHandler := handler.NewRegistrationHandler(registrationSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	postHandler := handler.NewPostHandler(postSvc)
	messageHandler := handler.NewMessageHandler(messageSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/healthz", metricsHandler.Health)
	r.GET("/readyz", func(c *gin.Context) {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		if redisClient != nil {
			if err := redisClient.Ping(pingCtx).Err(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
	auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)

	api.POST("/registrations", registrationHandler.Submit)
	api.POST("/check-in", attendanceHandler.CheckIn)

	admin := api.Group("", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/registrations", registrationHandler.List)
	admin.GET("/registrations/:id", registrationHandler.Get)
	admin.POST("/registrations/:id/approve", registrationHandler.Approve)
	admin.POST("/registrations/:id/reject", registrationHandler.Reject)
	admin.POST("/registrations/:id/payment", registrationHandler.ConfirmPayment)
	admin.DELETE("/registrations/:id", registrationHandler.Delete)
	admin.POST("/registrations/:id/undo-session", attendanceHandler.UndoSession)
	admin.GET("/registrations/:id/attendance", attendanceHandler.Logs)
	admin.DELETE("/attendance/logs/:id", attendanceHandler.DeleteLog)

	if cfg.Feed.Enabled {
		posts := api.Group("/posts", middleware.JWT(authSvc))
		posts.POST("", postHandler.Create)
		posts.GET("", postHandler.Feed)
		posts.POST("/:id/like", postHandler.ToggleLike)
		posts.POST("/:id/comments", postHandler.AddComment)
		posts.GET("/:id/comments", postHandler.ListComments)
		posts.DELETE("/:id", postHandler.Delete)
	}

	if cfg.Messaging.Enabled {
		messages := api.Group("/messages", middleware.JWT(authSvc))
		messages.GET("", messageHandler.Inbox)
		messages.POST("/:contactId", messageHandler.Send)
		messages.GET("/:contactId", messageHandler.Conversation)
	}

	if reportSvc != nil {
		reportHandler := handler.NewReportHandler(reportSvc)
		reports := api.Group("/reports")
		reports.POST("/generate", middleware.JWT(authSvc), reportHandler.Generate)
		reports.GET("/status/:id", middleware.JWT(authSvc), reportHandler.Status)
		reports.GET("/download/:token", reportHandler.Download)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	if reportQueue != nil {
		reportQueue.Stop()
	}
}
