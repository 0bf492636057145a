package main

import (
	"context"
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

	_ "github.com/thesishub/thesishub-api/api/swagger"
	"github.com/thesishub/thesishub-api/internal/handler"
	"github.com/thesishub/thesishub-api/internal/repository"
	"github.com/thesishub/thesishub-api/internal/service"
	"github.com/thesishub/thesishub-api/pkg/cache"
	"github.com/thesishub/thesishub-api/pkg/config"
	"github.com/thesishub/thesishub-api/pkg/database"
	exportpkg "github.com/thesishub/thesishub-api/pkg/export"
	"github.com/thesishub/thesishub-api/pkg/jobs"
	"github.com/thesishub/thesishub-api/pkg/logger"
	corsmiddleware "github.com/thesishub/thesishub-api/pkg/middleware/cors"
	reqidmiddleware "github.com/thesishub/thesishub-api/pkg/middleware/requestid"
	"github.com/thesishub/thesishub-api/pkg/storage"
)

// @title ThesisHub API
// @version 1.0.0
// @description Thesis and project group management API
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	fileStore, err := storage.NewLocalStorage(cfg.Storage.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init document storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)

	userRepo := repository.NewUserRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	markRepo := repository.NewMarkRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	journalRepo := repository.NewJournalRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	validate := validator.New()
	metricsService := service.NewMetricsService()

	cleanupQueue := jobs.NewQueue("document-file-cleanup", func(ctx context.Context, job jobs.Job) error {
		key, ok := job.Payload.(string)
		if !ok {
			return fmt.Errorf("unexpected payload type %T for job %s", job.Payload, job.ID)
		}
		return fileStore.Delete(key)
	}, jobs.QueueConfig{
		Workers:    cfg.Cleanup.Workers,
		MaxRetries: cfg.Cleanup.MaxRetries,
		RetryDelay: cfg.Cleanup.RetryDelay,
		Logger:     logr,
	})

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "thesishub-api",
	})
	userService := service.NewUserService(userRepo, validate, logr)
	batchService := service.NewBatchService(batchRepo, validate, logr)
	notificationService := service.NewNotificationService(notificationRepo, groupRepo, logr, metricsService)
	groupService := service.NewGroupService(groupRepo, userRepo, batchRepo, documentRepo, cacheRepo, validate, logr, metricsService, service.GroupServiceConfig{
		MaxGroupsPerTeacher: cfg.Groups.MaxGroupsPerTeacher,
		InviteCodeRetries:   cfg.Groups.InviteCodeRetries,
		CacheEnabled:        cfg.Cache.Enabled && redisClient != nil,
		CacheTTL:            cfg.Cache.TTL,
	})
	gradingService := service.NewGradingService(markRepo, groupRepo, batchRepo, validate, logr, metricsService)
	documentService := service.NewDocumentService(documentRepo, groupRepo, fileStore, signer, notificationService, cleanupQueue, cacheRepo, logr, cfg.Storage.MaxFileSizeBytes)
	journalService := service.NewJournalService(journalRepo, groupRepo, userRepo, notificationService, validate, logr)
	exportService := service.NewExportService(markRepo, batchRepo, exportpkg.NewCSVExporter(), exportpkg.NewPDFExporter(), logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	handler.RegisterRoutes(r, handler.Handlers{
		Auth:          handler.NewAuthHandler(authService),
		Users:         handler.NewUserHandler(userService),
		Batches:       handler.NewBatchHandler(batchService),
		Groups:        handler.NewGroupHandler(groupService),
		Grading:       handler.NewGradingHandler(gradingService),
		Documents:     handler.NewDocumentHandler(documentService),
		Notifications: handler.NewNotificationHandler(notificationService),
		Journal:       handler.NewJournalHandler(journalService),
		Exports:       handler.NewExportHandler(exportService),
		Metrics:       handler.NewMetricsHandler(metricsService),
	}, authService, metricsService, userRepo)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cleanupQueue.Start(ctx)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
	cleanupQueue.Stop()

	if redisClient != nil {
		_ = redisClient.Close()
	}
	logr.Sugar().Infow("server stopped")
}
