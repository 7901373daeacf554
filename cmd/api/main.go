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
	"github.com/hibiken/asynq"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/conces/conces-api/api/swagger"
	"github.com/conces/conces-api/internal/handler"
	"github.com/conces/conces-api/internal/jobs"
	"github.com/conces/conces-api/internal/middleware"
	"github.com/conces/conces-api/internal/repository"
	"github.com/conces/conces-api/internal/service"
	"github.com/conces/conces-api/migrations"
	"github.com/conces/conces-api/pkg/cache"
	"github.com/conces/conces-api/pkg/config"
	"github.com/conces/conces-api/pkg/database"
	"github.com/conces/conces-api/pkg/logger"
	corsmiddleware "github.com/conces/conces-api/pkg/middleware/cors"
	reqidmiddleware "github.com/conces/conces-api/pkg/middleware/requestid"
	"github.com/conces/conces-api/pkg/storage"
)

// @title CONCES API
// @version 1.0.0
// @description Membership platform for the CONCES alumni network
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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := migrations.Migrate(db.DB, logr); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The API stays up without Redis; list caching and background
		// exports are simply disabled.
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	alumniRepo := repository.NewAlumniRepository(db)
	branchRepo := repository.NewBranchRepository(db)
	postRepo := repository.NewPostRepository(db)
	exportJobRepo := repository.NewExportJobRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr,
		cfg.Cache.Enabled && redisClient != nil)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		SingleSession:      cfg.JWT.SingleSession,
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	alumniSvc := service.NewAlumniService(alumniRepo, userRepo, cacheSvc, cfg.Cache.TTL, metricsSvc, validate, logr)
	branchSvc := service.NewBranchService(branchRepo, validate, logr)
	feedSvc := service.NewFeedService(postRepo, validate, logr)

	exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return fmt.Errorf("init export storage: %w", err)
	}
	uploadStore, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		return fmt.Errorf("init upload storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	redisOpts := asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	exportCfg := service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		PageSize:  cfg.Exports.PageSize,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}

	var exportSvc *service.ExportService
	exportsEnabled := cfg.Exports.Enabled && redisClient != nil
	if exportsEnabled {
		enqueuer := jobs.NewClient(redisOpts)
		defer enqueuer.Close()
		exportSvc = service.NewExportService(exportJobRepo, alumniRepo, userRepo, branchRepo,
			exportStore, enqueuer, signer, exportCfg, validate, logr)
	} else {
		// Synchronous export downloads still work without the queue.
		exportSvc = service.NewExportService(exportJobRepo, alumniRepo, userRepo, branchRepo,
			exportStore, nil, signer, exportCfg, validate, logr)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	handler.RegisterRoutes(r, cfg.APIPrefix, handler.Handlers{
		Auth:    handler.NewAuthHandler(authSvc),
		Users:   handler.NewUserHandler(userSvc),
		Alumni:  handler.NewAlumniHandler(alumniSvc, exportSvc),
		Branch:  handler.NewBranchHandler(branchSvc),
		Feed:    handler.NewFeedHandler(feedSvc),
		Exports: handler.NewExportHandler(exportSvc),
		Uploads: handler.NewUploadHandler(cfg.Uploads, uploadStore, logr),
		Metrics: handler.NewMetricsHandler(metricsSvc),
	}, authSvc, userRepo)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	if exportsEnabled {
		worker, err := jobs.NewWorker(jobs.WorkerConfig{
			RedisOpts:       redisOpts,
			Concurrency:     cfg.Exports.Concurrency,
			CleanupSchedule: cfg.Exports.CleanupSchedule,
			Exports:         exportSvc,
			Logger:          logr,
		})
		if err != nil {
			return fmt.Errorf("init export worker: %w", err)
		}
		go func() {
			if err := worker.Run(ctx); err != nil {
				logr.Error("export worker stopped", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
