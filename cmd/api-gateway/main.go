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
	"go.uber.org/zap"

	_ "github.com/noah-isme/edu-makeup-api/api/swagger"
	"github.com/noah-isme/edu-makeup-api/internal/handler"
	"github.com/noah-isme/edu-makeup-api/internal/middleware"
	"github.com/noah-isme/edu-makeup-api/internal/repository"
	"github.com/noah-isme/edu-makeup-api/internal/service"
	"github.com/noah-isme/edu-makeup-api/pkg/cache"
	"github.com/noah-isme/edu-makeup-api/pkg/config"
	"github.com/noah-isme/edu-makeup-api/pkg/database"
	"github.com/noah-isme/edu-makeup-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/edu-makeup-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/edu-makeup-api/pkg/middleware/requestid"
)

const shutdownTimeout = 15 * time.Second

// @title Edu Make-up API
// @version 0.1.0
// @description Make-up session resolution for the education-center admin portal
// @BasePath /
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics := service.NewMetricsService()
	location := cfg.Makeup.Location()
	checks := map[string]handler.ReadinessCheck{}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect redis", "error", err)
	}
	cacheRepo := repository.NewCacheRepository(redisClient, cfg.ServiceName, logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Makeup.CatalogCacheTTL, logr, cfg.Redis.Enabled)
	if cfg.Redis.Enabled {
		checks["redis"] = cacheRepo.Ping
	}

	upstream := repository.NewMakeupUpstreamRepository(cfg.Upstream.BaseURL, cfg.Upstream.APIToken, cfg.Upstream.Timeout, metrics, logr)
	checks["upstream"] = upstream.Ping
	fetchers := service.NewMakeupFetchers(upstream, service.NewNormalizer(), cacheSvc, cfg.Makeup.CatalogCacheTTL, location, logr)

	var dispatcher service.FetchDispatcher
	if cfg.Makeup.EnableFetchQueue {
		queue := service.NewQueueDispatcher(cfg.Makeup.FetchWorkers, logr)
		queue.Start(ctx)
		defer queue.Stop()
		dispatcher = queue
	} else {
		dispatcher = service.NewGoDispatcher(ctx)
	}

	var (
		recorder          service.SubmissionRecorder
		submissionHandler *handler.MakeupSubmissionHandler
	)
	if cfg.Submissions.Enabled {
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect database", "error", err)
		}
		defer db.Close() //nolint:errcheck
		if cfg.Submissions.RunMigrations {
			if err := database.RunMigrations(db.DB, logr); err != nil {
				logr.Sugar().Fatalw("failed to run migrations", "error", err)
			}
		}
		submissionRepo := repository.NewMakeupSubmissionRepository(db)
		checks["database"] = submissionRepo.Ping
		submissionSvc := service.NewMakeupSubmissionService(submissionRepo, metrics, cfg.Submissions.SlipTitle, location, logr)
		recorder = submissionSvc
		submissionHandler = handler.NewMakeupSubmissionHandler(submissionSvc)
	}

	workflowSvc := service.NewMakeupWorkflowService(fetchers, upstream, dispatcher, service.NewSubmissionGate(validator.New()), recorder, metrics, service.MakeupWorkflowConfig{
		FetchTimeout:  cfg.Makeup.FetchTimeout,
		TTL:           cfg.Makeup.WorkflowTTL,
		MaxWorkflows:  cfg.Makeup.MaxWorkflows,
		MaxViewWait:   cfg.Makeup.MaxViewWait,
		SweepSchedule: cfg.Makeup.SweepSchedule,
		Location:      location,
	}, logr)
	if err := workflowSvc.StartSweeper(); err != nil {
		logr.Sugar().Fatalw("failed to start workflow sweeper", "error", err)
	}
	defer workflowSvc.StopSweeper()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metrics, "/metrics", "/health", "/ready"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	handler.RegisterRoutes(r, cfg.APIPrefix, handler.Handlers{
		Workflows:   handler.NewMakeupWorkflowHandler(workflowSvc),
		Submissions: submissionHandler,
		Metrics:     handler.NewMetricsHandler(metrics, checks),
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", server.Addr, "env", cfg.Env, "fetch_queue", cfg.Makeup.EnableFetchQueue, "submission_log", cfg.Submissions.Enabled)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		logr.Error("server failed", zap.Error(err))
	case <-ctx.Done():
		logr.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
		_ = server.Close()
	}
	logr.Info("server stopped", zap.Int("open_workflows", workflowSvc.Count()))
}
