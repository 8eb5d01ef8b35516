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

	_ "github.com/campushq/enrollment-api/api/swagger"
	"github.com/campushq/enrollment-api/internal/handler"
	"github.com/campushq/enrollment-api/internal/repository"
	"github.com/campushq/enrollment-api/internal/service"
	"github.com/campushq/enrollment-api/pkg/cache"
	"github.com/campushq/enrollment-api/pkg/config"
	"github.com/campushq/enrollment-api/pkg/database"
	"github.com/campushq/enrollment-api/pkg/jobs"
	"github.com/campushq/enrollment-api/pkg/logger"
	corsmiddleware "github.com/campushq/enrollment-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campushq/enrollment-api/pkg/middleware/requestid"
)

// @title Enrollment API
// @version 1.0.0
// @description Course enrollment, attendance and status recomputation service
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

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, true)
		defer cacheRepo.Close() //nolint:errcheck
	} else {
		cacheSvc = service.NewCacheService(nil, metricsSvc, cfg.Cache.TTL, logr, false)
	}

	validate := validator.New()

	courseRepo := repository.NewCourseRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)

	courseSvc := service.NewCourseService(courseRepo, sessionRepo, cacheSvc, cfg.Academic.SessionsPerCourse, validate, logr)
	sessionSvc := service.NewSessionService(sessionRepo, cacheSvc, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, sessionRepo, attendanceRepo, cacheSvc, validate, logr)

	recomputeQueue := jobs.NewQueue("recompute", func(ctx context.Context, job jobs.Job) error {
		enrollmentID, ok := job.Payload.(string)
		if !ok {
			return fmt.Errorf("unexpected payload type %T", job.Payload)
		}
		return enrollmentSvc.RecomputeAfterAttendanceChange(ctx, enrollmentID)
	}, jobs.QueueConfig{
		Workers:    cfg.Recompute.Workers,
		BufferSize: cfg.Recompute.BufferSize,
		MaxRetries: cfg.Recompute.MaxRetries,
		RetryDelay: cfg.Recompute.RetryDelay,
		Logger:     logr,
	})

	attendanceSvc := service.NewAttendanceService(attendanceRepo, recomputeQueue, cacheSvc, logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	handlers := handler.Handlers{
		Courses:     handler.NewCourseHandler(courseSvc, sessionSvc),
		Sessions:    handler.NewSessionHandler(sessionSvc),
		Enrollments: handler.NewEnrollmentHandler(enrollmentSvc, attendanceSvc),
		Attendances: handler.NewAttendanceHandler(attendanceSvc),
		Metrics:     handler.NewMetricsHandler(metricsSvc, db),
	}
	handler.RegisterRoutes(r, handler.RouterConfig{
		APIPrefix:  cfg.APIPrefix,
		JWTEnabled: cfg.JWT.Enabled,
		JWTSecret:  cfg.JWT.Secret,
		CacheTTL:   cfg.Cache.TTL,
	}, handlers, cacheSvc, metricsSvc)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recomputeQueue.Start(ctx)
	defer recomputeQueue.Stop()

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
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
}
