package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campushq/enrollment-api/internal/middleware"
	"github.com/campushq/enrollment-api/internal/service"
)

// RouterConfig carries the routing-relevant slice of the app config.
type RouterConfig struct {
	APIPrefix  string
	JWTEnabled bool
	JWTSecret  string
	CacheTTL   time.Duration
}

// Handlers bundles the HTTP handlers wired into the router.
type Handlers struct {
	Courses     *CourseHandler
	Sessions    *SessionHandler
	Enrollments *EnrollmentHandler
	Attendances *AttendanceHandler
	Metrics     *MetricsHandler
}

// RegisterRoutes mounts every endpoint on the engine. Reads may be served
// from the response cache; mutations require a token when JWT is enabled.
func RegisterRoutes(r *gin.Engine, cfg RouterConfig, h Handlers, cacheSvc *service.CacheService, metricsSvc *service.MetricsService) {
	r.Use(middleware.WithResponseMeta())
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)
	r.GET("/metrics/summary", h.Metrics.Summary)

	prefix := cfg.APIPrefix
	if prefix == "" {
		prefix = "/api/v1"
	}
	api := r.Group(prefix)

	guard := func(c *gin.Context) { c.Next() }
	if cfg.JWTEnabled {
		guard = middleware.JWT(cfg.JWTSecret)
	}

	courses := api.Group("/courses")
	courses.Use(middleware.ResponseCache(cacheSvc, "courses", cfg.CacheTTL))
	{
		courses.POST("", guard, h.Courses.Create)
		courses.GET("", h.Courses.List)
		courses.GET("/:id", h.Courses.Get)
		courses.GET("/:id/sessions", h.Courses.Sessions)
		courses.DELETE("/:id", guard, h.Courses.Delete)
	}

	sessions := api.Group("/sessions")
	{
		sessions.PATCH("/:id", guard, h.Sessions.Update)
	}

	enrollments := api.Group("/enrollments")
	enrollments.Use(middleware.ResponseCache(cacheSvc, "enrollments", cfg.CacheTTL))
	{
		enrollments.POST("", guard, h.Enrollments.Create)
		enrollments.GET("", h.Enrollments.List)
		enrollments.GET("/status-summary", h.Enrollments.StatusSummary)
		enrollments.GET("/:id", h.Enrollments.Get)
		enrollments.PATCH("/:id", guard, h.Enrollments.Update)
		enrollments.DELETE("/:id", guard, h.Enrollments.Delete)
		enrollments.GET("/:id/attendances", h.Enrollments.Attendances)
		enrollments.GET("/:id/absenteeism", h.Enrollments.Absenteeism)
		enrollments.GET("/:id/report", h.Enrollments.Report)
	}

	attendances := api.Group("/attendances")
	attendances.Use(middleware.ResponseCache(cacheSvc, "attendances", cfg.CacheTTL))
	{
		attendances.GET("", h.Attendances.List)
		attendances.GET("/:id", h.Attendances.Get)
		attendances.PATCH("/:id", guard, h.Attendances.Mark)
	}
}
