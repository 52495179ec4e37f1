package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/campus-hq/ops-api/internal/handler"
	"github.com/campus-hq/ops-api/internal/middleware"
	"github.com/campus-hq/ops-api/internal/repository"
	"github.com/campus-hq/ops-api/internal/service"
	"github.com/campus-hq/ops-api/pkg/cache"
	"github.com/campus-hq/ops-api/pkg/config"
	"github.com/campus-hq/ops-api/pkg/database"
	"github.com/campus-hq/ops-api/pkg/jobs"
	"github.com/campus-hq/ops-api/pkg/logger"
	corsmiddleware "github.com/campus-hq/ops-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campus-hq/ops-api/pkg/middleware/requestid"
)

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
		logr.Sugar().Warnw("redis unavailable, catalog cache disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	// Repositories.
	courseRepo := repository.NewCourseRepository(db)
	runRepo := repository.NewCourseRunRepository(db)
	leadRepo := repository.NewLeadRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	metricsSvc := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, metricsSvc, logr)

	// Domain event dispatcher.
	eventSvc := service.NewEventService(auditRepo, metricsSvc, jobs.QueueConfig{
		Workers:    cfg.Events.Workers,
		BufferSize: cfg.Events.BufferSize,
		MaxRetries: cfg.Events.MaxRetries,
		RetryDelay: cfg.Events.RetryDelay,
	}, logr)
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eventSvc.Start(rootCtx)
	defer eventSvc.Stop()

	// Services.
	catalogSvc := service.NewCatalogService(courseRepo, nil, cfg.Catalog.CacheTTL, validate, logr)
	if cfg.Catalog.CacheEnabled {
		catalogSvc = service.NewCatalogService(courseRepo, cacheRepo, cfg.Catalog.CacheTTL, validate, logr)
	}
	publicationSvc := service.NewPublicationService(courseRepo, eventSvc, eventSvc, logr)
	runSvc := service.NewCourseRunService(runRepo, courseRepo, eventSvc, validate, logr)
	scoringSvc := service.NewLeadScoringService()
	leadSvc := service.NewLeadService(leadRepo, scoringSvc, eventSvc, cfg.Leads.AutoScore, cfg.Leads.QualificationThreshold, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, runRepo, studentRepo, eventSvc,
		cfg.Enrollments.WaitlistEnabled, cfg.Enrollments.AutoPromote, validate, logr)
	conversionSvc := service.NewLeadConversionService(leadRepo, studentRepo, runRepo,
		enrollmentRepo, enrollmentSvc, nil, eventSvc, validate, logr)
	sessionSvc := service.NewSessionService(sessionRepo, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, sessionRepo, enrollmentRepo, validate, logr)
	exportSvc := service.NewExportService(enrollmentRepo, runRepo, logr)

	graduation := attendanceSvc.GraduationCheck(service.DefaultGraduationAttendanceThreshold)

	// Handlers.
	courseHandler := handler.NewCourseHandler(catalogSvc, publicationSvc)
	runHandler := handler.NewCourseRunHandler(runSvc)
	leadHandler := handler.NewLeadHandler(leadSvc, conversionSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc, graduation)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
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

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	v1 := r.Group(cfg.APIPrefix)

	courses := v1.Group("/courses")
	courses.GET("", courseHandler.List)
	courses.GET("/published", courseHandler.ListPublished)
	courses.GET("/slug/:slug", courseHandler.GetBySlug)
	courses.GET("/:id", courseHandler.Get)
	courses.GET("/:id/transitions", courseHandler.NextStates)
	courses.POST("", courseHandler.Create)
	courses.PUT("/:id", courseHandler.Update)
	courses.POST("/:id/transition",
		middleware.Audit(auditRepo, "course.transition", "course"), courseHandler.Transition)

	runs := v1.Group("/course-runs")
	runs.GET("", runHandler.List)
	runs.GET("/:id", runHandler.Get)
	runs.GET("/:id/snapshot", runHandler.Snapshot)
	runs.POST("", runHandler.Create)
	runs.POST("/:id/transition",
		middleware.Audit(auditRepo, "course_run.transition", "course_run"), runHandler.Transition)
	if cfg.Exports.Enabled {
		runs.GET("/:id/roster", exportHandler.Roster)
	}

	leads := v1.Group("/leads")
	leads.GET("", leadHandler.List)
	leads.GET("/:id", leadHandler.Get)
	leads.POST("", leadHandler.Capture)
	leads.PUT("/:id", leadHandler.Update)
	leads.POST("/:id/transition",
		middleware.Audit(auditRepo, "lead.transition", "lead"), leadHandler.Transition)
	leads.POST("/:id/assign", leadHandler.Assign)
	leads.POST("/:id/rescore", leadHandler.Rescore)
	leads.POST("/:id/convert",
		middleware.Audit(auditRepo, "lead.convert", "lead"), leadHandler.Convert)

	enrollments := v1.Group("/enrollments")
	enrollments.GET("", enrollmentHandler.List)
	enrollments.GET("/:id", enrollmentHandler.Get)
	enrollments.GET("/:id/waitlist-position", enrollmentHandler.WaitlistPosition)
	enrollments.POST("", enrollmentHandler.Create)
	enrollments.POST("/:id/confirm",
		middleware.Audit(auditRepo, "enrollment.confirm", "enrollment"), enrollmentHandler.Confirm)
	enrollments.POST("/:id/cancel",
		middleware.Audit(auditRepo, "enrollment.cancel", "enrollment"), enrollmentHandler.Cancel)
	enrollments.POST("/:id/withdraw",
		middleware.Audit(auditRepo, "enrollment.withdraw", "enrollment"), enrollmentHandler.Withdraw)
	enrollments.POST("/:id/complete",
		middleware.Audit(auditRepo, "enrollment.complete", "enrollment"), enrollmentHandler.Complete)
	enrollments.POST("/:id/payment", enrollmentHandler.Payment)
	enrollments.GET("/:id/attendance", attendanceHandler.EnrollmentSummary)

	sessions := v1.Group("/sessions")
	sessions.GET("", sessionHandler.List)
	sessions.GET("/:id", sessionHandler.Get)
	sessions.GET("/:id/attendance", attendanceHandler.SessionSummary)
	sessions.POST("", sessionHandler.Create)
	sessions.POST("/recurring", sessionHandler.CreateRecurring)
	sessions.POST("/recurring/preview", sessionHandler.PreviewRecurring)
	sessions.POST("/:id/close", sessionHandler.Close)

	attendance := v1.Group("/attendance")
	attendance.POST("", attendanceHandler.Mark)
	attendance.POST("/bulk", attendanceHandler.MarkBulk)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("server shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	if err := cacheRepo.Close(); err != nil {
		logr.Sugar().Warnw("failed to close redis", "error", err)
	}
}
