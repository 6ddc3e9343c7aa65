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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/lumina-edu/lms-api/api/swagger"
	"github.com/lumina-edu/lms-api/internal/handler"
	internalmiddleware "github.com/lumina-edu/lms-api/internal/middleware"
	"github.com/lumina-edu/lms-api/internal/models"
	"github.com/lumina-edu/lms-api/internal/repository"
	"github.com/lumina-edu/lms-api/internal/service"
	"github.com/lumina-edu/lms-api/pkg/cache"
	"github.com/lumina-edu/lms-api/pkg/config"
	"github.com/lumina-edu/lms-api/pkg/database"
	"github.com/lumina-edu/lms-api/pkg/jobs"
	"github.com/lumina-edu/lms-api/pkg/logger"
	corsmiddleware "github.com/lumina-edu/lms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/lumina-edu/lms-api/pkg/middleware/requestid"
)

// @title Lumina LMS API
// @version 1.0.0
// @description Course catalog, enrollment, coursework and presentation notifications
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The unread counter degrades to live counts without Redis.
		logr.Sugar().Warnw("redis unavailable, unread cache disabled", "error", err)
		redisClient = nil
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := service.NewMetricsService(registry)
	httpMetrics := internalmiddleware.NewHTTPMetrics(registry)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	presentationRepo := repository.NewPresentationRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	userService := service.NewUserService(userRepo, logr)
	courseService := service.NewCourseService(courseRepo, validate, logr)
	assignmentService := service.NewAssignmentService(assignmentRepo, courseRepo, validate, logr)
	notificationService := service.NewNotificationService(notificationRepo, userRepo, presentationRepo, cacheRepo, metrics, logr, service.NotificationConfig{
		TTL:            cfg.Notifications.TTL,
		UnreadCacheTTL: cfg.Notifications.UnreadCacheTTL,
	})

	queue := jobs.NewQueue("presentation-events", notificationService.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Notifications.WorkerConcurrency,
		BufferSize: cfg.Notifications.QueueBuffer,
		MaxRetries: cfg.Notifications.DispatchRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})

	presentationService := service.NewPresentationService(presentationRepo, courseRepo, queue, validate, logr)
	reportService := service.NewReportService(courseRepo, assignmentRepo, presentationRepo, userRepo, logr)

	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	courseHandler := handler.NewCourseHandler(courseService, metrics)
	assignmentHandler := handler.NewAssignmentHandler(assignmentService, metrics)
	presentationHandler := handler.NewPresentationHandler(presentationService, metrics)
	notificationHandler := handler.NewNotificationHandler(notificationService)
	reportHandler := handler.NewReportHandler(reportService, cfg.Reports.Enabled)
	metricsHandler := handler.NewMetricsHandler(registry, func() error { return db.Ping() })

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(httpMetrics.Handler())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", internalmiddleware.JWT(authService), authHandler.Logout)
		auth.PUT("/password", internalmiddleware.JWT(authService), authHandler.ChangePassword)
		auth.GET("/me", internalmiddleware.JWT(authService), authHandler.Me)
	}

	authed := api.Group("")
	authed.Use(internalmiddleware.JWT(authService))

	courses := authed.Group("/courses")
	{
		courses.GET("", courseHandler.List)
		courses.POST("", internalmiddleware.RequireRoles(models.RoleLecturer, models.RoleAdmin), courseHandler.Create)
		courses.GET("/:id", courseHandler.Get)
		courses.PUT("/:id", internalmiddleware.RequireRoles(models.RoleLecturer, models.RoleAdmin), courseHandler.Update)
		courses.POST("/:id/enroll", internalmiddleware.RequireRoles(models.RoleStudent), courseHandler.Enroll)
		courses.DELETE("/:id/enroll", internalmiddleware.RequireRoles(models.RoleStudent), courseHandler.Unenroll)
		courses.GET("/:id/roster", internalmiddleware.RequireRoles(models.RoleLecturer, models.RoleAdmin), courseHandler.Roster)
		courses.GET("/:id/assignments", assignmentHandler.ListByCourse)
		courses.POST("/:id/assignments", internalmiddleware.RequireRoles(models.RoleLecturer, models.RoleAdmin), assignmentHandler.Create)
		courses.GET("/:id/reports/grades", internalmiddleware.RequireRoles(models.RoleLecturer, models.RoleAdmin), reportHandler.GradeReport)
	}

	assignments := authed.Group("/assignments")
	{
		assignments.GET("/:id", assignmentHandler.Get)
		assignments.POST("/:id/submissions", internalmiddleware.RequireRoles(models.RoleStudent), assignmentHandler.Submit)
		assignments.GET("/:id/submissions", internalmiddleware.RequireRoles(models.RoleLecturer, models.RoleAdmin), assignmentHandler.ListSubmissions)
		assignments.POST("/:id/grade", internalmiddleware.RequireRoles(models.RoleLecturer, models.RoleAdmin), assignmentHandler.Grade)
	}

	presentations := authed.Group("/presentations")
	{
		presentations.GET("", internalmiddleware.RequireRoles(models.RoleLecturer, models.RoleAdmin), presentationHandler.List)
		presentations.POST("", internalmiddleware.RequireRoles(models.RoleLecturer, models.RoleAdmin), presentationHandler.Create)
		presentations.GET("/:id", internalmiddleware.RequireRoles(models.RoleLecturer, models.RoleAdmin), presentationHandler.Get)
		presentations.PUT("/:id", internalmiddleware.RequireRoles(models.RoleLecturer, models.RoleAdmin), presentationHandler.Update)
		presentations.DELETE("/:id", internalmiddleware.RequireRoles(models.RoleLecturer, models.RoleAdmin), presentationHandler.Cancel)
		presentations.POST("/:id/submissions", internalmiddleware.RequireRoles(models.RoleStudent), presentationHandler.Submit)
		presentations.GET("/:id/submissions", internalmiddleware.RequireRoles(models.RoleLecturer, models.RoleAdmin), presentationHandler.ListSubmissions)
		presentations.POST("/:id/grade", internalmiddleware.RequireRoles(models.RoleLecturer, models.RoleAdmin), presentationHandler.Grade)
		presentations.GET("/:id/notifications", internalmiddleware.RequireRoles(models.RoleLecturer, models.RoleAdmin), presentationHandler.NotificationLog)
	}

	student := authed.Group("/student")
	student.Use(internalmiddleware.RequireRoles(models.RoleStudent))
	{
		student.GET("/courses", courseHandler.ListEnrolled)
		student.GET("/presentations", presentationHandler.ListMine)
		student.GET("/presentations/:id", presentationHandler.GetMine)
	}

	notifications := authed.Group("/notifications")
	{
		notifications.GET("", notificationHandler.List)
		notifications.GET("/unread-count", notificationHandler.UnreadCount)
		notifications.POST("/read-all", notificationHandler.MarkAllRead)
		notifications.PUT("/:id/read", notificationHandler.MarkRead)
		notifications.PUT("/:id/archive", notificationHandler.Archive)
		notifications.DELETE("/:id", notificationHandler.Delete)
	}

	users := authed.Group("/users")
	users.Use(internalmiddleware.RequireRoles(models.RoleAdmin))
	{
		users.GET("", userHandler.List)
		users.GET("/:id", userHandler.Get)
		users.PUT("/:id/active", userHandler.SetActive)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue.Start(rootCtx)
	defer queue.Stop()

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

	<-rootCtx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
