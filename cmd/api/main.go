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
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/studentcrm/studentcrm-api/api/swagger"
	"github.com/studentcrm/studentcrm-api/internal/handler"
	"github.com/studentcrm/studentcrm-api/internal/identity"
	"github.com/studentcrm/studentcrm-api/internal/middleware"
	"github.com/studentcrm/studentcrm-api/internal/models"
	"github.com/studentcrm/studentcrm-api/internal/repository"
	"github.com/studentcrm/studentcrm-api/internal/service"
	"github.com/studentcrm/studentcrm-api/pkg/config"
	"github.com/studentcrm/studentcrm-api/pkg/database"
	"github.com/studentcrm/studentcrm-api/pkg/logger"
	"github.com/studentcrm/studentcrm-api/pkg/mailer"
	corsmiddleware "github.com/studentcrm/studentcrm-api/pkg/middleware/cors"
	reqidmiddleware "github.com/studentcrm/studentcrm-api/pkg/middleware/requestid"
)

// @title Student CRM API
// @version 1.0.0
// @description University administration backend: people, catalog and enrollments
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sender mailer.Sender
	switch cfg.Mail.Provider {
	case "sendgrid":
		sender = mailer.NewSendGridSender(cfg.Mail.APIKey, cfg.Mail.FromName, cfg.Mail.FromEmail)
	default:
		sender = mailer.NewConsoleSender(logr)
	}
	metricsSvc := service.NewMetricsService()
	dispatcher := mailer.NewDispatcher(sender, mailer.DispatcherConfig{
		Workers:    cfg.Mail.Workers,
		Logger:     logr,
		OnDispatch: func(mailer.Message) { metricsSvc.CountMailDispatched() },
	})
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	validate := validator.New()

	accountRepo := repository.NewAccountRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	coordinatorRepo := repository.NewCoordinatorRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	termRepo := repository.NewTermRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)

	tokenStore := identity.NewRedisTokenStore(redisClient)
	ids := identity.NewStore(accountRepo, tokenStore, cfg.Identity.ResetTokenTTL, logr)

	tempLength := cfg.Identity.TempPasswordLength
	authSvc := service.NewAuthService(ids, dispatcher, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	studentSvc := service.NewStudentService(studentRepo, enrollmentRepo, ids, dispatcher, tempLength, validate, logr)
	teacherSvc := service.NewTeacherService(teacherRepo, ids, dispatcher, tempLength, validate, logr)
	coordinatorSvc := service.NewCoordinatorService(coordinatorRepo, ids, dispatcher, tempLength, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, sectionRepo, validate, logr)
	termSvc := service.NewTermService(termRepo, sectionRepo, validate, logr)
	sectionSvc := service.NewSectionService(sectionRepo, courseRepo, termRepo, teacherRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, studentRepo, sectionRepo, validate, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	teacherHandler := handler.NewTeacherHandler(teacherSvc)
	coordinatorHandler := handler.NewCoordinatorHandler(coordinatorSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	termHandler := handler.NewTermHandler(termSvc)
	sectionHandler := handler.NewSectionHandler(sectionSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/forgot-password", authHandler.ForgotPassword)
	auth.POST("/reset-password", authHandler.ResetPassword)
	auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
	auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)

	secured := api.Group("")
	secured.Use(middleware.JWT(authSvc))

	admin := middleware.RBAC(models.RoleAdmin, models.RoleCoordinator)
	staff := middleware.RBAC(models.RoleAdmin, models.RoleCoordinator, models.RoleTeacher)

	students := secured.Group("/students")
	students.GET("", staff, studentHandler.List)
	students.GET("/:id", middleware.RBAC(models.RoleAdmin, models.RoleCoordinator, models.RoleTeacher, middleware.RoleSelf), studentHandler.Get)
	students.POST("", admin, studentHandler.Create)
	students.PATCH("/:id", admin, studentHandler.Update)
	students.DELETE("/:id", admin, studentHandler.Delete)
	students.POST("/:id/reset-password", admin, studentHandler.ResetPassword)

	teachers := secured.Group("/teachers")
	teachers.GET("", staff, teacherHandler.List)
	teachers.GET("/:id", middleware.RBAC(models.RoleAdmin, models.RoleCoordinator, middleware.RoleSelf), teacherHandler.Get)
	teachers.POST("", admin, teacherHandler.Create)
	teachers.PATCH("/:id", admin, teacherHandler.Update)
	teachers.DELETE("/:id", admin, teacherHandler.Delete)
	teachers.POST("/:id/reset-password", admin, teacherHandler.ResetPassword)

	coordinators := secured.Group("/coordinators")
	coordinators.GET("", admin, coordinatorHandler.List)
	coordinators.GET("/:id", middleware.RBAC(models.RoleAdmin, middleware.RoleSelf), coordinatorHandler.Get)
	coordinators.POST("", middleware.RBAC(models.RoleAdmin), coordinatorHandler.Create)
	coordinators.PATCH("/:id", middleware.RBAC(models.RoleAdmin), coordinatorHandler.Update)
	coordinators.DELETE("/:id", middleware.RBAC(models.RoleAdmin), coordinatorHandler.Delete)
	coordinators.POST("/:id/reset-password", middleware.RBAC(models.RoleAdmin), coordinatorHandler.ResetPassword)

	courses := secured.Group("/courses")
	courses.GET("", courseHandler.List)
	courses.GET("/:id", courseHandler.Get)
	courses.POST("", admin, courseHandler.Create)
	courses.PATCH("/:id", admin, courseHandler.Update)
	courses.DELETE("/:id", admin, courseHandler.Delete)

	terms := secured.Group("/terms")
	terms.GET("", termHandler.List)
	terms.GET("/:id", termHandler.Get)
	terms.POST("", admin, termHandler.Create)
	terms.PATCH("/:id", admin, termHandler.Update)
	terms.DELETE("/:id", admin, termHandler.Delete)

	sections := secured.Group("/sections")
	sections.GET("", sectionHandler.List)
	sections.GET("/:id", sectionHandler.Get)
	sections.POST("", admin, sectionHandler.Create)
	sections.PATCH("/:id", admin, sectionHandler.Update)
	sections.DELETE("/:id", admin, sectionHandler.Delete)

	enrollments := secured.Group("/enrollments")
	enrollments.GET("", staff, enrollmentHandler.List)
	enrollments.GET("/:id", staff, enrollmentHandler.Get)
	enrollments.POST("", admin, enrollmentHandler.Enroll)
	enrollments.PATCH("/:id", staff, enrollmentHandler.Update)
	enrollments.DELETE("/:id", admin, enrollmentHandler.Delete)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
