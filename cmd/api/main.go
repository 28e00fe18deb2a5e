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
	"github.com/ulule/limiter/v3"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"

	_ "github.com/openregistrar/registrar-api/api/swagger"
	"github.com/openregistrar/registrar-api/internal/handler"
	"github.com/openregistrar/registrar-api/internal/middleware"
	"github.com/openregistrar/registrar-api/internal/models"
	"github.com/openregistrar/registrar-api/internal/repository"
	"github.com/openregistrar/registrar-api/internal/service"
	"github.com/openregistrar/registrar-api/pkg/cache"
	"github.com/openregistrar/registrar-api/pkg/config"
	"github.com/openregistrar/registrar-api/pkg/database"
	"github.com/openregistrar/registrar-api/pkg/jobs"
	"github.com/openregistrar/registrar-api/pkg/logger"
	"github.com/openregistrar/registrar-api/pkg/mailer"
	corsmiddleware "github.com/openregistrar/registrar-api/pkg/middleware/cors"
	reqidmiddleware "github.com/openregistrar/registrar-api/pkg/middleware/requestid"
	"github.com/openregistrar/registrar-api/pkg/storage"
)

// @title Registrar API
// @version 1.0.0
// @description Student registration, enrollment and document request workflows
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	cacheEnabled := err == nil
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
	}

	documentStore, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init document storage", "error", err)
	}
	photoStore, err := storage.NewLocalStorage(cfg.Photos.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init photo storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL)

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)

	// Metrics and cache. The cache repository tolerates a nil client, so the
	// session bookkeeping below degrades gracefully when redis is down.
	metricsSvc := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	var cacheSvc *service.CacheService
	if cacheEnabled {
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr, true)
	} else {
		cacheSvc = service.NewCacheService(nil, metricsSvc, cfg.Dashboard.CacheTTL, logr, false)
	}

	// Outbound mail runs through a background queue so request transitions
	// never block on the provider.
	var mail mailer.Mailer
	if cfg.Mail.Provider == "sendgrid" && cfg.Mail.SendgridKey != "" {
		mail = mailer.NewSendgridMailer(cfg.Mail.SendgridKey, cfg.Mail.FromName, cfg.Mail.FromEmail)
	} else {
		mail = mailer.NewConsoleMailer(logr)
	}
	mailQueue := jobs.NewQueue(service.MailQueueName, func(ctx context.Context, job jobs.Job[mailer.Message]) error {
		err := mail.Send(ctx, job.Payload)
		metricsSvc.RecordMailDelivery(err == nil)
		return err
	}, jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		MaxRetries: cfg.Jobs.MaxRetries,
		RetryDelay: cfg.Jobs.RetryDelay,
		Logger:     logr,
	})
	mailQueue.Start(ctx)
	defer mailQueue.Stop()

	// Expired generated documents are swept in the background until shutdown.
	go func() {
		ticker := time.NewTicker(cfg.Documents.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := documentStore.CleanupOlderThan(cfg.Documents.ResultTTL)
				if err != nil {
					logr.Sugar().Warnw("document cleanup failed", "error", err)
					continue
				}
				if len(deleted) > 0 {
					logr.Sugar().Infow("document cleanup", "deleted", len(deleted))
				}
			}
		}
	}()

	// Services.
	authSvc := service.NewAuthService(userRepo, cacheRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		SingleSession:      cfg.JWT.SingleSession,
	})
	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	registrationSvc := service.NewRegistrationService(registrationRepo, studentRepo, userRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, subjectRepo, studentRepo, validate, logr)
	documentSvc := service.NewDocumentService(nil, nil, logr)
	requestSvc := service.NewRequestService(service.RequestServiceDeps{
		Requests:      requestRepo,
		Students:      studentRepo,
		Settings:      settingsRepo,
		Notifications: notificationRepo,
		Audit:         userRepo,
		Documents:     documentSvc,
		Storage:       documentStore,
		Signer:        signer,
		MailQueue:     mailQueue,
		Attachments: service.AttachmentConfig{
			MaxFileSizeBytes: cfg.Documents.MaxAttachmentSizeBytes,
			AllowedMIMEs:     cfg.Documents.AttachmentMIMEs,
		},
		Validator: validate,
		Logger:    logr,
	})
	notificationSvc := service.NewNotificationService(notificationRepo, logr)
	settingsSvc := service.NewSettingsService(settingsRepo, cacheSvc, validate, logr)
	dashboardSvc := service.NewDashboardService(studentRepo, enrollmentRepo, requestRepo, notificationRepo, settingsRepo, cacheSvc, cfg.Dashboard.CacheTTL, logr)
	photoSvc := service.NewPhotoService(studentRepo, photoStore, service.PhotoConfig{
		MaxFileSizeBytes: cfg.Photos.MaxFileSizeBytes,
		AllowedMIMEs:     cfg.Photos.AllowedMIMEs,
	}, logr)
	exportSvc := service.NewExportService(studentRepo, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	studentHandler := handler.NewStudentHandler(studentSvc, exportSvc, photoSvc)
	registrationHandler := handler.NewRegistrationHandler(registrationSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	requestHandler := handler.NewRequestHandler(requestSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)
	settingsHandler := handler.NewSettingsHandler(settingsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

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

	authRequired := middleware.JWT(authSvc, logr)
	staffOnly := middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar)
	registrarOrAccounting := middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar, models.RoleAccounting)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		login := auth.Group("")
		if cfg.RateLimit.Enabled {
			rate, err := limiter.NewRateFromFormatted(cfg.RateLimit.LoginRate)
			if err != nil {
				logr.Sugar().Fatalw("invalid login rate", "rate", cfg.RateLimit.LoginRate, "error", err)
			}
			login.Use(middleware.RateLimit(limiter.New(memorystore.NewStore(), rate), logr))
		}
		login.POST("/login", authHandler.Login)

		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", authRequired, authHandler.Logout)
		auth.POST("/change-password", authRequired, authHandler.ChangePassword)
		auth.GET("/sessions", authRequired, authHandler.LoginHistory)
		auth.GET("/me", authRequired, authHandler.Me)
	}

	students := api.Group("/students", authRequired)
	{
		students.GET("", staffOnly, studentHandler.List)
		students.GET("/export", staffOnly, studentHandler.Export)
		students.GET("/me", studentHandler.Me)
		students.GET("/:id", middleware.RBAC("ADMIN", "REGISTRAR", "ACCOUNTING", "SELF"), studentHandler.Get)
		students.POST("", staffOnly, studentHandler.Create)
		students.PUT("/:id", staffOnly, studentHandler.Update)
		students.DELETE("/:id", staffOnly, middleware.Audit(userRepo, "DEACTIVATE", "student"), studentHandler.Deactivate)
		students.GET("/:id/photo", studentHandler.Photo)
		students.POST("/:id/photo", staffOnly, studentHandler.UploadPhoto)
		students.DELETE("/:id/photo", staffOnly, studentHandler.DeletePhoto)
	}

	// Registration drafts are anonymous: applicants have no account yet.
	registrations := api.Group("/registrations")
	{
		registrations.POST("", registrationHandler.Start)
		registrations.GET("/:id", registrationHandler.Get)
		registrations.PATCH("/:id", registrationHandler.SaveFields)
		registrations.POST("/:id/next", registrationHandler.Next)
		registrations.POST("/:id/back", registrationHandler.Back)
		registrations.POST("/:id/submit", registrationHandler.Submit)
		registrations.DELETE("/:id", registrationHandler.Cancel)
	}

	enrollments := api.Group("/enrollments", authRequired)
	{
		enrollments.GET("", registrarOrAccounting, enrollmentHandler.List)
		enrollments.GET("/:id", registrarOrAccounting, enrollmentHandler.Get)

		drafts := enrollments.Group("/drafts", staffOnly)
		drafts.GET("", enrollmentHandler.DraftByStudent)
		drafts.POST("", enrollmentHandler.StartDraft)
		drafts.POST("/new-student", enrollmentHandler.StartDraftForNewStudent)
		drafts.GET("/:id", enrollmentHandler.GetDraft)
		drafts.POST("/:id/forward", enrollmentHandler.Forward)
		drafts.POST("/:id/back", enrollmentHandler.Backward)
		drafts.POST("/:id/subjects", enrollmentHandler.AddSubject)
		drafts.DELETE("/:id/subjects/:code", enrollmentHandler.RemoveSubject)
		drafts.POST("/:id/complete", enrollmentHandler.Complete)
		drafts.DELETE("/:id", enrollmentHandler.CancelDraft)
	}

	requests := api.Group("/requests", authRequired)
	{
		requests.POST("", requestHandler.Create)
		requests.GET("", requestHandler.List)
		requests.GET("/:id", requestHandler.Get)
		requests.POST("/:id/attachments", requestHandler.AddAttachment)
		requests.GET("/:id/download", requestHandler.DownloadToken)
		requests.POST("/:id/forward", registrarOrAccounting, middleware.Audit(userRepo, "FORWARD", "request"), requestHandler.Forward)
		requests.POST("/:id/approve", registrarOrAccounting, middleware.Audit(userRepo, "APPROVE", "request"), requestHandler.Approve)
		requests.POST("/:id/reject", registrarOrAccounting, middleware.Audit(userRepo, "REJECT", "request"), requestHandler.Reject)
		requests.POST("/:id/finalize", staffOnly, middleware.Audit(userRepo, "FINALIZE", "request"), requestHandler.Finalize)
	}

	// Signed token in the query string is the credential here.
	api.GET("/documents/download", requestHandler.Download)

	notifications := api.Group("/notifications", authRequired)
	{
		notifications.GET("", notificationHandler.List)
		notifications.GET("/unread-count", notificationHandler.UnreadCount)
		notifications.POST("/:id/read", notificationHandler.MarkRead)
		notifications.POST("/read-all", notificationHandler.MarkAllRead)
	}

	api.GET("/dashboard", authRequired, staffOnly, dashboardHandler.Summary)

	settings := api.Group("/settings", authRequired)
	{
		settings.GET("", settingsHandler.Get)
		settings.PUT("", adminOnly, middleware.Audit(userRepo, "UPDATE", "settings"), settingsHandler.Update)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown error", "error", err)
	}

	if redisClient != nil {
		_ = redisClient.Close()
	}
	logr.Sugar().Infow("server stopped")
}
