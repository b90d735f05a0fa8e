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

	_ "github.com/tams-dev/tams-api/api/swagger"
	"github.com/tams-dev/tams-api/internal/handler"
	"github.com/tams-dev/tams-api/internal/middleware"
	"github.com/tams-dev/tams-api/internal/models"
	"github.com/tams-dev/tams-api/internal/repository"
	"github.com/tams-dev/tams-api/internal/service"
	"github.com/tams-dev/tams-api/migrations"
	"github.com/tams-dev/tams-api/pkg/cache"
	"github.com/tams-dev/tams-api/pkg/config"
	"github.com/tams-dev/tams-api/pkg/database"
	"github.com/tams-dev/tams-api/pkg/jobs"
	"github.com/tams-dev/tams-api/pkg/logger"
	corsmiddleware "github.com/tams-dev/tams-api/pkg/middleware/cors"
	reqidmiddleware "github.com/tams-dev/tams-api/pkg/middleware/requestid"
	"github.com/tams-dev/tams-api/pkg/storage"
)

// @title TAMS API
// @version 1.0.0
// @description Teaching assistant management portal
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
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	if cfg.Database.Migrate {
		if err := database.Migrate(ctx, db, migrations.FS); err != nil {
			logr.Sugar().Fatalw("failed to run migrations", "error", err)
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The dashboard cache degrades to direct queries without Redis.
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	examRepo := repository.NewExamRepository(db)
	leaveRepo := repository.NewLeaveRepository(db)
	proctoringRepo := repository.NewProctoringRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	workloadRepo := repository.NewWorkloadRepository(db)
	swapRepo := repository.NewSwapRepository(db)
	reportRepo := repository.NewReportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	notificationSvc := service.NewNotificationService(notificationRepo, userRepo, logr)
	workloadSvc := service.NewWorkloadService(workloadRepo, logr)
	replacementSvc := service.NewReplacementService(userRepo, proctoringRepo, notificationSvc, service.DeptFirstRanking{
		MaxActiveAssignments: cfg.Replacement.MaxActiveAssignments,
	}, logr)
	proctoringSvc := service.NewProctoringService(proctoringRepo, examRepo, userRepo, workloadSvc, notificationSvc, userRepo, validate, logr)
	leaveSvc := service.NewLeaveService(leaveRepo, proctoringRepo, replacementSvc, examRepo, workloadSvc, notificationSvc, userRepo, validate, logr)
	swapSvc := service.NewSwapService(swapRepo, proctoringRepo, examRepo, userRepo, workloadSvc, notificationSvc, userRepo, validate, logr)
	examSvc := service.NewExamService(examRepo, userRepo, validate, logr)
	dashboardSvc := service.NewDashboardService(leaveRepo, proctoringRepo, examRepo, notificationRepo, workloadRepo, cacheRepo, cfg.Dashboard.CacheTTL, logr)

	fileStore, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init report storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	exportSvc := service.NewExportService(reportRepo, fileStore, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Reports.SignedURLTTL,
	}, logr, nil, nil)

	reportWorker := service.NewReportWorker(reportRepo, exportSvc, cfg.Reports.WorkerRetries, logr)
	reportQueue := jobs.NewQueue("reports", reportWorker.Handle, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		Logger:     logr,
	})
	reportSvc := service.NewReportService(reportRepo, reportQueue, exportSvc, validate, logr, service.ReportServiceConfig{
		ResultTTL:       cfg.Reports.SignedURLTTL,
		CleanupInterval: cfg.Reports.CleanupInterval,
		MaxRetries:      cfg.Reports.WorkerRetries,
	})

	authHandler := handler.NewAuthHandler(authSvc)
	leaveHandler := handler.NewLeaveHandler(leaveSvc, metricsSvc)
	examHandler := handler.NewExamHandler(examSvc)
	proctoringHandler := handler.NewProctoringHandler(proctoringSvc)
	swapHandler := handler.NewSwapHandler(swapSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc, metricsSvc)
	reportHandler := handler.NewReportHandler(reportSvc, metricsSvc)
	workloadHandler := handler.NewWorkloadHandler(workloadSvc)

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

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	// Report downloads are authorized by signed token, not by session.
	api.GET("/reports/download/:token", reportHandler.Download)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))
	{
		leaves := protected.Group("/leave-requests")
		{
			leaves.POST("", middleware.RequireRoles(models.RoleTA), leaveHandler.Create)
			leaves.GET("", leaveHandler.List)
			leaves.GET("/:id", leaveHandler.Get)

			decide := leaves.Group("")
			decide.Use(middleware.RequireRoles(models.RoleInstructor, models.RoleSecretary, models.RoleDean))
			decide.POST("/:id/approve", middleware.Audit(userRepo, "LEAVE_APPROVE_REQUEST", "leave_request"), leaveHandler.Approve)
			decide.POST("/:id/reject", middleware.Audit(userRepo, "LEAVE_REJECT_REQUEST", "leave_request"), leaveHandler.Reject)
		}

		exams := protected.Group("/exams")
		{
			exams.GET("", examHandler.List)
			exams.GET("/:id", examHandler.Get)
			exams.GET("/:id/instructors", examHandler.Instructors)
			exams.POST("", middleware.RequireRoles(models.RoleSecretary), examHandler.Create)
			exams.POST("/:id/proctors", middleware.RequireRoles(models.RoleSecretary), proctoringHandler.Assign)
		}

		assignments := protected.Group("/assignments")
		{
			assignments.GET("/mine", middleware.RequireRoles(models.RoleTA), proctoringHandler.Mine)
			assignments.POST("/:id/accept", middleware.RequireRoles(models.RoleTA), proctoringHandler.Accept)
			assignments.POST("/:id/reject", middleware.RequireRoles(models.RoleTA), proctoringHandler.Reject)
		}

		swaps := protected.Group("/swap-requests")
		swaps.Use(middleware.RequireRoles(models.RoleTA))
		{
			swaps.POST("", swapHandler.Create)
			swaps.GET("/mine", swapHandler.Mine)
			swaps.POST("/:id/accept", swapHandler.Accept)
			swaps.POST("/:id/decline", swapHandler.Decline)
			swaps.DELETE("/:id", swapHandler.Cancel)
		}

		notifications := protected.Group("/notifications")
		{
			notifications.GET("", notificationHandler.List)
			notifications.GET("/unread-count", notificationHandler.UnreadCount)
			notifications.POST("/:id/read", notificationHandler.MarkRead)
		}

		if cfg.Dashboard.Enabled {
			protected.GET("/dashboard/summary", middleware.WithResponseMeta(), dashboardHandler.Summary)
		}

		workload := protected.Group("/workload")
		{
			workload.GET("/mine", middleware.RequireRoles(models.RoleTA), workloadHandler.Mine)
			workload.GET("/:id", middleware.RequireRoles(models.RoleDean, models.RoleSecretary), workloadHandler.Get)
		}

		if cfg.Reports.Enabled {
			reports := protected.Group("/reports")
			{
				reports.POST("/generate", reportHandler.Generate)
				reports.GET("/status/:id", reportHandler.Status)
			}
		}
	}

	if cfg.Reports.Enabled {
		reportQueue.Start(ctx)
		reportSvc.RecoverPendingJobs(ctx)
		reportSvc.StartCleanup(ctx)
	}

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
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	if cfg.Reports.Enabled {
		reportQueue.Stop()
	}
}
