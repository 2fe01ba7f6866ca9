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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/sentraops/siteops-api/api/swagger"
	"github.com/sentraops/siteops-api/internal/handler"
	"github.com/sentraops/siteops-api/internal/middleware"
	"github.com/sentraops/siteops-api/internal/models"
	"github.com/sentraops/siteops-api/internal/repository"
	"github.com/sentraops/siteops-api/internal/service"
	"github.com/sentraops/siteops-api/pkg/cache"
	"github.com/sentraops/siteops-api/pkg/config"
	"github.com/sentraops/siteops-api/pkg/database"
	"github.com/sentraops/siteops-api/pkg/jobs"
	"github.com/sentraops/siteops-api/pkg/lock"
	"github.com/sentraops/siteops-api/pkg/logger"
	corsmiddleware "github.com/sentraops/siteops-api/pkg/middleware/cors"
	reqidmiddleware "github.com/sentraops/siteops-api/pkg/middleware/requestid"
	"github.com/sentraops/siteops-api/pkg/retry"
)

// @title SiteOps API
// @version 0.1.0
// @description Facility operations API: guarded state transitions, tracked changesets, approvals
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
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	lockManager := lock.NewRedisManager(redisClient, cfg.Lock.PollInterval)
	lockPolicy := retry.Policy{
		MaxAttempts: cfg.Lock.MaxRetries,
		BaseDelay:   cfg.Lock.RetryBaseDelay,
		MaxDelay:    cfg.Lock.BlockingTimeout,
		Retryable:   func(err error) bool { return err == lock.ErrNotAcquired },
	}

	auditRepo := repository.NewAuditRepository(db)
	workOrderRepo := repository.NewWorkOrderRepository(db)
	jobRepo := repository.NewJobRepository(db)
	jobneedRepo := repository.NewJobneedRepository(db)
	siteRepo := repository.NewSiteRepository(db)
	shiftRepo := repository.NewShiftRepository(db)
	changesetRepo := repository.NewChangeSetRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	ticketRepo := repository.NewTicketRepository(db)
	userRepo := repository.NewUserRepository(db)

	metricsService := service.NewMetricsService()

	authService := service.NewAuthService(userRepo, auditRepo, validator.New(), logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            "siteops-api",
		Audience:          []string{"siteops"},
	})

	stateMachine := service.NewStateMachineService(lockManager, auditRepo, logr,
		service.WithTransitionStore(models.EntityKindWorkOrder, workOrderRepo),
		service.WithTransitionStore(models.EntityKindJob, jobRepo),
		service.WithTransitionStore(models.EntityKindJobneed, jobneedRepo),
		service.WithTransitionObserver(metricsService),
		service.WithLockSettings(cfg.Lock.TTL, cfg.Lock.BlockingTimeout, lockPolicy),
	)

	jobneedService := service.NewJobneedService(jobneedRepo, lockManager, logr,
		service.WithJobneedLockSettings(cfg.Lock.TTL, cfg.Lock.BlockingTimeout, lockPolicy),
	)

	changesetSettings := service.DefaultChangeSetSettings()
	changesetSettings.RiskThreshold = cfg.Changesets.RiskThreshold
	changesetSettings.MaxSingleApprover = cfg.Changesets.MaxSingleApprover
	changesetSettings.DeleteRiskFloor = cfg.Changesets.DeleteRiskFloor
	changesetSettings.RiskPerChange = cfg.Changesets.RiskPerChange
	changesetSettings.ApplyRetry = retry.Policy{
		MaxAttempts: cfg.Changesets.ApplyMaxRetries,
		BaseDelay:   cfg.Changesets.ApplyRetryBase,
		MaxDelay:    10 * cfg.Changesets.ApplyRetryBase,
		Retryable:   repository.IsUniqueViolation,
	}

	changesetOpts := []service.ChangeSetServiceOption{
		service.WithEntityAppliers(
			service.NewSiteApplier(siteRepo),
			service.NewShiftApplier(shiftRepo),
		),
		service.WithChangesetObserver(metricsService),
		service.WithChangeSetSettings(changesetSettings),
	}
	if cfg.Approvals.Enabled {
		changesetOpts = append(changesetOpts, service.WithApprovalReader(approvalRepo))
	}
	changesetService := service.NewChangeSetService(changesetRepo, auditRepo, logr, changesetOpts...)

	ticketService := service.NewTicketService(ticketRepo, logr)
	var approvalOpts []service.ApprovalServiceOption
	if cfg.Approvals.EscalationTickets {
		approvalOpts = append(approvalOpts, service.WithEscalationSink(ticketService))
	}
	approvalService := service.NewApprovalService(approvalRepo, changesetRepo, userRepo, changesetService, auditRepo, logr, approvalOpts...)

	exportService := service.NewExportService(auditRepo, cfg.Exports.MaxRows, logr)

	queueCtx, queueCancel := context.WithCancel(context.Background())
	defer queueCancel()
	if cfg.Approvals.EscalationTickets {
		ticketService.StartQueue(queueCtx, jobs.Options{Workers: 2, Logger: logr})
		defer ticketService.StopQueue()
	}

	authHandler := handler.NewAuthHandler(authService)
	transitionHandler := handler.NewTransitionHandler(stateMachine)
	jobneedHandler := handler.NewJobneedHandler(jobneedService)
	changesetHandler := handler.NewChangeSetHandler(changesetService)
	approvalHandler := handler.NewApprovalHandler(approvalService, ticketService)
	auditHandler := handler.NewAuditHandler(auditRepo, exportService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
			return
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "redis unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authService))

	authed.GET("/auth/me", authHandler.Me)
	authed.GET("/metrics/snapshot", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin), metricsHandler.Snapshot)

	authed.POST("/workorders/:id/transitions",
		middleware.Audit(auditRepo, models.AuditActionTransition, "workorder"),
		transitionHandler.TransitionWorkOrder)
	authed.POST("/jobs/:id/transitions",
		middleware.Audit(auditRepo, models.AuditActionTransition, "job"),
		transitionHandler.TransitionJob)
	authed.POST("/jobneeds/:id/transitions",
		middleware.Audit(auditRepo, models.AuditActionTransition, "jobneed"),
		transitionHandler.TransitionJobneed)
	authed.PATCH("/jobneeds/:id/checkpoint",
		middleware.RequireCapability(models.CapCheckpointUpdate),
		jobneedHandler.UpdateCheckpoint)

	authed.POST("/changesets", middleware.RequireCapability(models.CapChangesetCreate), changesetHandler.Create)
	authed.GET("/changesets", changesetHandler.List)
	authed.GET("/changesets/:id", changesetHandler.Get)
	authed.POST("/changesets/:id/apply",
		middleware.RequireCapability(models.CapChangesetApply),
		middleware.Audit(auditRepo, models.AuditActionChangesetApply, "changeset"),
		changesetHandler.Apply)
	authed.POST("/changesets/:id/rollback",
		middleware.RequireCapability(models.CapChangesetRollback),
		middleware.Audit(auditRepo, models.AuditActionChangesetRollback, "changeset"),
		changesetHandler.Rollback)

	if cfg.Approvals.Enabled {
		authed.POST("/changesets/:id/approvals", middleware.RequireCapability(models.CapApprovalDecide), approvalHandler.Open)
		authed.GET("/changesets/:id/approvals", approvalHandler.List)
		authed.GET("/changesets/:id/tickets", approvalHandler.Tickets)
		authed.POST("/approvals/:id/decision", middleware.RequireCapability(models.CapApprovalDecide), approvalHandler.Decide)
	}

	authed.GET("/audit/:kind/:id", auditHandler.Trail)
	if cfg.Exports.Enabled {
		authed.GET("/audit/:kind/:id/export", auditHandler.Export)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
