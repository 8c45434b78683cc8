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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/reposition-api/api/swagger"
	"github.com/noah-isme/reposition-api/internal/handler"
	internalmiddleware "github.com/noah-isme/reposition-api/internal/middleware"
	"github.com/noah-isme/reposition-api/internal/repository"
	"github.com/noah-isme/reposition-api/internal/repository/memstore"
	"github.com/noah-isme/reposition-api/internal/service"
	"github.com/noah-isme/reposition-api/pkg/cache"
	"github.com/noah-isme/reposition-api/pkg/config"
	"github.com/noah-isme/reposition-api/pkg/database"
	"github.com/noah-isme/reposition-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/reposition-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/reposition-api/pkg/middleware/requestid"
)

// @title Reposition API
// @version 1.0.0
// @description Class attendance lifecycle and reposition credit ledger
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics := service.NewMetricsService()
	validate := validator.New()
	tokens := service.NewTokenService(cfg.JWT.Secret)
	checks := map[string]handler.ReadinessCheck{}

	var store repository.Store
	switch cfg.StorageDriver {
	case config.StorageMemory:
		mem := memstore.New()
		memstore.SeedDemo(mem, time.Now())
		store = mem
		if token, err := tokens.IssueToken(memstore.DemoUserID, "", 24*time.Hour); err == nil {
			logr.Info("demo data seeded",
				zap.String("organization_id", memstore.DemoOrganizationID),
				zap.String("class_id", memstore.DemoClassID),
				zap.String("token", token),
			)
		}
	default:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			logr.Fatal("failed to connect database", zap.Error(err))
		}
		defer db.Close()
		if cfg.MigrateOnStart {
			if err := database.Migrate(db, "up"); err != nil {
				logr.Fatal("failed to migrate database", zap.Error(err))
			}
		}
		store = repository.NewPostgresStore(db, metrics)
		checks["database"] = pingDatabase(db)
	}

	var cacheRepo service.CacheRepository = repository.NewCacheRepository(nil, "")
	cacheEnabled := false
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, roster cache disabled", zap.Error(err))
		} else {
			defer client.Close()
			cacheRepo = repository.NewCacheRepository(client, "reposition:")
			cacheEnabled = true
			checks["redis"] = pingRedis(client)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.RosterTTL, logr, cacheEnabled)

	capacity := service.NewCapacityManager(cfg.Capacity.AbsentHoldsSeat)
	scope := service.NewOrganizationScope(store, validate, logr)
	ledger := service.NewCreditLedger(store, metrics, validate, logr)
	roster := service.NewRosterService(store, capacity, cacheSvc, cfg.Cache.RosterTTL, validate, logr)
	attendance := service.NewAttendanceService(store, ledger, roster, validate, logr)
	enrollments := service.NewEnrollmentService(store, capacity, attendance, ledger, roster, metrics, validate, logr)
	displacement := service.NewDisplacementResolver(store, capacity, attendance, ledger, roster, metrics, validate, logr)
	reconciler := service.NewCreditReconciler(store, metrics, validate, logr, service.ReconcilerConfig{
		Workers:    cfg.Reconcile.Workers,
		Retries:    cfg.Reconcile.Retries,
		RetryDelay: time.Second,
		Batch:      cfg.Reconcile.Batch,
		Interval:   cfg.Reconcile.Interval,
	})
	reconciler.Start(ctx)
	defer reconciler.Stop()
	go reconciler.Run(ctx)

	health := handler.NewHealthHandler(checks, metrics.Handler())

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	r.GET("/health", health.Health)
	r.GET("/ready", health.Ready)
	r.GET("/metrics", health.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.Routes{
		Classes:   handler.NewClassHandler(enrollments, roster, displacement),
		Attendees: handler.NewAttendeeHandler(attendance),
		Credits:   handler.NewCreditHandler(ledger, reconciler, service.NewStatementService(store, validate, logr)),
	}.Register(r.Group(cfg.APIPrefix),
		internalmiddleware.JWT(tokens),
		internalmiddleware.Organization(scope),
		internalmiddleware.RateLimit(internalmiddleware.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "storage", cfg.StorageDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func pingDatabase(db *sqlx.DB) handler.ReadinessCheck {
	return func(ctx context.Context) error {
		return db.PingContext(ctx)
	}
}

func pingRedis(client *redis.Client) handler.ReadinessCheck {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
