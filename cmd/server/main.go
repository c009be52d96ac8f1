package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/cafeteria-procurement/internal/audit"
	"github.com/iliyamo/cafeteria-procurement/internal/cache"
	"github.com/iliyamo/cafeteria-procurement/internal/config"
	"github.com/iliyamo/cafeteria-procurement/internal/database"
	"github.com/iliyamo/cafeteria-procurement/internal/handler"
	"github.com/iliyamo/cafeteria-procurement/internal/lockout"
	"github.com/iliyamo/cafeteria-procurement/internal/logger"
	"github.com/iliyamo/cafeteria-procurement/internal/middleware"
	"github.com/iliyamo/cafeteria-procurement/internal/queue"
	"github.com/iliyamo/cafeteria-procurement/internal/repository"
	"github.com/iliyamo/cafeteria-procurement/internal/router"
	"github.com/iliyamo/cafeteria-procurement/internal/service"
	"github.com/iliyamo/cafeteria-procurement/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger depends on config, so report through a bootstrap logger.
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}

	log := logger.New(cfg.LogLevel, cfg.Env)
	defer func() { _ = log.Sync() }()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.Migrate(migrateCtx, db); err != nil {
		cancelMigrate()
		log.Fatal("database migration failed", zap.Error(err))
	}
	cancelMigrate()

	// Redis is optional: without it rate limiting and cache invalidation
	// become no-ops.
	rdb, err := cfg.Redis.Open(context.Background())
	if err != nil {
		log.Warn("redis unavailable; rate limiting and cache invalidation disabled", zap.Error(err))
	} else {
		defer rdb.Close()
	}

	recorder := audit.NewRecorder(repository.NewAuditRepo(db), cfg.Audit.BufferSize, log)
	issuer := utils.NewTokenIssuer(cfg.Auth)
	publisher := queue.NewPublisher(cfg.AMQPURL, log)

	svc := service.NewAuthService(service.Deps{
		Users:    repository.NewUserRepo(db),
		Hasher:   utils.NewHasher(cfg.Auth.BcryptCost),
		Tokens:   issuer,
		Lockout:  lockout.NewPolicy(cfg.Auth.LockoutThreshold, cfg.Auth.LockoutDuration),
		ResetTTL: cfg.Auth.ResetTokenTTL,
		Audit:    recorder,
		Cache:    cache.NewInvalidator(cfg.Cache, rdb, log),
		Notifier: publisher,
		Log:      log.Named("auth"),
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = middleware.IPExtractor(cfg.TrustedProxies)
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = handler.ErrorHandler(log)
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(log.Named("http")))
	e.Use(echomw.Recover())
	e.Use(echomw.BodyLimit("1M"))

	router.Register(e, router.Deps{
		Auth:      handler.NewAuthHandler(svc),
		Audit:     handler.NewAuditHandler(repository.NewAuditRepo(db)),
		Health:    handler.Health{DB: db},
		Verifier:  issuer,
		RateLimit: middleware.NewTokenBucket(cfg.RateLimit, rdb, log),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MailConsumerEnabled {
		go func() {
			err := queue.StartMailConsumer(ctx, cfg.AMQPURL, &queue.LogMailer{Dir: "logs"}, log)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("mail consumer stopped", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	recorder.Close()
	log.Info("audit queue drained",
		zap.Uint64("dropped", recorder.Dropped()),
		zap.Uint64("failed", recorder.Failed()))
}
