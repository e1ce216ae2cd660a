package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/enrich-engine/internal/config"
	"github.com/kursadbilgin/enrich-engine/internal/handler"
	"github.com/kursadbilgin/enrich-engine/internal/infra/postgresql"
	"github.com/kursadbilgin/enrich-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/enrich-engine/internal/infra/redis"
	"github.com/kursadbilgin/enrich-engine/internal/notifier"
	"github.com/kursadbilgin/enrich-engine/internal/observability"
	"github.com/kursadbilgin/enrich-engine/internal/provider"
	"github.com/kursadbilgin/enrich-engine/internal/repository"
	"github.com/kursadbilgin/enrich-engine/internal/service"
	"github.com/kursadbilgin/enrich-engine/internal/transport"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.SubmitRatePerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	signalhire, err := provider.NewSignalHireClient(cfg.SignalHireAPIBaseURL, cfg.SignalHireAPIPrefix, cfg.SignalHireAPIKey)
	if err != nil {
		logger.Fatal("provider client initialization failed", zap.Error(err))
	}

	var mailer notifier.Notifier
	if cfg.SMTPEnabled() {
		smtp, err := notifier.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
		if err != nil {
			logger.Fatal("smtp notifier initialization failed", zap.Error(err))
		}
		mailer = smtp
	} else {
		logger.Warn("smtp settings missing, result emails disabled")
	}

	batchRepo := repository.NewGormBatchRepo(db)
	correlationRepo := repository.NewGormCorrelationRepo(db)
	resultRepo := repository.NewGormResultRepo(db)

	metrics := observability.NewMetrics()

	batchService, err := service.NewBatchService(
		batchRepo,
		correlationRepo,
		signalhire,
		limiter,
		cfg.CallbackURL(),
		cfg.SubmitConcurrency,
		logger,
	)
	if err != nil {
		logger.Fatal("batch service initialization failed", zap.Error(err))
	}
	batchService.SetMetrics(metrics)

	callbackService := service.NewCallbackService(batchRepo, correlationRepo, resultRepo, mailer, logger)
	callbackService.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
		BodyLimit:    10 << 20,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	if err := handler.RegisterBatchRoutes(app, batchService, callbackService, signalhire); err != nil {
		logger.Fatal("batch route registration failed", zap.Error(err))
	}
	if err := handler.RegisterCallbackRoutes(app, callbackService); err != nil {
		logger.Fatal("callback route registration failed", zap.Error(err))
	}

	go func() {
		logger.Info("enrich-engine api started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	if err := app.Shutdown(); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
}
