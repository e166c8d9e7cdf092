// Command server runs the dispatcher HTTP front-end: it loads
// configuration, wires the Store/CommandRunner/event publisher, starts
// the dispatcher loop, and serves the HTTP surface until a termination
// signal arrives.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"factotum-server/internal/api"
	"factotum-server/internal/config"
	"factotum-server/internal/dispatcher"
	"factotum-server/internal/events"
	"factotum-server/internal/job"
	"factotum-server/internal/observability"
	"factotum-server/internal/runner"
	"factotum-server/internal/server"
	"factotum-server/internal/store"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		logger = observability.NewDevelopmentLogger()
	}
	defer logger.Sync()
	logger.Info("starting factotum-server", zap.String("version", version))

	ctx := context.Background()

	otelShutdown, err := observability.SetupOpenTelemetry("factotum-server", logger)
	if err != nil {
		logger.Warn("failed to set up OpenTelemetry", zap.Error(err))
	} else {
		defer otelShutdown()
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics()
	metrics.MustRegister(registry)

	jobStore, err := store.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer jobStore.Close()

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NATSURL != "" {
		natsPublisher, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			logger.Warn("failed to connect to NATS, running without event publishing", zap.Error(err))
		} else {
			publisher = natsPublisher
			defer natsPublisher.Close()
		}
	}

	var auditLog *store.AuditLog
	if cfg.PostgresURL != "" {
		pg, err := store.NewPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			logger.Warn("failed to connect to postgres, running without audit trail", zap.Error(err))
		} else {
			defer pg.Close()
			if err := pg.RunMigrations("migrations"); err != nil {
				logger.Warn("failed to run migrations", zap.Error(err))
			}
			auditLog = store.NewAuditLog(pg)
		}
	}

	cmdRunner := runner.NewCommandStore(map[string]string{
		"factotum": cfg.FactotumBin,
	})

	serverID := uuid.New().String()
	mgr := server.NewManager(serverID, cfg.Webhook, cfg.NoColour, cfg.MaxStdouterrSize)

	// A typed-nil *store.AuditLog boxed directly into the AuditLog
	// interface field would compare non-nil and panic on first use, so
	// only assign the field when a Postgres connection actually came up.
	var auditForDispatcher dispatcher.AuditLog
	if auditLog != nil {
		auditForDispatcher = auditLog
	}

	var jobStoreIface job.Store = jobStore
	disp := dispatcher.New(dispatcher.Options{
		MaxJobs:    cfg.MaxJobs,
		MaxWorkers: cfg.MaxWorkers,
		Store:      jobStoreIface,
		Runner:     cmdRunner,
		Logger:     logger,
		Events:     publisher,
		Metrics:    metrics,
		Audit:      auditForDispatcher,
		ServerID:   serverID,
		Namespace:  cfg.ConsulNamespace,
		Command:    "factotum",
	})
	go disp.Run()
	defer func() { disp.Inbox <- dispatcher.StopProcessing{} }()

	handlers := api.NewHandlers(logger, disp, jobStoreIface, cmdRunner, mgr, auditLog, cfg.ConsulNamespace, version)

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			logger.Error("fiber error", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "internal server error"})
		},
	})
	api.SetupRoutes(app, logger, metrics, registry, handlers)

	go func() {
		addr := cfg.IP + ":" + strconv.FormatUint(uint64(cfg.Port), 10)
		if err := app.Listen(addr); err != nil {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()
	logger.Info("factotum-server listening", zap.String("ip", cfg.IP), zap.Uint32("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("failed to shut down gracefully", zap.Error(err))
	}
	logger.Info("factotum-server stopped")
}
