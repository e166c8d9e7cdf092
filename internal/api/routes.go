package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"factotum-server/internal/observability"
)

// SetupRoutes registers every HTTP surface the dispatcher exposes.
func SetupRoutes(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, registry *prometheus.Registry, handlers *Handlers) {
	SetupMiddleware(app, logger, metrics)

	app.Get("/", handlers.Help)
	app.Get("/help", handlers.Help)
	app.Get("/status", handlers.Status)
	app.Post("/settings", handlers.Settings)
	app.Post("/submit", handlers.Submit)
	app.Get("/check", handlers.Check)
	app.Get("/history", handlers.History)

	app.Get("/healthz", handlers.HealthCheck)
	app.Get("/readyz", handlers.ReadyCheck)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
}
