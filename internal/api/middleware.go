package api

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"factotum-server/internal/observability"
)

// SetupMiddleware wires recovery, request IDs, CORS, structured request
// logging and Prometheus request metrics. There is no auth or rate
// limiting layer - both are explicit non-goals of this service.
func SetupMiddleware(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics) {
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,X-Request-ID",
	}))

	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		duration := time.Since(start)
		status := c.Response().StatusCode()

		logger.Info("http_request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("duration", duration),
			zap.String("request_id", c.Get("X-Request-ID")),
		)

		if metrics != nil {
			statusLabel := fmt.Sprintf("%d", status)
			metrics.HTTPRequestsTotal.WithLabelValues(c.Method(), c.Route().Path, statusLabel).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(c.Method(), c.Route().Path, statusLabel).Observe(duration.Seconds())
		}

		return err
	})
}
