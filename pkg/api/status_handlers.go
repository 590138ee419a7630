package api

import (
	"github.com/gofiber/fiber/v2"
	customlog "github.com/open-teleop/turtle-catcher/pkg/log"
	"github.com/open-teleop/turtle-catcher/pkg/processing"
)

// StatusFunc returns the JSON-encodable catcher status
type StatusFunc func() interface{}

// CatcherRoutes holds the sources behind the /api/catcher endpoints
type CatcherRoutes struct {
	Status   StatusFunc
	Metrics  fiber.Handler
	Registry *processing.TopicRegistry
	Pool     *processing.EventPool
	Hub      *TelemetryHub
}

// RegisterCatcherRoutes registers the status API endpoints with the Fiber app.
func RegisterCatcherRoutes(app *fiber.App, routes CatcherRoutes, logger customlog.Logger) {
	apiGroup := app.Group("/api/catcher")

	apiGroup.Get("/status", func(c *fiber.Ctx) error {
		body := fiber.Map{
			"status":  "success",
			"catcher": routes.Status(),
		}
		if routes.Pool != nil {
			body["pool"] = fiber.Map{
				"name":           routes.Pool.GetName(),
				"queue_length":   routes.Pool.GetQueueLength(),
				"queue_capacity": routes.Pool.GetQueueCapacity(),
				"metrics":        poolMetricsJSON(routes.Pool.GetMetrics()),
			}
		}
		if routes.Hub != nil {
			body["telemetry_clients"] = routes.Hub.ClientCount()
		}
		return c.JSON(body)
	})

	apiGroup.Get("/topics", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "success",
			"topics": routes.Registry.GetTopicStats(),
		})
	})

	if routes.Metrics != nil {
		apiGroup.Get("/metrics", routes.Metrics)
	}

	logger.Infof("Registered catcher API endpoints under /api/catcher")
}

func poolMetricsJSON(m processing.PoolMetrics) fiber.Map {
	return fiber.Map{
		"processed":         m.ProcessedCount,
		"errors":            m.ErrorCount,
		"queued":            m.QueuedCount,
		"last_processed_ns": m.LastProcessedTime,
		"processing_avg_us": m.ProcessingTimeAvg,
		"processing_max_us": m.ProcessingTimeMax,
	}
}
