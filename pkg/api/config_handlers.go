package api

import (
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	customlog "github.com/open-teleop/turtle-catcher/pkg/log"
	"github.com/open-teleop/turtle-catcher/services"
)

// ConfigHandler holds dependencies for configuration API endpoints.
type ConfigHandler struct {
	configService services.BridgeConfigService
	logger        customlog.Logger
}

// NewConfigHandler creates a new handler for configuration endpoints.
func NewConfigHandler(configService services.BridgeConfigService, logger customlog.Logger) *ConfigHandler {
	if configService == nil {
		panic("ConfigService cannot be nil in NewConfigHandler")
	}
	if logger == nil {
		panic("Logger cannot be nil in NewConfigHandler")
	}
	return &ConfigHandler{
		configService: configService,
		logger:        logger,
	}
}

// RegisterConfigRoutes registers the configuration API endpoints with the Fiber app.
func RegisterConfigRoutes(app *fiber.App, configService services.BridgeConfigService, logger customlog.Logger) {
	h := NewConfigHandler(configService, logger)

	apiGroup := app.Group("/api/v1/config")
	apiGroup.Get("/bridge", h.handleGetBridgeConfig)

	logger.Infof("Registered bridge configuration API endpoints under /api/v1/config")
}

// handleGetBridgeConfig returns the effective bridge mapping as YAML.
func (h *ConfigHandler) handleGetBridgeConfig(c *fiber.Ctx) error {
	h.logger.Debugf("Handling GET request for /api/v1/config/bridge")
	yamlData, err := h.configService.GetCurrentConfigYAML()
	if err != nil {
		h.logger.Errorf("Failed to get current bridge config YAML: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("Failed to retrieve configuration: %v", err),
		})
	}

	if yamlData == nil {
		h.logger.Warnf("Bridge configuration requested before it was loaded")
		return c.Status(http.StatusNotFound).JSON(fiber.Map{
			"error": "Bridge configuration not loaded.",
		})
	}

	c.Set(fiber.HeaderContentType, "application/x-yaml")
	return c.Send(yamlData)
}
