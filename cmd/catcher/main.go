package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/open-teleop/turtle-catcher/domain/catcher"
	"github.com/open-teleop/turtle-catcher/domain/diagnostic"
	"github.com/open-teleop/turtle-catcher/pkg/api"
	"github.com/open-teleop/turtle-catcher/pkg/config"
	customlog "github.com/open-teleop/turtle-catcher/pkg/log"
	"github.com/open-teleop/turtle-catcher/pkg/processing"
	"github.com/open-teleop/turtle-catcher/pkg/zeromq"
	"github.com/open-teleop/turtle-catcher/services"
	"github.com/pebbe/zmq4"
)

func main() {
	configDir := flag.String("config-dir", defaultConfigDir(), "directory containing "+config.BootstrapFileName)
	flag.Parse()

	bootstrap, err := config.LoadBootstrapConfig(*configDir)
	if err != nil {
		log.Fatalf("Failed to load bootstrap config: %v", err)
	}

	logger, err := customlog.NewLogrusLogger(bootstrap.Logging.Level, bootstrap.Logging.LogPath)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	logger.Infof("Turtle catcher starting (config dir %s)", *configDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, bootstrap, logger); err != nil {
		logger.Fatalf("Turtle catcher stopped: %v", err)
	}
	logger.Infof("Turtle catcher exited properly")
}

func defaultConfigDir() string {
	if dir := os.Getenv("CATCHER_CONFIG_DIR"); dir != "" {
		return dir
	}
	return "./config"
}

// run wires the catcher and blocks until ctx ends or a fatal error occurs.
func run(ctx context.Context, bootstrap *config.BootstrapConfig, logger customlog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	configService, err := services.NewBridgeConfigService(bootstrap.Data.BridgeConfigPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to load bridge config: %w", err)
	}
	cfg := configService.GetCurrentConfig()

	registry := processing.NewTopicRegistry(logger)
	registry.LoadFromConfig(cfg)

	zctx, err := zmq4.NewContext()
	if err != nil {
		return fmt.Errorf("failed to create ZeroMQ context: %w", err)
	}
	defer zctx.Term()

	zmqLogger := logger.WithField("component", "zeromq")
	subscriber, err := zeromq.NewTopicSubscriber(zctx, zeromq.ModeConnect, bootstrap.ZeroMQ.PoseSubscribeAddress, []string{cfg.PoseTopic()}, zmqLogger)
	if err != nil {
		return err
	}
	defer subscriber.Close()

	publisher, err := zeromq.NewTopicPublisher(zctx, zeromq.ModeConnect, bootstrap.ZeroMQ.CommandPublishAddress, zmqLogger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	client, err := zeromq.NewServiceClient(zctx, bootstrap.ZeroMQ.ServiceRequestAddress, bootstrap.ZeroMQ.RequestTimeout(), zmqLogger)
	if err != nil {
		return err
	}
	defer client.Close()

	bridge, err := catcher.NewZeroMQBridge(client, publisher, cfg, registry, zmqLogger)
	if err != nil {
		return err
	}
	bridge.SetServiceTimeout(bootstrap.ZeroMQ.ServiceTimeout())

	diagnosticService := diagnostic.NewDiagnosticService()
	hub := api.NewTelemetryHub(logger.WithField("component", "telemetry"))
	go hub.Run(ctx)

	telemetry := catcher.ObserverFunc(func(ev catcher.Evaluation) {
		if err := hub.BroadcastJSON(ev); err != nil {
			logger.Debugf("Failed to encode telemetry: %v", err)
		}
	})
	node := catcher.NewNode(bridge.Bridge(), nil, logger,
		catcher.WithObserver(diagnosticService),
		catcher.WithObserver(telemetry),
	)

	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("failed to spawn first goal: %w", err)
	}

	pool := processing.NewEventPool("pose", bootstrap.ZeroMQ.MessageBufferSize, logger)
	pool.SetHandler(catcher.PoseEventHandler(node, registry, logger))

	var app *fiber.App
	if bootstrap.Server.HTTPPort > 0 {
		app = newStatusApp(node, diagnosticService, registry, pool, hub, configService, logger)
		go func() {
			addr := ":" + strconv.Itoa(bootstrap.Server.HTTPPort)
			logger.Infof("Status server starting on %s", addr)
			if err := app.Listen(addr); err != nil {
				logger.Errorf("Status server failed: %v", err)
			}
		}()
	}

	pool.Start(ctx)
	defer pool.Stop()

	subErr := make(chan error, 1)
	go func() {
		subErr <- subscriber.Run(ctx, func(ctx context.Context, topic string, payload []byte) error {
			return pool.Enqueue(ctx, processing.Event{Topic: topic, Payload: payload, ReceivedAt: time.Now()})
		})
	}()

	var runErr error
	subDone := false
	select {
	case <-ctx.Done():
		logger.Infof("Shutdown requested")
	case <-pool.Done():
		runErr = pool.Err()
	case err := <-subErr:
		subDone = true
		if err != nil && !errors.Is(err, processing.ErrPoolStopped) {
			runErr = fmt.Errorf("pose subscriber failed: %w", err)
		} else {
			runErr = pool.Err()
		}
	}

	cancel()
	if !subDone {
		<-subErr
	}

	if app != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Warnf("Status server forced to shutdown: %v", err)
		}
	}

	return runErr
}

func newStatusApp(node *catcher.Node, diagnosticService *diagnostic.DiagnosticService, registry *processing.TopicRegistry,
	pool *processing.EventPool, hub *api.TelemetryHub, configService services.BridgeConfigService, logger customlog.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Turtle Catcher",
		ErrorHandler:          customErrorHandler,
		DisableStartupMessage: true,
	})

	app.Use(fiberlogger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	api.RegisterCatcherRoutes(app, api.CatcherRoutes{
		Status:   func() interface{} { return node.Status() },
		Metrics:  diagnosticService.GetMetricsHandler,
		Registry: registry,
		Pool:     pool,
		Hub:      hub,
	}, logger)
	api.RegisterConfigRoutes(app, configService, logger)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/telemetry", websocket.New(api.TelemetryWebSocketHandler(hub, logger)))

	return app
}

// Custom error handler
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
