package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/open-teleop/turtle-catcher/pkg/config"
	customlog "github.com/open-teleop/turtle-catcher/pkg/log"
	"github.com/open-teleop/turtle-catcher/pkg/sim"
	"github.com/pebbe/zmq4"
)

func main() {
	poseAddr := flag.String("pose-addr", "tcp://*:5556", "address to publish poses on")
	cmdAddr := flag.String("cmd-addr", "tcp://*:5557", "address to receive velocity commands on")
	serviceAddr := flag.String("service-addr", "tcp://*:5555", "address to answer service calls on")
	bridgeConfig := flag.String("bridge-config", filepath.Join("config", "bridge_config.yaml"), "bridge mapping file; built-in turtlesim mapping if missing")
	period := flag.Duration("period", 16*time.Millisecond, "simulation step and pose publish interval")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger, err := customlog.NewLogrusLogger(*logLevel, "")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	cfg, err := config.LoadConfig(*bridgeConfig)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Fatalf("Failed to load bridge config: %v", err)
		}
		logger.Warnf("Bridge config %s not found, using turtlesim defaults", *bridgeConfig)
		cfg = config.DefaultConfig()
	}

	zctx, err := zmq4.NewContext()
	if err != nil {
		logger.Fatalf("Failed to create ZeroMQ context: %v", err)
	}

	bridge, err := sim.NewBridge(zctx, sim.NewWorld(), cfg, sim.Addresses{
		Poses:    *poseAddr,
		Commands: *cmdAddr,
		Services: *serviceAddr,
	}, *period, logger)
	if err != nil {
		logger.Fatalf("Failed to start bridge simulator: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Infof("Bridge simulator running (poses %s, commands %s, services %s)", *poseAddr, *cmdAddr, *serviceAddr)
	if err := bridge.Run(ctx); err != nil {
		logger.Errorf("Bridge simulator stopped: %v", err)
	}
	zctx.Term()
	logger.Infof("Bridge simulator exited")
}
