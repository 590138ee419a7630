package services

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/open-teleop/turtle-catcher/pkg/config"
	customlog "github.com/open-teleop/turtle-catcher/pkg/log"
)

const bridgeYAML = `version: "2.0"
config_id: "lab-turtle"
robot_id: "turtle1"
topic_mappings:
  - ros_topic: "/lab/turtle1/pose"
    message_type: "turtlesim/msg/Pose"
    direction: "INBOUND"
    priority: "HIGH"
service_mappings:
  - name: "spawn"
    ros_service: "/lab/spawn"
    service_type: "turtlesim/srv/Spawn"
`

func TestBridgeConfigService(t *testing.T) {
	logger := customlog.NewWriterLogger("debug", io.Discard)
	path := filepath.Join(t.TempDir(), "bridge_config.yaml")
	if err := os.WriteFile(path, []byte(bridgeYAML), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	service, err := NewBridgeConfigService(path, logger)
	if err != nil {
		t.Fatalf("NewBridgeConfigService failed: %v", err)
	}

	cfg := service.GetCurrentConfig()
	if cfg.ConfigID != "lab-turtle" || cfg.PoseTopic() != "/lab/turtle1/pose" {
		t.Errorf("Unexpected config %+v", cfg)
	}
	spawn, _ := cfg.GetServiceMapping(config.ServiceSpawn)
	if spawn.RosService != "/lab/spawn" {
		t.Errorf("Expected /lab/spawn, got %s", spawn.RosService)
	}
	if cfg.CommandTopic() != "/turtle1/cmd_vel" {
		t.Errorf("Expected default command topic, got %s", cfg.CommandTopic())
	}

	data, err := service.GetCurrentConfigYAML()
	if err != nil {
		t.Fatalf("GetCurrentConfigYAML failed: %v", err)
	}
	for _, want := range []string{"config_id: lab-turtle", "/lab/spawn", "/turtle1/cmd_vel", "/kill"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("Expected YAML to contain %q:\n%s", want, data)
		}
	}

	// A broken file on reload keeps the previous config.
	if err := os.WriteFile(path, []byte("topic_mappings: [:"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	if err := service.LoadConfig(); err == nil {
		t.Errorf("Expected reload of invalid YAML to fail")
	}
	if service.GetCurrentConfig().ConfigID != "lab-turtle" {
		t.Errorf("Previous config should be kept after a failed reload")
	}
}

func TestBridgeConfigServiceMissingFile(t *testing.T) {
	logger := customlog.NewWriterLogger("debug", io.Discard)

	if _, err := NewBridgeConfigService(filepath.Join(t.TempDir(), "missing.yaml"), logger); err == nil {
		t.Errorf("Expected error for missing file")
	}
	if _, err := NewBridgeConfigService("", logger); err == nil {
		t.Errorf("Expected error for empty path")
	}
}
