package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// BootstrapFileName is the file LoadBootstrapConfig looks for in the config directory.
const BootstrapFileName = "catcher_config.yaml"

// Defaults applied when the bootstrap file leaves a field unset.
const (
	DefaultServiceTimeoutMs  = 1000
	DefaultRequestTimeoutMs  = 5000
	DefaultMessageBufferSize = 100
)

// BootstrapConfig holds the process-level settings loaded from catcher_config.yaml
type BootstrapConfig struct {
	Logging LoggingConfig         `yaml:"logging"`
	Server  BootstrapServerConfig `yaml:"server"`
	ZeroMQ  ZeroMQBootstrap       `yaml:"zeromq"`
	Data    DataConfig            `yaml:"data"`
}

// LoggingConfig holds logging settings from bootstrap
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogPath string `yaml:"log_path,omitempty"`
}

// BootstrapServerConfig holds the status API settings. A zero port disables the API.
type BootstrapServerConfig struct {
	HTTPPort int `yaml:"http_port"`
}

// ZeroMQBootstrap holds the addresses of the ROS2 bridge endpoints
type ZeroMQBootstrap struct {
	PoseSubscribeAddress  string `yaml:"pose_subscribe_address"`
	CommandPublishAddress string `yaml:"command_publish_address"`
	ServiceRequestAddress string `yaml:"service_request_address"`
	ServiceTimeoutMs      int    `yaml:"service_timeout_ms"`
	RequestTimeoutMs      int    `yaml:"request_timeout_ms"`
	MessageBufferSize     int    `yaml:"message_buffer_size"`
}

// ServiceTimeout is the availability wait used before each service call.
func (z ZeroMQBootstrap) ServiceTimeout() time.Duration {
	return time.Duration(z.ServiceTimeoutMs) * time.Millisecond
}

// RequestTimeout bounds a single service round trip.
func (z ZeroMQBootstrap) RequestTimeout() time.Duration {
	return time.Duration(z.RequestTimeoutMs) * time.Millisecond
}

// DataConfig holds data directory settings from bootstrap
type DataConfig struct {
	Directory            string `yaml:"directory"`
	BridgeConfigFilename string `yaml:"bridge_config_file"`
}

// BridgeConfigPath joins the data directory and the bridge mapping file name.
func (d DataConfig) BridgeConfigPath() string {
	return filepath.Join(d.Directory, d.BridgeConfigFilename)
}

// LoadBootstrapConfig loads the bootstrap configuration from catcher_config.yaml
func LoadBootstrapConfig(configDir string) (*BootstrapConfig, error) {
	bootstrapConfigPath := filepath.Join(configDir, BootstrapFileName)

	data, err := os.ReadFile(bootstrapConfigPath)
	if err != nil {
		return nil, fmt.Errorf("error reading bootstrap config file '%s': %w", bootstrapConfigPath, err)
	}

	var bootstrapCfg BootstrapConfig
	if err := yaml.Unmarshal(data, &bootstrapCfg); err != nil {
		return nil, fmt.Errorf("error parsing bootstrap config file '%s': %w", bootstrapConfigPath, err)
	}

	if bootstrapCfg.ZeroMQ.PoseSubscribeAddress == "" {
		return nil, fmt.Errorf("missing required field in bootstrap config: zeromq.pose_subscribe_address")
	}
	if bootstrapCfg.ZeroMQ.CommandPublishAddress == "" {
		return nil, fmt.Errorf("missing required field in bootstrap config: zeromq.command_publish_address")
	}
	if bootstrapCfg.ZeroMQ.ServiceRequestAddress == "" {
		return nil, fmt.Errorf("missing required field in bootstrap config: zeromq.service_request_address")
	}
	if bootstrapCfg.Data.BridgeConfigFilename == "" {
		return nil, fmt.Errorf("missing required field in bootstrap config: data.bridge_config_file")
	}

	if bootstrapCfg.ZeroMQ.ServiceTimeoutMs <= 0 {
		bootstrapCfg.ZeroMQ.ServiceTimeoutMs = DefaultServiceTimeoutMs
	}
	if bootstrapCfg.ZeroMQ.RequestTimeoutMs <= 0 {
		bootstrapCfg.ZeroMQ.RequestTimeoutMs = DefaultRequestTimeoutMs
	}
	if bootstrapCfg.ZeroMQ.MessageBufferSize <= 0 {
		bootstrapCfg.ZeroMQ.MessageBufferSize = DefaultMessageBufferSize
	}
	if bootstrapCfg.Data.Directory == "" {
		bootstrapCfg.Data.Directory = configDir
	}
	if bootstrapCfg.Logging.Level == "" {
		bootstrapCfg.Logging.Level = "info"
	}

	return &bootstrapCfg, nil
}
