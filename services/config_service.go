package services

import (
	"fmt"
	"sync"

	"github.com/open-teleop/turtle-catcher/pkg/config"
	customlog "github.com/open-teleop/turtle-catcher/pkg/log"
	"gopkg.in/yaml.v3"
)

// BridgeConfigService gives read access to the bridge mapping file.
type BridgeConfigService interface {
	LoadConfig() error
	GetCurrentConfig() *config.Config
	GetCurrentConfigYAML() ([]byte, error)
}

type bridgeConfigService struct {
	configPath    string
	logger        customlog.Logger
	currentConfig *config.Config
	mu            sync.RWMutex
}

// NewBridgeConfigService loads the mapping file at configPath. A missing or
// invalid file is an error: the catcher cannot run without its wiring.
func NewBridgeConfigService(configPath string, logger customlog.Logger) (BridgeConfigService, error) {
	if configPath == "" {
		return nil, fmt.Errorf("bridge configuration path cannot be empty")
	}

	service := &bridgeConfigService{
		configPath: configPath,
		logger:     logger,
	}
	if err := service.LoadConfig(); err != nil {
		return nil, err
	}

	logger.Infof("BridgeConfigService initialized for path: %s", configPath)
	return service, nil
}

// LoadConfig reads the mapping file from disk and replaces the current config.
// On failure the previous config is kept.
func (s *bridgeConfigService) LoadConfig() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Infof("Loading bridge configuration from: %s", s.configPath)
	cfg, err := config.LoadConfig(s.configPath)
	if err != nil {
		s.logger.Errorf("Failed to load bridge configuration: %v", err)
		return err
	}

	s.currentConfig = cfg
	s.logger.Infof("Loaded bridge configuration ID: %s, Version: %s (%d topics, %d services)",
		cfg.ConfigID, cfg.Version, len(cfg.TopicMappings), len(cfg.ServiceMappings))
	return nil
}

// GetCurrentConfig returns the loaded config. Callers must not modify it.
func (s *bridgeConfigService) GetCurrentConfig() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentConfig
}

// GetCurrentConfigYAML returns the effective config, defaults included, as YAML.
func (s *bridgeConfigService) GetCurrentConfigYAML() ([]byte, error) {
	s.mu.RLock()
	cfg := s.currentConfig
	s.mu.RUnlock()

	if cfg == nil {
		return nil, nil
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal bridge configuration: %w", err)
	}
	return data, nil
}
