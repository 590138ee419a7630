package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Topic directions, seen from the catcher.
const (
	DirectionInbound  = "INBOUND"
	DirectionOutbound = "OUTBOUND"
)

// Message and service types the catcher understands.
const (
	MessageTypePose  = "turtlesim/msg/Pose"
	MessageTypeTwist = "geometry_msgs/msg/Twist"
	ServiceTypeSpawn = "turtlesim/srv/Spawn"
	ServiceTypeKill  = "turtlesim/srv/Kill"
)

// Logical service names used by the catcher to look up service mappings.
const (
	ServiceSpawn = "spawn"
	ServiceKill  = "kill"
)

// Config is the bridge mapping file: which ROS topics and services the
// catcher uses and how they are named on the bridge.
type Config struct {
	Version         string           `yaml:"version" json:"version"`
	ConfigID        string           `yaml:"config_id" json:"config_id"`
	RobotID         string           `yaml:"robot_id" json:"robot_id"`
	TopicMappings   []TopicMapping   `yaml:"topic_mappings" json:"topic_mappings"`
	ServiceMappings []ServiceMapping `yaml:"service_mappings" json:"service_mappings"`
	Defaults        DefaultsConfig   `yaml:"defaults" json:"defaults"`
}

// TopicMapping represents a mapping between a ROS topic and its bridge topic
type TopicMapping struct {
	RosTopic    string `yaml:"ros_topic" json:"ros_topic"`
	OttTopic    string `yaml:"ott" json:"ott"`
	MessageType string `yaml:"message_type" json:"message_type"`
	Priority    string `yaml:"priority" json:"priority"`
	Direction   string `yaml:"direction" json:"direction"`
}

// ServiceMapping names a ROS service reachable through the bridge
type ServiceMapping struct {
	Name        string `yaml:"name" json:"name"`
	RosService  string `yaml:"ros_service" json:"ros_service"`
	ServiceType string `yaml:"service_type" json:"service_type"`
}

// DefaultsConfig holds default values for topic mappings
type DefaultsConfig struct {
	Priority  string `yaml:"priority" json:"priority"`
	Direction string `yaml:"direction" json:"direction"`
}

// DefaultConfig returns the turtlesim wiring used when no mapping file overrides it.
func DefaultConfig() *Config {
	return &Config{
		Version:  "1.0",
		ConfigID: "turtlesim-default",
		RobotID:  "turtle1",
		TopicMappings: []TopicMapping{
			{
				RosTopic:    "/turtle1/pose",
				OttTopic:    "catcher.turtle1.pose",
				MessageType: MessageTypePose,
				Priority:    "HIGH",
				Direction:   DirectionInbound,
			},
			{
				RosTopic:    "/turtle1/cmd_vel",
				OttTopic:    "catcher.turtle1.cmd_vel",
				MessageType: MessageTypeTwist,
				Priority:    "HIGH",
				Direction:   DirectionOutbound,
			},
		},
		ServiceMappings: []ServiceMapping{
			{Name: ServiceSpawn, RosService: "/spawn", ServiceType: ServiceTypeSpawn},
			{Name: ServiceKill, RosService: "/kill", ServiceType: ServiceTypeKill},
		},
		Defaults: DefaultsConfig{
			Priority:  "STANDARD",
			Direction: DirectionInbound,
		},
	}
}

// LoadConfig loads a bridge mapping file. Topic and service mappings missing
// from the file are filled from DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig parses bridge mapping YAML.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	cfg.fillMissing(DefaultConfig())
	return &cfg, nil
}

func (c *Config) fillMissing(def *Config) {
	if c.Defaults.Direction == "" {
		c.Defaults.Direction = def.Defaults.Direction
	}
	if c.Defaults.Priority == "" {
		c.Defaults.Priority = def.Defaults.Priority
	}
	for _, mapping := range def.TopicMappings {
		if _, found := c.GetTopicMappingByMessageType(mapping.MessageType); !found {
			c.TopicMappings = append(c.TopicMappings, mapping)
		}
	}
	for _, mapping := range def.ServiceMappings {
		if _, found := c.GetServiceMapping(mapping.Name); !found {
			c.ServiceMappings = append(c.ServiceMappings, mapping)
		}
	}
}

// GetTopicMappingsByDirection returns topic mappings filtered by direction
func (c *Config) GetTopicMappingsByDirection(direction string) []TopicMapping {
	var result []TopicMapping

	for _, mapping := range c.TopicMappings {
		withDefaults := applyDefaults(mapping, c.Defaults)
		if withDefaults.Direction == direction {
			result = append(result, withDefaults)
		}
	}

	return result
}

// GetTopicMappingByMessageType returns the first mapping carrying messageType
func (c *Config) GetTopicMappingByMessageType(messageType string) (TopicMapping, bool) {
	for _, mapping := range c.TopicMappings {
		if mapping.MessageType == messageType {
			return applyDefaults(mapping, c.Defaults), true
		}
	}

	return TopicMapping{}, false
}

// GetServiceMapping returns the service mapping registered under name
func (c *Config) GetServiceMapping(name string) (ServiceMapping, bool) {
	for _, mapping := range c.ServiceMappings {
		if mapping.Name == name {
			return mapping, true
		}
	}
	return ServiceMapping{}, false
}

// PoseTopic is the ROS topic carrying the controlled turtle's pose.
func (c *Config) PoseTopic() string {
	mapping, _ := c.GetTopicMappingByMessageType(MessageTypePose)
	return mapping.RosTopic
}

// CommandTopic is the ROS topic velocity commands are published on.
func (c *Config) CommandTopic() string {
	mapping, _ := c.GetTopicMappingByMessageType(MessageTypeTwist)
	return mapping.RosTopic
}

// applyDefaults merges default values into a topic mapping where fields are empty
func applyDefaults(mapping TopicMapping, defaults DefaultsConfig) TopicMapping {
	result := mapping

	if result.Priority == "" {
		result.Priority = defaults.Priority
	}
	if result.Direction == "" {
		result.Direction = defaults.Direction
	}
	if result.OttTopic == "" {
		result.OttTopic = result.RosTopic
	}

	return result
}
