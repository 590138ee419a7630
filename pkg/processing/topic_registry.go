package processing

import (
	"sort"
	"sync"

	"github.com/open-teleop/turtle-catcher/pkg/config"
	customlog "github.com/open-teleop/turtle-catcher/pkg/log"
)

// TopicInfo holds metadata and traffic counters for a ROS topic
type TopicInfo struct {
	RosTopic     string `json:"ros_topic"`
	MessageType  string `json:"message_type"`
	Priority     string `json:"priority"`
	Direction    string `json:"direction"`
	StatCount    int64  `json:"count"`
	LastReceived int64  `json:"last_timestamp_ns"`
}

// TopicRegistry counts traffic per ROS topic
type TopicRegistry struct {
	logger customlog.Logger
	topics map[string]*TopicInfo
	mu     sync.RWMutex
}

// NewTopicRegistry creates a new topic registry
func NewTopicRegistry(logger customlog.Logger) *TopicRegistry {
	return &TopicRegistry{
		logger: logger,
		topics: make(map[string]*TopicInfo),
	}
}

// LoadFromConfig replaces the registry contents with the bridge topic mappings
func (r *TopicRegistry) LoadFromConfig(cfg *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.topics = make(map[string]*TopicInfo)

	for _, direction := range []string{config.DirectionInbound, config.DirectionOutbound} {
		for _, mapping := range cfg.GetTopicMappingsByDirection(direction) {
			r.topics[mapping.RosTopic] = &TopicInfo{
				RosTopic:    mapping.RosTopic,
				MessageType: mapping.MessageType,
				Priority:    mapping.Priority,
				Direction:   mapping.Direction,
			}
		}
	}

	r.logger.Infof("Loaded %d topics into registry", len(r.topics))
}

// GetTopicInfo returns a copy of the information held for a topic
func (r *TopicRegistry) GetTopicInfo(topic string) (TopicInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.topics[topic]
	if !exists {
		return TopicInfo{}, false
	}
	return *info, true
}

// UpdateTopicStats counts one message on topic. Unknown topics are added with
// STANDARD priority.
func (r *TopicRegistry) UpdateTopicStats(topic string, timestamp int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, exists := r.topics[topic]
	if !exists {
		info = &TopicInfo{
			RosTopic: topic,
			Priority: "STANDARD",
		}
		r.topics[topic] = info
	}

	info.StatCount++
	info.LastReceived = timestamp
}

// GetAllTopics returns the registered topics in sorted order
func (r *TopicRegistry) GetAllTopics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]string, 0, len(r.topics))
	for topic := range r.topics {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	return topics
}

// GetTopicStats returns a snapshot of every topic
func (r *TopicRegistry) GetTopicStats() []TopicInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make([]TopicInfo, 0, len(r.topics))
	for _, info := range r.topics {
		stats = append(stats, *info)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].RosTopic < stats[j].RosTopic })

	return stats
}
