package catcher

import "sync"

// PoseStore holds the most recent pose sample.
type PoseStore struct {
	mu   sync.RWMutex
	pose Pose
}

// NewPoseStore returns a store holding the zero pose
func NewPoseStore() *PoseStore {
	return &PoseStore{}
}

// Update overwrites the stored pose
func (s *PoseStore) Update(pose Pose) {
	s.mu.Lock()
	s.pose = pose
	s.mu.Unlock()
}

// Current returns the latest pose, or the zero pose before the first update
func (s *PoseStore) Current() Pose {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pose
}
