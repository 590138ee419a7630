package catcher

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	customlog "github.com/open-teleop/turtle-catcher/pkg/log"
)

// SpawnRequest is the turtlesim Spawn request body.
type SpawnRequest struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
	Name  string  `json:"name"`
}

// SpawnService creates goal turtles.
type SpawnService interface {
	WaitForService(ctx context.Context, timeout time.Duration) error
	Spawn(ctx context.Context, req SpawnRequest) error
}

// GoalSpawner places goals at random positions and remembers the live one.
type GoalSpawner struct {
	service SpawnService
	rng     *rand.Rand
	logger  customlog.Logger

	mu      sync.RWMutex
	goal    Goal
	hasGoal bool
}

// NewGoalSpawner creates a spawner. A nil rng is replaced with a time-seeded one.
func NewGoalSpawner(service SpawnService, rng *rand.Rand, logger customlog.Logger) *GoalSpawner {
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	return &GoalSpawner{
		service: service,
		rng:     rng,
		logger:  logger,
	}
}

// SpawnNewGoal spawns a goal at a uniform position in [SpawnMin, SpawnMax] and
// makes it current. Errors wrap ErrServiceUnavailable or ErrRequestFailed and
// are not retried.
func (s *GoalSpawner) SpawnNewGoal(ctx context.Context) (Goal, error) {
	goal := Goal{
		Name:  GoalName,
		X:     s.draw(),
		Y:     s.draw(),
		Theta: 0,
	}

	if err := s.service.WaitForService(ctx, ServiceWaitTimeout); err != nil {
		s.logger.Errorf("Spawn service not available: %v", err)
		return Goal{}, fmt.Errorf("%w: spawn: %w", ErrServiceUnavailable, err)
	}

	req := SpawnRequest{X: goal.X, Y: goal.Y, Theta: goal.Theta, Name: goal.Name}
	if err := s.service.Spawn(ctx, req); err != nil {
		s.logger.Errorf("Failed to spawn goal '%s': %v", goal.Name, err)
		return Goal{}, fmt.Errorf("%w: spawn: %w", ErrRequestFailed, err)
	}

	s.mu.Lock()
	s.goal = goal
	s.hasGoal = true
	s.mu.Unlock()

	s.logger.Infof("Spawned goal '%s' at (%.2f, %.2f)", goal.Name, goal.X, goal.Y)
	return goal, nil
}

// Current returns the live goal, if any
func (s *GoalSpawner) Current() (Goal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.goal, s.hasGoal
}

// Clear forgets the current goal once its despawn has been requested
func (s *GoalSpawner) Clear() {
	s.mu.Lock()
	s.goal = Goal{}
	s.hasGoal = false
	s.mu.Unlock()
}

func (s *GoalSpawner) draw() float64 {
	return SpawnMin + (SpawnMax-SpawnMin)*s.rng.Float64()
}
