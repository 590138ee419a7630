package catcher

import (
	"context"
	"math"
	"sync"
	"time"

	customlog "github.com/open-teleop/turtle-catcher/pkg/log"
)

// CommandPublisher sends velocity commands to the controlled turtle.
type CommandPublisher interface {
	PublishVelocity(cmd VelocityCommand) error
}

// KillService despawns goal turtles. Results arrive on the returned channel.
type KillService interface {
	WaitForService(ctx context.Context, timeout time.Duration) error
	KillAsync(ctx context.Context, name string) <-chan error
}

// Evaluation describes what the controller did with one pose sample.
type Evaluation struct {
	Pose       Pose            `json:"pose"`
	Goal       Goal            `json:"goal"`
	Command    VelocityCommand `json:"command"`
	State      State           `json:"state"`
	Distance   float64         `json:"distance"`
	Caught     bool            `json:"caught"`
	PublishErr error           `json:"-"`
	At         time.Time       `json:"at"`
}

// Observer is told about every evaluation. Calls happen on the event path
// and must not block.
type Observer interface {
	ObserveEvaluation(ev Evaluation)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(ev Evaluation)

// ObserveEvaluation calls f(ev)
func (f ObserverFunc) ObserveEvaluation(ev Evaluation) {
	f(ev)
}

// PauseFunc waits for d or until ctx is done.
type PauseFunc func(ctx context.Context, d time.Duration) error

// ControllerOption customizes a Controller
type ControllerOption func(*Controller)

// WithPause replaces the respawn pause. Tests use it to skip the real wait.
func WithPause(pause PauseFunc) ControllerOption {
	return func(c *Controller) {
		c.pause = pause
	}
}

// WithObserver registers an evaluation observer
func WithObserver(o Observer) ControllerOption {
	return func(c *Controller) {
		c.observers = append(c.observers, o)
	}
}

// Controller steers the turtle towards the current goal with a proportional
// law and replaces the goal once it is reached.
type Controller struct {
	poses     *PoseStore
	spawner   *GoalSpawner
	publisher CommandPublisher
	killer    KillService
	logger    customlog.Logger
	pause     PauseFunc
	observers []Observer

	mu          sync.RWMutex
	state       State
	goalsCaught int64
}

// NewController wires the controller to its collaborators
func NewController(poses *PoseStore, spawner *GoalSpawner, publisher CommandPublisher, killer KillService, logger customlog.Logger, opts ...ControllerOption) *Controller {
	c := &Controller{
		poses:     poses,
		spawner:   spawner,
		publisher: publisher,
		killer:    killer,
		logger:    logger,
		pause:     sleepContext,
		state:     StateSeeking,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnPoseUpdate handles one pose sample to completion. On arrival it stops the
// turtle, requests the goal's despawn, pauses and spawns the next goal before
// returning. The only errors returned are spawn failures and ctx cancellation.
func (c *Controller) OnPoseUpdate(ctx context.Context, pose Pose) error {
	c.poses.Update(pose)
	c.logger.Debugf("X: %.3f, Y: %.3f, Theta: %.3f", pose.X, pose.Y, pose.Theta)

	goal, ok := c.spawner.Current()
	if !ok {
		c.logger.Warnf("No goal set, ignoring pose sample")
		return nil
	}

	distance := EuclideanDistance(pose, goal)
	if distance >= ArrivalTolerance {
		cmd := Command(pose, goal)
		err := c.publish(cmd)
		c.setState(StateSeeking)
		c.notify(Evaluation{
			Pose:       pose,
			Goal:       goal,
			Command:    cmd,
			State:      StateSeeking,
			Distance:   distance,
			PublishErr: err,
			At:         time.Now(),
		})
		return nil
	}

	c.logger.Infof("Reached goal '%s' at (%.2f, %.2f), distance %.3f", goal.Name, goal.X, goal.Y, distance)
	c.setState(StateArrived)

	stop := VelocityCommand{}
	err := c.publish(stop)

	c.mu.Lock()
	c.goalsCaught++
	c.mu.Unlock()

	c.notify(Evaluation{
		Pose:       pose,
		Goal:       goal,
		Command:    stop,
		State:      StateArrived,
		Distance:   distance,
		Caught:     true,
		PublishErr: err,
		At:         time.Now(),
	})

	// Despawn outcome is not inspected.
	_ = c.killer.KillAsync(ctx, goal.Name)
	c.spawner.Clear()

	if err := c.pause(ctx, RespawnPause); err != nil {
		return err
	}

	if _, err := c.spawner.SpawnNewGoal(ctx); err != nil {
		return err
	}
	c.setState(StateSeeking)
	return nil
}

// State returns the controller state
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// GoalsCaught returns how many goals have been reached
func (c *Controller) GoalsCaught() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.goalsCaught
}

func (c *Controller) publish(cmd VelocityCommand) error {
	if err := c.publisher.PublishVelocity(cmd); err != nil {
		c.logger.Warnf("Failed to publish velocity command (linear=%.3f, angular=%.3f): %v", cmd.Linear, cmd.Angular, err)
		return err
	}
	return nil
}

func (c *Controller) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *Controller) notify(ev Evaluation) {
	for _, o := range c.observers {
		o.ObserveEvaluation(ev)
	}
}

// EuclideanDistance is the planar distance from pose to goal
func EuclideanDistance(pose Pose, goal Goal) float64 {
	return math.Hypot(goal.X-pose.X, goal.Y-pose.Y)
}

// Bearing is the direction from pose to goal in radians
func Bearing(pose Pose, goal Goal) float64 {
	return math.Atan2(goal.Y-pose.Y, goal.X-pose.X)
}

// LinearVelocity is the forward speed for a given distance
func LinearVelocity(distance float64) float64 {
	return LinearGain * distance
}

// AngularVelocity is the turn rate towards bearing. The heading error is not
// wrapped to [-pi, pi].
func AngularVelocity(bearing, theta float64) float64 {
	return AngularGain * (bearing - theta)
}

// Command is the seeking command for pose and goal
func Command(pose Pose, goal Goal) VelocityCommand {
	return VelocityCommand{
		Linear:  LinearVelocity(EuclideanDistance(pose, goal)),
		Angular: AngularVelocity(Bearing(pose, goal), pose.Theta),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
