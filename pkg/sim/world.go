package sim

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/open-teleop/turtle-catcher/pkg/wire"
)

// Arena geometry and defaults matching turtlesim.
const (
	ArenaMin = 0.0
	ArenaMax = 11.088889

	StartName = "turtle1"
	StartX    = 5.544445
	StartY    = 5.544445

	// CommandTimeout is how long a velocity command keeps a turtle moving.
	CommandTimeout = time.Second
)

var (
	ErrTurtleExists  = errors.New("turtle already exists")
	ErrUnknownTurtle = errors.New("no such turtle")
)

type turtle struct {
	pose  wire.PoseMsg
	cmd   wire.TwistMsg
	cmdAt time.Time
}

// World is a minimal turtlesim: turtles move with unicycle kinematics and
// stop when their last command is older than CommandTimeout.
type World struct {
	mu      sync.RWMutex
	turtles map[string]*turtle
	counter int
}

// NewWorld creates an arena holding turtle1 at the centre
func NewWorld() *World {
	w := &World{turtles: make(map[string]*turtle)}
	w.turtles[StartName] = &turtle{pose: wire.PoseMsg{X: StartX, Y: StartY}}
	w.counter = 1
	return w
}

// Spawn adds a turtle. An empty name is replaced with the next free turtleN.
func (w *World) Spawn(name string, x, y, theta float64) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if name == "" {
		for {
			w.counter++
			name = fmt.Sprintf("turtle%d", w.counter)
			if _, exists := w.turtles[name]; !exists {
				break
			}
		}
	}
	if _, exists := w.turtles[name]; exists {
		return "", fmt.Errorf("%w: %s", ErrTurtleExists, name)
	}

	w.turtles[name] = &turtle{pose: wire.PoseMsg{X: clamp(x), Y: clamp(y), Theta: normalizeAngle(theta)}}
	return name, nil
}

// Kill removes a turtle
func (w *World) Kill(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.turtles[name]; !exists {
		return fmt.Errorf("%w: %s", ErrUnknownTurtle, name)
	}
	delete(w.turtles, name)
	return nil
}

// SetVelocity applies a Twist to a turtle from now on
func (w *World) SetVelocity(name string, twist wire.TwistMsg, now time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	t, exists := w.turtles[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownTurtle, name)
	}
	t.cmd = twist
	t.cmdAt = now
	return nil
}

// Step advances every turtle by dt. The heading is updated before the
// position, and positions are clamped to the arena.
func (w *World) Step(dt time.Duration, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	seconds := dt.Seconds()
	for _, t := range w.turtles {
		if now.Sub(t.cmdAt) > CommandTimeout {
			t.cmd = wire.TwistMsg{}
		}

		linear := t.cmd.Linear.X
		angular := t.cmd.Angular.Z

		t.pose.Theta = normalizeAngle(t.pose.Theta + angular*seconds)
		t.pose.X = clamp(t.pose.X + math.Cos(t.pose.Theta)*linear*seconds)
		t.pose.Y = clamp(t.pose.Y + math.Sin(t.pose.Theta)*linear*seconds)
		t.pose.LinearVelocity = linear
		t.pose.AngularVelocity = angular
	}
}

// Pose returns a turtle's pose
func (w *World) Pose(name string) (wire.PoseMsg, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	t, exists := w.turtles[name]
	if !exists {
		return wire.PoseMsg{}, false
	}
	return t.pose, true
}

// Names returns the live turtles in sorted order
func (w *World) Names() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	names := make([]string, 0, len(w.turtles))
	for name := range w.turtles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func clamp(v float64) float64 {
	return math.Max(ArenaMin, math.Min(ArenaMax, v))
}

func normalizeAngle(a float64) float64 {
	return a - 2*math.Pi*math.Floor((a+math.Pi)/(2*math.Pi))
}
