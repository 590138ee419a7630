package catcher

import "time"

// Controller gains and limits. These are fixed for turtlesim.
const (
	LinearGain       = 1.5
	AngularGain      = 5.0
	ArrivalTolerance = 0.5
	RespawnPause     = time.Second

	SpawnMin = 1.0
	SpawnMax = 10.0

	// GoalName is the turtle name used for every spawned goal.
	GoalName = "turtle_spawn"

	// ServiceWaitTimeout bounds each service availability check.
	ServiceWaitTimeout = time.Second
)

// Pose is the controlled turtle's position and heading (radians).
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// Goal is the spawned target turtle.
type Goal struct {
	Name  string  `json:"name"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// VelocityCommand maps to Twist linear.x and angular.z.
type VelocityCommand struct {
	Linear  float64 `json:"linear"`
	Angular float64 `json:"angular"`
}

// State of the controller relative to the current goal
type State int

const (
	StateSeeking State = iota
	StateArrived
)

func (s State) String() string {
	switch s {
	case StateSeeking:
		return "SEEKING"
	case StateArrived:
		return "ARRIVED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
