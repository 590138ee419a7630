package catcher

import (
	"context"
	"math/rand/v2"

	customlog "github.com/open-teleop/turtle-catcher/pkg/log"
)

// Bridge groups the external collaborators the node talks to.
type Bridge struct {
	Commands CommandPublisher
	Spawn    SpawnService
	Kill     KillService
}

// Status is a point-in-time view of the node for status readers
type Status struct {
	Pose        Pose  `json:"pose"`
	Goal        *Goal `json:"goal,omitempty"`
	State       State `json:"state"`
	GoalsCaught int64 `json:"goals_caught"`
}

// Node owns the catcher's state and the components acting on it.
type Node struct {
	Poses      *PoseStore
	Spawner    *GoalSpawner
	Controller *Controller

	kill   KillService
	logger customlog.Logger
}

// NewNode builds a node on top of bridge
func NewNode(bridge Bridge, rng *rand.Rand, logger customlog.Logger, opts ...ControllerOption) *Node {
	poses := NewPoseStore()
	spawner := NewGoalSpawner(bridge.Spawn, rng, logger.WithField("component", "spawner"))
	controller := NewController(poses, spawner, bridge.Commands, bridge.Kill, logger.WithField("component", "controller"), opts...)

	return &Node{
		Poses:      poses,
		Spawner:    spawner,
		Controller: controller,
		kill:       bridge.Kill,
		logger:     logger,
	}
}

// Start checks the kill service and spawns the first goal. A missing kill
// service is only logged; a spawn failure is returned.
func (n *Node) Start(ctx context.Context) error {
	if err := n.kill.WaitForService(ctx, ServiceWaitTimeout); err != nil {
		n.logger.Errorf("Kill service not available: %v", err)
	}

	_, err := n.Spawner.SpawnNewGoal(ctx)
	return err
}

// HandlePose feeds one pose sample to the controller
func (n *Node) HandlePose(ctx context.Context, pose Pose) error {
	return n.Controller.OnPoseUpdate(ctx, pose)
}

// Status returns the node's current status
func (n *Node) Status() Status {
	status := Status{
		Pose:        n.Poses.Current(),
		State:       n.Controller.State(),
		GoalsCaught: n.Controller.GoalsCaught(),
	}
	if goal, ok := n.Spawner.Current(); ok {
		status.Goal = &goal
	}
	return status
}
