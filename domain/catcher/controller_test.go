package catcher

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

const epsilon = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func TestCommandSeekingScenario(t *testing.T) {
	pose := Pose{X: 0, Y: 0, Theta: 0}
	goal := Goal{Name: GoalName, X: 3, Y: 4}

	if d := EuclideanDistance(pose, goal); !almostEqual(d, 5.0) {
		t.Fatalf("Expected distance 5.0, got %f", d)
	}

	cmd := Command(pose, goal)
	if !almostEqual(cmd.Linear, 7.5) {
		t.Errorf("Expected linear 7.5, got %f", cmd.Linear)
	}
	if !almostEqual(cmd.Angular, 5.0*math.Atan2(4, 3)) {
		t.Errorf("Expected angular %f, got %f", 5.0*math.Atan2(4, 3), cmd.Angular)
	}
	if math.Abs(cmd.Angular-4.6365) > 1e-4 {
		t.Errorf("Expected angular ~4.6365, got %f", cmd.Angular)
	}
}

func TestCommandMatchesProportionalLaw(t *testing.T) {
	tests := []struct {
		name string
		pose Pose
		goal Goal
	}{
		{"behind", Pose{X: 8, Y: 2, Theta: 1.2}, Goal{X: 1.5, Y: 9}},
		{"facing away", Pose{X: 5, Y: 5, Theta: math.Pi}, Goal{X: 9, Y: 5}},
		{"negative heading", Pose{X: 2, Y: 7, Theta: -2.5}, Goal{X: 6, Y: 1}},
		{"exactly on boundary", Pose{X: 4, Y: 4}, Goal{X: 4.5, Y: 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dx := tt.goal.X - tt.pose.X
			dy := tt.goal.Y - tt.pose.Y

			cmd := Command(tt.pose, tt.goal)
			wantLinear := 1.5 * math.Sqrt(dx*dx+dy*dy)
			wantAngular := 5.0 * (math.Atan2(dy, dx) - tt.pose.Theta)

			if !almostEqual(cmd.Linear, wantLinear) {
				t.Errorf("linear: expected %f, got %f", wantLinear, cmd.Linear)
			}
			if !almostEqual(cmd.Angular, wantAngular) {
				t.Errorf("angular: expected %f, got %f", wantAngular, cmd.Angular)
			}
		})
	}
}

func TestHelpersArePure(t *testing.T) {
	pose := Pose{X: 1.25, Y: 9.5, Theta: 0.3}
	goal := Goal{X: 7.75, Y: 2.125}

	if EuclideanDistance(pose, goal) != EuclideanDistance(pose, goal) {
		t.Errorf("EuclideanDistance changed between calls")
	}
	if Bearing(pose, goal) != Bearing(pose, goal) {
		t.Errorf("Bearing changed between calls")
	}
	if Command(pose, goal) != Command(pose, goal) {
		t.Errorf("Command changed between calls")
	}
}

func TestOnPoseUpdateSeeking(t *testing.T) {
	tb := newTestBed()
	goal := Goal{Name: GoalName, X: 3, Y: 4}
	tb.installGoal(goal)

	pose := Pose{X: 0, Y: 0, Theta: 0}
	if err := tb.node.HandlePose(context.Background(), pose); err != nil {
		t.Fatalf("HandlePose failed: %v", err)
	}

	published := tb.publisher.published()
	if len(published) != 1 {
		t.Fatalf("Expected 1 command, got %d", len(published))
	}
	if published[0] != Command(pose, goal) {
		t.Errorf("Expected %+v, got %+v", Command(pose, goal), published[0])
	}
	if len(tb.kill.killed()) != 0 || len(tb.spawn.spawned()) != 0 {
		t.Errorf("Seeking must not kill or spawn")
	}
	if tb.node.Controller.State() != StateSeeking {
		t.Errorf("Expected SEEKING, got %s", tb.node.Controller.State())
	}
	if tb.node.Poses.Current() != pose {
		t.Errorf("Pose store not updated")
	}
}

func TestOnPoseUpdateBoundaryIsSeeking(t *testing.T) {
	tb := newTestBed()
	tb.installGoal(Goal{Name: GoalName, X: 0.5, Y: 0})

	if err := tb.node.HandlePose(context.Background(), Pose{}); err != nil {
		t.Fatalf("HandlePose failed: %v", err)
	}

	published := tb.publisher.published()
	if len(published) != 1 || !almostEqual(published[0].Linear, 0.75) {
		t.Fatalf("Expected seeking command with linear 0.75, got %+v", published)
	}
	if len(tb.kill.killed()) != 0 {
		t.Errorf("Distance of exactly 0.5 must not count as arrival")
	}
}

func TestOnPoseUpdateArrival(t *testing.T) {
	tb := newTestBed()
	tb.installGoal(Goal{Name: GoalName, X: 5.2, Y: 5.1})

	if err := tb.node.HandlePose(context.Background(), Pose{X: 5, Y: 5}); err != nil {
		t.Fatalf("HandlePose failed: %v", err)
	}

	published := tb.publisher.published()
	if len(published) != 1 || published[0] != (VelocityCommand{}) {
		t.Fatalf("Expected a single stop command, got %+v", published)
	}

	killed := tb.kill.killed()
	if len(killed) != 1 || killed[0] != GoalName {
		t.Errorf("Expected one kill of %s, got %v", GoalName, killed)
	}

	spawned := tb.spawn.spawned()
	if len(spawned) != 1 {
		t.Fatalf("Expected one spawn, got %d", len(spawned))
	}
	req := spawned[0]
	if req.Name != GoalName || req.Theta != 0 {
		t.Errorf("Unexpected spawn request %+v", req)
	}
	if req.X < SpawnMin || req.X > SpawnMax || req.Y < SpawnMin || req.Y > SpawnMax {
		t.Errorf("Spawn position (%f, %f) outside [%v, %v]", req.X, req.Y, SpawnMin, SpawnMax)
	}

	want := []string{"publish", "kill", "pause", "spawn"}
	calls := tb.rec.snapshot()
	if len(calls) != len(want) {
		t.Fatalf("Expected calls %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("Call %d: expected %s, got %s", i, want[i], calls[i])
		}
	}

	if len(tb.pauses) != 1 || tb.pauses[0] != RespawnPause {
		t.Errorf("Expected one pause of %v, got %v", RespawnPause, tb.pauses)
	}

	goal, ok := tb.node.Spawner.Current()
	if !ok || goal.X != req.X || goal.Y != req.Y {
		t.Errorf("New goal not installed: %+v %v", goal, ok)
	}
	if tb.node.Controller.State() != StateSeeking {
		t.Errorf("Expected SEEKING after respawn, got %s", tb.node.Controller.State())
	}
	if tb.node.Controller.GoalsCaught() != 1 {
		t.Errorf("Expected 1 goal caught, got %d", tb.node.Controller.GoalsCaught())
	}
}

func TestOnPoseUpdateIgnoresKillFailure(t *testing.T) {
	tb := newTestBed()
	tb.kill.result = errBridgeDown
	tb.installGoal(Goal{Name: GoalName, X: 1, Y: 1})

	if err := tb.node.HandlePose(context.Background(), Pose{X: 1.1, Y: 1}); err != nil {
		t.Fatalf("Kill failure must not surface, got %v", err)
	}
	if len(tb.spawn.spawned()) != 1 {
		t.Errorf("Expected a new goal despite failed kill")
	}
}

func TestOnPoseUpdateSpawnFailureIsReturned(t *testing.T) {
	tb := newTestBed()
	tb.spawn.spawnErr = errBridgeDown
	tb.installGoal(Goal{Name: GoalName, X: 1, Y: 1})

	err := tb.node.HandlePose(context.Background(), Pose{X: 1, Y: 1})
	if !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("Expected ErrRequestFailed, got %v", err)
	}
	if !errors.Is(err, errBridgeDown) {
		t.Errorf("Expected cause to be preserved, got %v", err)
	}
	if _, ok := tb.node.Spawner.Current(); ok {
		t.Errorf("No goal should be current after a failed spawn")
	}
}

func TestOnPoseUpdatePublishFailureContinues(t *testing.T) {
	var observed []Evaluation
	tb := newTestBed(WithObserver(ObserverFunc(func(ev Evaluation) {
		observed = append(observed, ev)
	})))
	tb.publisher.err = errBridgeDown
	tb.installGoal(Goal{Name: GoalName, X: 9, Y: 9})

	for i := 0; i < 3; i++ {
		if err := tb.node.HandlePose(context.Background(), Pose{X: 1, Y: 1}); err != nil {
			t.Fatalf("Publish failure must not stop the loop, got %v", err)
		}
	}

	if len(observed) != 3 {
		t.Fatalf("Expected 3 evaluations, got %d", len(observed))
	}
	if !errors.Is(observed[0].PublishErr, errBridgeDown) {
		t.Errorf("Expected publish error in evaluation, got %v", observed[0].PublishErr)
	}
}

func TestOnPoseUpdateWithoutGoal(t *testing.T) {
	tb := newTestBed()

	if err := tb.node.HandlePose(context.Background(), Pose{X: 2, Y: 2}); err != nil {
		t.Fatalf("HandlePose failed: %v", err)
	}
	if len(tb.publisher.published()) != 0 {
		t.Errorf("No command expected without a goal")
	}
	if tb.node.Poses.Current() != (Pose{X: 2, Y: 2}) {
		t.Errorf("Pose must be stored even without a goal")
	}
}

func TestOnPoseUpdateCancelledDuringPause(t *testing.T) {
	tb := newTestBed()
	tb.installGoal(Goal{Name: GoalName, X: 1, Y: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tb.node.HandlePose(ctx, Pose{X: 1, Y: 1})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if len(tb.spawn.spawned()) != 0 {
		t.Errorf("No spawn expected after cancellation")
	}
}

func TestObserverSeesArrival(t *testing.T) {
	var observed []Evaluation
	tb := newTestBed(WithObserver(ObserverFunc(func(ev Evaluation) {
		observed = append(observed, ev)
	})))
	tb.installGoal(Goal{Name: GoalName, X: 3, Y: 3})

	ctx := context.Background()
	if err := tb.node.HandlePose(ctx, Pose{X: 1, Y: 1}); err != nil {
		t.Fatalf("HandlePose failed: %v", err)
	}
	if err := tb.node.HandlePose(ctx, Pose{X: 3, Y: 3.2}); err != nil {
		t.Fatalf("HandlePose failed: %v", err)
	}

	if len(observed) != 2 {
		t.Fatalf("Expected 2 evaluations, got %d", len(observed))
	}
	if observed[0].State != StateSeeking || observed[0].Caught {
		t.Errorf("Unexpected first evaluation %+v", observed[0])
	}
	if observed[1].State != StateArrived || !observed[1].Caught || observed[1].Command != (VelocityCommand{}) {
		t.Errorf("Unexpected arrival evaluation %+v", observed[1])
	}
}

func TestSleepContext(t *testing.T) {
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("sleepContext did not return on cancellation")
	}
}

func TestStateText(t *testing.T) {
	text, err := StateArrived.MarshalText()
	if err != nil || string(text) != "ARRIVED" {
		t.Errorf("Expected ARRIVED, got %s (%v)", text, err)
	}
	if StateSeeking.String() != "SEEKING" {
		t.Errorf("Expected SEEKING, got %s", StateSeeking.String())
	}
}
