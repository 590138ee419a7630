package catcher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/open-teleop/turtle-catcher/pkg/config"
	"github.com/open-teleop/turtle-catcher/pkg/processing"
	"github.com/open-teleop/turtle-catcher/pkg/wire"
	"github.com/open-teleop/turtle-catcher/pkg/zeromq"
	"github.com/pebbe/zmq4"
)

type turtleServices struct {
	mu     sync.Mutex
	spawns []SpawnRequest
	kills  []KillRequest
}

func (s *turtleServices) dispatcher(t *testing.T) *zeromq.MessageDispatcher {
	dispatcher := zeromq.NewMessageDispatcher(newTestLogger())
	dispatcher.RegisterHandler(zeromq.MsgTypeServiceQuery, zeromq.HandlerFunc(func(msg *zeromq.RawMessage) (interface{}, error) {
		var query zeromq.ServiceQuery
		if err := json.Unmarshal(msg.Data, &query); err != nil {
			return nil, err
		}
		return zeromq.ServiceResponse{Service: query.Service, Success: query.Service == "/spawn" || query.Service == "/kill"}, nil
	}))
	dispatcher.RegisterHandler(zeromq.MsgTypeServiceRequest, zeromq.HandlerFunc(func(msg *zeromq.RawMessage) (interface{}, error) {
		var req zeromq.ServiceRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return nil, err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		switch req.Service {
		case "/spawn":
			var spawn SpawnRequest
			if err := json.Unmarshal(req.Request, &spawn); err != nil {
				return nil, err
			}
			s.spawns = append(s.spawns, spawn)
			return zeromq.ServiceResponse{Service: req.Service, Success: true, Response: json.RawMessage(`{"name":"turtle_spawn"}`)}, nil
		case "/kill":
			var kill KillRequest
			if err := json.Unmarshal(req.Request, &kill); err != nil {
				return nil, err
			}
			s.kills = append(s.kills, kill)
			return zeromq.ServiceResponse{Service: req.Service, Success: true}, nil
		}
		return nil, errors.New("unknown service")
	}))
	return dispatcher
}

func (s *turtleServices) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.spawns), len(s.kills)
}

func TestZeroMQBridgeEndToEnd(t *testing.T) {
	logger := newTestLogger()
	zctx, err := zmq4.NewContext()
	if err != nil {
		t.Fatalf("Failed to create ZMQ context: %v", err)
	}
	t.Cleanup(func() { zctx.Term() })

	services := &turtleServices{}
	server, err := zeromq.NewServiceServer(zctx, "inproc://catcher-services", services.dispatcher(t), logger)
	if err != nil {
		t.Fatalf("NewServiceServer failed: %v", err)
	}
	server.Start()
	t.Cleanup(server.Stop)

	sink, err := zctx.NewSocket(zmq4.SUB)
	if err != nil {
		t.Fatalf("Failed to create SUB socket: %v", err)
	}
	sink.SetLinger(0)
	sink.SetSubscribe("")
	if err := sink.Bind("inproc://catcher-commands"); err != nil {
		t.Fatalf("Failed to bind command sink: %v", err)
	}
	t.Cleanup(func() { sink.Close() })

	client, err := zeromq.NewServiceClient(zctx, "inproc://catcher-services", time.Second, logger)
	if err != nil {
		t.Fatalf("NewServiceClient failed: %v", err)
	}
	t.Cleanup(client.Close)

	publisher, err := zeromq.NewTopicPublisher(zctx, zeromq.ModeConnect, "inproc://catcher-commands", logger)
	if err != nil {
		t.Fatalf("NewTopicPublisher failed: %v", err)
	}
	t.Cleanup(publisher.Close)

	cfg := config.DefaultConfig()
	registry := processing.NewTopicRegistry(logger)
	registry.LoadFromConfig(cfg)

	bridge, err := NewZeroMQBridge(client, publisher, cfg, registry, logger)
	if err != nil {
		t.Fatalf("NewZeroMQBridge failed: %v", err)
	}

	noPause := WithPause(func(ctx context.Context, d time.Duration) error { return nil })
	bridge.SetServiceTimeout(500 * time.Millisecond)
	node := NewNode(bridge.Bridge(), newTestRand(), logger, noPause)

	ctx := context.Background()
	if err := node.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	goal, ok := node.Spawner.Current()
	if !ok {
		t.Fatalf("Expected a goal after Start")
	}

	// The PUB side may drop messages until the subscription has propagated.
	poller := zmq4.NewPoller()
	poller.Add(sink, zmq4.POLLIN)
	var frames [][]byte
	for attempt := 0; attempt < 40 && frames == nil; attempt++ {
		if err := bridge.PublishVelocity(VelocityCommand{Linear: 1.5, Angular: -0.25}); err != nil {
			t.Fatalf("PublishVelocity failed: %v", err)
		}
		polled, err := poller.Poll(50 * time.Millisecond)
		if err != nil {
			t.Fatalf("Poll failed: %v", err)
		}
		if len(polled) > 0 {
			frames, err = sink.RecvMessageBytes(0)
			if err != nil {
				t.Fatalf("Receive failed: %v", err)
			}
		}
	}
	if len(frames) != 2 {
		t.Fatalf("Expected a two-frame command, got %d frames", len(frames))
	}
	if string(frames[0]) != "/turtle1/cmd_vel" {
		t.Errorf("Expected topic /turtle1/cmd_vel, got %s", frames[0])
	}
	twist, _, err := wire.DecodeTwist(frames[1])
	if err != nil {
		t.Fatalf("DecodeTwist failed: %v", err)
	}
	if twist.Linear.X != 1.5 || twist.Angular.Z != -0.25 {
		t.Errorf("Unexpected twist %+v", twist)
	}

	// Arrive at the goal through the pose path.
	handler := PoseEventHandler(node, registry, logger)
	payload, err := wire.EncodePose("/turtle1/pose", wire.PoseMsg{X: goal.X, Y: goal.Y}, time.Now())
	if err != nil {
		t.Fatalf("EncodePose failed: %v", err)
	}
	if err := handler(ctx, processing.Event{Topic: "/turtle1/pose", Payload: payload}); err != nil {
		t.Fatalf("Pose handler failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		spawns, kills := services.counts()
		if spawns == 2 && kills == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Expected 2 spawns and 1 kill, got %d and %d", spawns, kills)
		}
		time.Sleep(10 * time.Millisecond)
	}

	services.mu.Lock()
	if services.kills[0].Name != GoalName {
		t.Errorf("Expected kill of %s, got %s", GoalName, services.kills[0].Name)
	}
	services.mu.Unlock()

	if info, _ := registry.GetTopicInfo("/turtle1/pose"); info.StatCount != 1 {
		t.Errorf("Expected 1 pose counted, got %d", info.StatCount)
	}
	if node.Controller.GoalsCaught() != 1 {
		t.Errorf("Expected 1 goal caught, got %d", node.Controller.GoalsCaught())
	}
}

func TestPoseEventHandlerSkipsGarbage(t *testing.T) {
	tb := newTestBed()
	tb.installGoal(Goal{Name: GoalName, X: 9, Y: 9})
	handler := PoseEventHandler(tb.node, nil, newTestLogger())

	if err := handler(context.Background(), processing.Event{Topic: "/turtle1/pose", Payload: []byte{1, 2}}); err != nil {
		t.Fatalf("Garbage must be skipped, got %v", err)
	}
	if len(tb.publisher.published()) != 0 {
		t.Errorf("No command expected for an undecodable sample")
	}
}

func TestNewZeroMQBridgeRequiresServices(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ServiceMappings = nil

	if _, err := NewZeroMQBridge(nil, nil, cfg, nil, newTestLogger()); err == nil {
		t.Errorf("Expected error without service mappings")
	}
}
