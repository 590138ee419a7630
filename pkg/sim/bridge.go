package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/open-teleop/turtle-catcher/pkg/config"
	customlog "github.com/open-teleop/turtle-catcher/pkg/log"
	"github.com/open-teleop/turtle-catcher/pkg/wire"
	"github.com/open-teleop/turtle-catcher/pkg/zeromq"
	"github.com/pebbe/zmq4"
)

// Addresses are the endpoints the simulator binds
type Addresses struct {
	Poses    string
	Commands string
	Services string
}

type spawnRequest struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
	Name  string  `json:"name"`
}

type killRequest struct {
	Name string `json:"name"`
}

// Bridge serves a World over the same ZeroMQ protocol as the ROS2 bridge.
type Bridge struct {
	world  *World
	cfg    *config.Config
	logger customlog.Logger
	period time.Duration

	poses    *zeromq.TopicPublisher
	commands *zeromq.TopicSubscriber
	services *zeromq.ServiceServer

	spawnService string
	killService  string
}

// NewBridge binds the simulator sockets. period is the pose publish interval.
func NewBridge(zctx *zmq4.Context, world *World, cfg *config.Config, addrs Addresses, period time.Duration, logger customlog.Logger) (*Bridge, error) {
	b := &Bridge{
		world:  world,
		cfg:    cfg,
		logger: logger,
		period: period,
	}
	if mapping, ok := cfg.GetServiceMapping(config.ServiceSpawn); ok {
		b.spawnService = mapping.RosService
	}
	if mapping, ok := cfg.GetServiceMapping(config.ServiceKill); ok {
		b.killService = mapping.RosService
	}

	var commandTopics []string
	for _, mapping := range cfg.GetTopicMappingsByDirection(config.DirectionOutbound) {
		commandTopics = append(commandTopics, mapping.RosTopic)
	}

	var err error
	if b.poses, err = zeromq.NewTopicPublisher(zctx, zeromq.ModeBind, addrs.Poses, logger); err != nil {
		return nil, err
	}
	if b.commands, err = zeromq.NewTopicSubscriber(zctx, zeromq.ModeBind, addrs.Commands, commandTopics, logger); err != nil {
		b.poses.Close()
		return nil, err
	}
	if b.services, err = zeromq.NewServiceServer(zctx, addrs.Services, b.Dispatcher(), logger); err != nil {
		b.poses.Close()
		b.commands.Close()
		return nil, err
	}

	return b, nil
}

// Dispatcher answers service queries and spawn/kill requests against the world
func (b *Bridge) Dispatcher() *zeromq.MessageDispatcher {
	dispatcher := zeromq.NewMessageDispatcher(b.logger)
	dispatcher.RegisterHandler(zeromq.MsgTypeServiceQuery, zeromq.HandlerFunc(b.handleQuery))
	dispatcher.RegisterHandler(zeromq.MsgTypeServiceRequest, zeromq.HandlerFunc(b.handleRequest))
	return dispatcher
}

func (b *Bridge) handleQuery(msg *zeromq.RawMessage) (interface{}, error) {
	var query zeromq.ServiceQuery
	if err := json.Unmarshal(msg.Data, &query); err != nil {
		return nil, fmt.Errorf("%w: %v", zeromq.ErrInvalidMessage, err)
	}
	offered := query.Service != "" && (query.Service == b.spawnService || query.Service == b.killService)
	return zeromq.ServiceResponse{Service: query.Service, Success: offered}, nil
}

func (b *Bridge) handleRequest(msg *zeromq.RawMessage) (interface{}, error) {
	var req zeromq.ServiceRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", zeromq.ErrInvalidMessage, err)
	}

	switch req.Service {
	case b.spawnService:
		var spawn spawnRequest
		if err := json.Unmarshal(req.Request, &spawn); err != nil {
			return nil, fmt.Errorf("%w: %v", zeromq.ErrInvalidMessage, err)
		}
		name, err := b.world.Spawn(spawn.Name, spawn.X, spawn.Y, spawn.Theta)
		if err != nil {
			return zeromq.ServiceResponse{Service: req.Service, Success: false, Message: err.Error()}, nil
		}
		b.logger.Infof("Spawning turtle [%s] at x=[%f], y=[%f], theta=[%f]", name, spawn.X, spawn.Y, spawn.Theta)
		response, _ := json.Marshal(map[string]string{"name": name})
		return zeromq.ServiceResponse{Service: req.Service, Success: true, Response: response}, nil

	case b.killService:
		var kill killRequest
		if err := json.Unmarshal(req.Request, &kill); err != nil {
			return nil, fmt.Errorf("%w: %v", zeromq.ErrInvalidMessage, err)
		}
		if err := b.world.Kill(kill.Name); err != nil {
			return zeromq.ServiceResponse{Service: req.Service, Success: false, Message: err.Error()}, nil
		}
		b.logger.Infof("Killed turtle [%s]", kill.Name)
		return zeromq.ServiceResponse{Service: req.Service, Success: true}, nil
	}

	return nil, fmt.Errorf("service '%s' not offered", req.Service)
}

// Run steps the world and publishes poses until ctx is done
func (b *Bridge) Run(ctx context.Context) error {
	b.services.Start()
	defer b.services.Stop()
	defer b.poses.Close()

	cmdErr := make(chan error, 1)
	go func() {
		cmdErr <- b.commands.Run(ctx, b.handleCommand)
	}()

	ticker := time.NewTicker(b.period)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			<-cmdErr
			return nil
		case err := <-cmdErr:
			return err
		case now := <-ticker.C:
			b.world.Step(now.Sub(last), now)
			last = now
			b.publishPoses(now)
		}
	}
}

func (b *Bridge) handleCommand(ctx context.Context, topic string, payload []byte) error {
	twist, _, err := wire.DecodeTwist(payload)
	if err != nil {
		b.logger.Warnf("Dropping command on '%s': %v", topic, err)
		return nil
	}
	if err := b.world.SetVelocity(turtleName(topic), twist, time.Now()); err != nil {
		b.logger.Warnf("Dropping command on '%s': %v", topic, err)
	}
	return nil
}

func (b *Bridge) publishPoses(now time.Time) {
	for _, name := range b.world.Names() {
		pose, ok := b.world.Pose(name)
		if !ok {
			continue
		}
		topic := "/" + name + "/pose"
		data, err := wire.EncodePose(topic, pose, now)
		if err != nil {
			b.logger.Warnf("Failed to encode pose for %s: %v", name, err)
			continue
		}
		if err := b.poses.PublishMessage(topic, data); err != nil {
			b.logger.Warnf("Failed to publish pose for %s: %v", name, err)
		}
	}
}

// turtleName extracts "turtle1" from "/turtle1/cmd_vel"
func turtleName(topic string) string {
	parts := strings.Split(strings.TrimPrefix(topic, "/"), "/")
	return parts[0]
}
