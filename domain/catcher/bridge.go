package catcher

import (
	"context"
	"fmt"
	"time"

	"github.com/open-teleop/turtle-catcher/pkg/config"
	customlog "github.com/open-teleop/turtle-catcher/pkg/log"
	"github.com/open-teleop/turtle-catcher/pkg/processing"
	"github.com/open-teleop/turtle-catcher/pkg/wire"
	"github.com/open-teleop/turtle-catcher/pkg/zeromq"
)

// KillRequest is the turtlesim Kill request body.
type KillRequest struct {
	Name string `json:"name"`
}

type spawnResponse struct {
	Name string `json:"name"`
}

// ZeroMQBridge implements the node's collaborators on the ZeroMQ bridge.
type ZeroMQBridge struct {
	client       *zeromq.ServiceClient
	publisher    *zeromq.TopicPublisher
	registry     *processing.TopicRegistry
	commandTopic string
	spawnService string
	killService  string
	waitTimeout  time.Duration
	logger       customlog.Logger
}

// NewZeroMQBridge resolves topic and service names from cfg. registry may be nil.
func NewZeroMQBridge(client *zeromq.ServiceClient, publisher *zeromq.TopicPublisher, cfg *config.Config, registry *processing.TopicRegistry, logger customlog.Logger) (*ZeroMQBridge, error) {
	commandTopic := cfg.CommandTopic()
	if commandTopic == "" {
		return nil, fmt.Errorf("no %s topic mapping configured", config.MessageTypeTwist)
	}
	spawn, ok := cfg.GetServiceMapping(config.ServiceSpawn)
	if !ok {
		return nil, fmt.Errorf("no '%s' service mapping configured", config.ServiceSpawn)
	}
	kill, ok := cfg.GetServiceMapping(config.ServiceKill)
	if !ok {
		return nil, fmt.Errorf("no '%s' service mapping configured", config.ServiceKill)
	}

	return &ZeroMQBridge{
		client:       client,
		publisher:    publisher,
		registry:     registry,
		commandTopic: commandTopic,
		spawnService: spawn.RosService,
		killService:  kill.RosService,
		logger:       logger,
	}, nil
}

// SetServiceTimeout overrides the availability wait requested by the node.
// Zero keeps the node's value.
func (b *ZeroMQBridge) SetServiceTimeout(d time.Duration) {
	b.waitTimeout = d
}

// Bridge returns the collaborator set for NewNode
func (b *ZeroMQBridge) Bridge() Bridge {
	return Bridge{
		Commands: b,
		Spawn:    spawnEndpoint{client: b.client, service: b.spawnService, waitTimeout: b.waitTimeout},
		Kill:     killEndpoint{client: b.client, service: b.killService, waitTimeout: b.waitTimeout},
	}
}

// PublishVelocity sends cmd as a Twist on the command topic
func (b *ZeroMQBridge) PublishVelocity(cmd VelocityCommand) error {
	now := time.Now()
	twist := wire.TwistMsg{
		Linear:  wire.Vector3{X: cmd.Linear},
		Angular: wire.Vector3{Z: cmd.Angular},
	}

	data, err := wire.EncodeTwist(b.commandTopic, twist, now)
	if err != nil {
		return err
	}
	if err := b.publisher.PublishMessage(b.commandTopic, data); err != nil {
		return err
	}

	if b.registry != nil {
		b.registry.UpdateTopicStats(b.commandTopic, now.UnixNano())
	}
	return nil
}

type spawnEndpoint struct {
	client      *zeromq.ServiceClient
	service     string
	waitTimeout time.Duration
}

func (e spawnEndpoint) WaitForService(ctx context.Context, timeout time.Duration) error {
	if e.waitTimeout > 0 {
		timeout = e.waitTimeout
	}
	return e.client.WaitForService(ctx, e.service, timeout)
}

func (e spawnEndpoint) Spawn(ctx context.Context, req SpawnRequest) error {
	var resp spawnResponse
	return e.client.Call(ctx, e.service, req, &resp)
}

type killEndpoint struct {
	client      *zeromq.ServiceClient
	service     string
	waitTimeout time.Duration
}

func (e killEndpoint) WaitForService(ctx context.Context, timeout time.Duration) error {
	if e.waitTimeout > 0 {
		timeout = e.waitTimeout
	}
	return e.client.WaitForService(ctx, e.service, timeout)
}

func (e killEndpoint) KillAsync(ctx context.Context, name string) <-chan error {
	return e.client.CallAsync(ctx, e.service, KillRequest{Name: name})
}

// PoseEventHandler decodes pose envelopes from the pool and hands them to the
// node. Undecodable samples are logged and skipped.
func PoseEventHandler(node *Node, registry *processing.TopicRegistry, logger customlog.Logger) processing.EventHandler {
	return func(ctx context.Context, ev processing.Event) error {
		msg, envelope, err := wire.DecodePose(ev.Payload)
		if err != nil {
			logger.Warnf("Dropping pose on '%s': %v", ev.Topic, err)
			return nil
		}
		if registry != nil {
			registry.UpdateTopicStats(ev.Topic, envelope.TimestampNs)
		}

		return node.HandlePose(ctx, Pose{X: msg.X, Y: msg.Y, Theta: msg.Theta})
	}
}
