package zeromq

import (
	"fmt"
	"sync"

	customlog "github.com/open-teleop/turtle-catcher/pkg/log"
	"github.com/pebbe/zmq4"
)

// Endpoint modes for topic sockets. The catcher connects to a bridge that
// binds; the bridge simulator binds.
const (
	ModeConnect = "connect"
	ModeBind    = "bind"
)

func attach(socket *zmq4.Socket, mode, address string) error {
	if mode == ModeBind {
		return socket.Bind(address)
	}
	return socket.Connect(address)
}

// TopicPublisher sends two-frame [topic][payload] messages on a PUB socket
type TopicPublisher struct {
	socket  *zmq4.Socket
	logger  customlog.Logger
	running bool
	mu      sync.Mutex
}

// NewTopicPublisher creates a PUB socket attached to address
func NewTopicPublisher(zctx *zmq4.Context, mode, address string, logger customlog.Logger) (*TopicPublisher, error) {
	socket, err := zctx.NewSocket(zmq4.PUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create PUB socket: %w", err)
	}

	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}

	if err := attach(socket, mode, address); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to %s PUB socket to %s: %w", mode, address, err)
	}

	logger.Infof("TopicPublisher initialized (%s %s)", mode, address)

	return &TopicPublisher{
		socket:  socket,
		logger:  logger,
		running: true,
	}, nil
}

// PublishMessage sends a message with the given topic
func (p *TopicPublisher) PublishMessage(topic string, message []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return ErrServiceClosed
	}

	if _, err := p.socket.Send(topic, zmq4.SNDMORE); err != nil {
		return fmt.Errorf("failed to send topic: %w", err)
	}
	if _, err := p.socket.SendBytes(message, 0); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

// Close cleans up resources
func (p *TopicPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.running = false
	if p.socket != nil {
		p.socket.Close()
		p.socket = nil
	}
}
