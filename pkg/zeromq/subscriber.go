package zeromq

import (
	"context"
	"fmt"
	"sync"
	"time"

	customlog "github.com/open-teleop/turtle-catcher/pkg/log"
	"github.com/pebbe/zmq4"
)

// TopicHandler receives one topic message. Returning an error stops Run.
type TopicHandler func(ctx context.Context, topic string, payload []byte) error

// TopicSubscriber receives [topic][payload] messages from a SUB socket and
// delivers them, one at a time and in arrival order, to a handler.
type TopicSubscriber struct {
	socket *zmq4.Socket
	poller *zmq4.Poller
	logger customlog.Logger
	topics []string

	closeOnce sync.Once
}

// NewTopicSubscriber creates a SUB socket attached to address and subscribed to topics
func NewTopicSubscriber(zctx *zmq4.Context, mode, address string, topics []string, logger customlog.Logger) (*TopicSubscriber, error) {
	socket, err := zctx.NewSocket(zmq4.SUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create SUB socket: %w", err)
	}

	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}

	for _, topic := range topics {
		if err := socket.SetSubscribe(topic); err != nil {
			socket.Close()
			return nil, fmt.Errorf("failed to subscribe to '%s': %w", topic, err)
		}
	}

	if err := attach(socket, mode, address); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to %s SUB socket to %s: %w", mode, address, err)
	}

	poller := zmq4.NewPoller()
	poller.Add(socket, zmq4.POLLIN)

	logger.Infof("TopicSubscriber initialized (%s %s) topics=%v", mode, address, topics)

	return &TopicSubscriber{
		socket: socket,
		poller: poller,
		logger: logger,
		topics: topics,
	}, nil
}

// Run receives until ctx is cancelled or the handler fails. The socket is
// closed when Run returns. A nil error means ctx ended the loop.
func (s *TopicSubscriber) Run(ctx context.Context, handler TopicHandler) error {
	defer s.Close()

	s.logger.Infof("TopicSubscriber started")
	for {
		if ctx.Err() != nil {
			s.logger.Infof("TopicSubscriber stopped")
			return nil
		}

		polled, err := s.poller.Poll(pollInterval)
		if err != nil {
			s.logger.Warnf("Error polling SUB socket: %v", err)
			time.Sleep(pollInterval)
			continue
		}
		if len(polled) == 0 {
			continue
		}

		parts, err := s.socket.RecvMessageBytes(0)
		if err != nil {
			s.logger.Warnf("Error receiving message: %v", err)
			continue
		}
		if len(parts) != 2 {
			s.logger.Warnf("Dropping message with %d frames, expected 2", len(parts))
			continue
		}

		if err := handler(ctx, string(parts[0]), parts[1]); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// Close releases the socket. Run calls it on return; it is only needed when
// Run is never started.
func (s *TopicSubscriber) Close() {
	s.closeOnce.Do(func() {
		s.socket.Close()
	})
}
