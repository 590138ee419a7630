package zeromq

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	customlog "github.com/open-teleop/turtle-catcher/pkg/log"
	"github.com/pebbe/zmq4"
)

// MessageHandler defines the interface for handlers that process specific message types
type MessageHandler interface {
	HandleMessage(msg *RawMessage) (interface{}, error)
}

// HandlerFunc is a function type that implements MessageHandler
type HandlerFunc func(msg *RawMessage) (interface{}, error)

// HandleMessage calls the function
func (f HandlerFunc) HandleMessage(msg *RawMessage) (interface{}, error) {
	return f(msg)
}

// MessageDispatcher routes request envelopes to the handler registered for their type
type MessageDispatcher struct {
	handlers map[string]MessageHandler
	logger   customlog.Logger
	mu       sync.RWMutex
}

// NewMessageDispatcher creates a new message dispatcher
func NewMessageDispatcher(logger customlog.Logger) *MessageDispatcher {
	return &MessageDispatcher{
		handlers: make(map[string]MessageHandler),
		logger:   logger,
	}
}

// RegisterHandler adds a handler for a specific message type
func (d *MessageDispatcher) RegisterHandler(messageType string, handler MessageHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[messageType] = handler
	d.logger.Debugf("Registered handler for message type: %s", messageType)
}

// Dispatch decodes a request and returns the encoded reply. Handler errors
// become ERROR envelopes, so Dispatch always has something to send back.
func (d *MessageDispatcher) Dispatch(data []byte) []byte {
	var msg RawMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return d.errorReply("", fmt.Errorf("%w: %v", ErrInvalidMessage, err), 400)
	}

	d.mu.RLock()
	handler, exists := d.handlers[msg.Type]
	d.mu.RUnlock()

	if !exists {
		return d.errorReply(msg.RequestID, fmt.Errorf("%w: %s", ErrUnknownMessageType, msg.Type), 404)
	}

	result, err := handler.HandleMessage(&msg)
	if err != nil {
		return d.errorReply(msg.RequestID, err, 500)
	}

	out, err := json.Marshal(newEnvelope(MsgTypeServiceResponse, msg.RequestID, result))
	if err != nil {
		return d.errorReply(msg.RequestID, fmt.Errorf("failed to serialize response: %w", err), 500)
	}
	return out
}

func (d *MessageDispatcher) errorReply(requestID string, err error, code int) []byte {
	d.logger.Warnf("Replying with error: %v", err)
	out, _ := json.Marshal(newEnvelope(MsgTypeError, requestID, ErrorResponse{Message: err.Error(), Code: code}))
	return out
}

// ServiceServer answers requests on a REP socket. The bridge simulator uses it
// to stand in for the ROS2 service bridge.
type ServiceServer struct {
	socket     *zmq4.Socket
	poller     *zmq4.Poller
	dispatcher *MessageDispatcher
	logger     customlog.Logger

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// NewServiceServer binds a REP socket on address
func NewServiceServer(zctx *zmq4.Context, address string, dispatcher *MessageDispatcher, logger customlog.Logger) (*ServiceServer, error) {
	socket, err := zctx.NewSocket(zmq4.REP)
	if err != nil {
		return nil, fmt.Errorf("failed to create REP socket: %w", err)
	}
	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}
	if err := socket.Bind(address); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to bind to %s: %w", address, err)
	}

	poller := zmq4.NewPoller()
	poller.Add(socket, zmq4.POLLIN)

	logger.Infof("ServiceServer bound on %s", address)

	return &ServiceServer{
		socket:     socket,
		poller:     poller,
		dispatcher: dispatcher,
		logger:     logger,
	}, nil
}

func (s *ServiceServer) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start begins the receive loop on a new goroutine
func (s *ServiceServer) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.socket.Close()

		for s.isRunning() {
			polled, err := s.poller.Poll(pollInterval)
			if err != nil {
				s.logger.Warnf("Error polling REP socket: %v", err)
				time.Sleep(pollInterval)
				continue
			}
			if len(polled) == 0 {
				continue
			}

			msg, err := s.socket.RecvBytes(0)
			if err != nil {
				s.logger.Warnf("Error receiving request: %v", err)
				continue
			}

			reply := s.dispatcher.Dispatch(msg)
			if _, err := s.socket.SendBytes(reply, 0); err != nil {
				s.logger.Warnf("Error sending reply: %v", err)
			}
		}
	}()
}

// Stop ends the receive loop and closes the socket
func (s *ServiceServer) Stop() {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	if wasRunning {
		s.wg.Wait()
	} else {
		s.socket.Close()
	}
}
