package zeromq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	customlog "github.com/open-teleop/turtle-catcher/pkg/log"
	"github.com/pebbe/zmq4"
)

// Common errors
var (
	ErrServiceClosed      = errors.New("zeromq service is closed")
	ErrInvalidMessage     = errors.New("invalid message format")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrTimeout            = errors.New("timed out waiting for reply")
	ErrServiceNotOffered  = errors.New("service not offered by bridge")
	ErrCallFailed         = errors.New("service call failed")
)

// Message types
const (
	MsgTypeServiceQuery    = "SERVICE_QUERY"
	MsgTypeServiceRequest  = "SERVICE_REQUEST"
	MsgTypeServiceResponse = "SERVICE_RESPONSE"
	MsgTypeError           = "ERROR"
)

// pollInterval bounds how long a blocked poll waits before re-checking
// deadlines and cancellation.
const pollInterval = 100 * time.Millisecond

// ZeroMQMessage represents the JSON envelope used on request/reply sockets
type ZeroMQMessage struct {
	Type      string      `json:"type"`
	Timestamp float64     `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// RawMessage is ZeroMQMessage with the data left undecoded
type RawMessage struct {
	Type      string          `json:"type"`
	Timestamp float64         `json:"timestamp"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ServiceQuery asks the bridge whether a ROS service is reachable
type ServiceQuery struct {
	Service string `json:"service"`
}

// ServiceRequest carries a ROS service call
type ServiceRequest struct {
	Service string          `json:"service"`
	Request json.RawMessage `json:"request,omitempty"`
}

// ServiceResponse answers both queries and requests
type ServiceResponse struct {
	Service  string          `json:"service"`
	Success  bool            `json:"success"`
	Message  string          `json:"message,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

// ErrorResponse represents an error response message
type ErrorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func newEnvelope(msgType string, requestID string, data interface{}) ZeroMQMessage {
	return ZeroMQMessage{
		Type:      msgType,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
		RequestID: requestID,
		Data:      data,
	}
}

// ServiceClient issues ROS service calls to the bridge over a REQ socket.
// Calls are serialized; the socket is rebuilt after any failed round trip so
// that a lost reply never leaves REQ stuck in its send/receive alternation.
type ServiceClient struct {
	zctx           *zmq4.Context
	address        string
	requestTimeout time.Duration
	logger         customlog.Logger

	mu     sync.Mutex
	socket *zmq4.Socket
	closed bool
}

// NewServiceClient creates a client connected to the bridge service address
func NewServiceClient(zctx *zmq4.Context, address string, requestTimeout time.Duration, logger customlog.Logger) (*ServiceClient, error) {
	c := &ServiceClient{
		zctx:           zctx,
		address:        address,
		requestTimeout: requestTimeout,
		logger:         logger,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}

	logger.Infof("ServiceClient connected to %s", address)
	return c, nil
}

func (c *ServiceClient) connectLocked() error {
	socket, err := c.zctx.NewSocket(zmq4.REQ)
	if err != nil {
		return fmt.Errorf("failed to create REQ socket: %w", err)
	}
	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return fmt.Errorf("failed to set linger option: %w", err)
	}
	if err := socket.Connect(c.address); err != nil {
		socket.Close()
		return fmt.Errorf("failed to connect to %s: %w", c.address, err)
	}
	c.socket = socket
	return nil
}

func (c *ServiceClient) resetLocked() {
	if c.socket != nil {
		c.socket.Close()
		c.socket = nil
	}
}

// WaitForService returns nil once the bridge reports service as reachable.
// It gives up after timeout with ErrTimeout, or ErrServiceNotOffered when the
// bridge answers but does not know the service.
func (c *ServiceClient) WaitForService(ctx context.Context, service string, timeout time.Duration) error {
	reply, err := c.roundTrip(ctx, MsgTypeServiceQuery, ServiceQuery{Service: service}, timeout)
	if err != nil {
		return fmt.Errorf("waiting for service '%s': %w", service, err)
	}

	resp, err := parseServiceResponse(reply)
	if err != nil {
		return fmt.Errorf("waiting for service '%s': %w", service, err)
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s", ErrServiceNotOffered, service)
	}
	return nil
}

// Call performs a service call and decodes the reply payload into response
// when response is non-nil.
func (c *ServiceClient) Call(ctx context.Context, service string, request interface{}, response interface{}) error {
	payload, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request for '%s': %w", service, err)
	}

	reply, err := c.roundTrip(ctx, MsgTypeServiceRequest, ServiceRequest{Service: service, Request: payload}, c.requestTimeout)
	if err != nil {
		return fmt.Errorf("calling service '%s': %w", service, err)
	}

	resp, err := parseServiceResponse(reply)
	if err != nil {
		return fmt.Errorf("calling service '%s': %w", service, err)
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s: %s", ErrCallFailed, service, resp.Message)
	}

	if response != nil && len(resp.Response) > 0 {
		if err := json.Unmarshal(resp.Response, response); err != nil {
			return fmt.Errorf("failed to decode response from '%s': %w", service, err)
		}
	}
	return nil
}

// CallAsync runs Call on its own goroutine. The returned channel receives
// exactly one value and is buffered, so callers may drop it unread.
func (c *ServiceClient) CallAsync(ctx context.Context, service string, request interface{}) <-chan error {
	result := make(chan error, 1)
	go func() {
		result <- c.Call(ctx, service, request, nil)
	}()
	return result
}

// Close releases the socket. Pending and future calls fail with ErrServiceClosed.
func (c *ServiceClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.resetLocked()
}

func (c *ServiceClient) roundTrip(ctx context.Context, msgType string, data interface{}, timeout time.Duration) (*RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrServiceClosed
	}
	if c.socket == nil {
		if err := c.connectLocked(); err != nil {
			return nil, err
		}
	}

	requestID := uuid.NewString()
	out, err := json.Marshal(newEnvelope(msgType, requestID, data))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	if _, err := c.socket.SendBytes(out, 0); err != nil {
		c.resetLocked()
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	poller := zmq4.NewPoller()
	poller.Add(c.socket, zmq4.POLLIN)

	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			c.resetLocked()
			return nil, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.resetLocked()
			return nil, ErrTimeout
		}
		if remaining > pollInterval {
			remaining = pollInterval
		}

		polled, err := poller.Poll(remaining)
		if err != nil {
			c.resetLocked()
			return nil, fmt.Errorf("failed to poll for reply: %w", err)
		}
		if len(polled) == 0 {
			continue
		}

		in, err := c.socket.RecvBytes(0)
		if err != nil {
			c.resetLocked()
			return nil, fmt.Errorf("failed to receive reply: %w", err)
		}

		var reply RawMessage
		if err := json.Unmarshal(in, &reply); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		if reply.RequestID != "" && reply.RequestID != requestID {
			c.resetLocked()
			return nil, fmt.Errorf("%w: reply for request %s, expected %s", ErrInvalidMessage, reply.RequestID, requestID)
		}
		c.logger.Debugf("Received %s for %s (%d bytes)", reply.Type, msgType, len(in))
		return &reply, nil
	}
}

// parseServiceResponse interprets a reply envelope
func parseServiceResponse(reply *RawMessage) (*ServiceResponse, error) {
	switch reply.Type {
	case MsgTypeServiceResponse:
		var resp ServiceResponse
		if err := json.Unmarshal(reply.Data, &resp); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		return &resp, nil
	case MsgTypeError:
		var errResp ErrorResponse
		if err := json.Unmarshal(reply.Data, &errResp); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		return nil, fmt.Errorf("%w: bridge error %d: %s", ErrCallFailed, errResp.Code, errResp.Message)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessageType, reply.Type)
	}
}
