package api

import (
	"context"
	"encoding/json"
	"sync"

	customlog "github.com/open-teleop/turtle-catcher/pkg/log"
)

const (
	broadcastBuffer = 256
	clientBuffer    = 64
)

type telemetryClient struct {
	send chan []byte
}

// TelemetryHub fans JSON telemetry out to websocket clients. Broadcasting
// never blocks: when the hub or a client falls behind, messages are dropped
// and slow clients are disconnected.
type TelemetryHub struct {
	logger customlog.Logger

	broadcast  chan []byte
	register   chan *telemetryClient
	unregister chan *telemetryClient
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*telemetryClient]bool
	dropped int64
}

// NewTelemetryHub creates a hub. Run must be started before clients connect.
func NewTelemetryHub(logger customlog.Logger) *TelemetryHub {
	return &TelemetryHub{
		logger:     logger,
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *telemetryClient),
		unregister: make(chan *telemetryClient),
		done:       make(chan struct{}),
		clients:    make(map[*telemetryClient]bool),
	}
}

// Run delivers broadcasts until ctx is done, then closes every client.
func (h *TelemetryHub) Run(ctx context.Context) {
	defer func() {
		h.mu.Lock()
		for client := range h.clients {
			close(client.send)
			delete(h.clients, client)
		}
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Infof("Telemetry client connected (%d total)", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Infof("Telemetry client disconnected (%d remaining)", count)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
					h.logger.Warnf("Dropped slow telemetry client")
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastJSON encodes v and queues it for every client
func (h *TelemetryHub) BroadcastJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- data:
	default:
		h.mu.Lock()
		h.dropped++
		h.mu.Unlock()
	}
	return nil
}

// ClientCount returns the number of connected clients
func (h *TelemetryHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many broadcasts were discarded because the hub was full
func (h *TelemetryHub) Dropped() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

func (h *TelemetryHub) addClient() (*telemetryClient, bool) {
	client := &telemetryClient{send: make(chan []byte, clientBuffer)}
	select {
	case h.register <- client:
		return client, true
	case <-h.done:
		return nil, false
	}
}

func (h *TelemetryHub) removeClient(client *telemetryClient) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
