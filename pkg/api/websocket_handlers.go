package api

import (
	"errors"
	"syscall"

	"github.com/gofiber/contrib/websocket"
	customlog "github.com/open-teleop/turtle-catcher/pkg/log"
)

// TelemetryWebSocketHandler streams hub telemetry to one websocket client.
// Messages from the client are read only to detect the close.
func TelemetryWebSocketHandler(hub *TelemetryHub, logger customlog.Logger) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		logger.Infof("Telemetry WebSocket connected: %s", conn.RemoteAddr())

		client, ok := hub.addClient()
		if !ok {
			logger.Warnf("Telemetry hub stopped, closing %s", conn.RemoteAddr())
			return
		}

		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			// Unblocks the read loop when the hub drops this client.
			defer conn.Close()
			for message := range client.send {
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					logger.Debugf("Telemetry WS write error: %v", err)
					return
				}
			}
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Errorf("Telemetry WS read error: %v", err)
				} else if !errors.Is(err, syscall.EPIPE) && !errors.Is(err, syscall.ECONNRESET) {
					logger.Infof("Telemetry WS connection closed: %v", err)
				}
				break
			}
		}

		hub.removeClient(client)
		<-writerDone
		logger.Infof("Telemetry WebSocket disconnected: %s", conn.RemoteAddr())
	}
}
