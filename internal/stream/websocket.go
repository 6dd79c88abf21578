package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocketTransport connects to a telemetry backend over a WebSocket
// endpoint, e.g. ws://localhost:8080/ws.
type WebSocketTransport struct {
	logger *zap.Logger
	url    string

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocketTransport creates a transport dialing the given URL
func NewWebSocketTransport(url string, logger *zap.Logger) *WebSocketTransport {
	return &WebSocketTransport{
		logger: logger.Named("ws"),
		url:    url,
	}
}

// Open implements Transport. On success the handler's HandleOpen fires
// before Open returns and a read loop keeps delivering envelopes until the
// connection drops.
func (t *WebSocketTransport) Open(ctx context.Context, h Handler) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", t.url, err)
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	t.logger.Info("Connected", zap.String("url", t.url))
	h.HandleOpen()
	go t.readLoop(conn, h)
	return nil
}

// Close implements Transport. Closing while not open is a no-op.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (t *WebSocketTransport) readLoop(conn *websocket.Conn, h Handler) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.HandleClose()
			} else {
				h.HandleError(err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.logger.Error("Malformed envelope", zap.Error(err))
			continue
		}
		h.HandleMessage(env)
	}
}
