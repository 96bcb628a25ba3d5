package forwarder

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"engineblox/core/events"
)

const writeTimeout = 10 * time.Second

// Envelope is the wire representation of a forwarded event. Every delivery
// carries a fresh id so downstream consumers can deduplicate replays.
type Envelope struct {
	DeliveryID string            `json:"deliveryId"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	EmittedAt  int64             `json:"emittedAt"`
}

// WSForwarder pushes engine events to a websocket endpoint. Delivery is
// best effort: connection or write failures are logged and dropped, never
// surfaced to the state transition that produced the event.
type WSForwarder struct {
	url    string
	logger *slog.Logger
	nowFn  func() time.Time

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWSForwarder builds a forwarder for the given websocket URL.
func NewWSForwarder(url string, logger *slog.Logger) *WSForwarder {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSForwarder{
		url:    url,
		logger: logger,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// Emit implements events.Emitter.
func (f *WSForwarder) Emit(evt events.Event) {
	if f == nil || evt == nil {
		return
	}
	envelope := Envelope{
		DeliveryID: uuid.NewString(),
		Type:       evt.EventType(),
		Attributes: evt.Attributes(),
		EmittedAt:  f.nowFn().Unix(),
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		f.logger.Warn("forwarder: drop event", "type", evt.EventType(), "err", err)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, err := f.connLocked()
	if err != nil {
		f.logger.Warn("forwarder: endpoint unavailable", "url", f.url, "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		f.logger.Warn("forwarder: delivery failed", "type", evt.EventType(), "err", err)
		f.dropLocked()
	}
}

func (f *WSForwarder) connLocked() (*websocket.Conn, error) {
	if f.conn != nil {
		return f.conn, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, f.url, nil)
	if err != nil {
		return nil, err
	}
	f.conn = conn
	return conn, nil
}

func (f *WSForwarder) dropLocked() {
	if f.conn != nil {
		_ = f.conn.Close(websocket.StatusInternalError, "delivery failed")
		f.conn = nil
	}
}

// Close shuts down the underlying connection if one is open.
func (f *WSForwarder) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		_ = f.conn.Close(websocket.StatusNormalClosure, "forwarder closed")
		f.conn = nil
	}
}
