package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"

	"signalledger/src/risk"
)

// WebsocketNotifier keeps a single outbound websocket connection to the
// notification collaborator and writes events as JSON frames. The
// connection is dialed lazily and re-dialed after a write failure.
type WebsocketNotifier struct {
	url string

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWebsocketNotifier(url string) *WebsocketNotifier {
	return &WebsocketNotifier{url: url}
}

// ensureConn must be called with mu held.
func (n *WebsocketNotifier) ensureConn(ctx context.Context) error {
	if n.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, n.url, nil)
	if err != nil {
		return fmt.Errorf("dial notifier websocket: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"component": "WebsocketNotifier",
		"url":       n.url,
	}).Info("Notifier websocket connected")

	n.conn = conn
	return nil
}

type wsFrame struct {
	EventType string      `json:"event_type"`
	Payload   interface{} `json:"payload"`
}

func (n *WebsocketNotifier) write(ctx context.Context, eventType string, payload interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.ensureConn(ctx); err != nil {
		return err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = n.conn.SetWriteDeadline(deadline)
	} else {
		_ = n.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	}

	if err := n.conn.WriteJSON(wsFrame{EventType: eventType, Payload: payload}); err != nil {
		// Drop the connection so the next event re-dials.
		_ = n.conn.Close()
		n.conn = nil
		return fmt.Errorf("write %s event: %w", eventType, err)
	}

	return nil
}

func (n *WebsocketNotifier) NotifyRiskBreach(ctx context.Context, event risk.RiskBreachEvent) error {
	return n.write(ctx, "risk_breach", event)
}

func (n *WebsocketNotifier) NotifyAutoStop(ctx context.Context, event risk.AutoStopEvent) error {
	return n.write(ctx, "auto_stop", event)
}

// Close shuts the underlying connection if one is open.
func (n *WebsocketNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn == nil {
		return nil
	}
	err := n.conn.Close()
	n.conn = nil
	return err
}
