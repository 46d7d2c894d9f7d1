// internal/gateway/client.go

// Package gateway exposes the websocket endpoint: connection lifecycle,
// the client event protocol and the bridge into presence and replay.
package gateway

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ezlab-notifier/internal/common/logger"
)

// Event is the wire envelope for every server to client message.
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// clientEvent is the envelope for client to server messages. Data stays
// raw until the event name picks the payload type.
type clientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 64
)

// Client is one live websocket connection. It satisfies the presence
// tracker's connection handle interface.
type Client struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan []byte
	log    logger.Logger

	mu     sync.Mutex
	closed bool
}

func NewClient(userID string, conn *websocket.Conn, log logger.Logger) *Client {
	return &Client{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		log:    log,
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) UserID() string { return c.userID }

// Emit queues one event for delivery. A client that cannot keep up is
// dropped rather than allowed to block the emitter. The presence tracker
// may still hold a dropped connection until its read loop exits, so an
// Emit after Close is an error, never a send on the closed channel.
func (c *Client) Emit(event string, payload interface{}) error {
	b, err := json.Marshal(Event{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connection %s is closed", c.id)
	}

	select {
	case c.send <- b:
		return nil
	default:
		c.closeLocked()
		return fmt.Errorf("send buffer full, dropping connection %s", c.id)
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

// WritePump drains the send channel onto the wire and keeps the
// connection alive with pings. One per connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug("write failed", map[string]interface{}{
					"connId": c.id,
					"error":  err,
				})
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
