// Package transport implements the host.Transport seam over a websocket
// connection to a relay.
package transport

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"footlights/stage/internal/host"
	"footlights/stage/internal/proto"
	"footlights/stage/internal/telemetry"
)

const writeWait = 10 * time.Second

// Client is a relay-backed peer transport. Broadcast writes are serialized;
// inbound envelopes are dispatched from a single read loop.
type Client struct {
	conn   *websocket.Conn
	logger telemetry.Logger

	mu      sync.Mutex
	handler func(env proto.Envelope)
	closed  bool
}

// Dial connects to a relay and starts the read loop. peerID identifies us
// to the relay; an empty id lets the relay assign one.
func Dial(relayURL, peerID string, logger telemetry.Logger) (*Client, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	if peerID != "" {
		q := u.Query()
		q.Set("peer", peerID)
		u.RawQuery = q.Encode()
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	c := &Client{conn: conn, logger: logger}
	go c.readLoop()
	return c, nil
}

// Broadcast implements host.Transport.
func (c *Client) Broadcast(env proto.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("transport closed")
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// SetHandler implements host.Transport.
func (c *Client) SetHandler(fn func(env proto.Envelope)) {
	c.mu.Lock()
	c.handler = fn
	c.mu.Unlock()
}

// Close implements host.Transport.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *Client) readLoop() {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed && c.logger != nil {
				c.logger.Printf("relay read: %v", err)
			}
			return
		}
		var env proto.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			if c.logger != nil {
				c.logger.Printf("drop malformed envelope: %v", err)
			}
			continue
		}
		c.mu.Lock()
		fn := c.handler
		c.mu.Unlock()
		if fn != nil {
			fn(env)
		}
	}
}

var _ host.Transport = (*Client)(nil)
