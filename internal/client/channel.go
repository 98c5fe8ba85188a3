// Package client implements the user side of the signaling channel: one
// authenticated WebSocket connection carrying envelopes to and from the
// relay.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/LightningMCquen/Fullstack-chat-VC-app/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Channel is an established signaling connection. Inbound envelopes are
// read from Receive; a closed Receive channel means the channel was lost
// and Err reports why.
type Channel struct {
	conn    *websocket.Conn
	send    chan []byte
	receive chan models.Envelope
	done    chan struct{}

	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// Dial connects to the signaling server and authenticates with token. The
// server resolves the user's identity from the token; the channel carries
// no identity of its own.
func Dial(ctx context.Context, serverURL, token string) (*Channel, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws/signal"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling server: %w", err)
	}

	ch := &Channel{
		conn:    conn,
		send:    make(chan []byte, 64),
		receive: make(chan models.Envelope, 64),
		done:    make(chan struct{}),
	}
	go ch.readPump()
	go ch.writePump()
	return ch, nil
}

// Send queues env for the relay.
func (c *Channel) Send(env models.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return fmt.Errorf("signaling channel closed")
	}
}

// Receive yields inbound envelopes until the channel is lost or closed.
func (c *Channel) Receive() <-chan models.Envelope { return c.receive }

// Err reports why the channel closed; nil after a local Close.
func (c *Channel) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close shuts the channel down locally.
func (c *Channel) Close() {
	c.shutdown(nil)
}

func (c *Channel) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = cause
		c.errMu.Unlock()
		close(c.done)
		c.conn.Close()
	})
}

func (c *Channel) readPump() {
	// The read pump owns the receive channel; it closes it on exit so a
	// shutdown triggered from the write side cannot race a pending send.
	defer close(c.receive)

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(fmt.Errorf("signaling channel lost: %w", err))
			return
		}
		var env models.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Printf("channel: failed to parse envelope: %v", err)
			continue
		}
		select {
		case c.receive <- env:
		case <-c.done:
			return
		}
	}
}

func (c *Channel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.shutdown(fmt.Errorf("signaling channel write failed: %w", err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown(fmt.Errorf("signaling channel ping failed: %w", err))
				return
			}
		case <-c.done:
			return
		}
	}
}
