package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/LightningMCquen/Fullstack-chat-VC-app/internal/models"
	"github.com/LightningMCquen/Fullstack-chat-VC-app/internal/redis"
	"github.com/LightningMCquen/Fullstack-chat-VC-app/internal/relay"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Client is one live signaling channel for an authenticated user. It
// implements presence.Endpoint; the relay delivers envelopes into Send and
// writePump drains them onto the wire.
type Client struct {
	EndpointID  string
	UserID      string
	DisplayName string
	Conn        *websocket.Conn
	Send        chan []byte
}

// Identity returns the stable user identity this channel is bound to.
func (c *Client) Identity() string { return c.UserID }

// Deliver queues env for the wire without blocking. Returns false when the
// send buffer is full or closed; the relay logs and drops in that case.
func (c *Client) Deliver(env models.Envelope) bool {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("Failed to marshal envelope: %v", err)
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// HandleSignaling upgrades the authenticated request to a WebSocket channel
// and binds it into the presence registry. One channel per user; a second
// connection for the same identity displaces the first.
func HandleSignaling(r *relay.Relay) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("user_id")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			return
		}
		displayName, _ := c.Get("display_name")
		name, _ := displayName.(string)

		// Upgrade HTTP connection to WebSocket
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("Failed to upgrade connection: %v", err)
			return
		}

		client := &Client{
			EndpointID:  uuid.New().String(),
			UserID:      userID.(string),
			DisplayName: name,
			Conn:        conn,
			Send:        make(chan []byte, 256),
		}

		r.Bind(client)
		redis.MarkOnline(client.UserID)

		log.Printf("User %s connected (endpoint %s)", client.UserID, client.EndpointID)

		// Start goroutines for reading and writing
		go client.writePump()
		go client.readPump(r)
	}
}

func (c *Client) readPump(r *relay.Relay) {
	defer func() {
		r.Unbind(c)
		c.Conn.Close()
		redis.MarkOffline(c.UserID)
		log.Printf("User %s disconnected (endpoint %s)", c.UserID, c.EndpointID)
	}()

	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		// Parse envelope
		var env models.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Printf("Failed to parse envelope from %s: %v", c.UserID, err)
			continue
		}

		// Stamp the sender; clients cannot spoof identities.
		env.From = c.UserID
		if env.Kind == models.KindCallInvite && env.DisplayName == "" {
			env.DisplayName = c.DisplayName
		}

		switch env.Kind {
		case models.KindCallInvite, models.KindCallAnswer, models.KindICECandidate,
			models.KindCallEnd, models.KindCallReject:
			r.Route(env)
		default:
			log.Printf("Unknown envelope kind from %s: %s", c.UserID, env.Kind)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Failed to write message: %v", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
