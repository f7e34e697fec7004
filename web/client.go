package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"babble/services"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192
)

// Client is one live, authenticated session. Email is the identity bound
// at connection time; it is never re-verified for the session's lifetime
// and nothing else about the session is durable.
type Client struct {
	Email  string
	hub    *Hub
	conn   *websocket.Conn
	send   chan *WireMessage
	router services.IChatService
	log    *slog.Logger

	// mu guards send against a concurrent shutdown: the hub may drop this
	// session while its ReadPump is still producing replies.
	mu     sync.Mutex
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, email string,
	router services.IChatService, bufferSize int, log *slog.Logger) *Client {
	return &Client{
		Email:  email,
		hub:    hub,
		conn:   conn,
		send:   make(chan *WireMessage, bufferSize),
		router: router,
		log:    log,
	}
}

// ReadPump pumps inbound events from the connection into the router.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Error("Session read error", "email", c.Email, "error", err)
			}
			break
		}

		var msg WireMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Error("Malformed frame", "email", c.Email, "error", err)
			continue
		}

		if err := c.handleMessage(&msg); err != nil {
			c.log.Error("Event handling failed", "email", c.Email, "error", err)
		}
	}
}

// handleMessage accepts exactly one inbound event kind.
func (c *Client) handleMessage(msg *WireMessage) error {
	switch msg.Event {
	case EventSendMessage:
		var payload SendMessagePayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return err
		}
		c.handleSend(payload)
		return nil
	default:
		c.log.Debug("Ignoring unknown event", "event", msg.Event)
		return nil
	}
}

// handleSend routes one message. The sender is the session's bound
// identity, not whatever the payload claims; a failed send is reported
// back to this session only, a successful one is broadcast to all.
func (c *Client) handleSend(payload SendMessagePayload) {
	if payload.From != "" && payload.From != c.Email {
		c.log.Warn("Payload sender differs from session identity",
			"claimed", payload.From, "session", c.Email)
	}

	delivery, err := c.router.SendMessage(context.Background(), c.Email, payload.To, payload.Message)
	if err != nil {
		c.reply(EventError, ErrorPayload{Error: err.Error()})
		return
	}

	out, err := newWireMessage(EventReceiveMessage, ReceiveMessagePayload{
		From:      delivery.From,
		To:        delivery.To,
		Message:   delivery.Text,
		ChatID:    delivery.ChatID,
		Timestamp: delivery.At,
	})
	if err != nil {
		c.reply(EventError, ErrorPayload{Error: "internal error"})
		return
	}
	c.hub.Broadcast(out)
}

func (c *Client) reply(event string, payload any) {
	msg, err := newWireMessage(event, payload)
	if err != nil {
		return
	}
	if !c.enqueue(msg) {
		c.log.Warn("Reply dropped", "email", c.Email)
	}
}

// enqueue queues one outbound message. It reports false when the session
// is closed or its buffer is full; it never blocks and never panics.
func (c *Client) enqueue(msg *WireMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// shutdown closes the send channel exactly once. All closes go through
// here; closing the raw channel elsewhere would race enqueue.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// WritePump pumps outbound messages from the hub to the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				c.log.Error("Marshal failed", "error", err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
