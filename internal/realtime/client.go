package realtime

import (
	"bytes"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4 << 10
	queueSize      = 32
)

var keepalive = []byte("ping")

// client is one staff socket. readPump owns reads, writePump owns writes;
// shutdown may be called from anywhere, any number of times.
type client struct {
	hub    *Hub
	userID string
	socket *websocket.Conn

	mu     sync.Mutex
	done   bool
	outbox chan Message
}

func newClient(h *Hub, userID string, socket *websocket.Conn) *client {
	return &client{hub: h, userID: userID, socket: socket, outbox: make(chan Message, queueSize)}
}

// enqueue reports false only when the outbox is full. Messages for a closed
// client are discarded.
func (c *client) enqueue(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return true
	}
	select {
	case c.outbox <- msg:
		return true
	default:
		return false
	}
}

func (c *client) shutdown() {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	close(c.outbox)
	c.mu.Unlock()

	c.hub.leave(c)
}

// readPump handles pongs and the client's text keepalive until the socket
// fails or goes quiet for pongWait.
func (c *client) readPump() {
	defer c.shutdown()

	c.socket.SetReadLimit(maxMessageSize)
	extend := func(string) error { return c.socket.SetReadDeadline(time.Now().Add(pongWait)) }
	_ = extend("")
	c.socket.SetPongHandler(extend)

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("unexpected close", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
		if bytes.Equal(bytes.TrimSpace(payload), keepalive) {
			c.enqueue(Message{Event: EventPong})
		}
	}
}

// writePump drains the outbox and pings on a timer. It closes the socket on
// exit, which also unblocks readPump.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.socket.Close()
	}()

	for {
		select {
		case msg, open := <-c.outbox:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !open {
				_ = c.socket.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.socket.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
