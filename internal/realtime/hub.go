// Package realtime pushes staff notifications over websockets.
package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/blotter/pkg/logger"
	"github.com/charlesng35/blotter/pkg/metrics"
)

// Event names delivered to staff clients.
const (
	EventNotification = "notification.created"
	EventPong         = "pong"
)

// Message is one JSON frame sent to a staff client.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Hub fans messages out to every socket a staff member has open. The zero
// value is not usable; call NewHub. A nil *Hub ignores Publish.
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger

	mu     sync.RWMutex
	rooms  map[string]map[*client]struct{}
	closed bool
}

// NewHub constructs a Hub.
func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[*client]struct{}),
		log:   logger.WithModule("realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOriginOrLoopback,
		},
	}
}

// Serve upgrades r and blocks until the socket closes. userID must already be
// authenticated.
func (h *Hub) Serve(userID string, w http.ResponseWriter, r *http.Request) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("upgrade failed", zap.Error(err))
		return
	}

	c := newClient(h, userID, socket)
	if !h.join(c) {
		_ = socket.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		_ = socket.Close()
		return
	}
	go c.writePump()
	c.readPump()
}

// Publish queues msg for every socket userID holds. A socket whose queue is
// full is disconnected rather than allowed to stall the publisher.
func (h *Hub) Publish(userID string, msg Message) {
	if h == nil || userID == "" {
		return
	}

	h.mu.RLock()
	room := make([]*client, 0, len(h.rooms[userID]))
	for c := range h.rooms[userID] {
		room = append(room, c)
	}
	h.mu.RUnlock()

	for _, c := range room {
		if !c.enqueue(msg) {
			h.log.Warn("dropping slow realtime client", zap.String("user_id", userID))
			c.shutdown()
		}
	}
}

// Connections reports how many sockets userID has open.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.closed = true
	var all []*client
	for _, room := range h.rooms {
		for c := range room {
			all = append(all, c)
		}
	}
	h.mu.Unlock()

	for _, c := range all {
		c.shutdown()
	}
}

func (h *Hub) join(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	room := h.rooms[c.userID]
	if room == nil {
		room = make(map[*client]struct{})
		h.rooms[c.userID] = room
	}
	room[c] = struct{}{}
	metrics.RealtimeConnections.Inc()
	return true
}

func (h *Hub) leave(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.userID]
	if !ok {
		return
	}
	if _, member := room[c]; !member {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, c.userID)
	}
	metrics.RealtimeConnections.Dec()
}
