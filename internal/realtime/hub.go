package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"facility-alerting/internal/logging"

	"github.com/gorilla/websocket"
)

// MaxConnectionsPerChannel bounds subscribers on a single channel.
const MaxConnectionsPerChannel = 10

const writeWait = 5 * time.Second

// conn is the part of *websocket.Conn the hub writes through.
type conn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// subscriber serialises writes to one connection; gorilla allows a single
// concurrent writer.
type subscriber struct {
	conn    conn
	writeMu sync.Mutex
}

func (s *subscriber) write(message []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, message)
}

// Hub manages websocket subscribers grouped by channel. Writes happen
// outside the hub lock, so one slow client never blocks subscription changes
// or other channels.
type Hub struct {
	connections map[string]map[conn]*subscriber
	mutex       sync.Mutex
	logger      *logging.Logger
}

var _ Publisher = (*Hub)(nil)

func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		connections: make(map[string]map[conn]*subscriber),
		logger:      logger,
	}
}

// AddConnection subscribes conn to channel. It returns false when the
// channel is full.
func (h *Hub) AddConnection(channel string, ws *websocket.Conn) bool {
	return h.add(channel, ws)
}

func (h *Hub) add(channel string, c conn) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, exists := h.connections[channel]; !exists {
		h.connections[channel] = make(map[conn]*subscriber)
	}
	if len(h.connections[channel]) >= MaxConnectionsPerChannel {
		h.logger.Warnf("Max connections reached for channel %s", channel)
		return false
	}
	h.connections[channel][c] = &subscriber{conn: c}
	h.logger.Infof("Added WebSocket connection for channel %s (total: %d)", channel, len(h.connections[channel]))
	return true
}

func (h *Hub) RemoveConnection(channel string, ws *websocket.Conn) {
	h.remove(channel, ws)
}

func (h *Hub) remove(channel string, c conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	conns, exists := h.connections[channel]
	if !exists {
		return
	}
	if _, ok := conns[c]; !ok {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.connections, channel)
	}
	h.logger.Infof("Removed WebSocket connection for channel %s (remaining: %d)", channel, len(conns))
}

// Subscribers returns the number of live connections on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.connections[channel])
}

// EmitToBuilding writes the event to every connection on channel. Broken
// connections are closed and dropped.
func (h *Hub) EmitToBuilding(_ context.Context, channel, event string, payload any) {
	message, err := json.Marshal(NewEnvelope(channel, event, payload))
	if err != nil {
		h.logger.Errorf("Failed to encode %s event for channel %s: %v", event, channel, err)
		return
	}

	h.mutex.Lock()
	subs := make([]*subscriber, 0, len(h.connections[channel]))
	for _, sub := range h.connections[channel] {
		subs = append(subs, sub)
	}
	h.mutex.Unlock()

	for _, sub := range subs {
		if err := sub.write(message); err != nil {
			h.logger.Errorf("Failed to send WebSocket message on channel %s: %v", channel, err)
			h.remove(channel, sub.conn)
			_ = sub.conn.Close()
		}
	}
}

// Close drops every subscriber.
func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for channel, conns := range h.connections {
		for c := range conns {
			_ = c.Close()
		}
		delete(h.connections, channel)
	}
}
