package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/calsync/internal/model"
)

// Message represents a real-time notification broadcast to all clients.
type Message struct {
	Type   string `json:"type"`
	Entity string `json:"entity"`
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action, id string, data any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Data:   data,
	}
}

// NewSyncStatusMessage wraps a sync status snapshot as a "sync_status" message.
func NewSyncStatusMessage(status model.SyncStatus) Message {
	return NewMessage("sync", "status", "", status)
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
// The most recent sync status is replayed to clients as they register.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	lastStatus []byte
	logger     *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	if h.lastStatus != nil {
		c.send <- h.lastStatus
	}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "type", msg.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if msg.Entity == "sync" && msg.Action == "status" {
		h.lastStatus = data
	}

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client buffer full, drop rather than block
			h.logger.Debug("dropped message for slow client", "type", msg.Type)
		}
	}
}

// BroadcastSyncStatus is a calsync.StatusCallback that fans status changes
// out to every client.
func (h *Hub) BroadcastSyncStatus(status model.SyncStatus) {
	h.Broadcast(NewSyncStatusMessage(status))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
