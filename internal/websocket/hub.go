package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/dukerupert/grocerylist/internal/metrics"
	"github.com/dukerupert/grocerylist/internal/model"
)

// Entity is the only entity the change feed reports on.
const Entity = "grocery_item"

// Change feed actions.
const (
	ActionSnapshot = "snapshot"
	ActionCreated  = "created"
	ActionUpdated  = "updated"
	ActionToggled  = "toggled"
	ActionDeleted  = "deleted"
	ActionCleared  = "cleared"
)

// Message is one change feed notification. Item carries the record returned
// by the mutation so receivers can reapply it without re-querying; it is
// nil for deletes and clears. Items is only set on snapshots.
type Message struct {
	Type   string              `json:"type"`
	Entity string              `json:"entity"`
	Action string              `json:"action"`
	ID     string              `json:"id,omitempty"`
	Item   *model.GroceryItem  `json:"item,omitempty"`
	Items  []model.GroceryItem `json:"items,omitempty"`
}

// NewMessage creates a Message for a single item mutation.
func NewMessage(action string, id string, item *model.GroceryItem) Message {
	return Message{
		Type:   Entity + "_" + action,
		Entity: Entity,
		Action: action,
		ID:     id,
		Item:   item,
	}
}

// NewSnapshot creates the full-list message sent to a client on connect.
func NewSnapshot(items []model.GroceryItem) Message {
	if items == nil {
		items = []model.GroceryItem{}
	}
	return Message{
		Type:   Entity + "_" + ActionSnapshot,
		Entity: Entity,
		Action: ActionSnapshot,
		Items:  items,
	}
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
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
	n := len(h.clients)
	h.mu.Unlock()
	metrics.SetWebsocketClients(n)
}

// RegisterWithSnapshot reads the snapshot and queues it for c while holding
// the hub lock, then adds c. A broadcast racing the snapshot read waits for
// the lock and is queued after the snapshot, so c never misses a change.
func (h *Hub) RegisterWithSnapshot(c *Client, snapshot func() Message) {
	h.mu.Lock()
	if data, err := json.Marshal(snapshot()); err == nil {
		c.send <- data
	} else {
		h.logger.Error("marshal snapshot", "error", err)
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.SetWebsocketClients(n)
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.SetWebsocketClients(n)
}

// Broadcast sends a message to all connected clients. Clients whose buffer
// is full miss the message.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("client buffer full, dropping message", "type", msg.Type)
		}
	}
}

// Publish broadcasts a mutation result.
func (h *Hub) Publish(action string, id string, item *model.GroceryItem) {
	h.Broadcast(NewMessage(action, id, item))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
