// Package realtime fans slot events out to WebSocket clients watching a session.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/example/slot-reservations/internal/application"
)

// Message is the JSON frame sent to clients.
type Message struct {
	Type        application.SlotEventType `json:"type"`
	SessionID   string                    `json:"session_id"`
	Team        string                    `json:"team"`
	SlotIndex   int                       `json:"slot_index"`
	DisplayName string                    `json:"display_name,omitempty"`
	At          time.Time                 `json:"at"`
}

type broadcast struct {
	sessionID string
	data      []byte
}

// Hub tracks the clients of each session. Register, unregister and broadcast
// are serialised through Run.
type Hub struct {
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcast
	done       chan struct{}

	origins []string
	logger  *slog.Logger
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcast, 256),
		done:       make(chan struct{}),
		logger:     logger.With("component", "realtime"),
	}
}

// AllowOrigins sets the browser origins accepted on the WebSocket handshake.
// With none set only same-host origins are accepted. Call before serving.
func (h *Hub) AllowOrigins(origins []string) {
	h.origins = append([]string(nil), origins...)
}

// Run processes hub traffic until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.sessionID] == nil {
				h.clients[client.sessionID] = make(map[*Client]struct{})
			}
			h.clients[client.sessionID][client] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug("client connected", "session_id", client.sessionID, "user_id", client.userID)

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients[msg.sessionID] {
				select {
				case client.send <- msg.data:
				default:
					// Drop the frame for a client that is not keeping up.
					h.logger.Warn("client send buffer full, dropping event", "session_id", msg.sessionID, "user_id", client.userID)
				}
			}
			h.mu.RUnlock()

		case <-ctx.Done():
			h.mu.Lock()
			for sessionID, clients := range h.clients {
				for client := range clients {
					close(client.send)
				}
				delete(h.clients, sessionID)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.clients[client.sessionID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, client.sessionID)
	}
	h.logger.Debug("client disconnected", "session_id", client.sessionID, "user_id", client.userID)
}

// Publish queues the event for every client of its session. It never blocks
// the caller; events are dropped when the hub is saturated or stopped.
func (h *Hub) Publish(ctx context.Context, event application.SlotEvent) {
	data, err := json.Marshal(Message{
		Type:        event.Type,
		SessionID:   event.SessionID,
		Team:        event.Team,
		SlotIndex:   event.SlotIndex,
		DisplayName: event.DisplayName,
		At:          event.At.UTC(),
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to encode slot event", "error", err)
		return
	}

	select {
	case h.broadcast <- broadcast{sessionID: event.SessionID, data: data}:
	case <-h.done:
	default:
		h.logger.WarnContext(ctx, "broadcast queue full, dropping event", "session_id", event.SessionID, "type", event.Type)
	}
}

// Connections reports the number of clients watching a session.
func (h *Hub) Connections(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

func (h *Hub) attach(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) detach(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
