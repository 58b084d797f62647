package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/erazemk/menjava/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Tokens authenticate the socket, not the origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans events out to the websocket clients of this process.
type Hub struct {
	mu            sync.RWMutex
	clients       map[string]*Client
	byParticipant map[string]map[string]*Client
	metrics       *metrics.Metrics
}

// NewHub creates an empty hub. m may be nil.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		clients:       make(map[string]*Client),
		byParticipant: make(map[string]map[string]*Client),
		metrics:       m,
	}
}

// ServeWS upgrades the request and serves the connection until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, participantID, eventID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	NewClient(h, conn, participantID, eventID).Run()
	return nil
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	if h.byParticipant[c.ParticipantID] == nil {
		h.byParticipant[c.ParticipantID] = make(map[string]*Client)
	}
	h.byParticipant[c.ParticipantID][c.ID] = c
	h.mu.Unlock()

	h.metrics.ClientConnected(1)
	slog.Info("push client connected", "client", c.ID, "participant", c.ParticipantID)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.ID]
	if ok {
		delete(h.clients, c.ID)
		if set := h.byParticipant[c.ParticipantID]; set != nil {
			delete(set, c.ID)
			if len(set) == 0 {
				delete(h.byParticipant, c.ParticipantID)
			}
		}
	}
	h.mu.Unlock()

	if ok {
		h.metrics.ClientConnected(-1)
		slog.Info("push client disconnected", "client", c.ID, "participant", c.ParticipantID)
	}
}

// ClientCount returns the number of connections of a participant.
func (h *Hub) ClientCount(participantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byParticipant[participantID])
}

// NotifyParticipant sends ev to every connection of one participant.
func (h *Hub) NotifyParticipant(_ context.Context, participantID string, ev Event) {
	if participantID == "" {
		return
	}
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.byParticipant[participantID]))
	for _, c := range h.byParticipant[participantID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	h.deliver(targets, ev)
}

// NotifyEvent sends ev to every connection bound to eventID.
func (h *Hub) NotifyEvent(_ context.Context, eventID string, ev Event) {
	if eventID == "" {
		return
	}
	h.mu.RLock()
	var targets []*Client
	for _, c := range h.clients {
		if c.EventID == eventID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	h.deliver(targets, ev)
}

func (h *Hub) deliver(targets []*Client, ev Event) {
	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("encoding push event", "type", ev.Type, "error", err)
		return
	}

	for _, c := range targets {
		select {
		case c.send <- data:
			h.metrics.Pushed(ev.Type)
		case <-c.done:
		default:
			// Too slow to keep up; it will resync by polling.
			slog.Warn("evicting slow push client", "client", c.ID, "participant", c.ParticipantID)
			c.close()
		}
	}
}

// Shutdown closes every connection.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}
