// Package realtime fans queue and cache events out to websocket subscribers.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"task-queue-api/internal/api"
)

// Topics a client can subscribe to.
const (
	TopicQueue = "queue"
	TopicCache = "cache"
)

// Client represents a single subscriber connection. The network conn is managed by the
// websocket handler.
type Client interface {
	Send(message []byte) bool
	Close()
}

// Hub maintains subscribers per topic and broadcasts events to them.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[Client]struct{}
	logger *slog.Logger
	now    func() time.Time
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		topics: make(map[string]map[Client]struct{}),
		logger: logger,
		now:    time.Now,
	}
}

// Register adds a client under a topic.
func (h *Hub) Register(topic string, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.topics[topic]; !ok {
		h.topics[topic] = make(map[Client]struct{})
	}
	h.topics[topic][client] = struct{}{}
}

// Unregister removes a client; empty topics are dropped.
func (h *Hub) Unregister(topic string, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.topics[topic]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.topics, topic)
		}
	}
}

// Subscribers returns the number of clients on a topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Broadcast sends a message to every client of a topic. Failed sends are left for the
// owning handler to clean up.
func (h *Hub) Broadcast(topic string, message []byte) {
	h.mu.RLock()
	clients := make([]Client, 0, len(h.topics[topic]))
	for c := range h.topics[topic] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Send(message)
	}
}

// Publish stamps evt and broadcasts its JSON form on topic.
func (h *Hub) Publish(topic string, evt api.Event) {
	if h.Subscribers(topic) == 0 {
		return
	}
	if evt.Timestamp == 0 {
		evt.Timestamp = h.now().UnixMilli()
	}
	message, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("marshal event", "type", evt.Type, "err", err)
		return
	}
	h.Broadcast(topic, message)
}
