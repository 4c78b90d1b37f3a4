package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"task-queue-api/internal/middleware"
	"task-queue-api/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// wsClient implements realtime.Client by wrapping a websocket connection.
// gorilla connections allow one concurrent writer, hence the mutex.
type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) Send(message []byte) bool {
	if c == nil || c.conn == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, message) == nil
}

func (c *wsClient) Close() {
	if c != nil && c.conn != nil {
		_ = c.conn.Close()
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS is handled at the gin level
		return true
	},
}

// EventsHandler streams hub events over a websocket.
type EventsHandler struct {
	Hub    *realtime.Hub
	Logger *slog.Logger
}

// topicsFromQuery parses ?topics=queue,cache; empty means every topic.
func topicsFromQuery(raw string) []string {
	all := []string{realtime.TopicQueue, realtime.TopicCache}
	if raw == "" {
		return all
	}
	var topics []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		for _, known := range all {
			if t == known {
				topics = append(topics, t)
			}
		}
	}
	return topics
}

// Events handles GET /queue/events
func (h *EventsHandler) Events(c *gin.Context) {
	topics := topicsFromQuery(c.Query("topics"))
	if len(topics) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown topic"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Warn("websocket upgrade error", "err", err)
		return
	}

	client := &wsClient{conn: conn}
	for _, t := range topics {
		h.Hub.Register(t, client)
	}
	h.Logger.Debug("event subscriber connected", "topics", topics, "worker", c.GetString(middleware.WorkerKey))

	// Heartbeat: send periodic pings; close on error
	pingTicker := time.NewTicker(30 * time.Second)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-pingTicker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()
	defer func() {
		close(done)
		pingTicker.Stop()
		for _, t := range topics {
			h.Hub.Unregister(t, client)
		}
		client.Close()
	}()

	// Reader loop: drain messages and keep connection alive via pong handler
	conn.SetReadLimit(1024)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
