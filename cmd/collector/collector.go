package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"task-queue-api/internal/api"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func newRouter(logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/submit", func(c *gin.Context) {
		var completion api.QueueTaskCompletion
		if err := c.ShouldBindJSON(&completion); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid completion"})
			return
		}
		logger.Info("completion received", "submission_id", completion.SubmissionID, "info", completion.Info)
		c.Status(http.StatusOK)
	})
	return r
}

// watch logs events from the server feed, reconnecting until ctx is done.
func watch(ctx context.Context, url, token string, logger *slog.Logger) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	for ctx.Err() == nil {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
		if err != nil {
			logger.Warn("event feed unavailable", "url", url, "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
			continue
		}
		logger.Info("watching event feed", "url", url)

		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		for {
			var evt api.Event
			if err := conn.ReadJSON(&evt); err != nil {
				break
			}
			logger.Info("event", "type", evt.Type, "task_id", evt.TaskID, "submission_id", evt.SubmissionID, "usages", evt.Usages)
		}
		stop()
		_ = conn.Close()
	}
}
