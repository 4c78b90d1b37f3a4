package routes

import (
	"log/slog"
	"net/http"

	"task-queue-api/internal/handlers"
	"task-queue-api/internal/metrics"
	"task-queue-api/internal/middleware"

	"github.com/gin-gonic/gin"
)

// Deps are the collaborators the router needs. Auth nil disables /api/token and the
// token check on /queue routes.
type Deps struct {
	Queue     *handlers.QueueHandler
	Events    *handlers.EventsHandler
	Auth      *handlers.AuthHandler
	Validator middleware.TokenValidator
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	// EnqueueRPS and EnqueueBurst limit add_task; zero RPS means unlimited.
	EnqueueRPS   float64
	EnqueueBurst int
}

func SetupRoutes(d Deps) *gin.Engine {
	ginRouter := gin.New()
	ginRouter.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(d.Logger), d.Metrics.Middleware())

	// CORS middleware (for browser dashboards)
	ginRouter.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	ginRouter.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Task queue API is running",
		})
	})
	ginRouter.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	if d.Auth != nil {
		ginRouter.POST("/api/token", d.Auth.IssueToken)
	}

	queueRoutes := ginRouter.Group("/queue")
	if d.Auth != nil {
		queueRoutes.Use(middleware.JWTAuthMiddleware(d.Validator))
	}
	{
		queueRoutes.POST("/add_task", middleware.RateLimit(d.EnqueueRPS, d.EnqueueBurst), d.Queue.AddTask)
		queueRoutes.GET("/get_task", d.Queue.GetTask)
		queueRoutes.POST("/submit_completed", d.Queue.SubmitCompleted)
		queueRoutes.GET("/stats", d.Queue.Stats)
		queueRoutes.GET("/events", d.Events.Events)
	}

	return ginRouter
}
