package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"task-queue-api/internal/api"
	"task-queue-api/internal/auth"

	"github.com/gin-gonic/gin"
)

// TokenIssuer is satisfied by *auth.Issuer.
type TokenIssuer interface {
	GenerateToken(worker string) (string, time.Time, error)
}

// AuthHandler exchanges the shared worker API key for a signed token.
type AuthHandler struct {
	Issuer TokenIssuer
	// KeyHash is the bcrypt hash of the worker API key.
	KeyHash string
	Logger  *slog.Logger
}

// IssueToken handles POST /api/token
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req api.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request. worker and api_key are required.",
		})
		return
	}

	if err := auth.CheckAPIKey(h.KeyHash, req.APIKey); err != nil {
		h.Logger.Warn("token request rejected", "worker", req.Worker, "client_ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid api key",
		})
		return
	}

	token, expires, err := h.Issuer.GenerateToken(req.Worker)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to generate token",
		})
		return
	}

	c.JSON(http.StatusOK, api.TokenResponse{
		Token:     token,
		Worker:    req.Worker,
		ExpiresAt: expires.Unix(),
	})
}
