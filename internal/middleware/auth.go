package middleware

import (
	"net/http"
	"strings"

	"task-queue-api/internal/auth"

	"github.com/gin-gonic/gin"
)

// WorkerKey is the gin context key holding the authenticated worker name.
const WorkerKey = "worker"

// TokenValidator is satisfied by *auth.Issuer.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// JWTAuthMiddleware validates JWT token in Authorization header
func JWTAuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		if header := c.GetHeader("Authorization"); header != "" {
			// "Bearer <token>"
			parts := strings.Split(header, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
		// websocket clients in browsers cannot set headers
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization token is required",
			})
			return
		}

		claims, err := validator.ValidateToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		c.Set(WorkerKey, claims.Worker)
		c.Next()
	}
}
