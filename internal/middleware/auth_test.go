package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"task-queue-api/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newAuthRouter(t *testing.T) (*gin.Engine, *auth.Issuer) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	iss := auth.NewIssuer("test-secret", "task-queue-api", "task-queue-workers", time.Hour)
	r := gin.New()
	r.Use(JWTAuthMiddleware(iss))
	r.GET("/protected", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(WorkerKey)) })
	return r, iss
}

func TestJWTAuthMiddleware_Success(t *testing.T) {
	r, iss := newAuthRouter(t)
	token, _, err := iss.GenerateToken("worker-7")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "worker-7", w.Body.String())
}

func TestJWTAuthMiddleware_QueryToken(t *testing.T) {
	r, iss := newAuthRouter(t)
	token, _, err := iss.GenerateToken("watcher")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected?token="+token, nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestJWTAuthMiddleware_MissingHeader(t *testing.T) {
	r, _ := newAuthRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuthMiddleware_BadToken(t *testing.T) {
	r, _ := newAuthRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer nope")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
