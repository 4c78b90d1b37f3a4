package handlers

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"task-queue-api/internal/api"
	"task-queue-api/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newAuthRouter(t *testing.T) (*gin.Engine, *auth.Issuer) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hash, err := auth.HashAPIKey("worker-key")
	require.NoError(t, err)
	iss := auth.NewIssuer("test-secret", "task-queue-api", "task-queue-workers", time.Hour)
	h := &AuthHandler{Issuer: iss, KeyHash: hash, Logger: slog.New(slog.DiscardHandler)}
	r := gin.New()
	r.POST("/api/token", h.IssueToken)
	return r, iss
}

func postJSON(r http.Handler, path string, body any) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIssueToken_Success(t *testing.T) {
	r, iss := newAuthRouter(t)
	w := postJSON(r, "/api/token", api.TokenRequest{Worker: "w1", APIKey: "worker-key"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "w1", resp.Worker)
	claims, err := iss.ValidateToken(resp.Token)
	require.NoError(t, err)
	require.Equal(t, "w1", claims.Worker)
}

func TestIssueToken_WrongKey(t *testing.T) {
	r, _ := newAuthRouter(t)
	w := postJSON(r, "/api/token", api.TokenRequest{Worker: "w1", APIKey: "guess"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIssueToken_MissingFields(t *testing.T) {
	r, _ := newAuthRouter(t)
	w := postJSON(r, "/api/token", map[string]string{"worker": "w1"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}
