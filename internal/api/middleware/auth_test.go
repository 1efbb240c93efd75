package middleware

import (
	"Clubhouse/internal/pkg/security"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthRouter(t *testing.T) (*gin.Engine, *security.TokenManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tm, err := security.NewTokenManager("test-secret", time.Hour)
	require.NoError(t, err)

	r := gin.New()
	r.Use(TraceMiddleware(), AuthMiddleware(tm))
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetUint64(UserIDKey),
			"ctx":     c.Request.Context().Value(UserIDKey),
		})
	})
	return r, tm
}

func TestAuthMiddleware(t *testing.T) {
	r, tm := newAuthRouter(t)
	token, err := tm.GenerateToken(42)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Trace-ID", "trace-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":42,"ctx":42}`, w.Body.String())
	assert.Equal(t, "trace-1", w.Header().Get("X-Trace-ID"))
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	r, _ := newAuthRouter(t)
	other, err := security.NewTokenManager("other-secret", time.Hour)
	require.NoError(t, err)
	forged, err := other.GenerateToken(42)
	require.NoError(t, err)

	for name, header := range map[string]string{
		"missing":    "",
		"not bearer": "Basic abc",
		"garbage":    "Bearer not.a.token",
		"wrong key":  "Bearer " + forged,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Body.String(), `"code":401`)
			assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware([]string{"https://app.example.com"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
