package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequireValidSlot(t *testing.T) {
	t.Parallel()

	r := gin.New()
	r.GET("/slots/:slot", RequireValidSlot(10), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"slot": GetSlot(c)})
	})

	tests := []struct {
		path string
		code int
		body string
	}{
		{path: "/slots/0", code: http.StatusOK, body: `{"slot":0}`},
		{path: "/slots/9", code: http.StatusOK, body: `{"slot":9}`},
		{path: "/slots/10", code: http.StatusBadRequest},
		{path: "/slots/-3", code: http.StatusBadRequest},
		{path: "/slots/x", code: http.StatusBadRequest},
	}

	for _, tc := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.path, nil))
		assert.Equal(t, tc.code, w.Code, tc.path)
		if tc.body != "" {
			assert.JSONEq(t, tc.body, w.Body.String(), tc.path)
		}
	}
}

func TestLimitConcurrentRequests(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})

	r := gin.New()
	r.Use(LimitConcurrentRequests(1))
	r.GET("/slow", func(c *gin.Context) {
		close(entered)
		<-release
		c.Status(http.StatusOK)
	})
	r.GET("/fast", func(c *gin.Context) { c.Status(http.StatusOK) })

	done := make(chan int, 1)
	go func() {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))
		done <- w.Code
	}()
	<-entered

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fast", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	close(release)
	require.Equal(t, http.StatusOK, <-done)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fast", nil))
	assert.Equal(t, http.StatusOK, w.Code, "permit is returned after the request completes")
}

func TestAccessLogKeepsStatus(t *testing.T) {
	t.Parallel()

	r := gin.New()
	r.Use(RequestID(), AccessLog(zap.NewNop()))
	r.GET("/boom", func(c *gin.Context) {
		c.Error(assert.AnError)
		c.Status(http.StatusInternalServerError)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}
