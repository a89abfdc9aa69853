package middleware

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pch10086/BUPT-Hotel/internal/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func get(r http.Handler, path, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if remote != "" {
		req.RemoteAddr = remote
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiter(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiter(0.001, 2))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	assert.Equal(t, http.StatusOK, get(r, "/ping", "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, get(r, "/ping", "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/ping", "10.0.0.1:1000").Code)

	// 其他 IP 不受影响
	assert.Equal(t, http.StatusOK, get(r, "/ping", "10.0.0.2:1000").Code)
}

func TestIPRateLimiterReusesLimiter(t *testing.T) {
	l := NewIPRateLimiter(1, 1, time.Minute)
	assert.Same(t, l.GetLimiter("a"), l.GetLimiter("a"))
	assert.NotSame(t, l.GetLimiter("a"), l.GetLimiter("b"))
	assert.Equal(t, 2, l.Len())
}

func TestIPRateLimiterEvictsIdleClients(t *testing.T) {
	l := NewIPRateLimiter(0.001, 1, 20*time.Millisecond)
	first := l.GetLimiter("10.0.0.1")
	require.True(t, first.Allow())
	for i := 0; i < 50; i++ {
		l.GetLimiter(fmt.Sprintf("10.0.1.%d", i))
	}
	assert.Equal(t, 51, l.Len())

	time.Sleep(50 * time.Millisecond)
	l.limiters.DeleteExpired()
	assert.Zero(t, l.Len(), "idle limiters are dropped")

	again := l.GetLimiter("10.0.0.1")
	assert.NotSame(t, first, again)
	assert.True(t, again.Allow(), "an evicted client starts with a full bucket")
}

func TestCache(t *testing.T) {
	store := cache.New(time.Minute, time.Minute)
	calls := 0
	r := gin.New()
	r.Use(Cache(store, time.Minute))
	r.GET("/report", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"calls": calls})
	})
	r.GET("/missing", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusNotFound, gin.H{})
	})

	first := get(r, "/report?from=a", "")
	second := get(r, "/report?from=a", "")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Contains(t, second.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, 1, calls)

	get(r, "/report?from=b", "")
	assert.Equal(t, 2, calls, "different query is a different key")

	get(r, "/missing", "")
	get(r, "/missing", "")
	assert.Equal(t, 4, calls, "errors are not cached")
}

func TestCacheDisabled(t *testing.T) {
	store := cache.New(time.Minute, time.Minute)
	calls := 0
	r := gin.New()
	r.Use(Cache(store, 0))
	r.GET("/report", func(c *gin.Context) {
		calls++
		c.Status(http.StatusOK)
	})
	get(r, "/report", "")
	get(r, "/report", "")
	assert.Equal(t, 2, calls)
}

func TestAccessLogAndRecovery(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(os.Stdout)

	r := gin.New()
	r.Use(AccessLog(), Recovery())
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { panic("invariant broken") })

	assert.Equal(t, http.StatusOK, get(r, "/ok", "").Code)
	w := get(r, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	out := buf.String()
	assert.Contains(t, out, "/ok 200")
	assert.Contains(t, out, "invariant broken")
	assert.Contains(t, out, "/boom 500")
}
