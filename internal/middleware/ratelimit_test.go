package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisstore "github.com/metacurb/nestjs-websocket-starter/internal/infra/store/redis"
	"github.com/metacurb/nestjs-websocket-starter/internal/middleware"
)

func newRateLimitedRouter(t *testing.T, maxRequests int, window time.Duration) (*gin.Engine, *miniredis.Miniredis) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := redisstore.NewStore(client, "test:")

	router := gin.New()
	router.Use(middleware.RateLimit(store, maxRequests, window))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return router, mr
}

func doGet(router *gin.Engine) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/ping", nil)
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimit_AllowsWithinBudget(t *testing.T) {
	router, _ := newRateLimitedRouter(t, 3, time.Second)

	for i := 0; i < 3; i++ {
		w := doGet(router)
		assert.Equal(t, http.StatusOK, w.Code, "预算内的第 %d 个请求应放行", i+1)
	}
}

func TestRateLimit_RejectsOverBudget(t *testing.T) {
	// Arrange: 预算 2 个请求
	router, _ := newRateLimitedRouter(t, 2, time.Second)
	require.Equal(t, http.StatusOK, doGet(router).Code)
	require.Equal(t, http.StatusOK, doGet(router).Code)

	// Act
	w := doGet(router)

	// Assert
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "Too many requests")
}

func TestRateLimit_WindowResets(t *testing.T) {
	// Arrange: 预算耗尽
	router, mr := newRateLimitedRouter(t, 1, time.Second)
	require.Equal(t, http.StatusOK, doGet(router).Code)
	require.Equal(t, http.StatusTooManyRequests, doGet(router).Code)

	// Act: 窗口滑过
	mr.FastForward(2 * time.Second)

	// Assert: 计数归零，重新放行
	assert.Equal(t, http.StatusOK, doGet(router).Code)
}
