package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	redisstore "github.com/metacurb/nestjs-websocket-starter/internal/infra/store/redis"
)

// RateLimit 返回按客户端 IP 限流的 gin 中间件。
// 计数器放在共享 store 里（INCR + EXPIRE 管道），多实例共享同一窗口。
func RateLimit(store *redisstore.Store, maxRequests int, window time.Duration) gin.HandlerFunc {
	if store == nil {
		panic("store cannot be nil for RateLimit middleware")
	}
	if maxRequests <= 0 {
		panic("maxRequests must be positive for RateLimit middleware")
	}
	if window <= 0 {
		panic("window duration must be positive for RateLimit middleware")
	}

	return func(c *gin.Context) {
		key := store.Key("ratelimit:" + c.ClientIP())

		count, err := store.IncrWithWindow(c.Request.Context(), key, window)
		if err != nil {
			logrus.WithError(err).Error("RateLimit: counter update failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Rate limiting error"})
			c.Abort()
			return
		}

		if count > int64(maxRequests) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			c.Abort()
			return
		}

		c.Next()
	}
}
