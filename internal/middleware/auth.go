package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/metacurb/nestjs-websocket-starter/internal/service"
)

// sessionContextKey 是 gin 上下文里会话声明的存放键。
const sessionContextKey = "session_claims"

// ErrMissingAuthHeader 表示请求缺少 Authorization 头。
var ErrMissingAuthHeader = errors.New("missing Authorization header")

// SessionAuth 返回校验会话令牌的 gin 中间件。
// 校验通过后把 TokenClaims 放进上下文，供 rejoin 等处理器读取。
func SessionAuth(tokens *service.TokenService) gin.HandlerFunc {
	if tokens == nil {
		panic("TokenService cannot be nil for SessionAuth middleware")
	}

	return func(c *gin.Context) {
		tokenStr, err := extractBearerToken(c)
		if err != nil {
			logrus.WithError(err).Warn("Session auth: missing or malformed Authorization header")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			c.Abort()
			return
		}

		claims, err := tokens.Verify(tokenStr)
		if err != nil {
			logrus.Warn("Session auth: invalid or expired token")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(sessionContextKey, claims)
		c.Next()
	}
}

// SessionFromContext 读取中间件放入的会话声明。
func SessionFromContext(c *gin.Context) (*service.TokenClaims, bool) {
	value, exists := c.Get(sessionContextKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*service.TokenClaims)
	return claims, ok
}

// extractBearerToken 从 Authorization 头提取 bearer 令牌。
func extractBearerToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", ErrMissingAuthHeader
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("malformed Authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}
