package websocket

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/metacurb/nestjs-websocket-starter/internal/hub"
	"github.com/metacurb/nestjs-websocket-starter/internal/service"
)

// Handler 负责实时连接的建立：校验会话令牌，加载存在记录，
// 升级到 WebSocket 并把客户端注册到 Hub。
// 认证失败一律直接终止，不向线上暴露错误事件。
type Handler struct {
	upgrader    websocket.Upgrader
	hub         *hub.Hub
	tokens      *service.TokenService
	roomService *service.RoomService
}

// NewHandler 创建 Handler 实例。
func NewHandler(h *hub.Hub, tokens *service.TokenService, roomService *service.RoomService) *Handler {
	if h == nil {
		panic("Hub cannot be nil for websocket Handler")
	}
	if tokens == nil {
		panic("TokenService cannot be nil for websocket Handler")
	}
	if roomService == nil {
		panic("RoomService cannot be nil for websocket Handler")
	}
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 跨域策略由外层 CORS 配置决定，这里不重复限制
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		hub:         h,
		tokens:      tokens,
		roomService: roomService,
	}
}

// HandleConnection 处理 GET /ws/rooms 的握手。
// 令牌从 query 参数 token 或 Authorization 头读取。
func (h *Handler) HandleConnection(c *gin.Context) {
	// 1. 校验会话令牌。失败 ⇒ 401，无任何事件。
	claims, err := h.tokens.Verify(extractToken(c))
	if err != nil {
		logrus.Debug("WS handshake rejected: invalid or missing token")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_code": claims.RoomCode, "user_id": claims.UserID})

	// 2. 令牌声明的身份必须仍有存在记录，且绑定在声明的房间上。
	user, err := h.roomService.GetMember(c.Request.Context(), claims.UserID)
	if err != nil || user.RoomCode != claims.RoomCode {
		logCtx.Debug("WS handshake rejected: presence record missing or room mismatch")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	// 3. 升级到 WebSocket。失败时 Upgrade 已写好 HTTP 响应。
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logCtx.WithError(err).Warn("Failed to upgrade connection")
		return
	}

	// 4. 绑定 (userID, roomCode) 并注册到 Hub，后续收发由读写泵接管。
	client := hub.NewClient(h.hub, conn, uuid.NewString(), claims.UserID, claims.RoomCode)
	if !h.hub.Register(client) {
		logCtx.Error("Hub unavailable, dropping connection")
		client.CloseConn()
		return
	}
	client.Run()

	logCtx.WithField("socket_id", client.SocketID()).Info("WebSocket connection established")
}

// extractToken 依次尝试 query 参数和 Authorization 头。
func extractToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	authHeader := c.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
