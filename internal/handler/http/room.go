package http

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/metacurb/nestjs-websocket-starter/internal/middleware"
	"github.com/metacurb/nestjs-websocket-starter/internal/service"
)

// RoomHandler 封装房间会话管理的 HTTP 处理逻辑。
type RoomHandler struct {
	roomService *service.RoomService

	displayNameMin int
	displayNameMax int
	defaultMax     int
}

// NewRoomHandler 创建 RoomHandler 实例。
// defaultMaxUsers <= 0 表示创建时未指定上限的房间不设上限。
func NewRoomHandler(roomService *service.RoomService, displayNameMin, displayNameMax, defaultMaxUsers int) *RoomHandler {
	if roomService == nil {
		panic("RoomService cannot be nil for RoomHandler")
	}
	return &RoomHandler{
		roomService:    roomService,
		displayNameMin: displayNameMin,
		displayNameMax: displayNameMax,
		defaultMax:     defaultMaxUsers,
	}
}

// CreateRoomRequest 是 POST /api/rooms 的请求体。
type CreateRoomRequest struct {
	DisplayName string `json:"displayName" binding:"required"`
	MaxUsers    *int   `json:"maxUsers"`
}

// JoinRoomRequest 是 POST /api/rooms/:code/join 的请求体。
type JoinRoomRequest struct {
	DisplayName string `json:"displayName" binding:"required"`
}

// RoomSessionResponse 是 create/join/rejoin 的统一响应：房间码 + 会话令牌。
type RoomSessionResponse struct {
	RoomCode string `json:"roomCode"`
	Token    string `json:"token"`
}

// CreateRoom 处理创建房间：生成房间码、建立房主身份并返回会话令牌。
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: displayName is required")
		return
	}
	displayName, ok := h.normalizeDisplayName(c, req.DisplayName)
	if !ok {
		return
	}

	maxUsers := h.defaultMax
	if req.MaxUsers != nil {
		if *req.MaxUsers <= 0 {
			ErrorResponse(c, http.StatusBadRequest, "Invalid input: maxUsers must be positive")
			return
		}
		maxUsers = *req.MaxUsers
	}

	session, err := h.roomService.Create(c.Request.Context(), displayName, maxUsers)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	logrus.WithFields(logrus.Fields{"room_code": session.Room.Code, "host_id": session.User.ID}).Info("Room created")
	SuccessResponse(c, http.StatusCreated, RoomSessionResponse{RoomCode: session.Room.Code, Token: session.Token})
}

// JoinRoom 处理加入房间。
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: displayName is required")
		return
	}
	displayName, ok := h.normalizeDisplayName(c, req.DisplayName)
	if !ok {
		return
	}

	code := normalizeRoomCode(c.Param("code"))
	session, err := h.roomService.Join(c.Request.Context(), code, displayName)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, RoomSessionResponse{RoomCode: session.Room.Code, Token: session.Token})
}

// RejoinRoom 为仍是成员的既有身份补发会话令牌（需要 bearer 令牌）。
func (h *RoomHandler) RejoinRoom(c *gin.Context) {
	claims, ok := middleware.SessionFromContext(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "Session not authenticated")
		return
	}

	code := normalizeRoomCode(c.Param("code"))
	session, err := h.roomService.Rejoin(c.Request.Context(), code, claims.UserID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, RoomSessionResponse{RoomCode: session.Room.Code, Token: session.Token})
}

// GetRoom 返回房间快照。
func (h *RoomHandler) GetRoom(c *gin.Context) {
	code := normalizeRoomCode(c.Param("code"))
	room, err := h.roomService.GetByCode(c.Request.Context(), code)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, room)
}

// normalizeDisplayName 校验并整理展示名称，失败时已写好响应。
func (h *RoomHandler) normalizeDisplayName(c *gin.Context, name string) (string, bool) {
	name = strings.TrimSpace(name)
	length := utf8.RuneCountInString(name)
	if length < h.displayNameMin || length > h.displayNameMax {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: displayName length out of bounds")
		return "", false
	}
	return name, true
}

// normalizeRoomCode 统一房间码大小写（存储层全大写）。
func normalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
