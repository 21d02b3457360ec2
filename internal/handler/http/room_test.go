package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpHandler "github.com/metacurb/nestjs-websocket-starter/internal/handler/http"
	redisstore "github.com/metacurb/nestjs-websocket-starter/internal/infra/store/redis"
	"github.com/metacurb/nestjs-websocket-starter/internal/middleware"
	"github.com/metacurb/nestjs-websocket-starter/internal/roomcode"
	"github.com/metacurb/nestjs-websocket-starter/internal/service"
)

// newTestRouter 装配一个接近生产路由的测试环境（内存 Redis + 真实仓库）。
func newTestRouter(t *testing.T) (*gin.Engine, *miniredis.Miniredis) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := redisstore.NewStore(client, "test:")
	rooms := redisstore.NewRoomRepository(store)
	users := redisstore.NewUserRepository(store)
	tokens, err := service.NewTokenService("test-secret", time.Hour)
	require.NoError(t, err)
	codes := roomcode.NewGenerator("ABCDEFGHJKLMNPQRSTUVWXYZ23456789", 4, 100, func(string) bool { return false })
	roomService := service.NewRoomService(rooms, users, tokens, codes, 2*time.Hour, 10)
	handler := httpHandler.NewRoomHandler(roomService, 1, 32, 8)

	router := gin.New()
	api := router.Group("/api/rooms")
	{
		api.POST("", handler.CreateRoom)
		api.POST("/:code/join", handler.JoinRoom)
		api.POST("/:code/rejoin", middleware.SessionAuth(tokens), handler.RejoinRoom)
		api.GET("/:code", handler.GetRoom)
	}
	return router, mr
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req, err := http.NewRequest(method, path, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	router.ServeHTTP(w, req)
	return w
}

func decodeSession(t *testing.T, w *httptest.ResponseRecorder) httpHandler.RoomSessionResponse {
	t.Helper()
	var resp httpHandler.RoomSessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCreateRoom(t *testing.T) {
	// Arrange
	router, _ := newTestRouter(t)

	// Act
	w := doJSON(t, router, "POST", "/api/rooms", `{"displayName": "Alice"}`, nil)

	// Assert: 201 + 房间码和令牌
	assert.Equal(t, http.StatusCreated, w.Code, "Expected status 201 Created")
	resp := decodeSession(t, w)
	assert.Len(t, resp.RoomCode, 4)
	assert.NotEmpty(t, resp.Token)
}

func TestCreateRoom_MissingDisplayName(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/rooms", `{}`, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "displayName")
}

func TestCreateRoom_DisplayNameTooLong(t *testing.T) {
	router, _ := newTestRouter(t)
	longName := strings.Repeat("x", 33)

	w := doJSON(t, router, "POST", "/api/rooms", `{"displayName": "`+longName+`"}`, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateRoom_InvalidMaxUsers(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/rooms", `{"displayName": "Alice", "maxUsers": -1}`, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "maxUsers")
}

func TestJoinRoom(t *testing.T) {
	// Arrange: 先创建一个房间
	router, _ := newTestRouter(t)
	created := decodeSession(t, doJSON(t, router, "POST", "/api/rooms", `{"displayName": "Alice"}`, nil))

	// Act
	w := doJSON(t, router, "POST", "/api/rooms/"+created.RoomCode+"/join", `{"displayName": "Bob"}`, nil)

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeSession(t, w)
	assert.Equal(t, created.RoomCode, resp.RoomCode)
	assert.NotEmpty(t, resp.Token)
	assert.NotEqual(t, created.Token, resp.Token)
}

func TestJoinRoom_CodeIsCaseInsensitive(t *testing.T) {
	// Arrange
	router, _ := newTestRouter(t)
	created := decodeSession(t, doJSON(t, router, "POST", "/api/rooms", `{"displayName": "Alice"}`, nil))

	// Act: 用小写房间码加入
	w := doJSON(t, router, "POST", "/api/rooms/"+strings.ToLower(created.RoomCode)+"/join", `{"displayName": "Bob"}`, nil)

	// Assert
	assert.Equal(t, http.StatusOK, w.Code, "房间码应大小写不敏感")
}

func TestJoinRoom_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/rooms/ZZZZ/join", `{"displayName": "Bob"}`, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "room not found")
}

func TestJoinRoom_Full(t *testing.T) {
	// Arrange: 上限 2 人的房间已满
	router, _ := newTestRouter(t)
	created := decodeSession(t, doJSON(t, router, "POST", "/api/rooms", `{"displayName": "Alice", "maxUsers": 2}`, nil))
	w := doJSON(t, router, "POST", "/api/rooms/"+created.RoomCode+"/join", `{"displayName": "Bob"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Act
	w = doJSON(t, router, "POST", "/api/rooms/"+created.RoomCode+"/join", `{"displayName": "Carol"}`, nil)

	// Assert
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "full")
}

func TestRejoinRoom(t *testing.T) {
	// Arrange
	router, _ := newTestRouter(t)
	created := decodeSession(t, doJSON(t, router, "POST", "/api/rooms", `{"displayName": "Alice"}`, nil))

	// Act: 携带原令牌补发
	w := doJSON(t, router, "POST", "/api/rooms/"+created.RoomCode+"/rejoin", `{}`,
		map[string]string{"Authorization": "Bearer " + created.Token})

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeSession(t, w)
	assert.Equal(t, created.RoomCode, resp.RoomCode)
	assert.NotEmpty(t, resp.Token)
}

func TestRejoinRoom_MissingToken(t *testing.T) {
	router, _ := newTestRouter(t)
	created := decodeSession(t, doJSON(t, router, "POST", "/api/rooms", `{"displayName": "Alice"}`, nil))

	w := doJSON(t, router, "POST", "/api/rooms/"+created.RoomCode+"/rejoin", `{}`, nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRejoinRoom_InvalidToken(t *testing.T) {
	router, _ := newTestRouter(t)
	created := decodeSession(t, doJSON(t, router, "POST", "/api/rooms", `{"displayName": "Alice"}`, nil))

	w := doJSON(t, router, "POST", "/api/rooms/"+created.RoomCode+"/rejoin", `{}`,
		map[string]string{"Authorization": "Bearer not-a-token"})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetRoom(t *testing.T) {
	// Arrange
	router, _ := newTestRouter(t)
	created := decodeSession(t, doJSON(t, router, "POST", "/api/rooms", `{"displayName": "Alice"}`, nil))

	// Act
	w := doJSON(t, router, "GET", "/api/rooms/"+created.RoomCode, "", nil)

	// Assert: 返回房间快照
	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, created.RoomCode, body["code"])
	assert.Equal(t, false, body["isLocked"])
}

func TestGetRoom_ExpiredBehavesAsNotFound(t *testing.T) {
	// Arrange
	router, mr := newTestRouter(t)
	created := decodeSession(t, doJSON(t, router, "POST", "/api/rooms", `{"displayName": "Alice"}`, nil))

	// Act: 快进超过房间 TTL
	mr.FastForward(3 * time.Hour)
	w := doJSON(t, router, "GET", "/api/rooms/"+created.RoomCode, "", nil)

	// Assert: 过期与不存在不可区分
	assert.Equal(t, http.StatusNotFound, w.Code)
}
