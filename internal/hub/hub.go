// Package hub 维护实时网关的连接注册表：按房间码分组的客户端集合、
// 注册/注销/上行动作的处理循环，以及房间事件的扇出。
// Hub 只读取房间状态并把上行动作转交给协调服务，从不直接写 store。
package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/metacurb/nestjs-websocket-starter/internal/domain"
	"github.com/metacurb/nestjs-websocket-starter/internal/service"
)

type messageKind int

const (
	messageRegister messageKind = iota
	messageUnregister
	messageInbound
)

// hubMessage 是 Hub 内部通道传递的消息。
type hubMessage struct {
	kind   messageKind
	client *Client
	raw    []byte // 仅 messageInbound：原始信封
}

// Hub 维护活跃客户端集合并协调事件处理。
type Hub struct {
	messageChan chan hubMessage
	quit        chan struct{}
	quitOnce    sync.Once

	// 按房间码组织的客户端集合
	rooms   map[string]map[*Client]bool
	roomsMu sync.RWMutex

	roomService *service.RoomService
}

// NewHub 创建 Hub 实例。
func NewHub(roomService *service.RoomService) *Hub {
	if roomService == nil {
		panic("RoomService cannot be nil for Hub")
	}
	return &Hub{
		messageChan: make(chan hubMessage, 512),
		quit:        make(chan struct{}),
		rooms:       make(map[string]map[*Client]bool),
		roomService: roomService,
	}
}

// Run 启动 Hub 的主事件循环，应在单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running")

	for {
		select {
		case msg := <-h.messageChan:
			switch msg.kind {
			case messageRegister:
				h.registerClient(msg.client)
			case messageUnregister:
				h.unregisterClient(msg.client)
			case messageInbound:
				// 动作处理涉及 store IO，异步执行避免阻塞主循环
				go h.handleInbound(msg.client, msg.raw)
			}
		case <-h.quit:
			log.Info("Hub is shutting down")
			return
		}
	}
}

// Shutdown 停止事件循环并断开所有客户端（优雅关闭用）。
func (h *Hub) Shutdown() {
	h.quitOnce.Do(func() { close(h.quit) })

	h.roomsMu.Lock()
	var clients []*Client
	for _, roomClients := range h.rooms {
		for client := range roomClients {
			clients = append(clients, client)
		}
	}
	h.rooms = make(map[string]map[*Client]bool)
	h.roomsMu.Unlock()

	for _, client := range clients {
		client.closeSend()
		client.CloseConn()
	}
	if len(clients) > 0 {
		logrus.WithField("client_count", len(clients)).Info("Disconnected all WebSocket clients")
	}
}

// Register 把一个已认证的客户端排入注册队列。
func (h *Hub) Register(client *Client) bool {
	return h.queue(hubMessage{kind: messageRegister, client: client})
}

// queue 非阻塞入队；Hub 已停止或队列满时返回 false。
func (h *Hub) queue(msg hubMessage) bool {
	select {
	case <-h.quit:
		return false
	default:
	}
	select {
	case h.messageChan <- msg:
		return true
	default:
		return false
	}
}

// --- 注册 / 注销 ---

func (h *Hub) registerClient(client *Client) {
	if client == nil {
		return
	}
	roomCode := client.RoomCode()

	h.roomsMu.Lock()
	if _, ok := h.rooms[roomCode]; !ok {
		h.rooms[roomCode] = make(map[*Client]bool)
	}
	h.rooms[roomCode][client] = true
	h.roomsMu.Unlock()

	// 连接收尾（presence 更新 + 全量快照 + 入场通知）走 store IO，异步执行
	go h.completeConnect(client)
}

// completeConnect 完成连接流程：标记存在记录为已连接，向新连接推送
// 全量房间状态，并向房间里的其他人广播 user:connected。
func (h *Hub) completeConnect(client *Client) {
	ctx := context.Background()
	logCtx := logrus.WithFields(logrus.Fields{
		"room_code": client.RoomCode(),
		"user_id":   client.UserID(),
		"socket_id": client.SocketID(),
	})

	user, err := h.roomService.UpdateConnection(ctx, client.UserID(), client.SocketID())
	if err != nil {
		// 记录可能在认证和注册之间被删除（踢出/关房竞态），直接断开
		logCtx.WithError(err).Warn("Connection failed: presence record gone")
		client.CloseConn()
		return
	}

	room, err := h.roomService.GetByCode(ctx, client.RoomCode())
	if err != nil {
		logCtx.WithError(err).Warn("Connection failed: room gone")
		client.CloseConn()
		return
	}
	users, err := h.roomService.GetRoomMembers(ctx, client.RoomCode())
	if err != nil {
		logCtx.WithError(err).Error("Failed to load room members")
		client.CloseConn()
		return
	}

	h.sendTo(client, Envelope{Event: EventRoomState, Data: roomStatePayload{Room: room, Users: users}})
	h.broadcast(client.RoomCode(), Envelope{Event: EventUserConnected, Data: userPayload{User: user}}, client)

	logCtx.Info("User connected to room")
}

func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		return
	}
	roomCode := client.RoomCode()

	h.roomsMu.Lock()
	registered := false
	if roomClients, ok := h.rooms[roomCode]; ok {
		if _, exists := roomClients[client]; exists {
			registered = true
			delete(roomClients, client)
			if len(roomClients) == 0 {
				delete(h.rooms, roomCode)
			}
		}
	}
	h.roomsMu.Unlock()

	// 发送队列的关闭放在分组锁之外；在途的动作处理可能仍持有该
	// 客户端，closeSend 之后它们的发送会被丢弃而不是 panic。
	client.closeSend()

	if registered {
		go h.completeDisconnect(client)
	}
}

// completeDisconnect 标记存在记录为已断开并通知房间里剩下的人。
// 用户可能已被踢出或随房间关闭删除——这种 not-found 结果被吞掉，不算错误。
func (h *Hub) completeDisconnect(client *Client) {
	ctx := context.Background()
	logCtx := logrus.WithFields(logrus.Fields{
		"room_code": client.RoomCode(),
		"user_id":   client.UserID(),
	})

	user, err := h.roomService.UpdateDisconnection(ctx, client.UserID())
	if err != nil {
		if domain.IsDomainError(err) {
			logCtx.Debug("User disconnected, presence record already gone")
		} else {
			logCtx.WithError(err).Warn("Failed to update disconnection")
		}
		return
	}

	h.broadcast(client.RoomCode(), Envelope{Event: EventUserDisconnect, Data: userPayload{User: user}}, nil)
	logCtx.Info("User disconnected from room")
}

// --- 上行动作分发 ---

// handleInbound 解析上行信封并执行对应的协调服务操作。
// 身份永远取自连接绑定，不信任客户端负载。
func (h *Hub) handleInbound(client *Client, raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.sendError(client, domain.CodeUnknownError, "malformed message")
		return
	}

	ctx := context.Background()
	switch msg.Event {
	case ActionKick:
		h.onKick(ctx, client, msg.Data)
	case ActionTransferHost:
		h.onTransferHost(ctx, client, msg.Data)
	case ActionToggleLock:
		h.onToggleLock(ctx, client)
	case ActionLeave:
		h.onLeave(ctx, client)
	case ActionClose:
		h.onCloseRoom(ctx, client)
	default:
		logrus.WithFields(logrus.Fields{
			"event":   msg.Event,
			"user_id": client.UserID(),
		}).Warn("Received unknown message event")
	}
}

func (h *Hub) onKick(ctx context.Context, client *Client, data json.RawMessage) {
	var payload kickPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.KickUserID == "" {
		h.sendError(client, domain.CodeUnknownError, "malformed kick payload")
		return
	}

	kickedSocketID, err := h.roomService.Kick(ctx, client.UserID(), client.RoomCode(), payload.KickUserID)
	if err != nil {
		h.sendDomainError(client, err)
		return
	}

	// 先单独通知被踢者并强制断开，再向剩下的人广播离开事件
	var kicked *Client
	if kickedSocketID != "" {
		kicked = h.findBySocketID(client.RoomCode(), kickedSocketID)
	}
	if kicked != nil {
		h.sendTo(kicked, Envelope{Event: EventUserKicked})
		kicked.CloseConn()
	}
	h.broadcast(client.RoomCode(), Envelope{
		Event: EventUserLeft,
		Data:  userLeftPayload{UserID: payload.KickUserID, Reason: LeftReasonKicked},
	}, kicked)

	logrus.WithFields(logrus.Fields{
		"room_code":      client.RoomCode(),
		"kicked_user_id": payload.KickUserID,
	}).Info("User kicked")
}

func (h *Hub) onTransferHost(ctx context.Context, client *Client, data json.RawMessage) {
	var payload transferHostPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.NewHostID == "" {
		h.sendError(client, domain.CodeUnknownError, "malformed transfer payload")
		return
	}

	room, err := h.roomService.UpdateHost(ctx, client.UserID(), client.RoomCode(), payload.NewHostID)
	if err != nil {
		h.sendDomainError(client, err)
		return
	}

	h.broadcast(room.Code, Envelope{
		Event: EventRoomHostUpdated,
		Data:  hostUpdatedPayload{HostID: room.HostID},
	}, nil)
}

func (h *Hub) onToggleLock(ctx context.Context, client *Client) {
	room, err := h.roomService.ToggleLock(ctx, client.UserID(), client.RoomCode())
	if err != nil {
		h.sendDomainError(client, err)
		return
	}

	h.broadcast(room.Code, Envelope{
		Event: EventRoomLockToggled,
		Data:  lockToggledPayload{IsLocked: room.IsLocked},
	}, nil)
}

func (h *Hub) onLeave(ctx context.Context, client *Client) {
	_, err := h.roomService.Leave(ctx, client.RoomCode(), client.UserID())
	if err != nil {
		h.sendDomainError(client, err)
		return
	}

	h.broadcast(client.RoomCode(), Envelope{
		Event: EventUserLeft,
		Data:  userLeftPayload{UserID: client.UserID(), Reason: LeftReasonLeft},
	}, client)
	client.CloseConn()
}

func (h *Hub) onCloseRoom(ctx context.Context, client *Client) {
	if err := h.roomService.Close(ctx, client.UserID(), client.RoomCode()); err != nil {
		h.sendDomainError(client, err)
		return
	}

	// 先让所有人看到关闭事件，再把整个分组的连接断掉
	h.broadcast(client.RoomCode(), Envelope{
		Event: EventRoomClosed,
		Data:  roomClosedPayload{Reason: "HOST_CLOSED"},
	}, nil)

	h.roomsMu.Lock()
	roomClients := h.rooms[client.RoomCode()]
	clients := make([]*Client, 0, len(roomClients))
	for c := range roomClients {
		clients = append(clients, c)
	}
	delete(h.rooms, client.RoomCode())
	h.roomsMu.Unlock()

	for _, c := range clients {
		c.closeSend()
		c.CloseConn()
	}

	logrus.WithField("room_code", client.RoomCode()).Info("Room closed")
}

// --- 发送辅助 ---

// broadcast 把事件发给房间分组内除 exclude 外的所有客户端。
// 对单个客户端使用非阻塞发送，避免慢客户端拖住整个扇出。
func (h *Hub) broadcast(roomCode string, event Envelope, exclude *Client) {
	message, err := json.Marshal(event)
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal broadcast event")
		return
	}

	h.roomsMu.RLock()
	roomClients := h.rooms[roomCode]
	clients := make([]*Client, 0, len(roomClients))
	for client := range roomClients {
		if client != exclude {
			clients = append(clients, client)
		}
	}
	h.roomsMu.RUnlock()

	for _, client := range clients {
		if !client.trySend(message) {
			logrus.WithFields(logrus.Fields{
				"room_code": roomCode,
				"user_id":   client.UserID(),
			}).Warn("Client not writable during broadcast, skipping client")
		}
	}
}

// sendTo 把事件发给单个客户端（非阻塞）。
func (h *Hub) sendTo(client *Client, event Envelope) {
	message, err := json.Marshal(event)
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal event")
		return
	}
	if !client.trySend(message) {
		logrus.WithFields(logrus.Fields{
			"room_code": client.RoomCode(),
			"user_id":   client.UserID(),
		}).Warn("Client not writable, message dropped")
	}
}

// sendDomainError 把操作失败翻译成 error:room 事件发回给发起方，连接保持打开。
func (h *Hub) sendDomainError(client *Client, err error) {
	if domain.IsDomainError(err) {
		h.sendError(client, domain.CodeOf(err), err.Error())
		return
	}
	logrus.WithError(err).WithFields(logrus.Fields{
		"room_code": client.RoomCode(),
		"user_id":   client.UserID(),
	}).Error("Unexpected error handling client action")
	h.sendError(client, domain.CodeUnknownError, "unexpected error")
}

func (h *Hub) sendError(client *Client, code domain.ErrorCode, message string) {
	h.sendTo(client, Envelope{Event: EventRoomError, Data: roomErrorPayload{Code: code, Message: message}})
}

// findBySocketID 在房间分组里按传输句柄查找客户端。
func (h *Hub) findBySocketID(roomCode, socketID string) *Client {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	for client := range h.rooms[roomCode] {
		if client.SocketID() == socketID {
			return client
		}
	}
	return nil
}
