package hub

import (
	"encoding/json"

	"github.com/metacurb/nestjs-websocket-starter/internal/domain"
)

// 实时协议：双向都是 JSON 信封 {"event": ..., "data": ...}。

// 服务端下发的事件名。
const (
	EventRoomState       = "room:state"
	EventUserConnected   = "user:connected"
	EventUserDisconnect  = "user:disconnected"
	EventUserLeft        = "user:left"
	EventUserKicked      = "user:kicked"
	EventRoomHostUpdated = "room:host_updated"
	EventRoomLockToggled = "room:lock_toggled"
	EventRoomClosed      = "room:closed"
	EventRoomError       = "error:room"
)

// 客户端上行的动作名。负载里只携带无法从连接绑定身份推导的字段。
const (
	ActionKick         = "room:kick"
	ActionTransferHost = "room:transfer_host"
	ActionToggleLock   = "room:toggle_lock"
	ActionLeave        = "room:leave"
	ActionClose        = "room:close"
)

// 成员被移出房间的原因。
const (
	LeftReasonLeft   = "LEFT"
	LeftReasonKicked = "KICKED"
)

// Envelope 是下发事件的信封。
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// inboundMessage 是上行动作的信封，负载延迟解析。
type inboundMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// 上行动作负载。
type kickPayload struct {
	KickUserID string `json:"kickUserId"`
}

type transferHostPayload struct {
	NewHostID string `json:"newHostId"`
}

// 下发事件负载。
type roomStatePayload struct {
	Room  *domain.Room  `json:"room"`
	Users []domain.User `json:"users"`
}

type userPayload struct {
	User *domain.User `json:"user"`
}

type userLeftPayload struct {
	UserID string `json:"userId"`
	Reason string `json:"reason"`
}

type hostUpdatedPayload struct {
	HostID string `json:"hostId"`
}

type lockToggledPayload struct {
	IsLocked bool `json:"isLocked"`
}

type roomClosedPayload struct {
	Reason string `json:"reason"`
}

type roomErrorPayload struct {
	Code    domain.ErrorCode `json:"code"`
	Message string           `json:"message"`
}
