package domain

// User 表示一条连接存在记录（presence record）。
// 它不是登录身份：ID 在加入房间时生成，记录随房间一起过期。
// 不变量：User.RoomCode 指向的房间的成员集合必须包含 User.ID，两者总是一起变更。
type User struct {
	ID          string `json:"id"`          // 加入时生成的 uuid
	DisplayName string `json:"displayName"` // 展示名称
	RoomCode    string `json:"roomCode"`    // 所属房间，记录生命周期内不变
	IsConnected bool   `json:"isConnected"` // 是否有活跃的 WebSocket 连接
	SocketID    string `json:"socketId"`    // 传输层连接句柄，断开时为空
}
