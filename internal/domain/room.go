package domain

import "time"

// RoomState 表示房间的生命周期状态。
// 目前只有 Created 一个可达状态，枚举为后续阶段预留。
type RoomState string

const (
	RoomStateCreated RoomState = "created"
)

// Room 表示一个短生命周期的派对房间。
// 记录本身存储在 Redis 中（JSON），key 为 room:<code>，与成员集合共用同一 TTL。
type Room struct {
	Code      string    `json:"code"`               // 房间码，定长、大写、存活期间唯一
	HostID    string    `json:"hostId"`             // 当前房主的用户 ID
	IsLocked  bool      `json:"isLocked"`           // 锁定的房间拒绝新成员加入
	MaxUsers  int       `json:"maxUsers,omitempty"` // 成员上限，0 表示不限制
	State     RoomState `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasCapacityLimit 报告房间是否设置了成员上限。
func (r *Room) HasCapacityLimit() bool {
	return r.MaxUsers > 0
}
