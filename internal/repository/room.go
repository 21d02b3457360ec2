package repository

import (
	"context"
	"time"

	"github.com/metacurb/nestjs-websocket-starter/internal/domain"
)

// RoomRepository 定义房间记录与成员集合的存储操作。
// 房间记录与成员集合共用同一 TTL，由调用方在延长房间生命周期时一起刷新。
type RoomRepository interface {
	// FindByCode 根据房间码查找房间，不存在时返回 ErrNotFound。
	FindByCode(ctx context.Context, code string) (*domain.Room, error)

	// Save 以给定 TTL 写入（覆盖）房间记录。
	Save(ctx context.Context, room *domain.Room, ttl time.Duration) error

	// ReserveCode 原子地预留房间码（set-if-absent + TTL）。
	// 返回 false 表示该码已被其他并发创建占用。
	ReserveCode(ctx context.Context, code string, ttl time.Duration) (bool, error)

	// Delete 在一个原子批次中同时删除房间记录和成员集合，
	// 避免崩溃后留下互相引用的孤儿 key。
	Delete(ctx context.Context, code string) error

	// AddMember / RemoveMember 变更房间的成员集合。
	AddMember(ctx context.Context, code string, userID string) error
	RemoveMember(ctx context.Context, code string, userID string) error

	// Members 返回房间的全部成员 ID，顺序未定义。
	Members(ctx context.Context, code string) ([]string, error)

	// IsMember 报告 userID 是否在房间的成员集合中。
	IsMember(ctx context.Context, code string, userID string) (bool, error)

	// MemberCount 返回成员集合的大小。
	MemberCount(ctx context.Context, code string) (int, error)

	// RefreshTTL 刷新房间记录和成员集合的 TTL。
	RefreshTTL(ctx context.Context, code string, ttl time.Duration) error
}
