package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/metacurb/nestjs-websocket-starter/internal/domain"
	"github.com/metacurb/nestjs-websocket-starter/internal/repository"
)

// RoomRepository 是 repository.RoomRepository 的 Redis 实现。
// 房间记录存 JSON（room:<code>），成员集合存 SET（room:<code>:users）。
type RoomRepository struct {
	store *Store
}

// NewRoomRepository 创建 RoomRepository 实例。
func NewRoomRepository(store *Store) *RoomRepository {
	if store == nil {
		panic("store cannot be nil for RoomRepository")
	}
	return &RoomRepository{store: store}
}

func (r *RoomRepository) roomKey(code string) string {
	return r.store.Key(fmt.Sprintf("room:%s", code))
}

func (r *RoomRepository) membersKey(code string) string {
	return r.store.Key(fmt.Sprintf("room:%s:users", code))
}

// FindByCode 根据房间码读取房间记录。
func (r *RoomRepository) FindByCode(ctx context.Context, code string) (*domain.Room, error) {
	var room domain.Room
	found, err := r.store.GetJSON(ctx, r.roomKey(code), &room)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, repository.ErrNotFound
	}
	return &room, nil
}

// Save 写入房间记录。
func (r *RoomRepository) Save(ctx context.Context, room *domain.Room, ttl time.Duration) error {
	return r.store.SetJSON(ctx, r.roomKey(room.Code), room, ttl)
}

// ReserveCode 用 SET NX + TTL 原子地预留房间码。
// 占位内容只有 code 字段，成功后调用方负责写入完整记录。
func (r *RoomRepository) ReserveCode(ctx context.Context, code string, ttl time.Duration) (bool, error) {
	placeholder := domain.Room{Code: code}
	return r.store.SetJSONIfAbsent(ctx, r.roomKey(code), &placeholder, ttl)
}

// Delete 在一个 MULTI/EXEC 批次中同时删除房间记录和成员集合。
func (r *RoomRepository) Delete(ctx context.Context, code string) error {
	return r.store.DelBatch(ctx, r.membersKey(code), r.roomKey(code))
}

// AddMember 把用户加入房间的成员集合。
func (r *RoomRepository) AddMember(ctx context.Context, code string, userID string) error {
	return r.store.SAdd(ctx, r.membersKey(code), userID)
}

// RemoveMember 把用户移出房间的成员集合。
func (r *RoomRepository) RemoveMember(ctx context.Context, code string, userID string) error {
	return r.store.SRem(ctx, r.membersKey(code), userID)
}

// Members 返回房间的全部成员 ID。
func (r *RoomRepository) Members(ctx context.Context, code string) ([]string, error) {
	return r.store.SMembers(ctx, r.membersKey(code))
}

// IsMember 报告用户是否在房间中。
func (r *RoomRepository) IsMember(ctx context.Context, code string, userID string) (bool, error) {
	return r.store.SIsMember(ctx, r.membersKey(code), userID)
}

// MemberCount 返回房间当前成员数。
func (r *RoomRepository) MemberCount(ctx context.Context, code string) (int, error) {
	return r.store.SCard(ctx, r.membersKey(code))
}

// RefreshTTL 一起刷新房间记录和成员集合的 TTL。
func (r *RoomRepository) RefreshTTL(ctx context.Context, code string, ttl time.Duration) error {
	if err := r.store.Expire(ctx, r.roomKey(code), ttl); err != nil {
		return err
	}
	return r.store.Expire(ctx, r.membersKey(code), ttl)
}
