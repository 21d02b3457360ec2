package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/metacurb/nestjs-websocket-starter/internal/domain"
	"github.com/metacurb/nestjs-websocket-starter/internal/repository"
)

// UserRepository 是 repository.UserRepository 的 Redis 实现。
// 用户记录存 JSON，key 为 user:<id>。
type UserRepository struct {
	store *Store
}

// NewUserRepository 创建 UserRepository 实例。
func NewUserRepository(store *Store) *UserRepository {
	if store == nil {
		panic("store cannot be nil for UserRepository")
	}
	return &UserRepository{store: store}
}

func (r *UserRepository) userKey(id string) string {
	return r.store.Key(fmt.Sprintf("user:%s", id))
}

// FindByID 根据 ID 读取用户记录。
func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	found, err := r.store.GetJSON(ctx, r.userKey(id), &user)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

// FindByIDs 批量读取用户记录，已过期的记录被跳过。
func (r *UserRepository) FindByIDs(ctx context.Context, ids []string) ([]domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.userKey(id)
	}
	users := make([]domain.User, 0, len(ids))
	err := r.store.MGetJSON(ctx, keys, func(raw []byte) error {
		var user domain.User
		if err := json.Unmarshal(raw, &user); err != nil {
			return fmt.Errorf("redis: failed to unmarshal user record: %w", err)
		}
		users = append(users, user)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// Save 写入用户记录；ttl <= 0 时保留 key 上现有的 TTL。
func (r *UserRepository) Save(ctx context.Context, user *domain.User, ttl time.Duration) error {
	return r.store.SetJSON(ctx, r.userKey(user.ID), user, ttl)
}

// Delete 删除一个或多个用户记录。
func (r *UserRepository) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.userKey(id)
	}
	return r.store.Del(ctx, keys...)
}

// RefreshTTL 刷新用户记录的 TTL。
func (r *UserRepository) RefreshTTL(ctx context.Context, id string, ttl time.Duration) error {
	return r.store.Expire(ctx, r.userKey(id), ttl)
}
