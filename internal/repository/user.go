package repository

import (
	"context"
	"time"

	"github.com/metacurb/nestjs-websocket-starter/internal/domain"
)

// UserRepository 定义存在记录（presence record）的存储操作。
type UserRepository interface {
	// FindByID 根据用户 ID 查找记录，不存在时返回 ErrNotFound。
	FindByID(ctx context.Context, id string) (*domain.User, error)

	// FindByIDs 批量查找，已过期/不存在的记录被直接跳过，不报错。
	FindByIDs(ctx context.Context, ids []string) ([]domain.User, error)

	// Save 以给定 TTL 写入（覆盖）用户记录；ttl <= 0 时保留 key 上现有的 TTL。
	Save(ctx context.Context, user *domain.User, ttl time.Duration) error

	// Delete 删除一个或多个用户记录。不存在的 key 被忽略。
	Delete(ctx context.Context, ids ...string) error

	// RefreshTTL 刷新用户记录的 TTL。
	RefreshTTL(ctx context.Context, id string, ttl time.Duration) error
}
