// Package redisstore 提供基于 Redis 的临时存储适配器：
// 所有房间/用户记录都放在这里，靠 TTL 自动过期，没有后台清理任务。
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Store 包装 *redis.Client，只暴露本系统需要的原语：
// 带 TTL 的 JSON get/set、set-if-absent、集合操作和 MULTI/EXEC 批次。
// 连接/命令超时在创建 client 时配置，超时表现为 store 不可用错误而不是悬挂。
type Store struct {
	client    *redis.Client
	keyPrefix string
}

// NewStore 创建 Store 实例。
func NewStore(client *redis.Client, keyPrefix string) *Store {
	if client == nil {
		panic("redis client cannot be nil for Store")
	}
	return &Store{client: client, keyPrefix: keyPrefix}
}

// Key 为逻辑 key 添加配置的前缀。
func (s *Store) Key(name string) string {
	return s.keyPrefix + name
}

// GetJSON 读取并反序列化一个 JSON 记录。
// key 不存在（包括已过期）时 found 为 false。
func (s *Store) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis: failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("redis: failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

// SetJSON 序列化并写入一个 JSON 记录。
// ttl > 0 时设置过期时间，ttl <= 0 时保留 key 上已有的 TTL。
func (s *Store) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal value for %s: %w", key, err)
	}
	expiration := ttl
	if ttl <= 0 {
		expiration = redis.KeepTTL
	}
	if err := s.client.Set(ctx, key, raw, expiration).Err(); err != nil {
		return fmt.Errorf("redis: failed to set %s: %w", key, err)
	}
	return nil
}

// SetJSONIfAbsent 原子地执行 set-if-absent（SET NX + TTL）。
// 返回 false 表示 key 已存在。这是房间码预留的唯一硬互斥点。
func (s *Store) SetJSONIfAbsent(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("redis: failed to marshal value for %s: %w", key, err)
	}
	ok, err := s.client.SetNX(ctx, key, raw, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to setnx %s: %w", key, err)
	}
	return ok, nil
}

// MGetJSON 批量读取 JSON 记录，缺失的 key 被跳过。
// each 回调对每条成功反序列化的记录执行一次。
func (s *Store) MGetJSON(ctx context.Context, keys []string, each func(raw []byte) error) error {
	if len(keys) == 0 {
		return nil
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return fmt.Errorf("redis: failed to mget %d keys: %w", len(keys), err)
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // key 不存在
		}
		if err := each([]byte(raw)); err != nil {
			return err
		}
	}
	return nil
}

// Del 删除一个或多个 key。
func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis: failed to del keys: %w", err)
	}
	return nil
}

// DelBatch 在一个 MULTI/EXEC 批次中删除多个 key，
// 保证要么全部删除要么全部保留。
func (s *Store) DelBatch(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	pipe := s.client.TxPipeline()
	for _, key := range keys {
		pipe.Del(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: failed to exec delete batch: %w", err)
	}
	return nil
}

// Expire 刷新 key 的 TTL。
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("redis: failed to expire %s: %w", key, err)
	}
	return nil
}

// SAdd 向集合添加成员。
func (s *Store) SAdd(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.client.SAdd(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("redis: failed to sadd to %s: %w", key, err)
	}
	return nil
}

// SRem 从集合移除成员。
func (s *Store) SRem(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.client.SRem(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("redis: failed to srem from %s: %w", key, err)
	}
	return nil
}

// SMembers 返回集合的全部成员，顺序未定义。
func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to smembers %s: %w", key, err)
	}
	return members, nil
}

// SIsMember 报告 member 是否在集合中。
func (s *Store) SIsMember(ctx context.Context, key string, member string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to sismember %s: %w", key, err)
	}
	return ok, nil
}

// SCard 返回集合的大小。
func (s *Store) SCard(ctx context.Context, key string) (int, error) {
	n, err := s.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: failed to scard %s: %w", key, err)
	}
	return int(n), nil
}

// IncrWithWindow 原子地递增计数器并刷新其过期时间（限流用）。
func (s *Store) IncrWithWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := s.client.Pipeline()
	incrCmd := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis: pipeline failed for counter %s: %w", key, err)
	}
	return incrCmd.Val(), nil
}
