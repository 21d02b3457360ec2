package redisstore_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisstore "github.com/metacurb/nestjs-websocket-starter/internal/infra/store/redis"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestStore(t *testing.T) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisstore.NewStore(client, "test:"), mr
}

func TestStore_Key_AppliesPrefix(t *testing.T) {
	store, _ := newTestStore(t)
	assert.Equal(t, "test:room:AB12", store.Key("room:AB12"))
}

func TestStore_GetSetJSON_RoundTrip(t *testing.T) {
	// Arrange
	store, _ := newTestStore(t)
	ctx := context.Background()
	key := store.Key("rec:1")

	// Act
	err := store.SetJSON(ctx, key, &record{Name: "alpha", Count: 3}, time.Hour)
	require.NoError(t, err)

	var got record
	found, err := store.GetJSON(ctx, key, &got)

	// Assert
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "alpha", got.Name)
	assert.Equal(t, 3, got.Count)
}

func TestStore_GetJSON_MissingKey(t *testing.T) {
	store, _ := newTestStore(t)

	var got record
	found, err := store.GetJSON(context.Background(), store.Key("rec:missing"), &got)

	// key 不存在不是错误
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_SetJSONIfAbsent_Exclusive(t *testing.T) {
	// Arrange
	store, _ := newTestStore(t)
	ctx := context.Background()
	key := store.Key("rec:nx")

	// Act: 第一次预留成功，第二次必须失败
	first, err := store.SetJSONIfAbsent(ctx, key, &record{Name: "winner"}, time.Hour)
	require.NoError(t, err)
	second, err := store.SetJSONIfAbsent(ctx, key, &record{Name: "loser"}, time.Hour)
	require.NoError(t, err)

	// Assert: 互斥，且保留第一个写入者的内容
	assert.True(t, first, "第一次 SETNX 应成功")
	assert.False(t, second, "第二次 SETNX 应失败")
	var got record
	found, err := store.GetJSON(ctx, key, &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "winner", got.Name)
}

func TestStore_SetJSONIfAbsent_FreeAfterExpiry(t *testing.T) {
	// Arrange: 预留过期后同一个 key 可被重新占用
	store, mr := newTestStore(t)
	ctx := context.Background()
	key := store.Key("rec:nx2")
	ok, err := store.SetJSONIfAbsent(ctx, key, &record{Name: "old"}, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Act
	mr.FastForward(2 * time.Minute)
	ok, err = store.SetJSONIfAbsent(ctx, key, &record{Name: "new"}, time.Minute)

	// Assert
	require.NoError(t, err)
	assert.True(t, ok, "过期后的 key 应可重新预留")
}

func TestStore_SetJSON_KeepsExistingTTL(t *testing.T) {
	// Arrange: 先以 1 小时 TTL 写入
	store, mr := newTestStore(t)
	ctx := context.Background()
	key := store.Key("rec:keep")
	require.NoError(t, store.SetJSON(ctx, key, &record{Name: "v1"}, time.Hour))

	// Act: ttl <= 0 覆盖内容但保留 TTL
	require.NoError(t, store.SetJSON(ctx, key, &record{Name: "v2"}, 0))

	// Assert: 内容更新，原 TTL 仍然生效
	var got record
	found, err := store.GetJSON(ctx, key, &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v2", got.Name)

	mr.FastForward(2 * time.Hour)
	found, err = store.GetJSON(ctx, key, &got)
	require.NoError(t, err)
	assert.False(t, found, "保留的 TTL 到期后 key 应消失")
}

func TestStore_DelBatch_RemovesAllKeys(t *testing.T) {
	// Arrange
	store, _ := newTestStore(t)
	ctx := context.Background()
	k1 := store.Key("rec:a")
	k2 := store.Key("rec:b")
	require.NoError(t, store.SetJSON(ctx, k1, &record{Name: "a"}, time.Hour))
	require.NoError(t, store.SAdd(ctx, k2, "m1", "m2"))

	// Act: 一个批次里同时删除 JSON 记录和集合
	err := store.DelBatch(ctx, k1, k2)

	// Assert
	require.NoError(t, err)
	var got record
	found, err := store.GetJSON(ctx, k1, &got)
	require.NoError(t, err)
	assert.False(t, found)
	members, err := store.SMembers(ctx, k2)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestStore_Expire_RefreshesTTL(t *testing.T) {
	// Arrange
	store, mr := newTestStore(t)
	ctx := context.Background()
	key := store.Key("rec:ttl")
	require.NoError(t, store.SetJSON(ctx, key, &record{Name: "x"}, time.Minute))

	// Act: 在原 TTL 过半时刷新为 1 小时
	mr.FastForward(30 * time.Second)
	require.NoError(t, store.Expire(ctx, key, time.Hour))
	mr.FastForward(30 * time.Minute)

	// Assert: 原 TTL 已走完，但 key 仍然存活
	var got record
	found, err := store.GetJSON(ctx, key, &got)
	require.NoError(t, err)
	assert.True(t, found, "刷新后的 TTL 不应让 key 提前过期")
}

func TestStore_SetOps(t *testing.T) {
	// Arrange
	store, _ := newTestStore(t)
	ctx := context.Background()
	key := store.Key("set:1")

	// Act & Assert
	require.NoError(t, store.SAdd(ctx, key, "u1", "u2"))

	ok, err := store.SIsMember(ctx, key, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := store.SCard(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, store.SRem(ctx, key, "u1"))
	ok, err = store.SIsMember(ctx, key, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	members, err := store.SMembers(ctx, key)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u2"}, members)
}

func TestStore_MGetJSON_SkipsMissingKeys(t *testing.T) {
	// Arrange: 三个 key 中只有两个存在
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetJSON(ctx, store.Key("rec:1"), &record{Name: "one"}, time.Hour))
	require.NoError(t, store.SetJSON(ctx, store.Key("rec:3"), &record{Name: "three"}, time.Hour))

	// Act
	var names []string
	err := store.MGetJSON(ctx, []string{store.Key("rec:1"), store.Key("rec:2"), store.Key("rec:3")}, func(raw []byte) error {
		var r record
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		names = append(names, r.Name)
		return nil
	})

	// Assert: 缺失的 key 被跳过而不是报错
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "three"}, names)
}

func TestStore_IncrWithWindow(t *testing.T) {
	// Arrange
	store, mr := newTestStore(t)
	ctx := context.Background()
	key := store.Key("ratelimit:1.2.3.4")

	// Act & Assert: 窗口内单调递增
	n, err := store.IncrWithWindow(ctx, key, time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = store.IncrWithWindow(ctx, key, time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// 窗口滑过后计数重新开始
	mr.FastForward(2 * time.Second)
	n, err = store.IncrWithWindow(ctx, key, time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
