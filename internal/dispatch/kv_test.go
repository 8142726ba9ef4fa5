package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *RedisKVStore) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, NewRedisKVStore(client)
}

func TestRedisKVStore_SetGet(t *testing.T) {
	_, kv := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "vitals:patient:alice", `{"avg_temp":36.7}`, time.Minute))

	val, err := kv.Get(ctx, "vitals:patient:alice")
	require.NoError(t, err)
	assert.Equal(t, `{"avg_temp":36.7}`, val)
}

func TestRedisKVStore_Miss(t *testing.T) {
	_, kv := setupMiniredis(t)

	_, err := kv.Get(context.Background(), "vitals:patient:missing")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisKVStore_TTLExpiry(t *testing.T) {
	mr, kv := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "vitals:patient:bob", "cached", time.Second))

	// miniredis 手动推进时间
	mr.FastForward(2 * time.Second)

	_, err := kv.Get(ctx, "vitals:patient:bob")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
