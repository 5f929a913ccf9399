package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 RedisKV 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisKV) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	config := Config{
		Addr:       mr.Addr(),
		DefaultTTL: 1 * time.Minute,
	}

	kv, err := NewRedisKV(config, zap.NewNop())
	require.NoError(t, err)

	return mr, kv
}

func TestNewRedisKV(t *testing.T) {
	mr, kv := setupTestRedis(t)
	defer mr.Close()
	defer kv.Close()

	assert.NotNil(t, kv.redis)
	assert.NoError(t, kv.Ping(context.Background()))
}

func TestRedisKV_PutAndGet(t *testing.T) {
	mr, kv := setupTestRedis(t)
	defer mr.Close()
	defer kv.Close()

	ctx := context.Background()

	require.NoError(t, kv.Put(ctx, "correction:abc", []byte(`{"id":"abc"}`), time.Minute))

	value, err := kv.Get(ctx, "correction:abc")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"abc"}`, string(value))
}

func TestRedisKV_GetMissing(t *testing.T) {
	mr, kv := setupTestRedis(t)
	defer mr.Close()
	defer kv.Close()

	value, err := kv.Get(context.Background(), "non-existent")
	assert.True(t, IsCacheMiss(err))
	assert.Nil(t, value)
}

func TestRedisKV_Delete(t *testing.T) {
	mr, kv := setupTestRedis(t)
	defer mr.Close()
	defer kv.Close()

	ctx := context.Background()

	require.NoError(t, kv.Put(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, kv.Delete(ctx, "k"))
	require.NoError(t, kv.Delete(ctx, "k"))

	_, err := kv.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
}

func TestRedisKV_JSONHelpers(t *testing.T) {
	mr, kv := setupTestRedis(t)
	defer mr.Close()
	defer kv.Close()

	ctx := context.Background()

	type record struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
	}

	require.NoError(t, PutJSON(ctx, kv, "json", record{Name: "test", Value: 123}, time.Minute))

	var got record
	require.NoError(t, GetJSON(ctx, kv, "json", &got))
	assert.Equal(t, record{Name: "test", Value: 123}, got)

	assert.Error(t, PutJSON(ctx, kv, "bad", make(chan int), time.Minute))

	require.NoError(t, kv.Put(ctx, "not-json", []byte("not a json"), time.Minute))
	var m map[string]any
	assert.Error(t, GetJSON(ctx, kv, "not-json", &m))
	assert.True(t, IsCacheMiss(GetJSON(ctx, kv, "absent", &m)))
}

func TestRedisKV_TTL(t *testing.T) {
	mr, kv := setupTestRedis(t)
	defer mr.Close()
	defer kv.Close()

	ctx := context.Background()

	require.NoError(t, kv.Put(ctx, "ttl", []byte("value"), 100*time.Millisecond))

	value, err := kv.Get(ctx, "ttl")
	require.NoError(t, err)
	assert.Equal(t, "value", string(value))

	mr.FastForward(200 * time.Millisecond)

	_, err = kv.Get(ctx, "ttl")
	assert.True(t, IsCacheMiss(err))
}

func TestRedisKV_DefaultTTL(t *testing.T) {
	mr, kv := setupTestRedis(t)
	defer mr.Close()
	defer kv.Close()

	require.NoError(t, kv.Put(context.Background(), "d", []byte("v"), 0))
	assert.Equal(t, time.Minute, mr.TTL("d"))
}

func TestRedisKV_ConnectFailed(t *testing.T) {
	kv, err := NewRedisKV(Config{Addr: "localhost:9999"}, zap.NewNop())
	assert.Nil(t, kv)
	assert.Error(t, err)
}

func TestRedisKV_Closed(t *testing.T) {
	mr, kv := setupTestRedis(t)
	defer mr.Close()

	require.NoError(t, kv.Close())
	require.NoError(t, kv.Close())

	ctx := context.Background()
	_, err := kv.Get(ctx, "k")
	assert.Error(t, err)
	assert.False(t, IsCacheMiss(err))
	assert.Error(t, kv.Put(ctx, "k", nil, 0))
	assert.Error(t, kv.Delete(ctx, "k"))
	assert.Error(t, kv.Ping(ctx))
}

func TestRedisKV_ConcurrentOperations(t *testing.T) {
	mr, kv := setupTestRedis(t)
	defer mr.Close()
	defer kv.Close()

	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			assert.NoError(t, kv.Put(ctx, fmt.Sprintf("concurrent-%d", id), []byte("value"), time.Minute))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			value, err := kv.Get(ctx, fmt.Sprintf("concurrent-%d", id))
			assert.NoError(t, err)
			assert.Equal(t, "value", string(value))
		}(i)
	}
	wg.Wait()
}
