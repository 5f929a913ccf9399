package cache

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/groundrag/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestSQLKV(t *testing.T, defaultTTL time.Duration) *SQLKV {
	t.Helper()
	pool, err := database.Open("sqlite", ":memory:", database.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}, zap.NewNop())
	require.NoError(t, err)

	kv, err := NewSQLKV(pool, defaultTTL, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func TestSQLKV_PutGetDelete(t *testing.T) {
	kv := setupTestSQLKV(t, 0)
	ctx := context.Background()

	require.NoError(t, kv.Put(ctx, "correction:1", []byte("first"), 0))
	got, err := kv.Get(ctx, "correction:1")
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))

	// last writer wins
	require.NoError(t, kv.Put(ctx, "correction:1", []byte("second"), 0))
	got, err = kv.Get(ctx, "correction:1")
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	require.NoError(t, kv.Delete(ctx, "correction:1"))
	_, err = kv.Get(ctx, "correction:1")
	assert.True(t, IsCacheMiss(err))
}

func TestSQLKV_Missing(t *testing.T) {
	kv := setupTestSQLKV(t, 0)
	_, err := kv.Get(context.Background(), "absent")
	assert.True(t, IsCacheMiss(err))
	assert.NoError(t, kv.Delete(context.Background(), "absent"))
}

func TestSQLKV_Expiry(t *testing.T) {
	kv := setupTestSQLKV(t, 0)
	ctx := context.Background()

	require.NoError(t, kv.Put(ctx, "short", []byte("v"), 20*time.Millisecond))
	_, err := kv.Get(ctx, "short")
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)
	_, err = kv.Get(ctx, "short")
	assert.True(t, IsCacheMiss(err))
}

func TestSQLKV_JSONHelpers(t *testing.T) {
	kv := setupTestSQLKV(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, PutJSON(ctx, kv, "turns", []string{"a", "b"}, 0))
	var turns []string
	require.NoError(t, GetJSON(ctx, kv, "turns", &turns))
	assert.Equal(t, []string{"a", "b"}, turns)
	assert.NoError(t, kv.Ping(ctx))
}

func TestNewSQLKV_NilPool(t *testing.T) {
	_, err := NewSQLKV(nil, 0, nil)
	assert.Error(t, err)
}
