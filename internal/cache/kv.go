package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// KV 是纠错记录与会话记忆使用的最小键值存储接口.
// 写入语义为后写覆盖（last-writer-wins）.
type KV interface {
	// Get 返回键对应的值，不存在或已过期时返回 ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put 写入键值，ttl <= 0 时使用实现的默认 TTL（可能为永不过期）.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete 删除键，键不存在时不返回错误.
	Delete(ctx context.Context, key string) error

	// Ping 检查后端可用性.
	Ping(ctx context.Context) error

	// Close 释放底层连接.
	Close() error
}

// ErrCacheMiss 缓存未命中错误
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss 判断是否为缓存未命中错误
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// GetJSON 读取并反序列化 JSON 值
func GetJSON(ctx context.Context, kv KV, key string, dest any) error {
	val, err := kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

// PutJSON 序列化并写入 JSON 值
func PutJSON(ctx context.Context, kv KV, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return kv.Put(ctx, key, data, ttl)
}

var (
	_ KV = (*RedisKV)(nil)
	_ KV = (*SQLKV)(nil)
	_ KV = (*MemoryKV)(nil)
)
