// Package cache provides internal key-value storage backends.
// This package is internal and should not be imported by external projects.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// =============================================================================
// 💾 Redis 键值存储
// =============================================================================

// RedisKV 基于 Redis 的 KV 实现
type RedisKV struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

// Config Redis 配置
type Config struct {
	// Redis 地址
	Addr string `yaml:"addr" json:"addr"`

	// 密码
	Password string `yaml:"password" json:"password"`

	// 数据库编号
	DB int `yaml:"db" json:"db"`

	// 默认过期时间，0 表示永不过期
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`

	// 最大重试次数
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" json:"pool_size"`

	// 最小空闲连接数
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns"`

	// 健康检查间隔
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultConfig 返回默认 Redis 配置
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// NewRedisKV 创建 Redis KV 并校验连接
func NewRedisKV(config Config, logger *zap.Logger) (*RedisKV, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	kv := &RedisKV{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "redis_kv")),
	}

	// 启动健康检查
	if config.HealthCheckInterval > 0 {
		go kv.healthCheckLoop()
	}

	logger.Info("redis kv initialized",
		zap.String("addr", config.Addr),
		zap.Int("pool_size", config.PoolSize),
	)

	return kv, nil
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Get 获取值
func (k *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.closed {
		return nil, fmt.Errorf("redis kv is closed")
	}

	val, err := k.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		k.logger.Error("kv get failed", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("kv get failed: %w", err)
	}

	return val, nil
}

// Put 写入值
func (k *RedisKV) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.closed {
		return fmt.Errorf("redis kv is closed")
	}

	if ttl <= 0 {
		ttl = k.config.DefaultTTL
	}

	if err := k.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		k.logger.Error("kv put failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("kv put failed: %w", err)
	}

	return nil
}

// Delete 删除值
func (k *RedisKV) Delete(ctx context.Context, key string) error {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.closed {
		return fmt.Errorf("redis kv is closed")
	}

	if err := k.redis.Del(ctx, key).Err(); err != nil {
		k.logger.Error("kv delete failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("kv delete failed: %w", err)
	}

	return nil
}

// Ping 检查 Redis 连接
func (k *RedisKV) Ping(ctx context.Context) error {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.closed {
		return fmt.Errorf("redis kv is closed")
	}

	return k.redis.Ping(ctx).Err()
}

// Close 关闭连接
func (k *RedisKV) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil
	}

	k.closed = true
	k.logger.Info("closing redis kv")

	return k.redis.Close()
}

// healthCheckLoop 健康检查循环
func (k *RedisKV) healthCheckLoop() {
	ticker := time.NewTicker(k.config.HealthCheckInterval)
	defer ticker.Stop()

	for range ticker.C {
		k.mu.RLock()
		if k.closed {
			k.mu.RUnlock()
			return
		}
		k.mu.RUnlock()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := k.Ping(ctx); err != nil {
			k.logger.Error("redis health check failed", zap.Error(err))
		} else {
			k.logger.Debug("redis health check passed")
		}
		cancel()
	}
}
