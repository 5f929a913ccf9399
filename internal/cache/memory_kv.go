package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryKVConfig 进程内 KV 配置
type MemoryKVConfig struct {
	// MaxEntries 条目上限，超出时淘汰最早写入的条目. 0 表示不限.
	MaxEntries int

	// DefaultTTL Put 未指定 TTL 时使用，0 表示永不过期.
	DefaultTTL time.Duration

	// Now 用于测试，默认 time.Now.
	Now func() time.Time
}

type memoryEntry struct {
	value     []byte
	createdAt time.Time
	expiresAt time.Time
}

// MemoryKV 带 TTL 的进程内 KV，用于本地开发、测试与单实例部署
type MemoryKV struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	closed  bool

	config MemoryKVConfig
	now    func() time.Time
	logger *zap.Logger
}

// NewMemoryKV 创建进程内 KV
func NewMemoryKV(config MemoryKVConfig, logger *zap.Logger) *MemoryKV {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &MemoryKV{
		entries: make(map[string]memoryEntry),
		config:  config,
		now:     now,
		logger:  logger.With(zap.String("component", "memory_kv")),
	}
}

// Get 获取值
func (k *MemoryKV) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil, fmt.Errorf("memory kv is closed")
	}

	ent, ok := k.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !ent.expiresAt.IsZero() && !k.now().Before(ent.expiresAt) {
		delete(k.entries, key)
		return nil, ErrCacheMiss
	}
	out := make([]byte, len(ent.value))
	copy(out, ent.value)
	return out, nil
}

// Put 写入值
func (k *MemoryKV) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("key is required")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return fmt.Errorf("memory kv is closed")
	}

	if ttl <= 0 {
		ttl = k.config.DefaultTTL
	}
	now := k.now()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	k.entries[key] = memoryEntry{value: stored, createdAt: now, expiresAt: expiresAt}

	k.cleanupExpiredLocked(now)
	k.evictIfNeededLocked()
	return nil
}

// Delete 删除值
func (k *MemoryKV) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	delete(k.entries, key)
	return nil
}

// Ping 检查可用性
func (k *MemoryKV) Ping(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return fmt.Errorf("memory kv is closed")
	}
	return ctx.Err()
}

// Close 清空并关闭
func (k *MemoryKV) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	cleared := len(k.entries)
	k.entries = make(map[string]memoryEntry)
	k.closed = true
	k.logger.Info("memory kv closed", zap.Int("cleared", cleared))
	return nil
}

// Len 返回未过期条目数
func (k *MemoryKV) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.cleanupExpiredLocked(k.now())
	return len(k.entries)
}

func (k *MemoryKV) cleanupExpiredLocked(now time.Time) {
	for key, ent := range k.entries {
		if !ent.expiresAt.IsZero() && !now.Before(ent.expiresAt) {
			delete(k.entries, key)
		}
	}
}

func (k *MemoryKV) evictIfNeededLocked() {
	if k.config.MaxEntries <= 0 || len(k.entries) <= k.config.MaxEntries {
		return
	}

	type aged struct {
		key       string
		createdAt time.Time
	}
	all := make([]aged, 0, len(k.entries))
	for key, ent := range k.entries {
		all = append(all, aged{key: key, createdAt: ent.createdAt})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].createdAt.Before(all[j].createdAt)
	})

	toEvict := len(k.entries) - k.config.MaxEntries
	for i := 0; i < toEvict && i < len(all); i++ {
		delete(k.entries, all[i].key)
	}
	k.logger.Debug("memory kv evicted entries", zap.Int("evicted", toEvict))
}
