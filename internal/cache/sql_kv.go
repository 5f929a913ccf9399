package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/groundrag/internal/database"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// kvEntry 是 SQL 后端的存储行.
type kvEntry struct {
	Key       string `gorm:"primaryKey;size:255"`
	Value     []byte
	ExpiresAt *time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (kvEntry) TableName() string { return "groundrag_kv" }

// SQLKV 基于 GORM 的 KV 实现，支持 SQLite 与 PostgreSQL.
// 过期行在读取时视为未命中，并被惰性删除.
type SQLKV struct {
	pool       *database.PoolManager
	defaultTTL time.Duration
	logger     *zap.Logger
}

// NewSQLKV 创建 SQL KV 并自动迁移表结构
func NewSQLKV(pool *database.PoolManager, defaultTTL time.Duration, logger *zap.Logger) (*SQLKV, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.DB().AutoMigrate(&kvEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate kv table: %w", err)
	}
	return &SQLKV{
		pool:       pool,
		defaultTTL: defaultTTL,
		logger:     logger.With(zap.String("component", "sql_kv")),
	}, nil
}

// Get 获取值
func (k *SQLKV) Get(ctx context.Context, key string) ([]byte, error) {
	var row kvEntry
	err := k.pool.DB().WithContext(ctx).Where("key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		k.logger.Error("kv get failed", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("kv get failed: %w", err)
	}
	if row.ExpiresAt != nil && !row.ExpiresAt.After(time.Now()) {
		if err := k.Delete(ctx, key); err != nil {
			k.logger.Debug("expired row cleanup failed", zap.String("key", key), zap.Error(err))
		}
		return nil, ErrCacheMiss
	}
	return row.Value, nil
}

// Put 写入值（upsert）
func (k *SQLKV) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = k.defaultTTL
	}
	row := kvEntry{Key: key, Value: value, UpdatedAt: time.Now()}
	if ttl > 0 {
		exp := time.Now().Add(ttl)
		row.ExpiresAt = &exp
	}

	err := k.pool.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		}).Create(&row).Error
	})
	if err != nil {
		k.logger.Error("kv put failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("kv put failed: %w", err)
	}
	return nil
}

// Delete 删除值
func (k *SQLKV) Delete(ctx context.Context, key string) error {
	err := k.pool.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		return tx.Where("key = ?", key).Delete(&kvEntry{}).Error
	})
	if err != nil {
		k.logger.Error("kv delete failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("kv delete failed: %w", err)
	}
	return nil
}

// Ping 检查数据库连接
func (k *SQLKV) Ping(ctx context.Context) error {
	return k.pool.Ping(ctx)
}

// Close 关闭连接池
func (k *SQLKV) Close() error {
	return k.pool.Close()
}
