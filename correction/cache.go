package correction

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/groundrag/internal/cache"
	"github.com/BaSui01/groundrag/llm/embedding"
	"github.com/BaSui01/groundrag/rag"
	"github.com/BaSui01/groundrag/types"
)

// 向量条目 payload 中的键
const (
	MetaKVKey        = "kv_key"
	MetaCorrectionID = "correction_id"
	MetaVariant      = "variant"
)

// Config 纠错缓存配置
type Config struct {
	SimilarityThreshold float64       `json:"similarity_threshold" yaml:"similarity_threshold"` // 语义命中阈值（含）
	SemanticTopK        int           `json:"semantic_top_k" yaml:"semantic_top_k"`
	TTL                 time.Duration `json:"ttl" yaml:"ttl"` // 0 表示使用 KV 默认 TTL
	Timeout             time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.90,
		SemanticTopK:        5,
		TTL:                 90 * 24 * time.Hour,
		Timeout:             10 * time.Second,
	}
}

// Cache 两级纠错缓存：KV 精确层 + 向量语义层.
//
// KV 为权威存储，向量索引只保存指向 KV 键的指针. kv 为 nil 时所有操作为空操作.
// index 或 embedder 为 nil 时只启用精确层.
type Cache struct {
	kv       cache.KV
	index    rag.VectorStore
	embedder embedding.Provider
	config   Config
	logger   *zap.Logger
	now      func() time.Time
}

// New 创建纠错缓存
func New(kv cache.KV, index rag.VectorStore, embedder embedding.Provider, config Config, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if config.SimilarityThreshold <= 0 || config.SimilarityThreshold > 1 {
		config.SimilarityThreshold = def.SimilarityThreshold
	}
	if config.SemanticTopK <= 0 {
		config.SemanticTopK = def.SemanticTopK
	}
	return &Cache{
		kv:       kv,
		index:    index,
		embedder: embedder,
		config:   config,
		logger:   logger.With(zap.String("component", "correction_cache")),
		now:      time.Now,
	}
}

// Enabled 报告缓存是否已配置
func (c *Cache) Enabled() bool {
	return c != nil && c.kv != nil
}

func (c *Cache) semanticEnabled() bool {
	return c.index != nil && c.embedder != nil
}

// Lookup 查找与问题匹配的纠错. 精确层优先，语义层相似度 >= 阈值时命中.
// 任何后端故障都降级为未命中.
func (c *Cache) Lookup(ctx context.Context, query string) LookupResult {
	if !c.Enabled() {
		return LookupResult{}
	}
	normalized := NormalizeQuery(query)
	if normalized == "" {
		return LookupResult{}
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	key := Key(ID(normalized))
	if entry, err := c.load(ctx, key); err == nil {
		c.touch(ctx, key, entry)
		return LookupResult{Found: true, Confidence: 1.0, Correction: entry, Tier: TierExact}
	} else if !cache.IsCacheMiss(err) {
		c.logger.Warn("exact correction lookup failed", zap.String("key", key), zap.Error(err))
	}

	if !c.semanticEnabled() {
		return LookupResult{}
	}
	vec, err := c.embedder.EmbedQuery(ctx, query)
	if err == nil {
		err = embedding.ValidateVector(vec)
	}
	if err != nil {
		c.logger.Warn("correction query embedding failed", zap.Error(err))
		return LookupResult{}
	}
	hits, err := c.index.Search(ctx, vec, c.config.SemanticTopK)
	if err != nil {
		c.logger.Warn("correction vector search failed", zap.Error(err))
		return LookupResult{}
	}

	for _, hit := range hits {
		if hit.Score < c.config.SimilarityThreshold {
			break
		}
		kvKey, _ := hit.Document.Metadata[MetaKVKey].(string)
		if kvKey == "" {
			continue
		}
		entry, err := c.load(ctx, kvKey)
		if err != nil {
			// 向量指针指向已删除的记录
			c.logger.Debug("stale correction pointer", zap.String("vector_id", hit.Document.ID), zap.Error(err))
			continue
		}
		c.touch(ctx, kvKey, entry)
		return LookupResult{Found: true, Confidence: hit.Score, Correction: entry, Tier: TierSemantic}
	}
	return LookupResult{}
}

// Store 校验并写入纠错. 同一归一化问题的变体取并集，后写覆盖其余字段.
func (c *Cache) Store(ctx context.Context, fb Feedback) (StoreResult, error) {
	fb.Question = strings.TrimSpace(fb.Question)
	fb.CorrectAnswer = strings.TrimSpace(fb.CorrectAnswer)
	if fb.Question == "" || fb.CorrectAnswer == "" {
		return StoreResult{}, types.NewError(types.ErrCorrectionInvalid, "question and correct_answer are required").
			WithHTTPStatus(http.StatusBadRequest)
	}
	normalized := NormalizeQuery(fb.Question)
	if normalized == "" {
		return StoreResult{}, types.NewError(types.ErrCorrectionInvalid, "question has no searchable terms").
			WithHTTPStatus(http.StatusBadRequest)
	}
	if !c.Enabled() {
		c.logger.Debug("correction cache not configured, store skipped")
		return StoreResult{}, nil
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	id := ID(normalized)
	key := Key(id)

	entry := &Entry{ID: id, OriginalQuestion: fb.Question, NormalizedQuestion: normalized}
	if existing, err := c.load(ctx, key); err == nil {
		entry = existing
	} else if !cache.IsCacheMiss(err) {
		return StoreResult{}, types.WrapError(err, types.ErrCacheUnavailable, "load existing correction").
			WithHTTPStatus(http.StatusServiceUnavailable).WithRetryable(true)
	}

	entry.QuestionVariants = mergeVariants(entry.OriginalQuestion, entry.QuestionVariants, append([]string{fb.Question}, fb.Variants...))
	entry.WrongAnswer = fb.WrongAnswer
	entry.CorrectAnswer = fb.CorrectAnswer
	entry.WrongAnswerSources = fb.WrongAnswerSources
	entry.CorrectAnswerSource = fb.CorrectAnswerSource
	entry.CorrectedBy = fb.CorrectedBy
	entry.CorrectedAt = c.now().UTC()

	if c.semanticEnabled() {
		if err := c.indexPhrasings(ctx, key, entry); err != nil {
			return StoreResult{}, err
		}
	}

	if err := cache.PutJSON(ctx, c.kv, key, entry, c.config.TTL); err != nil {
		return StoreResult{}, types.WrapError(err, types.ErrCacheUnavailable, "write correction").
			WithHTTPStatus(http.StatusServiceUnavailable).WithRetryable(true)
	}

	c.logger.Info("correction stored",
		zap.String("id", id),
		zap.Int("variants", len(entry.QuestionVariants)),
		zap.String("corrected_by", entry.CorrectedBy))

	return StoreResult{Success: true, ID: id, Variants: len(entry.QuestionVariants)}, nil
}

// indexPhrasings 为每个问法写入一个向量条目，嵌入失败的问法被跳过，
// 全部失败时返回错误且不写入任何内容
func (c *Cache) indexPhrasings(ctx context.Context, key string, entry *Entry) error {
	phrasings := entry.Phrasings()
	docs := make([]rag.Document, 0, len(phrasings))
	for i, p := range phrasings {
		vec, err := c.embedder.EmbedQuery(ctx, p)
		if err == nil {
			err = embedding.ValidateVector(vec)
		}
		if err != nil {
			c.logger.Warn("correction phrasing embedding failed", zap.Int("variant", i), zap.Error(err))
			continue
		}
		docs = append(docs, rag.Document{
			ID:      vectorID(entry.ID, i),
			Content: p,
			Metadata: map[string]any{
				MetaKVKey:        key,
				MetaCorrectionID: entry.ID,
				MetaVariant:      i,
			},
			Embedding: vec,
		})
	}
	if len(docs) == 0 {
		return types.NewError(types.ErrNoEmbeddings, "no phrasing of the correction could be embedded").
			WithHTTPStatus(http.StatusBadGateway).WithRetryable(true)
	}
	if err := c.index.AddDocuments(ctx, docs); err != nil {
		return types.WrapError(err, types.ErrUpstreamError, "index correction phrasings").
			WithHTTPStatus(http.StatusBadGateway).WithRetryable(true)
	}
	return nil
}

// Get 按 ID 读取纠错记录
func (c *Cache) Get(ctx context.Context, id string) (*Entry, error) {
	if !c.Enabled() {
		return nil, errUnavailable()
	}
	entry, err := c.load(ctx, Key(id))
	if err != nil {
		return nil, c.mapLoadError(id, err)
	}
	return entry, nil
}

// Delete 删除 KV 记录，并尽力删除全部向量条目
func (c *Cache) Delete(ctx context.Context, id string) error {
	if !c.Enabled() {
		return errUnavailable()
	}
	key := Key(id)
	entry, err := c.load(ctx, key)
	if err != nil {
		return c.mapLoadError(id, err)
	}
	if err := c.kv.Delete(ctx, key); err != nil {
		return types.WrapError(err, types.ErrCacheUnavailable, "delete correction").
			WithHTTPStatus(http.StatusServiceUnavailable).WithRetryable(true)
	}

	if c.index != nil {
		ids := make([]string, 0, 1+len(entry.QuestionVariants))
		for i := range entry.Phrasings() {
			ids = append(ids, vectorID(id, i))
		}
		if err := c.index.DeleteDocuments(ctx, ids); err != nil {
			c.logger.Warn("correction vector cleanup failed, entries left stale",
				zap.String("id", id), zap.Error(err))
		}
	}

	c.logger.Info("correction deleted", zap.String("id", id))
	return nil
}

func (c *Cache) load(ctx context.Context, key string) (*Entry, error) {
	var entry Entry
	if err := cache.GetJSON(ctx, c.kv, key, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// touch 更新复用计数，失败只记录日志
func (c *Cache) touch(ctx context.Context, key string, entry *Entry) {
	now := c.now().UTC()
	entry.TimesReused++
	entry.LastUsed = &now
	if err := cache.PutJSON(ctx, c.kv, key, entry, c.config.TTL); err != nil {
		c.logger.Warn("failed to update correction usage", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cache) mapLoadError(id string, err error) error {
	if cache.IsCacheMiss(err) {
		return types.NewError(types.ErrCorrectionNotFound, fmt.Sprintf("correction %s not found", id)).
			WithHTTPStatus(http.StatusNotFound)
	}
	return types.WrapError(err, types.ErrCacheUnavailable, "load correction").
		WithHTTPStatus(http.StatusServiceUnavailable).WithRetryable(true)
}

func (c *Cache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.config.Timeout)
}

func errUnavailable() error {
	return types.NewError(types.ErrCacheUnavailable, "correction cache is not configured").
		WithHTTPStatus(http.StatusServiceUnavailable)
}

// mergeVariants 合并问法，按归一化形式去重，保持首次出现顺序，排除原问题
func mergeVariants(original string, existing, incoming []string) []string {
	seen := map[string]bool{NormalizeQuery(original): true}
	out := make([]string, 0, len(existing)+len(incoming))
	for _, list := range [][]string{existing, incoming} {
		for _, v := range list {
			v = strings.TrimSpace(v)
			n := NormalizeQuery(v)
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, v)
		}
	}
	return out
}
