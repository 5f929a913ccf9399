package rag

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/groundrag/llm/embedding"
	"github.com/BaSui01/groundrag/llm/retry"
	"github.com/BaSui01/groundrag/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RetrieverConfig 检索配置
type RetrieverConfig struct {
	TopK          int             `json:"top_k" yaml:"top_k"`                   // 每路向量检索数量
	MaxContext    int             `json:"max_context" yaml:"max_context"`       // 融合截断与上下文名额
	RRFK          int             `json:"rrf_k" yaml:"rrf_k"`                   // RRF 平滑常数
	TopRerank     int             `json:"top_rerank" yaml:"top_rerank"`         // 精选数量（配置了 ContextSelector 时生效）
	EmbedTimeout  time.Duration   `json:"embed_timeout" yaml:"embed_timeout"`   // 单次嵌入超时
	SearchTimeout time.Duration   `json:"search_timeout" yaml:"search_timeout"` // 单次检索超时
	Topics        []TopicKeywords `json:"topics,omitempty" yaml:"topics"`       // 主题词表，空则使用默认
}

// DefaultRetrieverConfig 返回默认检索配置
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		TopK:          20,
		MaxContext:    20,
		RRFK:          DefaultRRFK,
		TopRerank:     8,
		EmbedTimeout:  20 * time.Second,
		SearchTimeout: 10 * time.Second,
	}
}

// Retriever 多路查询改写 + 向量检索 + RRF 融合 + 主题均衡分配
type Retriever struct {
	embedder   embedding.Provider
	store      VectorStore
	expander   *QueryExpander
	selector   *ContextSelector
	classifier *TopicClassifier
	retryer    retry.Retryer
	config     RetrieverConfig
	logger     *zap.Logger
}

// RetrieverOption 检索器选项
type RetrieverOption func(*Retriever)

// WithQueryExpander 启用查询改写
func WithQueryExpander(e *QueryExpander) RetrieverOption {
	return func(r *Retriever) { r.expander = e }
}

// WithContextSelector 启用重排精选
func WithContextSelector(s *ContextSelector) RetrieverOption {
	return func(r *Retriever) { r.selector = s }
}

// WithSearchRetryer 为向量检索设置重试策略
func WithSearchRetryer(rt retry.Retryer) RetrieverOption {
	return func(r *Retriever) { r.retryer = rt }
}

// NewRetriever 创建检索器
func NewRetriever(config RetrieverConfig, embedder embedding.Provider, store VectorStore, logger *zap.Logger, opts ...RetrieverOption) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultRetrieverConfig()
	if config.TopK <= 0 {
		config.TopK = def.TopK
	}
	if config.MaxContext <= 0 {
		config.MaxContext = def.MaxContext
	}
	if config.RRFK <= 0 {
		config.RRFK = def.RRFK
	}
	r := &Retriever{
		embedder:   embedder,
		store:      store,
		classifier: NewTopicClassifier(config.Topics),
		config:     config,
		logger:     logger.With(zap.String("component", "retriever")),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.retryer == nil {
		r.retryer = retry.NewBackoffRetryer(retry.NoRetryPolicy(), logger)
	}
	return r
}

// Retrieve 执行完整检索流程.
//
// 没有任何可用嵌入时返回 NO_EMBEDDINGS；所有检索调用失败时返回 RETRIEVAL_FAILED.
// 检索成功但无结果时返回空上下文与知识缺口说明.
func (r *Retriever) Retrieve(ctx context.Context, query string) (*RetrievalResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "query is empty").WithHTTPStatus(http.StatusBadRequest)
	}
	start := time.Now()

	queries := append([]string{query}, r.expander.Expand(ctx, query)...)

	embeddings := r.embedAll(ctx, queries)
	if len(embeddings) == 0 {
		return nil, types.NewError(types.ErrNoEmbeddings, "no usable query embeddings").
			WithHTTPStatus(http.StatusBadGateway).WithRetryable(true)
	}

	lists, topScore, searchErr := r.searchAll(ctx, embeddings)
	if lists == nil {
		return nil, types.WrapError(searchErr, types.ErrRetrievalFailed, "vector search failed for every query").
			WithHTTPStatus(http.StatusBadGateway).WithRetryable(true)
	}

	fused := FuseRRF(lists, r.config.RRFK, r.config.MaxContext)
	clusters := r.classifier.Cluster(fused)
	notes := LinkNotes(clusters)
	allocated := Allocate(fused, clusters, r.config.MaxContext)

	selected := allocated
	if r.selector != nil && len(allocated) > 0 {
		selected = r.selector.SelectChunks(ctx, query, allocated, r.config.TopRerank)
	}

	result := &RetrievalResult{
		ContextBlocks:  Blocks(selected),
		TopScore:       topScore,
		RetrievalNotes: notes,
		KnowledgeGaps:  KnowledgeGaps(query, len(selected), clusters),
		Chunks:         selected,
	}

	r.logger.Info("retrieval completed",
		zap.Int("queries", len(queries)),
		zap.Int("embeddings", len(embeddings)),
		zap.Int("fused", len(fused)),
		zap.Int("clusters", len(clusters)),
		zap.Int("blocks", len(result.ContextBlocks)),
		zap.Duration("duration", time.Since(start)))

	return result, nil
}

// embedAll 并发嵌入所有查询，失败的查询被丢弃，返回结果保持查询顺序
func (r *Retriever) embedAll(ctx context.Context, queries []string) [][]float64 {
	vectors := make([][]float64, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			cctx, cancel := withTimeout(gctx, r.config.EmbedTimeout)
			defer cancel()
			v, err := r.embedder.EmbedQuery(cctx, q)
			if err == nil {
				err = embedding.ValidateVector(v)
			}
			if err != nil {
				r.logger.Warn("query embedding failed, dropping variant", zap.Int("variant", i), zap.Error(err))
				return nil
			}
			vectors[i] = v
			return nil
		})
	}
	_ = g.Wait()

	out := make([][]float64, 0, len(vectors))
	for _, v := range vectors {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

// searchAll 并发检索，返回成功的结果列表（保持嵌入顺序）与最高相似度.
// 全部失败时 lists 为 nil.
func (r *Retriever) searchAll(ctx context.Context, embeddings [][]float64) ([][]RetrievedChunk, float64, error) {
	results := make([][]VectorSearchResult, len(embeddings))
	errs := make([]error, len(embeddings))
	g, gctx := errgroup.WithContext(ctx)
	for i, emb := range embeddings {
		g.Go(func() error {
			res, err := retry.DoWithResultTyped(r.retryer, gctx, func() ([]VectorSearchResult, error) {
				cctx, cancel := withTimeout(gctx, r.config.SearchTimeout)
				defer cancel()
				return r.store.Search(cctx, emb, r.config.TopK)
			})
			if err != nil {
				r.logger.Warn("vector search failed", zap.Int("variant", i), zap.Error(err))
				errs[i] = err
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	var lists [][]RetrievedChunk
	var topScore float64
	var lastErr error
	for i, res := range results {
		if errs[i] != nil {
			lastErr = errs[i]
			continue
		}
		chunks := make([]RetrievedChunk, 0, len(res))
		for _, sr := range res {
			chunks = append(chunks, ChunkFromDocument(sr.Document, sr.Score))
			if sr.Score > topScore {
				topScore = sr.Score
			}
		}
		if lists == nil {
			lists = make([][]RetrievedChunk, 0, len(results))
		}
		lists = append(lists, chunks)
	}
	return lists, topScore, lastErr
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
