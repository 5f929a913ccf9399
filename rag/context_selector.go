package rag

import (
	"context"
	"sort"
	"time"

	"github.com/BaSui01/groundrag/llm/rerank"
	"go.uber.org/zap"
)

// ContextSelectorConfig 上下文精选配置
type ContextSelectorConfig struct {
	TopRerank       int           `json:"top_rerank" yaml:"top_rerank"`               // 目标选取数量
	PerSourceCap    int           `json:"per_source_cap" yaml:"per_source_cap"`       // 单文档最多片段数
	MinDistinctDocs int           `json:"min_distinct_docs" yaml:"min_distinct_docs"` // 至少覆盖的不同文档数
	Timeout         time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultContextSelectorConfig 返回默认配置
func DefaultContextSelectorConfig() ContextSelectorConfig {
	return ContextSelectorConfig{
		TopRerank:       8,
		PerSourceCap:    2,
		MinDistinctDocs: 2,
		Timeout:         20 * time.Second,
	}
}

// ContextSelector 对候选片段重排，并在单文档上限与文档多样性约束下选取上下文
type ContextSelector struct {
	reranker rerank.Provider
	config   ContextSelectorConfig
	logger   *zap.Logger
}

// NewContextSelector 创建上下文选择器，reranker 可为 nil（保持原顺序）
func NewContextSelector(reranker rerank.Provider, config ContextSelectorConfig, logger *zap.Logger) *ContextSelector {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultContextSelectorConfig()
	if config.TopRerank <= 0 {
		config.TopRerank = def.TopRerank
	}
	if config.PerSourceCap <= 0 {
		config.PerSourceCap = def.PerSourceCap
	}
	if config.MinDistinctDocs <= 0 {
		config.MinDistinctDocs = def.MinDistinctDocs
	}
	return &ContextSelector{
		reranker: reranker,
		config:   config,
		logger:   logger.With(zap.String("component", "context_selector")),
	}
}

// Select 返回精选后的上下文块
func (s *ContextSelector) Select(ctx context.Context, query string, candidates []RetrievedChunk, topRerank int) []ContextBlock {
	return Blocks(s.SelectChunks(ctx, query, candidates, topRerank))
}

// SelectChunks 与 Select 相同，但返回带重排分数的片段
func (s *ContextSelector) SelectChunks(ctx context.Context, query string, candidates []RetrievedChunk, topRerank int) []RetrievedChunk {
	if len(candidates) == 0 {
		return nil
	}
	if topRerank <= 0 {
		topRerank = s.config.TopRerank
	}

	ranked := s.rank(ctx, query, candidates)
	return selectDiverse(ranked, topRerank, s.config.PerSourceCap, s.config.MinDistinctDocs)
}

// rank 按重排分数降序返回候选；重排失败时保持原顺序且分数为 0
func (s *ContextSelector) rank(ctx context.Context, query string, candidates []RetrievedChunk) []RetrievedChunk {
	identity := func() []RetrievedChunk {
		out := make([]RetrievedChunk, len(candidates))
		for i, c := range candidates {
			c.Score = 0
			out[i] = c
		}
		return out
	}
	if s.reranker == nil {
		return identity()
	}

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Content
	}
	results, err := s.reranker.RerankSimple(ctx, query, texts, 0)
	if err != nil || len(results) == 0 {
		s.logger.Warn("rerank failed, keeping retrieval order", zap.Int("candidates", len(candidates)), zap.Error(err))
		return identity()
	}

	out := make([]RetrievedChunk, 0, len(candidates))
	used := make([]bool, len(candidates))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(candidates) || used[r.Index] {
			continue
		}
		used[r.Index] = true
		c := candidates[r.Index]
		c.Score = r.RelevanceScore
		out = append(out, c)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })

	// Candidates the reranker did not score go last, in retrieval order.
	for i, c := range candidates {
		if !used[i] {
			c.Score = 0
			out = append(out, c)
		}
	}
	return out
}

// selectDiverse 贪心选取，保证单文档不超过 perDocCap，并尽量覆盖 minDistinct 个文档.
// ranked 必须已按优先级排序，返回结果保持 ranked 中的相对顺序.
func selectDiverse(ranked []RetrievedChunk, target, perDocCap, minDistinct int) []RetrievedChunk {
	if target <= 0 || len(ranked) == 0 {
		return nil
	}

	picked := make([]bool, len(ranked))
	perDoc := make(map[string]int)
	n := 0
	for i, c := range ranked {
		if n >= target {
			break
		}
		key := c.DocKey()
		if perDoc[key] >= perDocCap {
			continue
		}
		perDoc[key]++
		picked[i] = true
		n++
	}

	for len(perDoc) < minDistinct {
		next := -1
		for i, c := range ranked {
			if !picked[i] && perDoc[c.DocKey()] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			break
		}

		if n >= target {
			victim := lowestOfMostRepresented(ranked, picked, perDoc)
			if victim < 0 {
				break
			}
			picked[victim] = false
			perDoc[ranked[victim].DocKey()]--
			n--
		}
		picked[next] = true
		perDoc[ranked[next].DocKey()]++
		n++
	}

	out := make([]RetrievedChunk, 0, n)
	for i, c := range ranked {
		if picked[i] {
			out = append(out, c)
		}
	}
	return out
}

// lowestOfMostRepresented 返回片段最多（且不少于 2）的文档中分数最低的已选片段
func lowestOfMostRepresented(ranked []RetrievedChunk, picked []bool, perDoc map[string]int) int {
	maxCount := 1
	for _, n := range perDoc {
		if n > maxCount {
			maxCount = n
		}
	}
	if maxCount < 2 {
		return -1
	}
	victim := -1
	for i, c := range ranked {
		if !picked[i] || perDoc[c.DocKey()] != maxCount {
			continue
		}
		if victim < 0 || c.Score <= ranked[victim].Score {
			victim = i
		}
	}
	return victim
}
