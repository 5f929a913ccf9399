// MockReranker 的重排提供商测试模拟实现。
package mocks

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/groundrag/llm/rerank"
)

// MockReranker 是 rerank.Provider 的模拟实现.
//
// 默认按查询词在文档中出现的次数打分.
type MockReranker struct {
	mu sync.RWMutex

	err     error
	scoreFn func(query, doc string) float64
	partial int // >0 时只返回前 N 个文档的分数

	callCount int
}

// NewMockReranker 创建新的 MockReranker
func NewMockReranker() *MockReranker {
	return &MockReranker{scoreFn: overlapScore}
}

// WithError 使重排返回 err
func (m *MockReranker) WithError(err error) *MockReranker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithScoreFunc 设置自定义打分函数
func (m *MockReranker) WithScoreFunc(fn func(query, doc string) float64) *MockReranker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scoreFn = fn
	return m
}

// WithPartial 只为前 n 个文档返回分数
func (m *MockReranker) WithPartial(n int) *MockReranker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.partial = n
	return m
}

// Name 返回 Provider 名称
func (m *MockReranker) Name() string { return "mock-reranker" }

// CallCount 返回调用次数
func (m *MockReranker) CallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount
}

// Rerank 实现完整的重排请求
func (m *MockReranker) Rerank(ctx context.Context, req *rerank.RerankRequest) (*rerank.RerankResponse, error) {
	docs := make([]string, len(req.Documents))
	for i, d := range req.Documents {
		docs[i] = d.Text
	}
	results, err := m.RerankSimple(ctx, req.Query, docs, req.TopN)
	if err != nil {
		return nil, err
	}
	return &rerank.RerankResponse{Provider: m.Name(), Model: req.Model, Results: results, CreatedAt: time.Now()}, nil
}

// RerankSimple 对文档打分并按分数降序返回
func (m *MockReranker) RerankSimple(ctx context.Context, query string, documents []string, topN int) ([]rerank.RerankResult, error) {
	m.mu.Lock()
	m.callCount++
	err, fn, partial := m.err, m.scoreFn, m.partial
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}

	n := len(documents)
	if partial > 0 && partial < n {
		n = partial
	}
	results := make([]rerank.RerankResult, 0, n)
	for i := 0; i < n; i++ {
		results = append(results, rerank.RerankResult{Index: i, RelevanceScore: fn(query, documents[i])})
	}
	sort.SliceStable(results, func(a, b int) bool { return results[a].RelevanceScore > results[b].RelevanceScore })
	if topN > 0 && topN < len(results) {
		results = results[:topN]
	}
	return results, nil
}

func overlapScore(query, doc string) float64 {
	doc = strings.ToLower(doc)
	var score float64
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) > 2 && strings.Contains(doc, w) {
			score++
		}
	}
	return score
}

var _ rerank.Provider = (*MockReranker)(nil)
