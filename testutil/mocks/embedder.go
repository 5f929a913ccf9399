// MockEmbedder 的嵌入提供商测试模拟实现。
//
// 默认使用词袋哈希生成确定性向量，词汇重叠越多的文本相似度越高。
package mocks

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/BaSui01/groundrag/llm/embedding"
)

// DefaultMockDimensions 是 MockEmbedder 的默认向量维度
const DefaultMockDimensions = 64

// ErrMockEmbedding 是注入失败时返回的错误
var ErrMockEmbedding = errors.New("mock embedder: embedding failed")

// MockEmbedder 是 embedding.Provider 的模拟实现
type MockEmbedder struct {
	mu sync.RWMutex

	dims    int
	vectors map[string][]float64
	failing map[string]bool
	err     error
	fn      func(text string) ([]float64, error)

	calls []string
}

// NewMockEmbedder 创建新的 MockEmbedder
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		dims:    DefaultMockDimensions,
		vectors: make(map[string][]float64),
		failing: make(map[string]bool),
	}
}

// WithVector 为指定文本固定返回向量
func (m *MockEmbedder) WithVector(text string, vec []float64) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[text] = vec
	return m
}

// WithFailure 使指定文本的嵌入失败
func (m *MockEmbedder) WithFailure(texts ...string) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range texts {
		m.failing[t] = true
	}
	return m
}

// WithError 使所有嵌入返回 err
func (m *MockEmbedder) WithError(err error) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithEmbedFunc 设置自定义嵌入函数
func (m *MockEmbedder) WithEmbedFunc(fn func(text string) ([]float64, error)) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m
}

// Name 返回 Provider 名称
func (m *MockEmbedder) Name() string { return "mock-embedder" }

// Dimensions 返回向量维度
func (m *MockEmbedder) Dimensions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dims
}

// EmbedQuery 嵌入单个查询
func (m *MockEmbedder) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.vector(query)
}

// EmbedDocuments 批量嵌入文档，任一失败则整体失败
func (m *MockEmbedder) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	out := make([][]float64, 0, len(documents))
	for _, d := range documents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := m.vector(d)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Embed 实现完整的嵌入请求
func (m *MockEmbedder) Embed(ctx context.Context, req *embedding.EmbeddingRequest) (*embedding.EmbeddingResponse, error) {
	vecs, err := m.EmbedDocuments(ctx, req.Input)
	if err != nil {
		return nil, err
	}
	resp := &embedding.EmbeddingResponse{Provider: m.Name(), Model: req.Model, CreatedAt: time.Now()}
	for i, v := range vecs {
		resp.Embeddings = append(resp.Embeddings, embedding.EmbeddingData{Index: i, Embedding: v})
	}
	return resp, nil
}

// Calls 返回所有被嵌入的文本
func (m *MockEmbedder) Calls() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockEmbedder) vector(text string) ([]float64, error) {
	m.mu.Lock()
	m.calls = append(m.calls, text)
	err, failing, fn, fixed, dims := m.err, m.failing[text], m.fn, m.vectors[text], m.dims
	m.mu.Unlock()

	switch {
	case err != nil:
		return nil, err
	case failing:
		return nil, ErrMockEmbedding
	case fn != nil:
		return fn(text)
	case fixed != nil:
		out := make([]float64, len(fixed))
		copy(out, fixed)
		return out, nil
	}
	return BagOfWords(text, dims), nil
}

// BagOfWords 把文本中的词哈希到 dims 维并做 L2 归一化.
// 空文本返回零向量.
func BagOfWords(text string, dims int) []float64 {
	if dims <= 0 {
		dims = DefaultMockDimensions
	}
	vec := make([]float64, dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%uint32(dims)]++
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

var _ embedding.Provider = (*MockEmbedder)(nil)
