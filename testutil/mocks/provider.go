// MockProvider 的 LLM 提供商测试模拟实现。
//
// 支持固定响应、按提示词路由与错误注入场景。
package mocks

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/groundrag/llm"
)

// --- MockProvider 结构 ---

// MockProvider 是 llm.Provider 的模拟实现
type MockProvider struct {
	mu sync.RWMutex

	// 响应配置
	response string
	routes   []promptRoute
	err      error

	// Token 使用统计
	promptTokens     int
	completionTokens int

	// 调用记录
	calls          []MockProviderCall
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	// 行为控制
	delay     time.Duration
	failAfter int // 在第 N 次调用后失败
	callCount int
}

type promptRoute struct {
	contains string
	response string
}

// MockProviderCall 记录单次调用
type MockProviderCall struct {
	Request  *llm.ChatRequest
	Response *llm.ChatResponse
	Error    error
}

// --- 构造函数和 Builder 方法 ---

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		response:         "Mock response",
		calls:            []MockProviderCall{},
		promptTokens:     10,
		completionTokens: 20,
	}
}

// WithResponse 设置固定响应内容
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithRoute 当请求文本包含 substr 时返回 response，按注册顺序匹配
func (m *MockProvider) WithRoute(substr, response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, promptRoute{contains: substr, response: response})
	return m
}

// WithError 设置返回错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithTokenUsage 设置 Token 使用量
func (m *MockProvider) WithTokenUsage(prompt, completion int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptTokens = prompt
	m.completionTokens = completion
	return m
}

// WithDelay 设置模拟延迟，延迟期间响应 ctx 取消
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFailAfter 设置在 N 次调用后失败
func (m *MockProvider) WithFailAfter(n int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithCompletionFunc 设置自定义 Completion 函数
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

// --- llm.Provider 接口实现 ---

// Name 返回 Provider 名称
func (m *MockProvider) Name() string {
	return "mock"
}

// Completion 生成响应
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.RLock()
	delay := m.delay
	m.mu.RUnlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			m.record(req, nil, ctx.Err())
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	m.mu.Lock()
	m.callCount++
	failAfter, count, err, fn := m.failAfter, m.callCount, m.err, m.completionFunc
	m.mu.Unlock()

	// 检查是否应该失败
	if failAfter > 0 && count > failAfter {
		err := errors.New("mock provider: configured to fail after N calls")
		m.record(req, nil, err)
		return nil, err
	}

	// 检查是否有预设错误
	if err != nil {
		m.record(req, nil, err)
		return nil, err
	}

	// 使用自定义函数
	if fn != nil {
		resp, err := fn(ctx, req)
		m.record(req, resp, err)
		return resp, err
	}

	resp := m.buildResponse(req, m.pick(req))
	m.record(req, resp, nil)
	return resp, nil
}

// TextResponse 构造只含一个 assistant 选项的响应
func TextResponse(model, content string) *llm.ChatResponse {
	return &llm.ChatResponse{
		ID:       "mock-response-id",
		Provider: "mock",
		Model:    model,
		Choices: []llm.ChatChoice{{
			Index:        0,
			FinishReason: "stop",
			Message:      llm.Message{Role: llm.RoleAssistant, Content: content},
		}},
		CreatedAt: time.Now(),
	}
}

func (m *MockProvider) buildResponse(req *llm.ChatRequest, content string) *llm.ChatResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	resp := TextResponse(req.Model, content)
	resp.Usage = llm.ChatUsage{
		PromptTokens:     m.promptTokens,
		CompletionTokens: m.completionTokens,
		TotalTokens:      m.promptTokens + m.completionTokens,
	}
	return resp
}

func (m *MockProvider) pick(req *llm.ChatRequest) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.routes) == 0 {
		return m.response
	}
	text := RequestText(req)
	for _, r := range m.routes {
		if strings.Contains(text, r.contains) {
			return r.response
		}
	}
	return m.response
}

func (m *MockProvider) record(req *llm.ChatRequest, resp *llm.ChatResponse, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockProviderCall{Request: req, Response: resp, Error: err})
}

// RequestText 返回请求中的全部文本，结构化消息优先
func RequestText(req *llm.ChatRequest) string {
	if req == nil {
		return ""
	}
	if len(req.Messages) > 0 {
		return llm.Flatten(req.Messages)
	}
	return req.Prompt
}

// --- 调用记录查询 ---

// GetCalls 返回所有调用记录
func (m *MockProvider) GetCalls() []MockProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MockProviderCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// GetCallCount 返回调用次数
func (m *MockProvider) GetCallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.calls)
}

// GetLastCall 返回最后一次调用
func (m *MockProvider) GetLastCall() *MockProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.calls) == 0 {
		return nil
	}
	c := m.calls[len(m.calls)-1]
	return &c
}

// Reset 重置调用记录
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = []MockProviderCall{}
	m.callCount = 0
}

// --- 预设 Provider 工厂 ---

// NewSuccessProvider 创建总是成功的 Provider
func NewSuccessProvider(response string) *MockProvider {
	return NewMockProvider().WithResponse(response)
}

// NewErrorProvider 创建总是失败的 Provider
func NewErrorProvider(err error) *MockProvider {
	return NewMockProvider().WithError(err)
}

// NewFlakyProvider 创建不稳定的 Provider（N 次后失败）
func NewFlakyProvider(successCount int, response string) *MockProvider {
	return NewMockProvider().WithResponse(response).WithFailAfter(successCount)
}

var _ llm.Provider = (*MockProvider)(nil)
