package llm

import (
	"context"
	"time"
)

// 统一的 LLM 错误码，用于对齐 HTTP 状态、可重试性与降级策略。
type ErrorCode string

const (
	ErrInvalidRequest    ErrorCode = "LLM_INVALID_REQUEST"    // 参数/格式错误
	ErrUnauthorized      ErrorCode = "LLM_UNAUTHORIZED"       // 未授权或密钥失效
	ErrForbidden         ErrorCode = "LLM_FORBIDDEN"          // 权限或内容策略拒绝
	ErrRateLimited       ErrorCode = "LLM_RATE_LIMITED"       // 上游或本地限流
	ErrUpstreamTimeout   ErrorCode = "LLM_UPSTREAM_TIMEOUT"   // 上游超时
	ErrUpstreamError     ErrorCode = "LLM_UPSTREAM_ERROR"     // 上游 5xx/网络错误
	ErrMalformedResponse ErrorCode = "LLM_MALFORMED_RESPONSE" // 响应信封无法识别
	ErrEmptyCompletion   ErrorCode = "LLM_EMPTY_COMPLETION"   // 响应中没有任何非空文本
	ErrCircuitOpen       ErrorCode = "LLM_CIRCUIT_OPEN"       // 熔断打开，未发起请求
)

// Error is returned by every upstream adapter (generation, embedding, rerank).
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
}

func (e *Error) Error() string { return e.Message }

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest carries either role-tagged Messages (structured form) or a single
// Prompt (flattened form). When both are set, Messages wins.
type ChatRequest struct {
	TraceID     string        `json:"trace_id,omitempty"`
	Model       string        `json:"model,omitempty"`
	Messages    []Message     `json:"messages,omitempty"`
	Prompt      string        `json:"prompt,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

type ChatChoice struct {
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason,omitempty"`
	Message      Message `json:"message"`
}

type ChatResponse struct {
	ID        string       `json:"id,omitempty"`
	Provider  string       `json:"provider,omitempty"`
	Model     string       `json:"model"`
	Choices   []ChatChoice `json:"choices"`
	Usage     ChatUsage    `json:"usage,omitempty"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

// Provider 定义生成服务的最小适配接口。
type Provider interface {
	// Completion 发起同步生成请求，返回完整响应
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Name 返回 Provider 的唯一标识
	Name() string
}

// Flatten renders role-tagged messages as one prompt string, the form used when
// a backend rejects structured requests.
func Flatten(messages []Message) string {
	var b []byte
	for i, m := range messages {
		if i > 0 {
			b = append(b, "\n\n"...)
		}
		switch m.Role {
		case RoleSystem:
			b = append(b, "### Instructions\n"...)
		case RoleAssistant:
			b = append(b, "### Assistant\n"...)
		default:
			b = append(b, "### User\n"...)
		}
		b = append(b, m.Content...)
	}
	return string(b)
}
