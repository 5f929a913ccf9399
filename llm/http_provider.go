package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/groundrag/llm/retry"
	"go.uber.org/zap"
)

// HTTPConfig 配置通用 HTTP 生成适配器。
type HTTPConfig struct {
	Name        string        `json:"name" yaml:"name"`
	BaseURL     string        `json:"base_url" yaml:"base_url"`
	Endpoint    string        `json:"endpoint" yaml:"endpoint"`
	APIKey      string        `json:"api_key" yaml:"api_key"`
	Model       string        `json:"model" yaml:"model"`
	MaxTokens   int           `json:"max_tokens" yaml:"max_tokens"`
	Temperature float32       `json:"temperature" yaml:"temperature"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
}

// HTTPProvider talks to an OpenAI-compatible (or looser) completion endpoint.
// Structured requests carry messages; flattened requests carry a single prompt.
type HTTPProvider struct {
	cfg     HTTPConfig
	client  *http.Client
	retryer retry.Retryer
	logger  *zap.Logger
}

// NewHTTPProvider 创建 HTTP 生成适配器。retryer 为 nil 时不重试。
func NewHTTPProvider(cfg HTTPConfig, retryer retry.Retryer, logger *zap.Logger) *HTTPProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "http-llm"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "/v1/chat/completions"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if retryer == nil {
		retryer = retry.NewBackoffRetryer(retry.NoRetryPolicy(), logger)
	}
	return &HTTPProvider{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		retryer: retryer,
		logger:  logger.With(zap.String("component", "llm_http"), zap.String("provider", cfg.Name)),
	}
}

func (p *HTTPProvider) Name() string { return p.cfg.Name }

type httpCompletionRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages,omitempty"`
	Prompt      string    `json:"prompt,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float32   `json:"temperature,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
	Stream      bool      `json:"stream"`
}

// Completion 发送生成请求并从任意已知信封中提取文本。
func (p *HTTPProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if req == nil || (len(req.Messages) == 0 && strings.TrimSpace(req.Prompt) == "") {
		return nil, &Error{Code: ErrInvalidRequest, Message: "request has neither messages nor prompt", Provider: p.cfg.Name}
	}

	body := httpCompletionRequest{
		Model:       firstNonEmpty(req.Model, p.cfg.Model),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
	}
	if body.MaxTokens == 0 {
		body.MaxTokens = p.cfg.MaxTokens
	}
	if body.Temperature == 0 {
		body.Temperature = p.cfg.Temperature
	}
	if len(req.Messages) > 0 {
		body.Messages = req.Messages
	} else {
		body.Prompt = req.Prompt
	}

	headers := map[string]string{}
	if p.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + p.cfg.APIKey
	}
	url := strings.TrimRight(p.cfg.BaseURL, "/") + p.cfg.Endpoint

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := retry.DoWithResultTyped(p.retryer, ctx, func() (string, error) {
		raw, err := DoJSON(ctx, p.client, p.cfg.Name, http.MethodPost, url, body, headers)
		if err != nil {
			return "", err
		}
		return ExtractText(raw)
	})
	if err != nil {
		p.logger.Warn("completion failed",
			zap.String("trace_id", req.TraceID),
			zap.Bool("flattened", len(req.Messages) == 0),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return nil, err
	}

	return &ChatResponse{
		Provider: p.cfg.Name,
		Model:    body.Model,
		Choices: []ChatChoice{{
			Index:        0,
			FinishReason: "stop",
			Message:      Message{Role: RoleAssistant, Content: text},
		}},
		CreatedAt: time.Now(),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
