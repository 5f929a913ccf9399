package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/groundrag/llm/circuitbreaker"
	"go.uber.org/zap"
)

// Handler processes a request and returns a response.
type Handler func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

// Middleware wraps a handler with additional functionality.
type Middleware func(next Handler) Handler

// Chain represents a middleware chain.
type Chain struct {
	middlewares []Middleware
	mu          sync.RWMutex
}

// NewChain creates a new middleware chain.
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// Use adds middleware to the chain.
func (c *Chain) Use(m Middleware) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middlewares = append(c.middlewares, m)
	return c
}

// Then wraps a handler with all middleware.
func (c *Chain) Then(h Handler) Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := len(c.middlewares) - 1; i >= 0; i-- {
		h = c.middlewares[i](h)
	}
	return h
}

// Len returns the number of middleware.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.middlewares)
}

// Wrap 用中间件包装 Provider，Name 保持不变
func Wrap(p Provider, middlewares ...Middleware) Provider {
	if len(middlewares) == 0 {
		return p
	}
	return &wrappedProvider{
		inner:   p,
		handler: NewChain(middlewares...).Then(p.Completion),
	}
}

type wrappedProvider struct {
	inner   Provider
	handler Handler
}

func (w *wrappedProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return w.handler(ctx, req)
}

func (w *wrappedProvider) Name() string { return w.inner.Name() }

// LoggingMiddleware 以 debug 级别记录每次生成调用
func LoggingMiddleware(provider string, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			fields := []zap.Field{
				zap.String("provider", provider),
				zap.String("model", req.Model),
				zap.String("trace_id", req.TraceID),
				zap.Int("messages", len(req.Messages)),
				zap.Bool("flattened", len(req.Messages) == 0),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Debug("completion failed", append(fields, zap.Error(err))...)
			} else {
				logger.Debug("completion done", append(fields, zap.Int("total_tokens", resp.Usage.TotalTokens))...)
			}
			return resp, err
		}
	}
}

// TimeoutMiddleware adds timeout to requests.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			if timeout <= 0 {
				return next(ctx, req)
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// RecoveryMiddleware 将适配器中的 panic 转为不可重试的上游错误
func RecoveryMiddleware(provider string, onPanic func(any)) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (resp *ChatResponse, err error) {
			defer func() {
				if r := recover(); r != nil {
					if onPanic != nil {
						onPanic(r)
					}
					resp = nil
					err = &Error{
						Code:     ErrUpstreamError,
						Message:  fmt.Sprintf("panic recovered: %v", r),
						Provider: provider,
					}
				}
			}()
			return next(ctx, req)
		}
	}
}

// MetricsCollector 上游调用指标接口，由 metrics.Collector 实现
type MetricsCollector interface {
	RecordUpstream(capability, provider string, err error, duration time.Duration)
	RecordTokens(provider, model string, promptTokens, completionTokens int)
}

// MetricsMiddleware 记录生成调用的耗时、结果与 token 用量
func MetricsMiddleware(provider string, collector MetricsCollector) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			collector.RecordUpstream("generation", provider, err, time.Since(start))
			if resp != nil {
				model := resp.Model
				if model == "" {
					model = req.Model
				}
				collector.RecordTokens(provider, model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
			}
			return resp, err
		}
	}
}

// BreakerError 将熔断器的拒绝转换为不可重试的 LLM_CIRCUIT_OPEN 错误，其他错误原样返回
func BreakerError(provider string, err error) error {
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyCallsInHalfOpen) {
		return &Error{
			Code:     ErrCircuitOpen,
			Message:  err.Error(),
			Provider: provider,
		}
	}
	return err
}

// CircuitBreakerMiddleware 上游连续故障后快速失败，避免每个请求都等待超时
func CircuitBreakerMiddleware(provider string, cb circuitbreaker.CircuitBreaker) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			resp, err := circuitbreaker.Do(ctx, cb, func(ctx context.Context) (*ChatResponse, error) {
				return next(ctx, req)
			})
			return resp, BreakerError(provider, err)
		}
	}
}
