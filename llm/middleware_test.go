package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/BaSui01/groundrag/llm/circuitbreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type funcProvider struct {
	name string
	fn   func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

func (p *funcProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return p.fn(ctx, req)
}

func (p *funcProvider) Name() string { return p.name }

type upstreamCall struct {
	capability string
	provider   string
	err        error
}

type recordingCollector struct {
	calls  []upstreamCall
	tokens map[string]int
}

func (c *recordingCollector) RecordUpstream(capability, provider string, err error, _ time.Duration) {
	c.calls = append(c.calls, upstreamCall{capability, provider, err})
}

func (c *recordingCollector) RecordTokens(provider, model string, prompt, completion int) {
	if c.tokens == nil {
		c.tokens = map[string]int{}
	}
	c.tokens[provider+"/"+model+"/prompt"] += prompt
	c.tokens[provider+"/"+model+"/completion"] += completion
}

func TestChain_Order(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}
	chain := NewChain(tag("a")).Use(tag("b"))
	assert.Equal(t, 2, chain.Len())

	_, err := chain.Then(func(context.Context, *ChatRequest) (*ChatResponse, error) {
		order = append(order, "handler")
		return &ChatResponse{}, nil
	})(context.Background(), &ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "handler"}, order)
}

func TestWrap_RecordsMetricsAndKeepsName(t *testing.T) {
	col := &recordingCollector{}
	inner := &funcProvider{name: "gen", fn: func(context.Context, *ChatRequest) (*ChatResponse, error) {
		return &ChatResponse{Model: "m1", Usage: ChatUsage{PromptTokens: 10, CompletionTokens: 4}}, nil
	}}

	p := Wrap(inner, MetricsMiddleware("gen", col), LoggingMiddleware("gen", zap.NewNop()))
	assert.Equal(t, "gen", p.Name())

	_, err := p.Completion(context.Background(), &ChatRequest{Prompt: "hi"})
	require.NoError(t, err)
	require.Len(t, col.calls, 1)
	assert.Equal(t, "generation", col.calls[0].capability)
	assert.NoError(t, col.calls[0].err)
	assert.Equal(t, 10, col.tokens["gen/m1/prompt"])
	assert.Equal(t, 4, col.tokens["gen/m1/completion"])
}

func TestWrap_NoMiddlewareReturnsSameProvider(t *testing.T) {
	inner := &funcProvider{name: "x"}
	assert.Same(t, Provider(inner), Wrap(inner))
}

func TestMetricsMiddleware_RecordsFailure(t *testing.T) {
	col := &recordingCollector{}
	boom := &Error{Code: ErrUpstreamError, Message: "502", Retryable: true}
	p := Wrap(&funcProvider{name: "gen", fn: func(context.Context, *ChatRequest) (*ChatResponse, error) {
		return nil, boom
	}}, MetricsMiddleware("gen", col))

	_, err := p.Completion(context.Background(), &ChatRequest{})
	require.ErrorIs(t, err, boom)
	require.Len(t, col.calls, 1)
	assert.ErrorIs(t, col.calls[0].err, boom)
	assert.Empty(t, col.tokens)
}

func TestRecoveryMiddleware(t *testing.T) {
	var recovered any
	p := Wrap(&funcProvider{name: "gen", fn: func(context.Context, *ChatRequest) (*ChatResponse, error) {
		panic("adapter bug")
	}}, RecoveryMiddleware("gen", func(v any) { recovered = v }))

	resp, err := p.Completion(context.Background(), &ChatRequest{})
	assert.Nil(t, resp)
	var le *Error
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrUpstreamError, le.Code)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, "adapter bug", recovered)
}

func TestTimeoutMiddleware(t *testing.T) {
	p := Wrap(&funcProvider{name: "gen", fn: func(ctx context.Context, _ *ChatRequest) (*ChatResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}, TimeoutMiddleware(10*time.Millisecond))

	_, err := p.Completion(context.Background(), &ChatRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var hasDeadline bool
	p = Wrap(&funcProvider{name: "gen", fn: func(ctx context.Context, _ *ChatRequest) (*ChatResponse, error) {
		_, hasDeadline = ctx.Deadline()
		return &ChatResponse{}, nil
	}}, TimeoutMiddleware(0))
	_, err = p.Completion(context.Background(), &ChatRequest{})
	require.NoError(t, err)
	assert.False(t, hasDeadline)
}

func TestCircuitBreakerMiddleware(t *testing.T) {
	var calls int
	status := http.StatusServiceUnavailable
	p := Wrap(&funcProvider{name: "gen", fn: func(context.Context, *ChatRequest) (*ChatResponse, error) {
		calls++
		if status != http.StatusOK {
			return nil, MapHTTPError(status, "upstream", "gen")
		}
		return &ChatResponse{}, nil
	}}, CircuitBreakerMiddleware("gen", circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
		Threshold:    2,
		ResetTimeout: time.Hour,
		IsFailure:    IsUpstreamFailure,
	}, zap.NewNop())))

	// 参数类错误不计入熔断
	status = http.StatusBadRequest
	for i := 0; i < 3; i++ {
		_, err := p.Completion(context.Background(), &ChatRequest{})
		require.Error(t, err)
	}
	assert.Equal(t, 3, calls)

	status = http.StatusServiceUnavailable
	for i := 0; i < 2; i++ {
		_, err := p.Completion(context.Background(), &ChatRequest{})
		require.Error(t, err)
	}
	assert.Equal(t, 5, calls)

	_, err := p.Completion(context.Background(), &ChatRequest{})
	var le *Error
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrCircuitOpen, le.Code)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, 5, calls, "open circuit must not reach the upstream")
}

func TestIsUpstreamFailure(t *testing.T) {
	assert.False(t, IsUpstreamFailure(nil))
	assert.False(t, IsUpstreamFailure(context.Canceled))
	assert.True(t, IsUpstreamFailure(context.DeadlineExceeded))
	assert.True(t, IsUpstreamFailure(MapHTTPError(http.StatusBadGateway, "", "x")))
	assert.True(t, IsUpstreamFailure(MapHTTPError(http.StatusTooManyRequests, "", "x")))
	assert.False(t, IsUpstreamFailure(MapHTTPError(http.StatusUnauthorized, "", "x")))
	assert.False(t, IsUpstreamFailure(&Error{Code: ErrMalformedResponse}))
}
