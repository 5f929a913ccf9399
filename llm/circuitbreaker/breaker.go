package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State 熔断器状态
type State int

const (
	// StateClosed 关闭状态（正常放行）
	StateClosed State = iota
	// StateOpen 打开状态（快速失败）
	StateOpen
	// StateHalfOpen 半开状态（放行少量试探请求）
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config 熔断器配置
type Config struct {
	// Name 上游名称，用于日志
	Name string

	// Threshold 连续失败次数阈值
	Threshold int

	// ResetTimeout 打开后多久进入半开
	ResetTimeout time.Duration

	// HalfOpenMaxCalls 半开状态下允许的试探请求数
	HalfOpenMaxCalls int

	// IsFailure 判断错误是否计入失败，默认除 ctx 取消外的所有错误
	IsFailure func(error) bool

	// OnStateChange 状态变更回调，在锁外同步调用
	OnStateChange func(name string, from, to State)

	// Now 时钟，测试可替换
	Now func() time.Time
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Threshold:        5,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// CircuitBreaker 熔断器接口
type CircuitBreaker interface {
	// Call 执行 fn，熔断打开时直接返回 ErrCircuitOpen
	Call(ctx context.Context, fn func(ctx context.Context) error) error

	// State 当前状态
	State() State

	// Reset 手动恢复到关闭状态
	Reset()
}

// 错误定义
var (
	ErrCircuitOpen            = errors.New("circuit breaker is open")
	ErrTooManyCallsInHalfOpen = errors.New("circuit breaker is half-open and probing")
)

type breaker struct {
	config Config
	logger *zap.Logger

	mu            sync.Mutex
	state         State
	failureCount  int
	openedAt      time.Time
	halfOpenInUse int
}

// NewCircuitBreaker 创建熔断器，非法配置项回退为默认值
func NewCircuitBreaker(config Config, logger *zap.Logger) CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if config.Threshold <= 0 {
		config.Threshold = def.Threshold
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = def.ResetTimeout
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	if config.IsFailure == nil {
		config.IsFailure = defaultIsFailure
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &breaker{
		config: config,
		logger: logger.With(zap.String("component", "circuit_breaker"), zap.String("upstream", config.Name)),
		state:  StateClosed,
	}
}

func defaultIsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// Call 实现 CircuitBreaker.Call
func (b *breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	probe, err := b.beforeCall()
	if err != nil {
		return err
	}

	callErr := fn(ctx)
	b.afterCall(probe, callErr == nil || !b.config.IsFailure(callErr))
	return callErr
}

// Do 在熔断器保护下执行带返回值的调用
func Do[T any](ctx context.Context, cb CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := cb.Call(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

// beforeCall 返回本次调用是否为半开试探
func (b *breaker) beforeCall() (bool, error) {
	b.mu.Lock()
	var from State
	changed := false

	switch b.state {
	case StateOpen:
		if b.config.Now().Sub(b.openedAt) < b.config.ResetTimeout {
			b.mu.Unlock()
			return false, ErrCircuitOpen
		}
		from, changed = b.state, true
		b.state = StateHalfOpen
		b.halfOpenInUse = 0
		fallthrough

	case StateHalfOpen:
		if b.halfOpenInUse >= b.config.HalfOpenMaxCalls {
			b.mu.Unlock()
			b.notify(changed, from, StateHalfOpen)
			return false, ErrTooManyCallsInHalfOpen
		}
		b.halfOpenInUse++
		b.mu.Unlock()
		b.notify(changed, from, StateHalfOpen)
		return true, nil
	}

	b.mu.Unlock()
	return false, nil
}

func (b *breaker) afterCall(probe, success bool) {
	b.mu.Lock()
	from := b.state

	switch {
	case success && b.state == StateHalfOpen:
		b.state = StateClosed
		b.failureCount = 0
		b.halfOpenInUse = 0
	case success:
		b.failureCount = 0
	case b.state == StateHalfOpen && probe:
		b.state = StateOpen
		b.openedAt = b.config.Now()
		b.halfOpenInUse = 0
	case b.state == StateClosed:
		b.failureCount++
		if b.failureCount >= b.config.Threshold {
			b.state = StateOpen
			b.openedAt = b.config.Now()
		}
	}

	to := b.state
	failures := b.failureCount
	b.mu.Unlock()

	if from != to {
		if to == StateOpen {
			b.logger.Warn("circuit opened", zap.Int("failure_count", failures), zap.Int("threshold", b.config.Threshold))
		} else {
			b.logger.Info("circuit state changed", zap.Stringer("from", from), zap.Stringer("to", to))
		}
		b.notify(true, from, to)
	}
}

func (b *breaker) notify(changed bool, from, to State) {
	if changed && b.config.OnStateChange != nil {
		b.config.OnStateChange(b.config.Name, from, to)
	}
}

// State 实现 CircuitBreaker.State
func (b *breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset 实现 CircuitBreaker.Reset
func (b *breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.failureCount = 0
	b.halfOpenInUse = 0
	b.mu.Unlock()

	b.logger.Info("circuit reset", zap.Stringer("from", from))
	b.notify(from != StateClosed, from, StateClosed)
}
