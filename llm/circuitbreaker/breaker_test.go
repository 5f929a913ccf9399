package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errFail = errors.New("upstream down")

// fakeClock 手动推进的时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(threshold, halfOpen int) (CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker(Config{
		Name:             "test",
		Threshold:        threshold,
		ResetTimeout:     time.Minute,
		HalfOpenMaxCalls: halfOpen,
		Now:              clock.Now,
	}, zap.NewNop())
	return cb, clock
}

func fail(context.Context) error { return errFail }

func succeed(context.Context) error { return nil }

// ---------------------------------------------------------------------------
// 构造与默认值
// ---------------------------------------------------------------------------

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	tests := []struct {
		name          string
		cfg           Config
		wantThreshold int
		wantReset     time.Duration
		wantHalfOpen  int
	}{
		{"zero config", Config{}, 5, 30 * time.Second, 1},
		{"negative values", Config{Threshold: -1, ResetTimeout: -time.Second, HalfOpenMaxCalls: -1}, 5, 30 * time.Second, 1},
		{"custom values", Config{Threshold: 3, ResetTimeout: 10 * time.Second, HalfOpenMaxCalls: 2}, 3, 10 * time.Second, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := NewCircuitBreaker(tt.cfg, nil)
			assert.Equal(t, StateClosed, cb.State())

			b := cb.(*breaker)
			assert.Equal(t, tt.wantThreshold, b.config.Threshold)
			assert.Equal(t, tt.wantReset, b.config.ResetTimeout)
			assert.Equal(t, tt.wantHalfOpen, b.config.HalfOpenMaxCalls)
			assert.NotNil(t, b.config.IsFailure)
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(99).String())
}

// ---------------------------------------------------------------------------
// 状态转换
// ---------------------------------------------------------------------------

func TestBreaker_ClosedToOpen(t *testing.T) {
	cb, _ := newTestBreaker(3, 1)

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Call(t.Context(), fail), errFail)
		assert.Equal(t, StateClosed, cb.State())
	}
	assert.ErrorIs(t, cb.Call(t.Context(), fail), errFail)
	assert.Equal(t, StateOpen, cb.State())

	var called bool
	err := cb.Call(t.Context(), func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(2, 1)

	_ = cb.Call(t.Context(), fail)
	require.NoError(t, cb.Call(t.Context(), succeed))
	_ = cb.Call(t.Context(), fail)
	assert.Equal(t, StateClosed, cb.State(), "failures must be consecutive")
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	t.Run("success closes", func(t *testing.T) {
		cb, clock := newTestBreaker(1, 1)
		_ = cb.Call(t.Context(), fail)
		require.Equal(t, StateOpen, cb.State())

		clock.Advance(59 * time.Second)
		assert.ErrorIs(t, cb.Call(t.Context(), succeed), ErrCircuitOpen)

		clock.Advance(2 * time.Second)
		require.NoError(t, cb.Call(t.Context(), succeed))
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("failure reopens", func(t *testing.T) {
		cb, clock := newTestBreaker(1, 1)
		_ = cb.Call(t.Context(), fail)
		clock.Advance(time.Minute)

		assert.ErrorIs(t, cb.Call(t.Context(), fail), errFail)
		assert.Equal(t, StateOpen, cb.State())
		// 重新计时
		assert.ErrorIs(t, cb.Call(t.Context(), succeed), ErrCircuitOpen)
	})
}

func TestBreaker_HalfOpenLimitsConcurrentProbes(t *testing.T) {
	cb, clock := newTestBreaker(1, 1)
	_ = cb.Call(t.Context(), fail)
	clock.Advance(time.Minute)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Call(t.Context(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	assert.Equal(t, StateHalfOpen, cb.State())
	assert.ErrorIs(t, cb.Call(t.Context(), succeed), ErrTooManyCallsInHalfOpen)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.State())
}

// ---------------------------------------------------------------------------
// 失败判定与回调
// ---------------------------------------------------------------------------

func TestBreaker_IsFailure(t *testing.T) {
	errBadRequest := errors.New("bad request")
	cb := NewCircuitBreaker(Config{
		Threshold: 1,
		IsFailure: func(err error) bool { return !errors.Is(err, errBadRequest) },
	}, zap.NewNop())

	assert.ErrorIs(t, cb.Call(t.Context(), func(context.Context) error { return errBadRequest }), errBadRequest)
	assert.Equal(t, StateClosed, cb.State())

	// 默认判定不把 ctx 取消算作失败
	def := NewCircuitBreaker(Config{Threshold: 1}, nil)
	_ = def.Call(t.Context(), func(context.Context) error { return context.Canceled })
	assert.Equal(t, StateClosed, def.State())
}

func TestBreaker_OnStateChange(t *testing.T) {
	var transitions []string
	clock := &fakeClock{now: time.Unix(0, 0)}
	cb := NewCircuitBreaker(Config{
		Name:         "embedding",
		Threshold:    1,
		ResetTimeout: time.Second,
		Now:          clock.Now,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	}, zap.NewNop())

	_ = cb.Call(t.Context(), fail)
	clock.Advance(time.Second)
	_ = cb.Call(t.Context(), succeed)
	_ = cb.Call(t.Context(), fail)
	cb.Reset()

	assert.Equal(t, []string{
		"embedding:closed->open",
		"embedding:open->half_open",
		"embedding:half_open->closed",
		"embedding:closed->open",
		"embedding:open->closed",
	}, transitions)
}

func TestDo(t *testing.T) {
	cb, _ := newTestBreaker(1, 1)

	v, err := Do(t.Context(), cb, func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_, err = Do(t.Context(), cb, func(context.Context) (int, error) { return 0, errFail })
	assert.ErrorIs(t, err, errFail)

	v, err = Do(t.Context(), cb, func(context.Context) (int, error) { return 7, nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, v)
}

func TestBreaker_ConcurrentCalls(t *testing.T) {
	cb := NewCircuitBreaker(Config{Threshold: 1000}, nil)

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := cb.Call(context.Background(), func(context.Context) error {
				if i%2 == 0 {
					return errFail
				}
				return nil
			})
			if err == nil {
				ok.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(25), ok.Load())
	assert.Equal(t, StateClosed, cb.State())
}
