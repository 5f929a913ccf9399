package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func randomPortConfig(name string) Config {
	cfg := DefaultConfig()
	cfg.Name = name
	cfg.Addr = "127.0.0.1:0"
	return cfg
}

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 3*time.Minute, cfg.WriteTimeout)
	assert.Equal(t, 1<<20, cfg.MaxHeaderBytes)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
}

func TestNewManager(t *testing.T) {
	m := NewManager(http.NewServeMux(), Config{Addr: ":9999"}, nil)
	require.NotNil(t, m)
	assert.False(t, m.IsRunning())
	assert.Equal(t, ":9999", m.Addr())
	assert.Equal(t, "http", m.name)
}

func TestManager_StartAndShutdown(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	m := NewManager(handler, randomPortConfig("api"), zap.NewNop())
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	assert.True(t, m.IsRunning())

	resp, err := http.Get("http://" + m.Addr() + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())
}

func TestManager_DoubleStart(t *testing.T) {
	m := NewManager(http.NewServeMux(), randomPortConfig("api"), zap.NewNop())
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	err := m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestManager_ShutdownIdempotent(t *testing.T) {
	m := NewManager(http.NewServeMux(), randomPortConfig("api"), zap.NewNop())
	require.NoError(t, m.Start())

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_ShutdownBeforeStart(t *testing.T) {
	m := NewManager(http.NewServeMux(), randomPortConfig("metrics"), zap.NewNop())
	require.NoError(t, m.Shutdown(context.Background()))

	err := m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestManager_ListenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := randomPortConfig("api")
	cfg.Addr = ln.Addr().String()
	m := NewManager(http.NewServeMux(), cfg, zap.NewNop())
	err = m.Start()
	require.Error(t, err)
	assert.False(t, m.IsRunning())
}

func TestWaitAny_ContextDone(t *testing.T) {
	m := NewManager(http.NewServeMux(), randomPortConfig("api"), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, WaitAny(ctx, m))
}

func TestWaitAny_ServerError(t *testing.T) {
	a := NewManager(http.NewServeMux(), randomPortConfig("api"), zap.NewNop())
	b := NewManager(http.NewServeMux(), randomPortConfig("metrics"), zap.NewNop())
	b.errCh <- assert.AnError

	err := WaitAny(context.Background(), a, b)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "metrics server")
}
