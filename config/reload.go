// 配置热重载。
//
// 文件变更后重新走一遍 Loader（默认值 → YAML → 环境变量 → 校验），
// 与当前配置逐字段比较，再通知回调。只有 liveFields 中的字段能在
// 运行时生效，其余变更记录为需要重启。
package config

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"
)

// liveFields 运行时可生效的字段
var liveFields = map[string]bool{
	"Log.Level":             true,
	"Server.RateLimitRPS":   true,
	"Server.RateLimitBurst": true,
}

// sensitiveFields 日志中不输出取值的字段名
var sensitiveFields = map[string]bool{
	"Password": true,
	"APIKey":   true,
	"APIKeys":  true,
}

// Change 一个字段的变更
type Change struct {
	Path            string `json:"path"`
	OldValue        any    `json:"old_value,omitempty"`
	NewValue        any    `json:"new_value,omitempty"`
	RequiresRestart bool   `json:"requires_restart"`
}

// ReloadFunc 在新配置生效后调用
type ReloadFunc func(oldCfg, newCfg *Config, changes []Change)

// Reloader 持有当前配置并在文件变化时重新加载
type Reloader struct {
	mu        sync.RWMutex
	path      string
	current   *Config
	callbacks []ReloadFunc
	watcher   *FileWatcher
	pollEvery time.Duration
	logger    *zap.Logger
}

// NewReloader 创建热重载器；current 为启动时加载的配置
func NewReloader(path string, current *Config, logger *zap.Logger) *Reloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reloader{
		path:      path,
		current:   current,
		pollEvery: time.Second,
		logger:    logger.With(zap.String("component", "config_reloader")),
	}
}

// WithPollEvery 设置文件轮询间隔
func (r *Reloader) WithPollEvery(d time.Duration) *Reloader {
	if d > 0 {
		r.pollEvery = d
	}
	return r
}

// OnReload 注册回调
func (r *Reloader) OnReload(fn ReloadFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, fn)
}

// Current 返回当前配置
func (r *Reloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Start 开始监听配置文件
func (r *Reloader) Start(ctx context.Context) error {
	if r.path == "" {
		return fmt.Errorf("no config path set")
	}
	w, err := NewFileWatcher(r.path, r.handleEvent,
		WithPollInterval(r.pollEvery),
		WithWatcherLogger(r.logger))
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	r.watcher = w
	r.mu.Unlock()
	return nil
}

// Stop 停止监听
func (r *Reloader) Stop() {
	r.mu.Lock()
	w := r.watcher
	r.watcher = nil
	r.mu.Unlock()
	if w != nil {
		w.Stop()
	}
}

func (r *Reloader) handleEvent(evt FileEvent) {
	if evt.Op == FileOpRemove {
		r.logger.Warn("config file removed, keeping current config", zap.String("path", evt.Path))
		return
	}
	if _, err := r.Reload(); err != nil {
		r.logger.Error("config reload failed, keeping current config", zap.Error(err))
	}
}

// Reload 从文件重新加载；加载或校验失败时保留当前配置
func (r *Reloader) Reload() ([]Change, error) {
	next, err := NewLoader().
		WithConfigPath(r.path).
		WithValidator((*Config).Validate).
		Load()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	prev := r.current
	changes := Diff(prev, next)
	if len(changes) == 0 {
		r.mu.Unlock()
		return nil, nil
	}
	r.current = next
	callbacks := append([]ReloadFunc(nil), r.callbacks...)
	r.mu.Unlock()

	restart := false
	for _, c := range changes {
		restart = restart || c.RequiresRestart
		r.logChange(c)
	}

	if err := notify(callbacks, prev, next, changes); err != nil {
		r.mu.Lock()
		if r.current == next {
			r.current = prev
		}
		r.mu.Unlock()
		return nil, fmt.Errorf("config reload rolled back: %w", err)
	}

	if restart {
		r.logger.Warn("some configuration changes require a restart to take effect")
	}
	r.logger.Info("configuration reloaded", zap.Int("changes", len(changes)))
	return changes, nil
}

func notify(callbacks []ReloadFunc, prev, next *Config, changes []Change) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("reload callback panicked: %v", rec)
		}
	}()
	for _, fn := range callbacks {
		fn(prev, next, changes)
	}
	return nil
}

func (r *Reloader) logChange(c Change) {
	fields := []zap.Field{
		zap.String("path", c.Path),
		zap.Bool("requires_restart", c.RequiresRestart),
	}
	if !isSensitive(c.Path) {
		fields = append(fields, zap.Any("old_value", c.OldValue), zap.Any("new_value", c.NewValue))
	}
	r.logger.Info("configuration changed", fields...)
}

// IsLive 字段能否在运行时生效
func IsLive(path string) bool {
	return liveFields[path]
}

// Diff 逐字段比较两份配置，路径形如 "Server.HTTPPort"
func Diff(prev, next *Config) []Change {
	var changes []Change
	if prev == nil || next == nil {
		return changes
	}
	diffStruct("", reflect.ValueOf(prev).Elem(), reflect.ValueOf(next).Elem(), &changes)
	return changes
}

func diffStruct(prefix string, a, b reflect.Value, out *[]Change) {
	t := a.Type()
	for i := 0; i < a.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		path := f.Name
		if prefix != "" {
			path = prefix + "." + f.Name
		}
		av, bv := a.Field(i), b.Field(i)
		if av.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Time{}) {
			diffStruct(path, av, bv, out)
			continue
		}
		if reflect.DeepEqual(av.Interface(), bv.Interface()) {
			continue
		}
		*out = append(*out, Change{
			Path:            path,
			OldValue:        av.Interface(),
			NewValue:        bv.Interface(),
			RequiresRestart: !liveFields[path],
		})
	}
}

func isSensitive(path string) bool {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return sensitiveFields[path[i+1:]]
		}
	}
	return sensitiveFields[path]
}
