// 配置文件变更监听。
//
// 以轮询方式比较修改时间，事件经防抖后派发给回调。
package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileOp 文件变更类型
type FileOp int

const (
	// FileOpCreate 文件出现
	FileOpCreate FileOp = iota
	// FileOpWrite 文件内容被修改
	FileOpWrite
	// FileOpRemove 文件被删除
	FileOpRemove
)

// String 返回操作名
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent 一次文件变更
type FileEvent struct {
	Path      string    `json:"path"`
	Op        FileOp    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

// FileWatcher 监听单个配置文件
type FileWatcher struct {
	mu sync.Mutex

	path          string
	pollInterval  time.Duration
	debounceDelay time.Duration
	logger        *zap.Logger

	running  bool
	stopCh   chan struct{}
	events   chan FileEvent
	lastMod  time.Time
	exists   bool
	callback func(FileEvent)
}

// WatcherOption 配置 FileWatcher
type WatcherOption func(*FileWatcher)

// WithPollInterval 设置轮询间隔
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithDebounceDelay 设置防抖延迟
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		if d >= 0 {
			w.debounceDelay = d
		}
	}
}

// WithWatcherLogger 设置日志记录器
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewFileWatcher 创建文件监听器；文件不存在时等待其被创建
func NewFileWatcher(path string, callback func(FileEvent), opts ...WatcherOption) (*FileWatcher, error) {
	if path == "" {
		return nil, fmt.Errorf("watch path is empty")
	}
	if callback == nil {
		return nil, fmt.Errorf("watch callback is nil")
	}
	w := &FileWatcher{
		path:          path,
		pollInterval:  time.Second,
		debounceDelay: 200 * time.Millisecond,
		logger:        zap.NewNop(),
		events:        make(chan FileEvent, 16),
		callback:      callback,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "config_watcher"))

	info, err := os.Stat(path)
	switch {
	case err == nil:
		w.exists = true
		w.lastMod = info.ModTime()
	case os.IsNotExist(err):
		w.logger.Warn("config file does not exist, waiting for creation", zap.String("path", path))
	default:
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return w, nil
}

// Start 启动轮询与派发 goroutine
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})

	go w.poll(ctx, w.stopCh)
	go w.dispatch(ctx, w.stopCh)

	w.logger.Info("config watcher started",
		zap.String("path", w.path),
		zap.Duration("poll_interval", w.pollInterval))
	return nil
}

// Stop 停止监听，可重复调用
func (w *FileWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.stopCh)
	w.running = false
	w.logger.Info("config watcher stopped")
}

// IsRunning 是否在运行
func (w *FileWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *FileWatcher) poll(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if evt, ok := w.check(); ok {
				select {
				case w.events <- evt:
				default:
					// 派发端积压时丢弃，下一轮仍会比较修改时间
				}
			}
		}
	}
}

// check 比较修改时间，返回是否产生事件
func (w *FileWatcher) check() (FileEvent, bool) {
	info, err := os.Stat(w.path)
	now := time.Now()
	if err != nil {
		if os.IsNotExist(err) && w.exists {
			w.exists = false
			return FileEvent{Path: w.path, Op: FileOpRemove, Timestamp: now}, true
		}
		return FileEvent{}, false
	}
	if !w.exists {
		w.exists = true
		w.lastMod = info.ModTime()
		return FileEvent{Path: w.path, Op: FileOpCreate, Timestamp: now}, true
	}
	if info.ModTime().After(w.lastMod) {
		w.lastMod = info.ModTime()
		return FileEvent{Path: w.path, Op: FileOpWrite, Timestamp: now}, true
	}
	return FileEvent{}, false
}

func (w *FileWatcher) dispatch(ctx context.Context, stop <-chan struct{}) {
	var (
		pending *FileEvent
		timer   *time.Timer
		fire    <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-stop:
			if timer != nil {
				timer.Stop()
			}
			return
		case evt := <-w.events:
			pending = &evt
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounceDelay)
			fire = timer.C
		case <-fire:
			fire = nil
			if pending == nil {
				continue
			}
			evt := *pending
			pending = nil
			w.logger.Debug("dispatching config file event",
				zap.String("path", evt.Path),
				zap.String("op", evt.Op.String()))
			w.callback(evt)
		}
	}
}
