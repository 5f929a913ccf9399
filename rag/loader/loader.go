package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BaSui01/groundrag/rag"
)

// DocumentLoader 从数据源读取已切分好的语料片段
type DocumentLoader interface {
	// Load 读取 source 并返回片段，source 通常是文件路径
	Load(ctx context.Context, source string) ([]rag.Document, error)

	// SupportedTypes 返回支持的扩展名（含点，如 ".jsonl"）
	SupportedTypes() []string
}

// LoaderRegistry 按扩展名路由到对应的 DocumentLoader
type LoaderRegistry struct {
	mu      sync.RWMutex
	loaders map[string]DocumentLoader // 小写扩展名 -> loader
}

// NewLoaderRegistry 创建预置 JSON/JSONL 片段加载器的注册表
func NewLoaderRegistry() *LoaderRegistry {
	r := &LoaderRegistry{
		loaders: make(map[string]DocumentLoader),
	}
	builtin := NewJSONLoader(JSONLoaderConfig{})
	for _, ext := range builtin.SupportedTypes() {
		r.loaders[strings.ToLower(ext)] = builtin
	}
	return r
}

// Register 为扩展名注册或替换加载器，ext 需带前导点
func (r *LoaderRegistry) Register(ext string, loader DocumentLoader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[strings.ToLower(ext)] = loader
}

// Load 根据 source 的扩展名选择加载器
func (r *LoaderRegistry) Load(ctx context.Context, source string) ([]rag.Document, error) {
	ext := strings.ToLower(filepath.Ext(source))
	if ext == "" {
		return nil, fmt.Errorf("loader: cannot determine file type for %q (no extension)", source)
	}

	r.mu.RLock()
	l, ok := r.loaders[ext]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("loader: no loader registered for extension %q", ext)
	}

	return l.Load(ctx, source)
}

// SupportedTypes 返回已注册的扩展名（排序）
func (r *LoaderRegistry) SupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
