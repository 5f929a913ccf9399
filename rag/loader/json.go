package loader

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BaSui01/groundrag/rag"
	"github.com/tidwall/gjson"
)

// JSONLoaderConfig 配置 JSON/JSONL 片段加载器，字段名支持 gjson 路径
type JSONLoaderConfig struct {
	// ContentField 正文字段，为空时依次尝试 "content"、"text"
	ContentField string
	// IDField 片段 ID 字段，缺失时按 "<文件名>#<序号>" 生成
	IDField string
	// MetadataField 嵌套元数据对象字段，默认 "metadata"
	MetadataField string
}

// 顶层字段会被提升进元数据
var promotedFields = []string{
	rag.MetaDocID, rag.MetaTitle, rag.MetaSource, rag.MetaChunkIndex,
	rag.MetaTopic, rag.MetaProtocolLayer, rag.MetaSection,
}

// JSONLoader 读取 JSON 数组、单个对象或 JSONL（每行一个对象）
type JSONLoader struct {
	config JSONLoaderConfig
}

// NewJSONLoader 创建 JSONLoader
func NewJSONLoader(config JSONLoaderConfig) *JSONLoader {
	if config.IDField == "" {
		config.IDField = "id"
	}
	if config.MetadataField == "" {
		config.MetadataField = "metadata"
	}
	return &JSONLoader{config: config}
}

// Load 读取 JSON 或 JSONL 文件
func (l *JSONLoader) Load(ctx context.Context, source string) ([]rag.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if strings.ToLower(filepath.Ext(source)) == ".jsonl" {
		return l.loadJSONL(ctx, source)
	}
	return l.loadJSON(source)
}

func (l *JSONLoader) loadJSON(source string) ([]rag.Document, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("json loader: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return []rag.Document{}, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("json loader: invalid JSON in %s", source)
	}

	root := gjson.ParseBytes(data)
	var items []gjson.Result
	switch {
	case root.IsArray():
		items = root.Array()
	case root.IsObject():
		items = []gjson.Result{root}
	default:
		return nil, fmt.Errorf("json loader: %s must contain an object or an array", source)
	}

	docs := make([]rag.Document, 0, len(items))
	for i, item := range items {
		doc, err := l.toDocument(source, item, i)
		if err != nil {
			return nil, fmt.Errorf("json loader: item %d in %s: %w", i, source, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (l *JSONLoader) loadJSONL(ctx context.Context, source string) ([]rag.Document, error) {
	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("jsonl loader: %w", err)
	}
	defer f.Close()

	var docs []rag.Document
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if lineNum%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !gjson.Valid(line) {
			return nil, fmt.Errorf("jsonl loader: line %d in %s: invalid JSON", lineNum, source)
		}
		item := gjson.Parse(line)
		if !item.IsObject() {
			return nil, fmt.Errorf("jsonl loader: line %d in %s: not an object", lineNum, source)
		}
		doc, err := l.toDocument(source, item, len(docs))
		if err != nil {
			return nil, fmt.Errorf("jsonl loader: line %d in %s: %w", lineNum, source, err)
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("jsonl loader: reading %s: %w", source, err)
	}
	return docs, nil
}

// toDocument 将一个 JSON 对象转换为片段
func (l *JSONLoader) toDocument(source string, item gjson.Result, index int) (rag.Document, error) {
	content := l.content(item)
	if strings.TrimSpace(content) == "" {
		return rag.Document{}, fmt.Errorf("empty content")
	}

	id := item.Get(l.config.IDField).String()
	if id == "" {
		id = fmt.Sprintf("%s#%d", filepath.Base(source), index)
	}

	meta := map[string]any{}
	if nested := item.Get(l.config.MetadataField); nested.IsObject() {
		nested.ForEach(func(k, v gjson.Result) bool {
			meta[k.String()] = v.Value()
			return true
		})
	}
	for _, key := range promotedFields {
		if v := item.Get(key); v.Exists() {
			meta[key] = v.Value()
		}
	}
	if _, ok := meta[rag.MetaSource]; !ok {
		meta[rag.MetaSource] = filepath.Base(source)
	}

	return rag.Document{ID: id, Content: content, Metadata: meta}, nil
}

func (l *JSONLoader) content(item gjson.Result) string {
	if l.config.ContentField != "" {
		return item.Get(l.config.ContentField).String()
	}
	for _, field := range []string{"content", "text"} {
		if v := item.Get(field); v.Exists() {
			return v.String()
		}
	}
	return ""
}

// SupportedTypes 返回 JSONLoader 支持的扩展名
func (l *JSONLoader) SupportedTypes() []string {
	return []string{".json", ".jsonl"}
}
