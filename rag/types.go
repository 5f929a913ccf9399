package rag

import (
	"fmt"
	"strconv"
	"strings"
)

// Document 向量存储中的一条记录
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float64      `json:"embedding,omitempty"`
}

// 元数据中约定的键
const (
	MetaDocID         = "doc_id"
	MetaTitle         = "title"
	MetaSource        = "source"
	MetaChunkIndex    = "chunk_index"
	MetaTopic         = "topic"
	MetaProtocolLayer = "protocol_layer"
	MetaSection       = "section"
)

// ChunkMetadata 检索片段的结构化元数据
type ChunkMetadata struct {
	DocID      string         `json:"doc_id"`
	Title      string         `json:"title"`
	Source     string         `json:"source"`
	ChunkIndex int            `json:"chunk_index"`
	Topic      string         `json:"topic,omitempty"`
	Section    string         `json:"section,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// RetrievedChunk 一次检索命中的片段
type RetrievedChunk struct {
	ID       string        `json:"id"`
	Content  string        `json:"content"`
	Score    float64       `json:"score"`
	Metadata ChunkMetadata `json:"metadata"`
}

// DocKey 返回片段所属文档的标识，用于按文档限流和去重.
// 依次使用 doc_id、source、title，最后退化为片段 ID.
func (c RetrievedChunk) DocKey() string {
	for _, k := range []string{c.Metadata.DocID, c.Metadata.Source, c.Metadata.Title} {
		if k != "" {
			return k
		}
	}
	return c.ID
}

// ContextBlock 提交给生成模型的上下文块，位置 n 对应引用 [#n]
type ContextBlock struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Source     string `json:"source"`
	Content    string `json:"content"`
	SectionTag string `json:"section_tag"`
	DocID      string `json:"doc_id"`
}

// Citation 答案中的引用
type Citation struct {
	Ref    string `json:"ref"` // "#n" or "Wn"
	ID     string `json:"id"`
	Title  string `json:"title"`
	Source string `json:"source"`
}

// WebResult 可选的网页检索结果，位置 n 对应引用 [Wn]
type WebResult struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// RetrievalResult 检索阶段输出
type RetrievalResult struct {
	ContextBlocks  []ContextBlock   `json:"context_blocks"`
	TopScore       float64          `json:"top_score"`
	RetrievalNotes []string         `json:"retrieval_notes,omitempty"`
	KnowledgeGaps  []string         `json:"knowledge_gaps,omitempty"`
	Chunks         []RetrievedChunk `json:"chunks,omitempty"`
}

// ChunkFromDocument 将向量存储记录转换为检索片段
func ChunkFromDocument(doc Document, score float64) RetrievedChunk {
	meta := ChunkMetadata{
		DocID:      metaString(doc.Metadata, MetaDocID),
		Title:      metaString(doc.Metadata, MetaTitle),
		Source:     metaString(doc.Metadata, MetaSource),
		ChunkIndex: metaInt(doc.Metadata, MetaChunkIndex),
		Topic:      metaString(doc.Metadata, MetaTopic),
		Section:    metaString(doc.Metadata, MetaSection),
	}
	if meta.Topic == "" {
		meta.Topic = metaString(doc.Metadata, MetaProtocolLayer)
	}
	for k, v := range doc.Metadata {
		switch k {
		case MetaDocID, MetaTitle, MetaSource, MetaChunkIndex, MetaTopic, MetaSection:
			continue
		}
		if meta.Extra == nil {
			meta.Extra = make(map[string]any)
		}
		meta.Extra[k] = v
	}
	return RetrievedChunk{ID: doc.ID, Content: doc.Content, Score: score, Metadata: meta}
}

// Block 将片段投影为上下文块
func (c RetrievedChunk) Block() ContextBlock {
	tag := c.Metadata.Section
	if tag == "" {
		tag = c.Metadata.Topic
	}
	if tag == "" {
		tag = fmt.Sprintf("chunk %d", c.Metadata.ChunkIndex)
	}
	title := c.Metadata.Title
	if title == "" {
		title = c.DocKey()
	}
	return ContextBlock{
		ID:         c.ID,
		Title:      title,
		Source:     c.Metadata.Source,
		Content:    c.Content,
		SectionTag: tag,
		DocID:      c.DocKey(),
	}
}

// Blocks 按顺序投影，没有块时返回 nil
func Blocks(chunks []RetrievedChunk) []ContextBlock {
	if len(chunks) == 0 {
		return nil
	}
	out := make([]ContextBlock, len(chunks))
	for i, c := range chunks {
		out[i] = c.Block()
	}
	return out
}

// CitationsFromBlocks 按位置生成引用，第 i 个块对应 "#(i+1)"
func CitationsFromBlocks(blocks []ContextBlock) []Citation {
	out := make([]Citation, len(blocks))
	for i, b := range blocks {
		out[i] = Citation{Ref: "#" + strconv.Itoa(i+1), ID: b.ID, Title: b.Title, Source: b.Source}
	}
	return out
}

// CitationsFromWeb 按位置生成网页引用，第 i 个结果对应 "W(i+1)"
func CitationsFromWeb(web []WebResult) []Citation {
	out := make([]Citation, len(web))
	for i, w := range web {
		out[i] = Citation{Ref: "W" + strconv.Itoa(i+1), ID: w.URL, Title: w.Title, Source: w.URL}
	}
	return out
}

func metaString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func metaInt(m map[string]any, key string) int {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}
