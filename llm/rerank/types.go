// Package rerank 提供统一的重排提供者接口和 HTTP 实现.
package rerank

import (
	"context"
	"time"
)

// RerankRequest 代表重新排序文档的请求.
type RerankRequest struct {
	Query     string     `json:"query"`
	Documents []Document `json:"documents"`
	Model     string     `json:"model,omitempty"`
	TopN      int        `json:"top_n,omitempty"` // Return top N results, 0 for all
}

// Document 代表要重新排序的文档.
type Document struct {
	Text string `json:"text"`
	ID   string `json:"id,omitempty"`
}

// RerankResponse 代表重排请求的响应.
type RerankResponse struct {
	Provider  string         `json:"provider"`
	Model     string         `json:"model"`
	Results   []RerankResult `json:"results"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
}

// RerankResult 代表单个被重新排序的文档.
type RerankResult struct {
	Index          int     `json:"index"`           // Original index in input
	RelevanceScore float64 `json:"relevance_score"` // Higher is more relevant
}

// Provider 定义了统一的重排提供者接口.
type Provider interface {
	// Rerank 根据与查询的相关性重新排序文档，结果按分数降序.
	Rerank(ctx context.Context, req *RerankRequest) (*RerankResponse, error)

	// RerankSimple 是简单重排的便捷方法.
	RerankSimple(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error)

	// Name 返回提供者名称.
	Name() string
}
