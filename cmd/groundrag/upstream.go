package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/groundrag/config"
	"github.com/BaSui01/groundrag/internal/metrics"
	"github.com/BaSui01/groundrag/llm"
	"github.com/BaSui01/groundrag/llm/circuitbreaker"
	"github.com/BaSui01/groundrag/llm/embedding"
	"github.com/BaSui01/groundrag/llm/rerank"
)

// newBreaker 为一个外部能力创建熔断器，状态变化同步到指标
func newBreaker(name string, cfg config.LLMConfig, collector *metrics.Collector, logger *zap.Logger) circuitbreaker.CircuitBreaker {
	return circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
		Name:         name,
		Threshold:    cfg.BreakerThreshold,
		ResetTimeout: cfg.BreakerResetTimeout,
		IsFailure:    llm.IsUpstreamFailure,
		OnStateChange: func(upstream string, _, to circuitbreaker.State) {
			collector.RecordCircuitState(upstream, int(to))
		},
	}, logger)
}

// guardedEmbedder 嵌入调用经过熔断器并记录上游指标
type guardedEmbedder struct {
	embedding.Provider
	breaker circuitbreaker.CircuitBreaker
	metrics *metrics.Collector
}

func guardEmbed[T any](ctx context.Context, g *guardedEmbedder, fn func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()
	out, err := circuitbreaker.Do(ctx, g.breaker, fn)
	err = llm.BreakerError(g.Name(), err)
	g.metrics.RecordUpstream("embedding", g.Name(), err, time.Since(start))
	return out, err
}

func (g *guardedEmbedder) Embed(ctx context.Context, req *embedding.EmbeddingRequest) (*embedding.EmbeddingResponse, error) {
	return guardEmbed(ctx, g, func(ctx context.Context) (*embedding.EmbeddingResponse, error) {
		return g.Provider.Embed(ctx, req)
	})
}

func (g *guardedEmbedder) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	return guardEmbed(ctx, g, func(ctx context.Context) ([]float64, error) {
		return g.Provider.EmbedQuery(ctx, query)
	})
}

func (g *guardedEmbedder) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	return guardEmbed(ctx, g, func(ctx context.Context) ([][]float64, error) {
		return g.Provider.EmbedDocuments(ctx, documents)
	})
}

// guardedReranker 重排调用经过熔断器并记录上游指标
type guardedReranker struct {
	rerank.Provider
	breaker circuitbreaker.CircuitBreaker
	metrics *metrics.Collector
}

func (g *guardedReranker) Rerank(ctx context.Context, req *rerank.RerankRequest) (*rerank.RerankResponse, error) {
	start := time.Now()
	resp, err := circuitbreaker.Do(ctx, g.breaker, func(ctx context.Context) (*rerank.RerankResponse, error) {
		return g.Provider.Rerank(ctx, req)
	})
	err = llm.BreakerError(g.Name(), err)
	g.metrics.RecordUpstream("rerank", g.Name(), err, time.Since(start))
	return resp, err
}

func (g *guardedReranker) RerankSimple(ctx context.Context, query string, documents []string, topN int) ([]rerank.RerankResult, error) {
	start := time.Now()
	res, err := circuitbreaker.Do(ctx, g.breaker, func(ctx context.Context) ([]rerank.RerankResult, error) {
		return g.Provider.RerankSimple(ctx, query, documents, topN)
	})
	err = llm.BreakerError(g.Name(), err)
	g.metrics.RecordUpstream("rerank", g.Name(), err, time.Since(start))
	return res, err
}
