package main

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/groundrag/agent/memory"
	"github.com/BaSui01/groundrag/agent/orchestrator"
	"github.com/BaSui01/groundrag/agent/synthesis"
	"github.com/BaSui01/groundrag/agent/validation"
	"github.com/BaSui01/groundrag/config"
	"github.com/BaSui01/groundrag/correction"
	"github.com/BaSui01/groundrag/internal/cache"
	"github.com/BaSui01/groundrag/internal/database"
	"github.com/BaSui01/groundrag/internal/metrics"
	"github.com/BaSui01/groundrag/llm"
	"github.com/BaSui01/groundrag/llm/embedding"
	"github.com/BaSui01/groundrag/llm/rerank"
	"github.com/BaSui01/groundrag/llm/retry"
	"github.com/BaSui01/groundrag/llm/tokenizer"
	"github.com/BaSui01/groundrag/rag"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// components 一次 serve 进程内共享的依赖
type components struct {
	kv           cache.KV
	pool         *database.PoolManager
	corpus       rag.VectorStore
	embedder     embedding.Provider
	orchestrator *orchestrator.Orchestrator
}

// newRetryer 所有外部能力共用的重试策略，只重试标记为可重试的上游错误
func newRetryer(cfg config.LLMConfig, logger *zap.Logger) retry.Retryer {
	policy := retry.DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries
	if cfg.RetryInitialDelay > 0 {
		policy.InitialDelay = cfg.RetryInitialDelay
	}
	if cfg.RetryMaxDelay > 0 {
		policy.MaxDelay = cfg.RetryMaxDelay
	}
	policy.ShouldRetry = llm.IsRetryable
	return retry.NewBackoffRetryer(policy, logger)
}

// openKV 按 KV.Backend 选择存储后端. sql 后端同时返回连接池用于指标与就绪检查.
func openKV(cfg *config.Config, logger *zap.Logger) (cache.KV, *database.PoolManager, error) {
	switch cfg.KV.Backend {
	case "", "memory":
		return cache.NewMemoryKV(cache.MemoryKVConfig{
			MaxEntries: cfg.KV.MaxEntries,
			DefaultTTL: cfg.KV.DefaultTTL,
		}, logger), nil, nil

	case "redis":
		redisCfg := cache.DefaultConfig()
		redisCfg.Addr = cfg.Redis.Addr
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.DefaultTTL = cfg.KV.DefaultTTL
		if cfg.Redis.PoolSize > 0 {
			redisCfg.PoolSize = cfg.Redis.PoolSize
		}
		if cfg.Redis.MinIdleConns > 0 {
			redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		}
		if cfg.Redis.MaxRetries > 0 {
			redisCfg.MaxRetries = cfg.Redis.MaxRetries
		}
		kv, err := cache.NewRedisKV(redisCfg, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis kv: %w", err)
		}
		return kv, nil, nil

	case "sql":
		poolCfg := database.DefaultPoolConfig()
		if cfg.Database.MaxOpenConns > 0 {
			poolCfg.MaxOpenConns = cfg.Database.MaxOpenConns
		}
		if cfg.Database.MaxIdleConns > 0 {
			poolCfg.MaxIdleConns = cfg.Database.MaxIdleConns
		}
		if cfg.Database.ConnMaxLifetime > 0 {
			poolCfg.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
		}
		pool, err := database.Open(cfg.Database.Driver, cfg.Database.DSN(), poolCfg, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		kv, err := cache.NewSQLKV(pool, cfg.KV.DefaultTTL, logger)
		if err != nil {
			_ = pool.Close()
			return nil, nil, fmt.Errorf("open sql kv: %w", err)
		}
		return kv, pool, nil

	default:
		return nil, nil, fmt.Errorf("unknown kv backend %q", cfg.KV.Backend)
	}
}

// openVectorStore 打开指定集合. memory 后端每个集合独立.
func openVectorStore(cfg config.VectorStoreConfig, collection string, logger *zap.Logger) (rag.VectorStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return rag.NewInMemoryVectorStore(logger), nil
	case "qdrant":
		return rag.NewQdrantStore(rag.QdrantConfig{
			Host:                 cfg.Host,
			Port:                 cfg.Port,
			BaseURL:              cfg.BaseURL,
			APIKey:               cfg.APIKey,
			Collection:           collection,
			Timeout:              cfg.Timeout,
			AutoCreateCollection: cfg.AutoCreateCollection,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", cfg.Backend)
	}
}

// newEmbedder 创建带熔断与指标的嵌入服务适配器
func newEmbedder(cfg *config.Config, retryer retry.Retryer, collector *metrics.Collector, logger *zap.Logger) embedding.Provider {
	ec := cfg.Embedding
	p := embedding.NewHTTPProvider(embedding.HTTPConfig{
		Name:         "embedding",
		APIKey:       ec.APIKey,
		BaseURL:      ec.BaseURL,
		Endpoint:     ec.Endpoint,
		Model:        ec.Model,
		Dimensions:   ec.Dimensions,
		MaxBatch:     ec.MaxBatch,
		Timeout:      ec.Timeout,
		UsePrefix:    ec.UsePrefix,
		PerItemDelay: ec.PerItemDelay,
	}, retryer, logger)
	return &guardedEmbedder{
		Provider: p,
		breaker:  newBreaker("embedding", cfg.LLM, collector, logger),
		metrics:  collector,
	}
}

// buildComponents 按配置组装检索、合成、校验、纠错与记忆，返回编排器及其依赖
func buildComponents(cfg *config.Config, collector *metrics.Collector, tracer trace.Tracer, logger *zap.Logger) (*components, error) {
	retryer := newRetryer(cfg.LLM, logger)

	kv, pool, err := openKV(cfg, logger)
	if err != nil {
		return nil, err
	}
	c := &components{kv: kv, pool: pool}

	corpus, err := openVectorStore(cfg.VectorStore, cfg.VectorStore.CorpusCollection, logger)
	if err != nil {
		c.close(logger)
		return nil, err
	}
	c.corpus = corpus

	c.embedder = newEmbedder(cfg, retryer, collector, logger)

	gen := llm.Wrap(
		llm.NewHTTPProvider(llm.HTTPConfig{
			Name:        "generation",
			BaseURL:     cfg.LLM.BaseURL,
			Endpoint:    cfg.LLM.Endpoint,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.Pipeline.MaxTokens,
			Temperature: float32(cfg.Pipeline.Temperature),
			Timeout:     cfg.LLM.Timeout,
		}, retryer, logger),
		llm.RecoveryMiddleware("generation", func(v any) {
			logger.Error("generation adapter panicked", zap.Any("panic", v))
		}),
		llm.MetricsMiddleware("generation", collector),
		llm.CircuitBreakerMiddleware("generation", newBreaker("generation", cfg.LLM, collector, logger)),
		llm.LoggingMiddleware("generation", logger),
	)

	var reranker rerank.Provider
	if cfg.Rerank.Enabled {
		reranker = &guardedReranker{
			Provider: rerank.NewHTTPProvider(rerank.HTTPConfig{
				Name:     "rerank",
				APIKey:   cfg.Rerank.APIKey,
				BaseURL:  cfg.Rerank.BaseURL,
				Endpoint: cfg.Rerank.Endpoint,
				Model:    cfg.Rerank.Model,
				Timeout:  cfg.Rerank.Timeout,
			}, retryer, logger),
			breaker: newBreaker("rerank", cfg.LLM, collector, logger),
			metrics: collector,
		}
	}

	retrieverOpts := []rag.RetrieverOption{
		rag.WithSearchRetryer(retryer),
		rag.WithContextSelector(rag.NewContextSelector(reranker, rag.ContextSelectorConfig{
			TopRerank:       cfg.Retrieval.TopRerank,
			PerSourceCap:    cfg.Retrieval.PerSourceCap,
			MinDistinctDocs: cfg.Retrieval.MinDistinctDocs,
			Timeout:         cfg.Rerank.Timeout,
		}, logger)),
	}
	if cfg.Retrieval.ExpansionEnabled {
		expCfg := rag.DefaultQueryExpanderConfig()
		expCfg.MaxVariants = cfg.Retrieval.MaxVariants
		expCfg.Model = cfg.LLM.Model
		retrieverOpts = append(retrieverOpts, rag.WithQueryExpander(rag.NewQueryExpander(gen, expCfg, logger)))
	}

	retrieverCfg := rag.DefaultRetrieverConfig()
	retrieverCfg.TopK = cfg.Retrieval.TopK
	retrieverCfg.MaxContext = cfg.Retrieval.MaxContext
	retrieverCfg.RRFK = cfg.Retrieval.RRFK
	retrieverCfg.TopRerank = cfg.Retrieval.TopRerank
	if cfg.Retrieval.EmbedTimeout > 0 {
		retrieverCfg.EmbedTimeout = cfg.Retrieval.EmbedTimeout
	}
	if cfg.Retrieval.SearchTimeout > 0 {
		retrieverCfg.SearchTimeout = cfg.Retrieval.SearchTimeout
	}
	retriever := rag.NewRetriever(retrieverCfg, c.embedder, corpus, logger, retrieverOpts...)

	tok := tokenizer.New(cfg.Pipeline.TokenizerModel, logger)

	synth := synthesis.New(gen, tok, synthesis.Config{
		Model:         cfg.LLM.Model,
		MaxTokens:     cfg.Pipeline.MaxTokens,
		Temperature:   float32(cfg.Pipeline.Temperature),
		ContextTokens: cfg.Pipeline.ContextTokens,
		Timeout:       cfg.Pipeline.SynthesisTimeout,
		Persona:       cfg.Pipeline.Persona,
	}, logger)

	validator := validation.NewValidator(validation.Config{
		SupportPrefixLen: cfg.Pipeline.SupportPrefixLen,
		SupportOverlap:   cfg.Pipeline.SupportOverlap,
		RequireOrdinals:  cfg.Pipeline.RequireOrdinals,
	}, logger)

	opts := []orchestrator.Option{
		orchestrator.WithWebValidator(validation.NewWebValidator(cfg.Pipeline.WebSupportThreshold, logger)),
		orchestrator.WithMetrics(collector),
		orchestrator.WithTracer(tracer),
	}

	if cfg.Correction.Enabled {
		index, err := openVectorStore(cfg.VectorStore, cfg.VectorStore.CorrectionsCollection, logger)
		if err != nil {
			c.close(logger)
			return nil, err
		}
		opts = append(opts, orchestrator.WithCorrections(correction.New(kv, index, c.embedder, correction.Config{
			SimilarityThreshold: cfg.Correction.SimilarityThreshold,
			SemanticTopK:        cfg.Correction.SemanticTopK,
			TTL:                 cfg.Correction.TTL,
			Timeout:             cfg.Correction.Timeout,
		}, logger)))
	}

	if cfg.Memory.Enabled {
		memCfg := memory.DefaultConfig()
		memCfg.MaxTurns = cfg.Memory.MaxTurns
		memCfg.SummaryTurns = cfg.Memory.SummaryTurns
		memCfg.SummaryTokens = cfg.Memory.SummaryTokens
		memCfg.TTL = cfg.Memory.TTL
		opts = append(opts, orchestrator.WithMemory(memory.NewStore(kv, tok, memCfg, logger)))
	}

	c.orchestrator = orchestrator.New(retriever, synth, validator,
		orchestrator.Config{MaxIter: cfg.Pipeline.MaxIter}, logger, opts...)

	logger.Info("Components initialized",
		zap.String("kv_backend", cfg.KV.Backend),
		zap.String("vector_store", cfg.VectorStore.Backend),
		zap.Bool("rerank", cfg.Rerank.Enabled),
		zap.Bool("query_expansion", cfg.Retrieval.ExpansionEnabled),
		zap.Bool("corrections", cfg.Correction.Enabled),
		zap.Bool("memory", cfg.Memory.Enabled),
		zap.Int("max_iter", cfg.Pipeline.MaxIter),
	)
	return c, nil
}

// reportDBStats 周期上报连接池状态，直到 ctx 结束
func reportDBStats(ctx context.Context, pool *database.PoolManager, collector *metrics.Collector, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		stats := pool.Stats()
		collector.RecordDBConnections(pool.Dialect(), stats.OpenConnections, stats.Idle)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *components) close(logger *zap.Logger) {
	// SQLKV 关闭时一并关闭连接池
	if c.kv != nil {
		if err := c.kv.Close(); err != nil {
			logger.Warn("kv close error", zap.Error(err))
		}
	}
}
