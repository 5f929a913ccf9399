// =============================================================================
// 📦 GroundRAG 默认配置
// =============================================================================
// 提供所有配置项的合理默认值，开箱即用的组合是内存 KV + 内存向量存储
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:      DefaultServerConfig(),
		Log:         DefaultLogConfig(),
		Telemetry:   DefaultTelemetryConfig(),
		Redis:       DefaultRedisConfig(),
		Database:    DefaultDatabaseConfig(),
		KV:          DefaultKVConfig(),
		VectorStore: DefaultVectorStoreConfig(),
		Embedding:   DefaultEmbeddingConfig(),
		Rerank:      DefaultRerankConfig(),
		LLM:         DefaultLLMConfig(),
		Retrieval:   DefaultRetrievalConfig(),
		Pipeline:    DefaultPipelineConfig(),
		Correction:  DefaultCorrectionConfig(),
		Memory:      DefaultMemoryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    3 * time.Minute,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    10,
		RateLimitBurst:  20,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "groundrag",
		SampleRate:   0.1,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "groundrag",
		Password:        "",
		Name:            "groundrag.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultKVConfig 返回默认 KV 配置
func DefaultKVConfig() KVConfig {
	return KVConfig{
		Backend:    "memory",
		DefaultTTL: 24 * time.Hour,
		MaxEntries: 10000,
	}
}

// DefaultVectorStoreConfig 返回默认向量存储配置
func DefaultVectorStoreConfig() VectorStoreConfig {
	return VectorStoreConfig{
		Backend:               "memory",
		Host:                  "localhost",
		Port:                  6333,
		CorpusCollection:      "bluetooth_docs",
		CorrectionsCollection: "bluetooth_corrections",
		Timeout:               30 * time.Second,
		AutoCreateCollection:  true,
		IngestBatch:           64,
	}
}

// DefaultEmbeddingConfig 返回默认嵌入配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		BaseURL:      "http://localhost:8081",
		Endpoint:     "/v1/embeddings",
		MaxBatch:     64,
		Timeout:      30 * time.Second,
		UsePrefix:    true,
		PerItemDelay: 500 * time.Millisecond,
	}
}

// DefaultRerankConfig 返回默认重排配置
func DefaultRerankConfig() RerankConfig {
	return RerankConfig{
		Enabled:  true,
		BaseURL:  "http://localhost:8082",
		Endpoint: "/v1/rerank",
		Timeout:  30 * time.Second,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		BaseURL:             "http://localhost:8000",
		Endpoint:            "/v1/chat/completions",
		Timeout:             2 * time.Minute,
		MaxRetries:          3,
		RetryInitialDelay:   500 * time.Millisecond,
		RetryMaxDelay:       10 * time.Second,
		BreakerThreshold:    5,
		BreakerResetTimeout: 30 * time.Second,
	}
}

// DefaultRetrievalConfig 返回默认检索配置
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:             20,
		MaxContext:       20,
		RRFK:             60,
		TopRerank:        8,
		PerSourceCap:     2,
		MinDistinctDocs:  2,
		ExpansionEnabled: true,
		MaxVariants:      3,
		EmbedTimeout:     20 * time.Second,
		SearchTimeout:    10 * time.Second,
	}
}

// DefaultPipelineConfig 返回默认合成与校验配置
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MaxIter:             2,
		MaxTokens:           1500,
		Temperature:         0.2,
		ContextTokens:       6000,
		SynthesisTimeout:    60 * time.Second,
		SupportPrefixLen:    20,
		SupportOverlap:      0.6,
		RequireOrdinals:     true,
		WebSupportThreshold: 0.2,
	}
}

// DefaultCorrectionConfig 返回默认纠错缓存配置
func DefaultCorrectionConfig() CorrectionConfig {
	return CorrectionConfig{
		Enabled:             true,
		SimilarityThreshold: 0.90,
		SemanticTopK:        5,
		TTL:                 90 * 24 * time.Hour,
		Timeout:             10 * time.Second,
	}
}

// DefaultMemoryConfig 返回默认会话记忆配置
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		Enabled:       true,
		MaxTurns:      10,
		SummaryTurns:  3,
		SummaryTokens: 300,
		TTL:           24 * time.Hour,
	}
}
