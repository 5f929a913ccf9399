package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- DefaultConfig aggregate ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	// Each sub-config should be non-zero
	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
	assert.NotEqual(t, RedisConfig{}, cfg.Redis)
	assert.NotEqual(t, DatabaseConfig{}, cfg.Database)
	assert.NotEqual(t, KVConfig{}, cfg.KV)
	assert.NotEqual(t, VectorStoreConfig{}, cfg.VectorStore)
	assert.NotEqual(t, EmbeddingConfig{}, cfg.Embedding)
	assert.NotEqual(t, RerankConfig{}, cfg.Rerank)
	assert.NotEqual(t, LLMConfig{}, cfg.LLM)
	assert.NotEqual(t, RetrievalConfig{}, cfg.Retrieval)
	assert.NotEqual(t, PipelineConfig{}, cfg.Pipeline)
	assert.NotEqual(t, CorrectionConfig{}, cfg.Correction)
	assert.NotEqual(t, MemoryConfig{}, cfg.Memory)
	assert.NotEmpty(t, cfg.Log.OutputPaths)
}

func TestDefaultConfig_IsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

// --- Individual Default*Config functions ---

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 9091, cfg.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 3*time.Minute, cfg.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.AllowQueryAPIKey)
	assert.Empty(t, cfg.APIKeys)
	assert.InDelta(t, 10.0, cfg.RateLimitRPS, 0.001)
	assert.Equal(t, 20, cfg.RateLimitBurst)
}

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Empty(t, cfg.Password)
	assert.Equal(t, 0, cfg.DB)
	assert.Equal(t, 10, cfg.PoolSize)
	assert.Equal(t, 2, cfg.MinIdleConns)
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestDefaultDatabaseConfig(t *testing.T) {
	cfg := DefaultDatabaseConfig()
	assert.Equal(t, "sqlite", cfg.Driver)
	assert.Equal(t, "groundrag.db", cfg.Name)
	assert.Equal(t, "groundrag.db", cfg.DSN())
	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, 5, cfg.MaxIdleConns)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxLifetime)
}

func TestDefaultKVConfig(t *testing.T) {
	cfg := DefaultKVConfig()
	assert.Equal(t, "memory", cfg.Backend)
	assert.Equal(t, 24*time.Hour, cfg.DefaultTTL)
	assert.Equal(t, 10000, cfg.MaxEntries)
}

func TestDefaultVectorStoreConfig(t *testing.T) {
	cfg := DefaultVectorStoreConfig()
	assert.Equal(t, "memory", cfg.Backend)
	assert.Equal(t, 6333, cfg.Port)
	assert.Equal(t, "bluetooth_docs", cfg.CorpusCollection)
	assert.Equal(t, "bluetooth_corrections", cfg.CorrectionsCollection)
	assert.True(t, cfg.AutoCreateCollection)
	assert.Equal(t, 64, cfg.IngestBatch)
	assert.Empty(t, cfg.SeedFiles)
}

func TestDefaultEmbeddingConfig(t *testing.T) {
	cfg := DefaultEmbeddingConfig()
	assert.Equal(t, "/v1/embeddings", cfg.Endpoint)
	assert.Equal(t, 64, cfg.MaxBatch)
	assert.True(t, cfg.UsePrefix)
	assert.Equal(t, 500*time.Millisecond, cfg.PerItemDelay)
}

func TestDefaultLLMConfig(t *testing.T) {
	cfg := DefaultLLMConfig()
	assert.Equal(t, "/v1/chat/completions", cfg.Endpoint)
	assert.Empty(t, cfg.APIKey)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryInitialDelay)
	assert.Equal(t, 5, cfg.BreakerThreshold)
	assert.Equal(t, 30*time.Second, cfg.BreakerResetTimeout)
}

func TestDefaultRetrievalConfig(t *testing.T) {
	cfg := DefaultRetrievalConfig()
	assert.Equal(t, 20, cfg.TopK)
	assert.Equal(t, 60, cfg.RRFK)
	assert.Equal(t, 8, cfg.TopRerank)
	assert.Equal(t, 2, cfg.PerSourceCap)
	assert.Equal(t, 2, cfg.MinDistinctDocs)
	assert.Equal(t, 3, cfg.MaxVariants)
}

func TestDefaultPipelineConfig(t *testing.T) {
	cfg := DefaultPipelineConfig()
	assert.Equal(t, 2, cfg.MaxIter)
	assert.Equal(t, 20, cfg.SupportPrefixLen)
	assert.InDelta(t, 0.6, cfg.SupportOverlap, 0.001)
	assert.InDelta(t, 0.2, cfg.WebSupportThreshold, 0.001)
	assert.True(t, cfg.RequireOrdinals)
}

func TestDefaultCorrectionConfig(t *testing.T) {
	cfg := DefaultCorrectionConfig()
	assert.True(t, cfg.Enabled)
	assert.InDelta(t, 0.90, cfg.SimilarityThreshold, 1e-9)
	assert.Equal(t, 5, cfg.SemanticTopK)
	assert.Equal(t, 90*24*time.Hour, cfg.TTL)
}

func TestDefaultMemoryConfig(t *testing.T) {
	cfg := DefaultMemoryConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 10, cfg.MaxTurns)
	assert.Equal(t, 3, cfg.SummaryTurns)
	assert.Equal(t, 300, cfg.SummaryTokens)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
	assert.True(t, cfg.EnableCaller)
	assert.False(t, cfg.EnableStacktrace)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, "groundrag", cfg.ServiceName)
	assert.InDelta(t, 0.1, cfg.SampleRate, 0.001)
}
