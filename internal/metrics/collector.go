package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。所有 Record 方法对 nil 接收者安全，未配置指标时可直接传 nil。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 上游服务指标（生成、嵌入、重排、向量索引）
	upstreamRequestsTotal   *prometheus.CounterVec
	upstreamRequestDuration *prometheus.HistogramVec
	upstreamCircuitState    *prometheus.GaugeVec
	llmTokensUsed           *prometheus.CounterVec

	// 问答流水线指标
	stageDuration      *prometheus.HistogramVec
	stateTransitions   *prometheus.CounterVec
	pipelineIterations prometheus.Histogram
	validationFindings *prometheus.CounterVec
	knowledgeGapsTotal prometheus.Counter
	queriesTotal       *prometheus.CounterVec
	correctionsStored  *prometheus.CounterVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 在默认 Registry 上创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegistry 在指定 Registerer 上创建指标收集器
func NewCollectorWithRegistry(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 上游服务指标
	c.upstreamRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of upstream capability calls",
		},
		[]string{"capability", "provider", "status"}, // capability: generate, embed, rerank, vector_search
	)

	c.upstreamRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream capability call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"capability", "provider"},
	)

	c.upstreamCircuitState = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upstream_circuit_state",
			Help:      "Upstream circuit breaker state (0=closed, 1=open, 2=half_open)",
		},
		[]string{"upstream"},
	)

	c.llmTokensUsed = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)

	// 流水线指标
	c.stageDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"stage", "status"},
	)

	c.stateTransitions = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_state_transitions_total",
			Help:      "Total number of pipeline state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	c.pipelineIterations = f.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_iterations",
			Help:      "Synthesis iterations per answered query",
			Buckets:   []float64{1, 2, 3, 4, 5, 10},
		},
	)

	c.validationFindings = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_findings_total",
			Help:      "Total number of validation findings by code",
		},
		[]string{"code"},
	)

	c.knowledgeGapsTotal = f.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "knowledge_gaps_total",
			Help:      "Total number of knowledge gaps reported by retrieval",
		},
	)

	c.queriesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of processed queries",
		},
		[]string{"source", "status"}, // source: pipeline, correction
	)

	c.correctionsStored = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrections_stored_total",
			Help:      "Total number of correction store attempts",
		},
		[]string{"status"},
	)

	// 缓存指标
	c.cacheHits = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// 数据库指标
	c.dbConnectionsOpen = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🤖 上游调用指标记录
// =============================================================================

// RecordUpstream 记录一次上游能力调用
func (c *Collector) RecordUpstream(capability, provider string, err error, duration time.Duration) {
	if c == nil {
		return
	}
	c.upstreamRequestsTotal.WithLabelValues(capability, provider, outcome(err)).Inc()
	c.upstreamRequestDuration.WithLabelValues(capability, provider).Observe(duration.Seconds())
}

// RecordCircuitState 记录上游熔断器状态
func (c *Collector) RecordCircuitState(upstream string, state int) {
	if c == nil {
		return
	}
	c.upstreamCircuitState.WithLabelValues(upstream).Set(float64(state))
}

// RecordTokens 记录生成调用的 token 用量
func (c *Collector) RecordTokens(provider, model string, promptTokens, completionTokens int) {
	if c == nil {
		return
	}
	c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
}

// =============================================================================
// 🎭 流水线指标记录
// =============================================================================

// RecordStage 记录流水线阶段耗时
func (c *Collector) RecordStage(stage string, err error, duration time.Duration) {
	if c == nil {
		return
	}
	c.stageDuration.WithLabelValues(stage, outcome(err)).Observe(duration.Seconds())
}

// RecordStateTransition 记录状态转换
func (c *Collector) RecordStateTransition(from, to string) {
	if c == nil {
		return
	}
	c.stateTransitions.WithLabelValues(from, to).Inc()
}

// RecordIterations 记录一次查询的合成轮数
func (c *Collector) RecordIterations(n int) {
	if c == nil {
		return
	}
	c.pipelineIterations.Observe(float64(n))
}

// RecordValidationFinding 记录校验发现
func (c *Collector) RecordValidationFinding(code string) {
	if c == nil {
		return
	}
	c.validationFindings.WithLabelValues(code).Inc()
}

// RecordKnowledgeGaps 记录知识缺口数量
func (c *Collector) RecordKnowledgeGaps(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.knowledgeGapsTotal.Add(float64(n))
}

// RecordQuery 记录查询结果来源与状态
func (c *Collector) RecordQuery(source string, err error) {
	if c == nil {
		return
	}
	c.queriesTotal.WithLabelValues(source, outcome(err)).Inc()
}

// RecordCorrectionStored 记录纠错写入
func (c *Collector) RecordCorrectionStored(err error) {
	if c == nil {
		return
	}
	c.correctionsStored.WithLabelValues(outcome(err)).Inc()
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	if c == nil {
		return
	}
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	if c == nil {
		return
	}
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
