package metrics

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollectorWithRegistry("groundrag", reg, zap.NewNop()), reg
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.upstreamRequestsTotal)
	assert.NotNil(t, collector.stageDuration)
	assert.NotNil(t, collector.cacheHits)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector, _ := newTestCollector(t)

	collector.RecordHTTPRequest("POST", "/api/v1/query", 200, 100*time.Millisecond, 1024, 2048)
	collector.RecordHTTPRequest("POST", "/api/v1/query", 201, 50*time.Millisecond, 512, 1024)
	collector.RecordHTTPRequest("POST", "/api/v1/query", 503, 50*time.Millisecond, 512, 1024)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/api/v1/query", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/api/v1/query", "5xx")))
}

func TestCollector_RecordUpstream(t *testing.T) {
	collector, _ := newTestCollector(t)

	collector.RecordUpstream("embed", "http-embedding", nil, 20*time.Millisecond)
	collector.RecordUpstream("embed", "http-embedding", errors.New("timeout"), time.Second)
	collector.RecordTokens("http-llm", "gpt-4o-mini", 100, 50)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.upstreamRequestsTotal.WithLabelValues("embed", "http-embedding", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.upstreamRequestsTotal.WithLabelValues("embed", "http-embedding", "error")))
	assert.Equal(t, 50.0, testutil.ToFloat64(collector.llmTokensUsed.WithLabelValues("http-llm", "gpt-4o-mini", "completion")))

	collector.RecordCircuitState("embedding", 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.upstreamCircuitState.WithLabelValues("embedding")))
}

func TestCollector_RecordPipeline(t *testing.T) {
	collector, reg := newTestCollector(t)

	collector.RecordStage("retrieving", nil, 200*time.Millisecond)
	collector.RecordStage("synthesizing", errors.New("upstream"), time.Second)
	collector.RecordStateTransition("retrieving", "synthesizing")
	collector.RecordIterations(2)
	collector.RecordValidationFinding("uncited_step")
	collector.RecordValidationFinding("uncited_step")
	collector.RecordKnowledgeGaps(1)
	collector.RecordKnowledgeGaps(0)
	collector.RecordQuery("pipeline", nil)
	collector.RecordCorrectionStored(nil)

	assert.Equal(t, 2, testutil.CollectAndCount(collector.stageDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.stateTransitions.WithLabelValues("retrieving", "synthesizing")))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.validationFindings.WithLabelValues("uncited_step")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.knowledgeGapsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.queriesTotal.WithLabelValues("pipeline", "success")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "groundrag_pipeline_stage_duration_seconds")
	assert.Contains(t, names, "groundrag_pipeline_iterations")
}

func TestCollector_RecordCacheOperation(t *testing.T) {
	collector, _ := newTestCollector(t)

	collector.RecordCacheHit("correction_exact")
	collector.RecordCacheMiss("correction")

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.cacheHits.WithLabelValues("correction_exact")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.cacheMisses.WithLabelValues("correction")))
}

func TestCollector_UpdateConnectionPool(t *testing.T) {
	collector, _ := newTestCollector(t)

	collector.RecordDBConnections("postgres", 10, 5)

	assert.Equal(t, 10.0, testutil.ToFloat64(collector.dbConnectionsOpen.WithLabelValues("postgres")))
	assert.Equal(t, 5.0, testutil.ToFloat64(collector.dbConnectionsIdle.WithLabelValues("postgres")))
}

func TestCollector_NilSafe(t *testing.T) {
	var collector *Collector
	assert.NotPanics(t, func() {
		collector.RecordHTTPRequest("GET", "/", 200, time.Millisecond, 0, 0)
		collector.RecordUpstream("generate", "x", nil, time.Millisecond)
		collector.RecordTokens("x", "m", 1, 1)
		collector.RecordStage("done", nil, 0)
		collector.RecordStateTransition("a", "b")
		collector.RecordIterations(1)
		collector.RecordValidationFinding("x")
		collector.RecordKnowledgeGaps(1)
		collector.RecordQuery("pipeline", nil)
		collector.RecordCorrectionStored(nil)
		collector.RecordCacheHit("x")
		collector.RecordCacheMiss("x")
		collector.RecordDBConnections("x", 1, 1)
		collector.RecordCircuitState("x", 0)
	})
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector, _ := newTestCollector(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordHTTPRequest("GET", "/health", 200, 100*time.Millisecond, 0, 64)
			collector.RecordUpstream("generate", "http-llm", nil, 500*time.Millisecond)
			collector.RecordCacheHit("correction_semantic")
		}()
	}
	wg.Wait()

	assert.Equal(t, 10.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/health", "2xx")))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.cacheHits.WithLabelValues("correction_semantic")))
}

func TestCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollectorWithRegistry("dup", reg, nil)
	assert.Panics(t, func() { NewCollectorWithRegistry("dup", reg, nil) })
}
