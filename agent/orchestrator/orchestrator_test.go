package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/BaSui01/groundrag/agent/memory"
	"github.com/BaSui01/groundrag/agent/synthesis"
	"github.com/BaSui01/groundrag/agent/validation"
	"github.com/BaSui01/groundrag/correction"
	"github.com/BaSui01/groundrag/internal/metrics"
	"github.com/BaSui01/groundrag/rag"
	"github.com/BaSui01/groundrag/types"
)

// =============================================================================
// 🧪 测试替身
// =============================================================================

type fakeRetriever struct {
	result *rag.RetrievalResult
	err    error
	calls  atomic.Int32
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string) (*rag.RetrievalResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// scriptedSynth 按顺序返回预置答案，超出后重复最后一个
type scriptedSynth struct {
	mu      sync.Mutex
	answers []string
	notes   [][]string
	errs    []error
	inputs  []synthesis.Input
}

func (s *scriptedSynth) Synthesize(ctx context.Context, in synthesis.Input) (*synthesis.Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.inputs)
	s.inputs = append(s.inputs, in)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	answer := s.answers[len(s.answers)-1]
	if i < len(s.answers) {
		answer = s.answers[i]
	}
	out := &synthesis.Output{
		Answer:     answer,
		UsedBlocks: in.Blocks,
		Citations:  rag.CitationsFromBlocks(in.Blocks),
	}
	if i < len(s.notes) {
		out.Notes = s.notes[i]
	}
	return out, nil
}

func (s *scriptedSynth) calls() []synthesis.Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]synthesis.Input(nil), s.inputs...)
}

type panickyValidator struct{}

func (panickyValidator) Validate(string, []rag.ContextBlock, []string) *validation.Result {
	panic("boom")
}

type fakeMemory struct {
	mu      sync.Mutex
	summary string
	turns   []memory.Turn
	err     error
}

func (m *fakeMemory) Summary(ctx context.Context, id string) string { return m.summary }

func (m *fakeMemory) Append(ctx context.Context, id string, turn memory.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turn)
	return m.err
}

const (
	cleanAnswer = "First, the default ATT_MTU is 23 bytes [#1].\n" +
		"Second, a notification carries at most ATT_MTU minus 3 octets [#2].\n" +
		"Finally, the ATT_MTU can be raised with the Exchange MTU procedure [#3]."
	uncitedAnswer = "Step 1: The default ATT_MTU is 23 bytes.\n" +
		"Step 2: A notification carries at most ATT_MTU minus 3 octets [#2]."
)

func mtuBlocks() []rag.ContextBlock {
	return []rag.ContextBlock{
		{ID: "gatt#0", DocID: "core-gatt", Title: "Vol 3 Part F", Source: "core.pdf",
			Content: "The default ATT_MTU is 23 bytes for LE."},
		{ID: "gatt#1", DocID: "core-gatt", Title: "Vol 3 Part G", Source: "core.pdf",
			Content: "A notification carries at most ATT_MTU minus 3 octets of value."},
		{ID: "gatt#2", DocID: "core-gatt", Title: "Vol 3 Part F", Source: "core.pdf",
			Content: "The ATT_MTU can be raised with the Exchange MTU procedure."},
	}
}

func mtuRetriever() *fakeRetriever {
	return &fakeRetriever{result: &rag.RetrievalResult{
		ContextBlocks: mtuBlocks(),
		TopScore:      0.82,
		KnowledgeGaps: []string{"Retrieved context covers a single topic (gatt); related areas may be missing."},
	}}
}

func newOrchestrator(r Retriever, s Synthesizer, opts ...Option) *Orchestrator {
	return New(r, s, validation.NewValidator(validation.DefaultConfig(), nil), DefaultConfig(), zap.NewNop(), opts...)
}

// =============================================================================
// 🎭 ProcessQuery
// =============================================================================

func TestProcessQuery_EmptyQuery(t *testing.T) {
	o := newOrchestrator(mtuRetriever(), &scriptedSynth{answers: []string{cleanAnswer}})

	_, err := o.ProcessQuery(context.Background(), Request{Query: "   "})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}

func TestProcessQuery_CleanAnswerSingleIteration(t *testing.T) {
	retriever := mtuRetriever()
	synth := &scriptedSynth{answers: []string{cleanAnswer}}
	o := newOrchestrator(retriever, synth)

	resp, err := o.ProcessQuery(context.Background(), Request{Query: "What is the default ATT_MTU?"})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ConversationID)
	assert.Equal(t, 1, resp.Iterations)
	assert.True(t, resp.Validated)
	assert.False(t, resp.FromCache)
	assert.InDelta(t, 0.82, resp.Confidence, 1e-9)
	assert.Empty(t, resp.ValidationNotes)
	assert.Equal(t, cleanAnswer, resp.Answer)
	require.Len(t, resp.Citations, 3)
	assert.Equal(t, "#1", resp.Citations[0].Ref)
	assert.Equal(t, "gatt#0", resp.Citations[0].ID)
	assert.Equal(t, "#2", resp.Citations[1].Ref)
	assert.Len(t, resp.KnowledgeGaps, 1)
	assert.Equal(t, int32(1), retriever.calls.Load())
}

func TestProcessQuery_KeepsConversationID(t *testing.T) {
	o := newOrchestrator(mtuRetriever(), &scriptedSynth{answers: []string{cleanAnswer}})

	resp, err := o.ProcessQuery(context.Background(), Request{ConversationID: "conv-1", Query: "mtu?"})
	require.NoError(t, err)
	assert.Equal(t, "conv-1", resp.ConversationID)
}

func TestProcessQuery_FeedbackLoopResynthesizes(t *testing.T) {
	synth := &scriptedSynth{answers: []string{uncitedAnswer, cleanAnswer}}
	o := newOrchestrator(mtuRetriever(), synth)

	resp, err := o.ProcessQuery(context.Background(), Request{Query: "What is the default ATT_MTU?"})
	require.NoError(t, err)

	assert.Equal(t, 2, resp.Iterations)
	assert.Empty(t, resp.ValidationNotes)

	inputs := synth.calls()
	require.Len(t, inputs, 2)
	assert.Equal(t, "What is the default ATT_MTU?", inputs[0].Query)
	assert.Contains(t, inputs[1].Query, FeedbackHeader)
	assert.Contains(t, inputs[1].Query, "Add a single [#n] citation")
	assert.True(t, strings.HasPrefix(inputs[1].Query, "What is the default ATT_MTU?\n\n"))
}

func TestProcessQuery_SynthesisNotesTriggerResynthesis(t *testing.T) {
	synth := &scriptedSynth{
		answers: []string{cleanAnswer},
		notes:   [][]string{{"answer has no glossary section"}},
	}
	o := newOrchestrator(mtuRetriever(), synth)

	resp, err := o.ProcessQuery(context.Background(), Request{Query: "What is the default ATT_MTU?"})
	require.NoError(t, err)

	assert.Equal(t, 2, resp.Iterations)
	assert.Empty(t, resp.ValidationNotes)
	assert.Equal(t, cleanAnswer, resp.Answer)

	inputs := synth.calls()
	require.Len(t, inputs, 2)
	assert.Contains(t, inputs[1].Query, FeedbackHeader)
	assert.Contains(t, inputs[1].Query, "Add a terminal Glossary section")
}

func TestProcessQuery_FeedbackBoundedByMaxIter(t *testing.T) {
	tests := []struct {
		name    string
		maxIter int
		want    int
	}{
		{"default", 0, DefaultMaxIter},
		{"single pass", 1, 1},
		{"explicit", 4, 4},
		{"hard cap", 50, MaxIterCap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synth := &scriptedSynth{answers: []string{uncitedAnswer}}
			o := newOrchestrator(mtuRetriever(), synth)

			resp, err := o.ProcessQuery(context.Background(), Request{Query: "mtu?", MaxIter: tt.maxIter})
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Iterations)
			assert.Len(t, synth.calls(), tt.want)
			assert.Contains(t, resp.Answer, validation.NotesHeader)
			assert.Contains(t, strings.Join(resp.ValidationNotes, "\n"), "uncited step")
		})
	}
}

func TestProcessQuery_FeedbackIsDeduplicated(t *testing.T) {
	synth := &scriptedSynth{answers: []string{uncitedAnswer}}
	o := newOrchestrator(mtuRetriever(), synth)

	_, err := o.ProcessQuery(context.Background(), Request{Query: "mtu?", MaxIter: 3})
	require.NoError(t, err)

	inputs := synth.calls()
	require.Len(t, inputs, 3)
	assert.Equal(t, inputs[1].Query, inputs[2].Query)
	assert.Equal(t, 1, strings.Count(inputs[2].Query, "Add a single [#n] citation"))
}

func TestProcessQuery_OrphanCitationNotValidated(t *testing.T) {
	answer := "Step 1: The default ATT_MTU is 23 bytes [#1].\n" +
		"Step 2: A notification carries at most ATT_MTU minus 3 octets [#7]."
	o := newOrchestrator(mtuRetriever(), &scriptedSynth{answers: []string{answer}})

	resp, err := o.ProcessQuery(context.Background(), Request{Query: "mtu?", MaxIter: 1})
	require.NoError(t, err)
	assert.False(t, resp.Validated)
	assert.Contains(t, strings.Join(resp.ValidationNotes, "\n"), "orphan citation [#7]")
	// 引用只来自实际使用的上下文块
	assert.Len(t, resp.Citations, 3)
}

func TestProcessQuery_RetrievalFailureIsTerminal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code types.ErrorCode
	}{
		{"plain error", errors.New("index down"), types.ErrRetrievalFailed},
		{"typed error kept", types.NewError(types.ErrNoEmbeddings, "no usable query embeddings"), types.ErrNoEmbeddings},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synth := &scriptedSynth{answers: []string{cleanAnswer}}
			o := newOrchestrator(&fakeRetriever{err: tt.err}, synth)

			resp, err := o.ProcessQuery(context.Background(), Request{Query: "mtu?"})
			require.Error(t, err)
			assert.Nil(t, resp)
			assert.True(t, types.IsErrorCode(err, tt.code))
			assert.Empty(t, synth.calls())
		})
	}
}

func TestProcessQuery_SynthesisFailureDegrades(t *testing.T) {
	synth := &scriptedSynth{answers: []string{cleanAnswer}, errs: []error{errors.New("upstream timeout")}}
	o := newOrchestrator(mtuRetriever(), synth)

	resp, err := o.ProcessQuery(context.Background(), Request{Query: "mtu?"})
	require.NoError(t, err)
	assert.False(t, resp.Validated)
	assert.True(t, strings.HasPrefix(resp.Answer, DegradedAnswer))
	assert.Contains(t, strings.Join(resp.ValidationNotes, "\n"), "synthesis failed on iteration 1")
	assert.Equal(t, 1, resp.Iterations)
}

func TestProcessQuery_SecondSynthesisFailureKeepsPriorAnswer(t *testing.T) {
	synth := &scriptedSynth{answers: []string{uncitedAnswer}, errs: []error{nil, errors.New("rate limited")}}
	o := newOrchestrator(mtuRetriever(), synth)

	resp, err := o.ProcessQuery(context.Background(), Request{Query: "mtu?"})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Iterations)
	assert.True(t, strings.HasPrefix(resp.Answer, "Step 1: The default ATT_MTU is 23 bytes."))
	notes := strings.Join(resp.ValidationNotes, "\n")
	assert.Contains(t, notes, "uncited step")
	assert.Contains(t, notes, "synthesis failed on iteration 2")
}

func TestProcessQuery_ValidatorPanicIsContained(t *testing.T) {
	o := New(mtuRetriever(), &scriptedSynth{answers: []string{cleanAnswer}}, panickyValidator{}, DefaultConfig(), nil)

	resp, err := o.ProcessQuery(context.Background(), Request{Query: "mtu?"})
	require.NoError(t, err)
	assert.Contains(t, strings.Join(resp.ValidationNotes, "\n"), "validator panicked")
	assert.True(t, strings.HasPrefix(resp.Answer, cleanAnswer))
}

func TestProcessQuery_NoContextSkipsFeedback(t *testing.T) {
	retriever := &fakeRetriever{result: &rag.RetrievalResult{
		KnowledgeGaps: []string{`No relevant context was found for "mtu?".`},
	}}
	synth := &scriptedSynth{answers: []string{synthesis.MissingContextAnswer}}
	o := newOrchestrator(retriever, synth)

	resp, err := o.ProcessQuery(context.Background(), Request{Query: "mtu?"})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Iterations)
	assert.Empty(t, resp.Citations)
	assert.NotEmpty(t, resp.KnowledgeGaps)
	assert.True(t, strings.HasPrefix(resp.Answer, synthesis.MissingContextAnswer))
}

func TestProcessQuery_WebValidatorNotesMerged(t *testing.T) {
	answer := cleanAnswer + "\nSee also the vendor note [W2]."
	web := []rag.WebResult{{URL: "https://example.com/mtu", Title: "MTU", Content: "ATT_MTU default is 23 bytes"}}
	o := newOrchestrator(mtuRetriever(), &scriptedSynth{answers: []string{answer}},
		WithWebValidator(validation.NewWebValidator(0, nil)))

	resp, err := o.ProcessQuery(context.Background(), Request{Query: "mtu?", Web: web})
	require.NoError(t, err)
	assert.True(t, resp.Validated)
	assert.Contains(t, strings.Join(resp.ValidationNotes, "\n"), "orphan web citation [W2]")
	require.Len(t, resp.Citations, 4)
	assert.Equal(t, "W1", resp.Citations[3].Ref)
}

func TestProcessQuery_MemorySummaryAndTurn(t *testing.T) {
	mem := &fakeMemory{summary: "Earlier: user asked about LE connection intervals."}
	synth := &scriptedSynth{answers: []string{cleanAnswer}}
	o := newOrchestrator(mtuRetriever(), synth, WithMemory(mem))

	_, err := o.ProcessQuery(context.Background(), Request{ConversationID: "c1", Query: "mtu?"})
	require.NoError(t, err)

	require.Len(t, synth.calls(), 1)
	assert.Equal(t, mem.summary, synth.calls()[0].MemorySummary)
	require.Len(t, mem.turns, 1)
	assert.Equal(t, "mtu?", mem.turns[0].Query)
	assert.Equal(t, cleanAnswer, mem.turns[0].Answer)
}

func TestProcessQuery_ExplicitMemorySummaryWins(t *testing.T) {
	mem := &fakeMemory{summary: "stored", err: errors.New("kv down")}
	synth := &scriptedSynth{answers: []string{cleanAnswer}}
	o := newOrchestrator(mtuRetriever(), synth, WithMemory(mem))

	_, err := o.ProcessQuery(context.Background(), Request{Query: "mtu?", MemorySummary: "explicit"})
	require.NoError(t, err, "memory append failure must not fail the query")
	assert.Equal(t, "explicit", synth.calls()[0].MemorySummary)
}

func TestProcessQuery_RecordsMetricsAndSpans(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollectorWithRegistry("groundrag", reg, nil)
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	o := newOrchestrator(mtuRetriever(), &scriptedSynth{answers: []string{uncitedAnswer, cleanAnswer}},
		WithMetrics(collector), WithTracer(tp.Tracer("test")))

	_, err := o.ProcessQuery(context.Background(), Request{Query: "mtu?"})
	require.NoError(t, err)

	// 两轮合成共经历五种不同的转换
	n, err := testutil.GatherAndCount(reg, "groundrag_pipeline_state_transitions_total")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.Contains(t, names, "orchestrator.ProcessQuery")
	assert.Contains(t, names, "orchestrator.retrieving")
	assert.Contains(t, names, "orchestrator.synthesizing")
	assert.Contains(t, names, "orchestrator.validating")
}

func TestTransition_RejectsInvalid(t *testing.T) {
	o := newOrchestrator(mtuRetriever(), &scriptedSynth{answers: []string{cleanAnswer}})
	r := &run{state: StateDone}

	err := o.transition(r, StateSynthesizing)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidTransition))
	var bad ErrInvalidTransition
	assert.ErrorAs(t, err, &bad)
	assert.Equal(t, StateDone, bad.From)
	assert.Equal(t, StateDone, r.state)
}

func TestWithFeedback(t *testing.T) {
	assert.Equal(t, "q", withFeedback("q", nil))
	assert.Equal(t, "q\n\n[Validation Feedback]\n- a\n- b", withFeedback("q", []string{"a", "b"}))
}

// =============================================================================
// 🗂️ 纠错缓存操作
// =============================================================================

func TestCorrectionOperations_WithoutCache(t *testing.T) {
	o := newOrchestrator(mtuRetriever(), &scriptedSynth{answers: []string{cleanAnswer}})
	ctx := context.Background()

	res, err := o.CheckCache(ctx, "mtu?")
	require.NoError(t, err)
	assert.False(t, res.Found)

	stored, err := o.StoreCorrection(ctx, correction.Feedback{Question: "q", CorrectAnswer: "a"})
	require.NoError(t, err)
	assert.False(t, stored.Success)

	_, err = o.GetCorrection(ctx, "id")
	assert.True(t, types.IsErrorCode(err, types.ErrCacheUnavailable))

	err = o.DeleteCorrection(ctx, "id")
	assert.True(t, types.IsErrorCode(err, types.ErrCacheUnavailable))

	_, err = o.CheckCache(ctx, " ")
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}
