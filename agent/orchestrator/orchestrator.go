package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/groundrag/agent/memory"
	"github.com/BaSui01/groundrag/agent/synthesis"
	"github.com/BaSui01/groundrag/agent/validation"
	"github.com/BaSui01/groundrag/correction"
	"github.com/BaSui01/groundrag/internal/metrics"
	"github.com/BaSui01/groundrag/rag"
	"github.com/BaSui01/groundrag/types"
)

const (
	// DefaultMaxIter 默认最多合成轮数
	DefaultMaxIter = 2
	// MaxIterCap 合成轮数硬上限
	MaxIterCap = 10

	// FeedbackHeader 追加到查询后的反馈块标题
	FeedbackHeader = "[Validation Feedback]"

	tracerName = "github.com/BaSui01/groundrag/agent/orchestrator"
)

// DegradedAnswer 合成阶段失败且没有任何可用结果时返回
const DegradedAnswer = "An answer could not be generated right now because the language model did not respond. " +
	"Please retry the question shortly."

// =============================================================================
// 🔌 协作组件
// =============================================================================

// Retriever 检索上下文
type Retriever interface {
	Retrieve(ctx context.Context, query string) (*rag.RetrievalResult, error)
}

// Synthesizer 生成答案
type Synthesizer interface {
	Synthesize(ctx context.Context, in synthesis.Input) (*synthesis.Output, error)
}

// AnswerValidator 校验答案的引用与结构
type AnswerValidator interface {
	Validate(answer string, blocks []rag.ContextBlock, synthesisNotes []string) *validation.Result
}

// WebChecker 校验网页引用
type WebChecker interface {
	Validate(answer string, web []rag.WebResult) *validation.Result
}

// CorrectionCache 纠错缓存
type CorrectionCache interface {
	Enabled() bool
	Lookup(ctx context.Context, query string) correction.LookupResult
	Store(ctx context.Context, fb correction.Feedback) (correction.StoreResult, error)
	Get(ctx context.Context, id string) (*correction.Entry, error)
	Delete(ctx context.Context, id string) error
}

// ConversationMemory 会话记忆
type ConversationMemory interface {
	Summary(ctx context.Context, id string) string
	Append(ctx context.Context, id string, turn memory.Turn) error
}

// =============================================================================
// 📦 请求与响应
// =============================================================================

// Config 编排配置
type Config struct {
	MaxIter int `json:"max_iter" yaml:"max_iter"`
}

// DefaultConfig 返回默认编排配置
func DefaultConfig() Config {
	return Config{MaxIter: DefaultMaxIter}
}

// Request 一次问答请求
type Request struct {
	ConversationID string          `json:"conversation_id,omitempty"`
	Query          string          `json:"query"`
	Web            []rag.WebResult `json:"web,omitempty"`
	MemorySummary  string          `json:"memory_summary,omitempty"`
	MaxIter        int             `json:"max_iter,omitempty"`
}

// Response 问答结果
type Response struct {
	ConversationID  string         `json:"conversation_id"`
	Answer          string         `json:"answer"`
	Citations       []rag.Citation `json:"citations"`
	FromCache       bool           `json:"from_cache"`
	Confidence      float64        `json:"confidence"`
	Iterations      int            `json:"iterations"`
	Validated       bool           `json:"validated"`
	KnowledgeGaps   []string       `json:"knowledge_gaps,omitempty"`
	ValidationNotes []string       `json:"validation_notes,omitempty"`
	RetrievalNotes  []string       `json:"retrieval_notes,omitempty"`
	CorrectionID    string         `json:"correction_id,omitempty"`
}

// =============================================================================
// 🎭 编排器
// =============================================================================

// Orchestrator 驱动 检索 → 合成 → 校验 →（反馈 → 合成）→ 完成 的状态机
type Orchestrator struct {
	retriever   Retriever
	synthesizer Synthesizer
	validator   AnswerValidator
	web         WebChecker
	corrections CorrectionCache
	memory      ConversationMemory
	metrics     *metrics.Collector
	tracer      trace.Tracer
	config      Config
	logger      *zap.Logger
}

// Option 编排器选项
type Option func(*Orchestrator)

// WithWebValidator 设置网页引用校验器
func WithWebValidator(w WebChecker) Option {
	return func(o *Orchestrator) { o.web = w }
}

// WithCorrections 设置纠错缓存
func WithCorrections(c CorrectionCache) Option {
	return func(o *Orchestrator) { o.corrections = c }
}

// WithMemory 设置会话记忆
func WithMemory(m ConversationMemory) Option {
	return func(o *Orchestrator) { o.memory = m }
}

// WithMetrics 设置指标收集器
func WithMetrics(m *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer 设置 tracer，默认使用全局 TracerProvider
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// New 创建编排器
func New(retriever Retriever, synthesizer Synthesizer, validator AnswerValidator, config Config, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.MaxIter = clampIter(config.MaxIter, DefaultMaxIter)
	o := &Orchestrator{
		retriever:   retriever,
		synthesizer: synthesizer,
		validator:   validator,
		config:      config,
		logger:      logger.With(zap.String("component", "orchestrator")),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	return o
}

func clampIter(n, def int) int {
	if n <= 0 {
		n = def
	}
	if n > MaxIterCap {
		n = MaxIterCap
	}
	return n
}

// run 一次请求的可变状态
type run struct {
	id      string
	state   State
	req     Request
	maxIter int

	retrieval  *rag.RetrievalResult
	output     *synthesis.Output
	result     *validation.Result
	feedback   []string
	seen       map[string]struct{}
	iterations int
	degraded   []string
	err        error
}

// ProcessQuery 处理一次问答请求
func (o *Orchestrator) ProcessQuery(ctx context.Context, req Request) (*Response, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "query is required").
			WithHTTPStatus(http.StatusBadRequest)
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.ProcessQuery",
		trace.WithAttributes(attribute.String("conversation.id", req.ConversationID)))
	defer span.End()

	log := o.logger.With(zap.String("conversation_id", req.ConversationID))

	if resp := o.fromCorrection(ctx, req); resp != nil {
		span.SetAttributes(attribute.Bool("answer.from_cache", true))
		o.remember(ctx, req, resp)
		o.metrics.RecordQuery("correction", nil)
		log.Info("answered from correction cache", zap.Float64("confidence", resp.Confidence))
		return resp, nil
	}

	if req.MemorySummary == "" && o.memory != nil {
		req.MemorySummary = o.memory.Summary(ctx, req.ConversationID)
	}

	r := &run{
		id:      req.ConversationID,
		state:   StateRetrieving,
		req:     req,
		maxIter: clampIter(req.MaxIter, o.config.MaxIter),
		seen:    make(map[string]struct{}),
	}

	for r.state != StateDone {
		next, err := o.step(ctx, r)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.metrics.RecordQuery("pipeline", err)
			return nil, err
		}
		if err := o.transition(r, next); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	if r.err != nil {
		span.RecordError(r.err)
		span.SetStatus(codes.Error, r.err.Error())
		o.metrics.RecordQuery("pipeline", r.err)
		log.Error("query failed", zap.Error(r.err))
		return nil, r.err
	}

	resp := o.assemble(r)
	o.metrics.RecordIterations(resp.Iterations)
	o.metrics.RecordKnowledgeGaps(len(resp.KnowledgeGaps))
	o.metrics.RecordQuery("pipeline", nil)
	span.SetAttributes(
		attribute.Int("pipeline.iterations", resp.Iterations),
		attribute.Int("answer.citations", len(resp.Citations)),
		attribute.Bool("answer.validated", resp.Validated),
	)
	o.remember(ctx, req, resp)

	log.Info("query answered",
		zap.Int("iterations", resp.Iterations),
		zap.Int("citations", len(resp.Citations)),
		zap.Int("validation_notes", len(resp.ValidationNotes)),
		zap.Bool("validated", resp.Validated))
	return resp, nil
}

// transition 校验并执行状态转换
func (o *Orchestrator) transition(r *run, next State) error {
	if !CanTransition(r.state, next) {
		bad := ErrInvalidTransition{From: r.state, To: next}
		return types.NewError(types.ErrInvalidTransition, bad.Error()).
			WithCause(bad).
			WithHTTPStatus(http.StatusInternalServerError)
	}
	o.metrics.RecordStateTransition(string(r.state), string(next))
	o.logger.Debug("state transition",
		zap.String("conversation_id", r.id),
		zap.String("from", string(r.state)),
		zap.String("to", string(next)))
	r.state = next
	return nil
}

// step 执行当前状态并返回下一个状态
func (o *Orchestrator) step(ctx context.Context, r *run) (State, error) {
	switch r.state {
	case StateRetrieving:
		return o.retrieve(ctx, r), nil
	case StateSynthesizing:
		return o.synthesize(ctx, r), nil
	case StateValidating:
		return o.validate(ctx, r), nil
	case StateFeedback:
		return o.collectFeedback(r), nil
	default:
		return "", types.NewError(types.ErrInternalError, fmt.Sprintf("no handler for state %q", r.state))
	}
}

// stage 为一个阶段开启 span 并在结束时记录耗时
func (o *Orchestrator) stage(ctx context.Context, r *run, name State) (context.Context, func(error)) {
	ctx, span := o.tracer.Start(ctx, "orchestrator."+string(name),
		trace.WithAttributes(attribute.Int("pipeline.iteration", r.iterations)))
	start := time.Now()
	return ctx, func(err error) {
		d := time.Since(start)
		o.metrics.RecordStage(string(name), err, d)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.logger.Warn("stage failed",
				zap.String("conversation_id", r.id),
				zap.String("stage", string(name)),
				zap.Duration("duration", d),
				zap.Error(err))
		} else {
			o.logger.Debug("stage completed",
				zap.String("conversation_id", r.id),
				zap.String("stage", string(name)),
				zap.Duration("duration", d))
		}
		span.End()
	}
}

func (o *Orchestrator) retrieve(ctx context.Context, r *run) State {
	ctx, done := o.stage(ctx, r, StateRetrieving)
	res, err := o.retriever.Retrieve(ctx, r.req.Query)
	done(err)
	if err != nil {
		if _, ok := types.AsError(err); ok {
			r.err = err
		} else {
			r.err = types.WrapError(err, types.ErrRetrievalFailed, "retrieval failed").
				WithHTTPStatus(http.StatusBadGateway)
		}
		return StateDone
	}
	if res == nil {
		res = &rag.RetrievalResult{}
	}
	r.retrieval = res
	return StateSynthesizing
}

func (o *Orchestrator) synthesize(ctx context.Context, r *run) State {
	r.iterations++
	ctx, done := o.stage(ctx, r, StateSynthesizing)
	out, err := o.synthesizer.Synthesize(ctx, synthesis.Input{
		Query:         withFeedback(r.req.Query, r.feedback),
		Blocks:        r.retrieval.ContextBlocks,
		Web:           r.req.Web,
		MemorySummary: r.req.MemorySummary,
	})
	if err == nil && out == nil {
		err = fmt.Errorf("synthesizer returned no output")
	}
	done(err)
	if err != nil {
		r.degraded = append(r.degraded, fmt.Sprintf("synthesis failed on iteration %d: %v", r.iterations, err))
		if r.output == nil {
			r.output = &synthesis.Output{Answer: DegradedAnswer}
		}
		return StateDone
	}
	r.output = out
	return StateValidating
}

func (o *Orchestrator) validate(ctx context.Context, r *run) State {
	ctx, done := o.stage(ctx, r, StateValidating)

	var base, web *validation.Result
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		defer recoverStage(&err, "validator")
		base = o.validator.Validate(r.output.Answer, r.output.UsedBlocks, r.output.Notes)
		return nil
	})
	if o.web != nil && len(r.req.Web) > 0 {
		g.Go(func() (err error) {
			defer recoverStage(&err, "web validator")
			web = o.web.Validate(r.output.Answer, r.req.Web)
			return nil
		})
	}
	err := g.Wait()
	done(err)

	if base == nil {
		// 校验失败视为空结果，答案照常返回
		if err != nil {
			r.degraded = append(r.degraded, fmt.Sprintf("validation failed: %v", err))
		}
		r.result = nil
		return StateDone
	}
	base.Merge(web)
	r.result = base
	for _, f := range base.Findings {
		o.metrics.RecordValidationFinding(f.Code)
	}

	if base.HasFeedback() && r.iterations < r.maxIter && len(r.output.UsedBlocks) > 0 {
		return StateFeedback
	}
	return StateDone
}

// collectFeedback 累积去重后的反馈，供下一轮合成使用
func (o *Orchestrator) collectFeedback(r *run) State {
	for _, f := range r.result.Feedback {
		if _, dup := r.seen[f]; dup {
			continue
		}
		r.seen[f] = struct{}{}
		r.feedback = append(r.feedback, f)
	}
	o.logger.Debug("re-synthesizing with feedback",
		zap.String("conversation_id", r.id),
		zap.Int("feedback", len(r.feedback)),
		zap.Int("iteration", r.iterations))
	return StateSynthesizing
}

func recoverStage(err *error, name string) {
	if p := recover(); p != nil {
		*err = fmt.Errorf("%s panicked: %v", name, p)
	}
}

// withFeedback 把反馈以独立块追加到查询之后
func withFeedback(query string, feedback []string) string {
	if len(feedback) == 0 {
		return query
	}
	var sb strings.Builder
	sb.WriteString(query)
	sb.WriteString("\n\n")
	sb.WriteString(FeedbackHeader)
	for _, f := range feedback {
		sb.WriteString("\n- ")
		sb.WriteString(f)
	}
	return sb.String()
}

// assemble 生成最终响应，引用按实际使用的上下文块位置编号
func (o *Orchestrator) assemble(r *run) *Response {
	resp := &Response{
		ConversationID: r.id,
		Iterations:     r.iterations,
		Confidence:     r.retrieval.TopScore,
		KnowledgeGaps:  r.retrieval.KnowledgeGaps,
		RetrievalNotes: r.retrieval.RetrievalNotes,
		Validated:      true,
	}

	out := r.output
	web := r.req.Web
	if len(web) > synthesis.MaxWebResults {
		web = web[:synthesis.MaxWebResults]
	}
	resp.Citations = append(rag.CitationsFromBlocks(out.UsedBlocks), rag.CitationsFromWeb(web)...)

	if r.result != nil {
		resp.Validated = r.result.Validated
		resp.ValidationNotes = append(resp.ValidationNotes, r.result.Notes...)
	}
	resp.ValidationNotes = append(resp.ValidationNotes, r.degraded...)
	if len(r.degraded) > 0 && r.result == nil {
		resp.Validated = false
	}
	resp.Answer = validation.Annotate(out.Answer, resp.ValidationNotes)
	return resp
}

// fromCorrection 纠错缓存命中时直接返回人工确认的答案
func (o *Orchestrator) fromCorrection(ctx context.Context, req Request) *Response {
	if o.corrections == nil || !o.corrections.Enabled() {
		return nil
	}
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "orchestrator.correction_lookup")
	res := o.corrections.Lookup(ctx, req.Query)
	span.SetAttributes(attribute.Bool("correction.found", res.Found), attribute.String("correction.tier", string(res.Tier)))
	span.End()
	o.metrics.RecordStage("correction_lookup", nil, time.Since(start))

	if !res.Found || res.Correction == nil {
		o.metrics.RecordCacheMiss("correction")
		return nil
	}
	o.metrics.RecordCacheHit("correction_" + string(res.Tier))

	entry := res.Correction
	var citations []rag.Citation
	if entry.CorrectAnswerSource != "" {
		citations = []rag.Citation{{Ref: "#1", ID: entry.ID, Title: "Verified correction", Source: entry.CorrectAnswerSource}}
	}
	return &Response{
		ConversationID: req.ConversationID,
		Answer:         entry.CorrectAnswer,
		Citations:      citations,
		FromCache:      true,
		Confidence:     res.Confidence,
		Iterations:     0,
		Validated:      true,
		CorrectionID:   entry.ID,
	}
}

// remember 追加一轮会话记忆，失败只记日志
func (o *Orchestrator) remember(ctx context.Context, req Request, resp *Response) {
	if o.memory == nil {
		return
	}
	turn := memory.Turn{
		Query:     req.Query,
		Answer:    validation.StripNotes(resp.Answer),
		FromCache: resp.FromCache,
		At:        time.Now(),
	}
	if err := o.memory.Append(ctx, req.ConversationID, turn); err != nil {
		o.logger.Warn("failed to append conversation memory",
			zap.String("conversation_id", req.ConversationID),
			zap.Error(err))
	}
}

// =============================================================================
// 🗂️ 纠错缓存操作
// =============================================================================

// CheckCache 只查询纠错缓存
func (o *Orchestrator) CheckCache(ctx context.Context, query string) (correction.LookupResult, error) {
	if strings.TrimSpace(query) == "" {
		return correction.LookupResult{}, types.NewError(types.ErrInvalidRequest, "query is required").
			WithHTTPStatus(http.StatusBadRequest)
	}
	if o.corrections == nil {
		return correction.LookupResult{}, nil
	}
	res := o.corrections.Lookup(ctx, query)
	if res.Found {
		o.metrics.RecordCacheHit("correction_" + string(res.Tier))
	} else {
		o.metrics.RecordCacheMiss("correction")
	}
	return res, nil
}

// StoreCorrection 写入人工纠错。未配置纠错缓存时为空操作。
func (o *Orchestrator) StoreCorrection(ctx context.Context, fb correction.Feedback) (correction.StoreResult, error) {
	if o.corrections == nil {
		return correction.StoreResult{}, nil
	}
	res, err := o.corrections.Store(ctx, fb)
	o.metrics.RecordCorrectionStored(err)
	if err != nil {
		return res, err
	}
	o.logger.Info("correction stored", zap.String("id", res.ID), zap.Bool("success", res.Success))
	return res, nil
}

// GetCorrection 读取纠错记录
func (o *Orchestrator) GetCorrection(ctx context.Context, id string) (*correction.Entry, error) {
	if o.corrections == nil {
		return nil, errCacheUnavailable()
	}
	return o.corrections.Get(ctx, id)
}

// DeleteCorrection 删除纠错记录
func (o *Orchestrator) DeleteCorrection(ctx context.Context, id string) error {
	if o.corrections == nil {
		return errCacheUnavailable()
	}
	return o.corrections.Delete(ctx, id)
}

func errCacheUnavailable() error {
	return types.NewError(types.ErrCacheUnavailable, "correction cache is not configured").
		WithHTTPStatus(http.StatusServiceUnavailable)
}
