package embedding

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/BaSui01/groundrag/llm"
	"github.com/BaSui01/groundrag/llm/retry"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	queryPrefix   = "query: "
	passagePrefix = "passage: "
)

// HTTPProvider embeds text through any OpenAI-like or self-hosted HTTP
// endpoint. The response envelope is probed rather than assumed.
//
// A failed batch is retried item by item, paced by PerItemDelay.
type HTTPProvider struct {
	*BaseProvider
	cfg     HTTPConfig
	retryer retry.Retryer
	pacer   *rate.Limiter
	logger  *zap.Logger
}

// NewHTTPProvider 创建 HTTP 嵌入提供者。retryer 为 nil 时不重试.
func NewHTTPProvider(cfg HTTPConfig, retryer retry.Retryer, logger *zap.Logger) *HTTPProvider {
	def := DefaultHTTPConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.PerItemDelay <= 0 {
		cfg.PerItemDelay = def.PerItemDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if retryer == nil {
		retryer = retry.NewBackoffRetryer(retry.NoRetryPolicy(), logger)
	}
	return &HTTPProvider{
		BaseProvider: NewBaseProvider(BaseConfig{
			Name:       cfg.Name,
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			MaxBatch:   cfg.MaxBatch,
			Timeout:    cfg.Timeout,
		}),
		cfg:     cfg,
		retryer: retryer,
		pacer:   rate.NewLimiter(rate.Every(cfg.PerItemDelay), 1),
		logger:  logger.With(zap.String("component", "embedding_http"), zap.String("provider", cfg.Name)),
	}
}

type httpEmbedRequest struct {
	Input     []string `json:"input"`
	Model     string   `json:"model,omitempty"`
	InputType string   `json:"input_type,omitempty"`
}

// Embed generates embeddings for the given inputs, in input order.
func (p *HTTPProvider) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	if req == nil || len(req.Input) == 0 {
		return nil, &llm.Error{Code: llm.ErrInvalidRequest, Message: "no input to embed", Provider: p.Name()}
	}
	model := ChooseModel(req.Model, p.cfg.Model, "")
	inputs := p.applyPrefix(req.Input, req.InputType)

	out := make([]EmbeddingData, 0, len(inputs))
	for start := 0; start < len(inputs); start += p.MaxBatchSize() {
		end := min(start+p.MaxBatchSize(), len(inputs))
		vectors, err := p.embedBatch(ctx, inputs[start:end], model, req.InputType)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			p.logger.Warn("batch embedding failed, falling back to per-item",
				zap.Int("batch_size", end-start), zap.Error(err))
			vectors, err = p.embedEach(ctx, inputs[start:end], model, req.InputType)
			if err != nil {
				return nil, err
			}
		}
		for i, v := range vectors {
			out = append(out, EmbeddingData{Index: start + i, Embedding: v})
		}
	}

	return &EmbeddingResponse{
		Provider:   p.Name(),
		Model:      model,
		Embeddings: out,
		CreatedAt:  time.Now(),
	}, nil
}

// EmbedQuery embeds a single query.
func (p *HTTPProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	return p.BaseProvider.EmbedQuery(ctx, query, p.Embed)
}

// EmbedDocuments embeds multiple documents.
func (p *HTTPProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	return p.BaseProvider.EmbedDocuments(ctx, documents, p.Embed)
}

func (p *HTTPProvider) applyPrefix(inputs []string, t InputType) []string {
	if !p.cfg.UsePrefix {
		return inputs
	}
	prefix := passagePrefix
	if t == InputTypeQuery {
		prefix = queryPrefix
	}
	out := make([]string, len(inputs))
	for i, s := range inputs {
		out[i] = prefix + s
	}
	return out
}

func (p *HTTPProvider) embedBatch(ctx context.Context, inputs []string, model string, t InputType) ([][]float64, error) {
	headers := map[string]string{}
	if p.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + p.cfg.APIKey
	}
	body := httpEmbedRequest{Input: inputs, Model: model, InputType: string(t)}

	return retry.DoWithResultTyped(p.retryer, ctx, func() ([][]float64, error) {
		raw, err := p.DoRequest(ctx, http.MethodPost, p.cfg.Endpoint, body, headers)
		if err != nil {
			return nil, err
		}
		vectors, err := ParseVectors(raw)
		if err != nil {
			return nil, &llm.Error{Code: llm.ErrMalformedResponse, Message: err.Error(), Provider: p.Name()}
		}
		if len(vectors) != len(inputs) {
			return nil, &llm.Error{
				Code:     llm.ErrMalformedResponse,
				Message:  fmt.Sprintf("expected %d embeddings, got %d", len(inputs), len(vectors)),
				Provider: p.Name(),
			}
		}
		for i, v := range vectors {
			if err := ValidateVector(v); err != nil {
				return nil, &llm.Error{
					Code:     llm.ErrMalformedResponse,
					Message:  fmt.Sprintf("embedding %d: %v", i, err),
					Provider: p.Name(),
				}
			}
		}
		return vectors, nil
	})
}

func (p *HTTPProvider) embedEach(ctx context.Context, inputs []string, model string, t InputType) ([][]float64, error) {
	out := make([][]float64, len(inputs))
	for i, in := range inputs {
		if err := p.pacer.Wait(ctx); err != nil {
			return nil, err
		}
		vectors, err := p.embedBatch(ctx, []string{in}, model, t)
		if err != nil {
			return nil, fmt.Errorf("embed item %d: %w", i, err)
		}
		out[i] = vectors[0]
	}
	return out, nil
}

// ParseVectors 从已知的嵌入响应信封中提取向量列表.
//
// 支持 data[].embedding、embeddings[][]、embeddings[].values、embedding[]、
// result.data[][]、result.embeddings[][] 以及裸数组.
func ParseVectors(raw []byte) ([][]float64, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("response body is not valid JSON")
	}
	root := gjson.ParseBytes(raw)

	if data := root.Get("data"); data.IsArray() && len(data.Array()) > 0 && data.Get("0.embedding").Exists() {
		return orderedData(data)
	}
	for _, path := range []string{"embeddings", "result.data", "result.embeddings", "data"} {
		if v := root.Get(path); v.IsArray() {
			if vectors, ok := matrix(v); ok {
				return vectors, nil
			}
		}
	}
	if v := root.Get("embedding"); v.IsArray() {
		if vec, ok := vector(v); ok {
			return [][]float64{vec}, nil
		}
		if vectors, ok := matrix(v); ok {
			return vectors, nil
		}
	}
	if root.IsArray() {
		if vectors, ok := matrix(root); ok {
			return vectors, nil
		}
		if vec, ok := vector(root); ok {
			return [][]float64{vec}, nil
		}
	}
	return nil, fmt.Errorf("no embeddings found in response envelope")
}

func orderedData(data gjson.Result) ([][]float64, error) {
	items := data.Array()
	out := make([][]float64, len(items))
	for i, item := range items {
		idx := i
		if x := item.Get("index"); x.Exists() {
			idx = int(x.Int())
		}
		if idx < 0 || idx >= len(items) || out[idx] != nil {
			return nil, fmt.Errorf("invalid embedding index %d", idx)
		}
		vec, ok := vector(item.Get("embedding"))
		if !ok {
			return nil, fmt.Errorf("embedding %d is not a numeric array", idx)
		}
		out[idx] = vec
	}
	return out, nil
}

// matrix 接受 [[...]] 或 [{"values"|"embedding": [...]}] 两种形态.
func matrix(v gjson.Result) ([][]float64, bool) {
	rows := v.Array()
	if len(rows) == 0 {
		return nil, false
	}
	out := make([][]float64, 0, len(rows))
	for _, row := range rows {
		if row.IsObject() {
			for _, key := range []string{"values", "embedding"} {
				if inner := row.Get(key); inner.IsArray() {
					row = inner
					break
				}
			}
		}
		vec, ok := vector(row)
		if !ok {
			return nil, false
		}
		out = append(out, vec)
	}
	return out, true
}

func vector(v gjson.Result) ([]float64, bool) {
	if !v.IsArray() {
		return nil, false
	}
	items := v.Array()
	out := make([]float64, len(items))
	for i, x := range items {
		if x.Type != gjson.Number {
			return nil, false
		}
		out[i] = x.Float()
	}
	return out, true
}
