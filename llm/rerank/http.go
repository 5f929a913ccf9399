package rerank

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/BaSui01/groundrag/llm"
	"github.com/BaSui01/groundrag/llm/retry"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// HTTPProvider 通过 HTTP 调用重排服务，并探测多种响应信封.
type HTTPProvider struct {
	cfg     HTTPConfig
	client  *http.Client
	retryer retry.Retryer
	logger  *zap.Logger
}

// NewHTTPProvider 创建 HTTP 重排提供者。retryer 为 nil 时不重试.
func NewHTTPProvider(cfg HTTPConfig, retryer retry.Retryer, logger *zap.Logger) *HTTPProvider {
	def := DefaultHTTPConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if retryer == nil {
		retryer = retry.NewBackoffRetryer(retry.NoRetryPolicy(), logger)
	}
	return &HTTPProvider{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		retryer: retryer,
		logger:  logger.With(zap.String("component", "rerank_http"), zap.String("provider", cfg.Name)),
	}
}

func (p *HTTPProvider) Name() string { return p.cfg.Name }

type httpRerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Texts     []string `json:"texts"`
	Model     string   `json:"model,omitempty"`
	TopN      int      `json:"top_n,omitempty"`
}

// Rerank 重新排序文档，结果按分数降序排列.
func (p *HTTPProvider) Rerank(ctx context.Context, req *RerankRequest) (*RerankResponse, error) {
	if req == nil || len(req.Documents) == 0 {
		return &RerankResponse{Provider: p.Name(), CreatedAt: time.Now()}, nil
	}

	texts := make([]string, len(req.Documents))
	for i, d := range req.Documents {
		texts[i] = d.Text
	}
	body := httpRerankRequest{
		Query:     req.Query,
		Documents: texts,
		Texts:     texts,
		Model:     firstNonEmpty(req.Model, p.cfg.Model),
		TopN:      req.TopN,
	}
	headers := map[string]string{}
	if p.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + p.cfg.APIKey
	}
	url := strings.TrimRight(p.cfg.BaseURL, "/") + p.cfg.Endpoint

	results, err := retry.DoWithResultTyped(p.retryer, ctx, func() ([]RerankResult, error) {
		raw, err := llm.DoJSON(ctx, p.client, p.cfg.Name, http.MethodPost, url, body, headers)
		if err != nil {
			return nil, err
		}
		results, err := ParseResults(raw, len(texts))
		if err != nil {
			return nil, &llm.Error{Code: llm.ErrMalformedResponse, Message: err.Error(), Provider: p.cfg.Name}
		}
		return results, nil
	})
	if err != nil {
		p.logger.Warn("rerank failed", zap.Int("documents", len(texts)), zap.Error(err))
		return nil, err
	}

	if req.TopN > 0 && len(results) > req.TopN {
		results = results[:req.TopN]
	}
	return &RerankResponse{
		Provider:  p.cfg.Name,
		Model:     body.Model,
		Results:   results,
		CreatedAt: time.Now(),
	}, nil
}

// RerankSimple 重排纯文本文档.
func (p *HTTPProvider) RerankSimple(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error) {
	docs := make([]Document, len(documents))
	for i, d := range documents {
		docs[i] = Document{Text: d}
	}
	resp, err := p.Rerank(ctx, &RerankRequest{Query: query, Documents: docs, TopN: topN})
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// ParseResults 从已知的重排响应信封中提取 (index, score) 对，按分数降序返回.
//
// 支持 results[]、data[]、result[]、裸数组（对象或分数）以及 scores[].
// 越界或重复的下标被丢弃.
func ParseResults(raw []byte, n int) ([]RerankResult, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("response body is not valid JSON")
	}
	root := gjson.ParseBytes(raw)

	var list gjson.Result
	switch {
	case root.Get("results").IsArray():
		list = root.Get("results")
	case root.Get("data").IsArray():
		list = root.Get("data")
	case root.Get("result").IsArray():
		list = root.Get("result")
	case root.Get("scores").IsArray():
		list = root.Get("scores")
	case root.IsArray():
		list = root
	default:
		return nil, fmt.Errorf("no rerank results found in response envelope")
	}

	seen := make(map[int]bool, n)
	var out []RerankResult
	for i, item := range list.Array() {
		idx, score, ok := parseItem(item, i)
		if !ok || idx < 0 || idx >= n || seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, RerankResult{Index: idx, RelevanceScore: score})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("rerank response contained no usable results")
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].RelevanceScore > out[b].RelevanceScore
	})
	return out, nil
}

func parseItem(item gjson.Result, pos int) (int, float64, bool) {
	if item.Type == gjson.Number {
		return pos, item.Float(), true
	}
	if !item.IsObject() {
		return 0, 0, false
	}
	idx := pos
	if x := item.Get("index"); x.Exists() {
		idx = int(x.Int())
	} else if x := item.Get("corpus_id"); x.Exists() {
		idx = int(x.Int())
	} else if x := item.Get("id"); x.Type == gjson.Number {
		idx = int(x.Int())
	}
	for _, key := range []string{"relevance_score", "score", "logit"} {
		if s := item.Get(key); s.Type == gjson.Number {
			return idx, s.Float(), true
		}
	}
	return 0, 0, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
