package rag

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/BaSui01/groundrag/llm"
	"go.uber.org/zap"
)

// QueryExpanderConfig 查询扩展配置
type QueryExpanderConfig struct {
	MaxVariants int           `json:"max_variants" yaml:"max_variants"` // 最多改写数量（上限 3）
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
	Model       string        `json:"model" yaml:"model"`
}

// DefaultQueryExpanderConfig 返回默认配置
func DefaultQueryExpanderConfig() QueryExpanderConfig {
	return QueryExpanderConfig{MaxVariants: 3, Timeout: 15 * time.Second}
}

// QueryExpander 通过生成模型产生查询改写以提升召回
type QueryExpander struct {
	provider llm.Provider
	config   QueryExpanderConfig
	logger   *zap.Logger
}

// NewQueryExpander 创建查询扩展器
func NewQueryExpander(provider llm.Provider, config QueryExpanderConfig, logger *zap.Logger) *QueryExpander {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxVariants <= 0 || config.MaxVariants > 3 {
		config.MaxVariants = 3
	}
	return &QueryExpander{
		provider: provider,
		config:   config,
		logger:   logger.With(zap.String("component", "query_expander")),
	}
}

var listMarker = regexp.MustCompile(`^\s*(?:[-*•]+|\d+[\.\)]|\(\d+\))\s*`)

// Expand 返回不超过 MaxVariants 个与原查询不同的改写.
// 生成失败时返回空列表，不向上传播错误.
func (e *QueryExpander) Expand(ctx context.Context, query string) []string {
	query = strings.TrimSpace(query)
	if e == nil || e.provider == nil || query == "" {
		return nil
	}

	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	prompt := fmt.Sprintf(`Rewrite the following technical question as %d alternative search queries.
Each alternative should use different terminology or focus on a different aspect of the same information need.
Return only the queries, one per line, without numbering or commentary.

Question: %s`, e.config.MaxVariants, query)

	resp, err := e.provider.Completion(ctx, &llm.ChatRequest{
		Model:       e.config.Model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature: 0.3,
	})
	if err != nil {
		e.logger.Warn("query expansion failed, continuing with original query", zap.Error(err))
		return nil
	}
	text, err := llm.FirstText(resp)
	if err != nil {
		e.logger.Warn("query expansion returned no text", zap.Error(err))
		return nil
	}

	return parseVariants(text, query, e.config.MaxVariants)
}

func parseVariants(text, original string, max int) []string {
	seen := map[string]bool{strings.ToLower(original): true}
	var variants []string
	for _, line := range strings.Split(text, "\n") {
		line = listMarker.ReplaceAllString(strings.TrimSpace(line), "")
		line = strings.Trim(strings.TrimSpace(line), `"'`)
		key := strings.ToLower(line)
		if line == "" || seen[key] || strings.HasSuffix(line, ":") {
			continue
		}
		seen[key] = true
		variants = append(variants, line)
		if len(variants) >= max {
			break
		}
	}
	return variants
}
