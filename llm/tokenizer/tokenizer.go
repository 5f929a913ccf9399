package tokenizer

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Tokenizer 是统一的 token 计数接口.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// Truncate 截断文本使其不超过 maxTokens.
	Truncate(text string, maxTokens int) (string, error)

	// Name 返回分词器的名称.
	Name() string
}

// New 返回模型对应的 tiktoken 分词器, 编码不可用时回退到估算器.
func New(model string, logger *zap.Logger) Tokenizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &fallbackTokenizer{
		primary:  NewTiktokenTokenizer(model),
		fallback: NewEstimatorTokenizer(),
		logger:   logger.With(zap.String("component", "tokenizer")),
	}
}

// fallbackTokenizer 在 primary 出错时使用 fallback, 并只记录一次告警.
type fallbackTokenizer struct {
	primary  Tokenizer
	fallback Tokenizer
	logger   *zap.Logger
	warnOnce sync.Once
}

func (f *fallbackTokenizer) CountTokens(text string) (int, error) {
	n, err := f.primary.CountTokens(text)
	if err == nil {
		return n, nil
	}
	f.warn(err)
	return f.fallback.CountTokens(text)
}

func (f *fallbackTokenizer) Truncate(text string, maxTokens int) (string, error) {
	s, err := f.primary.Truncate(text, maxTokens)
	if err == nil {
		return s, nil
	}
	f.warn(err)
	return f.fallback.Truncate(text, maxTokens)
}

func (f *fallbackTokenizer) Name() string {
	return f.primary.Name() + "|" + f.fallback.Name()
}

func (f *fallbackTokenizer) warn(err error) {
	f.warnOnce.Do(func() {
		f.logger.Warn("tokenizer unavailable, using estimator", zap.Error(err))
	})
}

// FitBudget 返回在 budget 以内可以完整放入的前缀片段数量.
// budget <= 0 表示不限制.
func FitBudget(t Tokenizer, parts []string, budget int) int {
	if budget <= 0 {
		return len(parts)
	}
	used := 0
	for i, p := range parts {
		n, err := t.CountTokens(p)
		if err != nil {
			n = len(strings.Fields(p))
		}
		if used+n > budget {
			return i
		}
		used += n
	}
	return len(parts)
}
