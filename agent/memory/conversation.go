package memory

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/groundrag/internal/cache"
	"github.com/BaSui01/groundrag/llm/tokenizer"
)

// Turn 一轮问答
type Turn struct {
	Query     string    `json:"query"`
	Answer    string    `json:"answer"`
	FromCache bool      `json:"from_cache,omitempty"`
	At        time.Time `json:"at"`
}

// Conversation 会话记忆
type Conversation struct {
	ID        string    `json:"id"`
	Turns     []Turn    `json:"turns"`
	Summary   string    `json:"summary,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Config 会话记忆配置
type Config struct {
	MaxTurns      int           `json:"max_turns" yaml:"max_turns"`           // 保留的最近轮数
	SummaryTurns  int           `json:"summary_turns" yaml:"summary_turns"`   // 进入摘要的最近轮数
	SummaryTokens int           `json:"summary_tokens" yaml:"summary_tokens"` // 摘要 token 上限
	TTL           time.Duration `json:"ttl" yaml:"ttl"`
	KeyPrefix     string        `json:"key_prefix" yaml:"key_prefix"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MaxTurns:      10,
		SummaryTurns:  3,
		SummaryTokens: 300,
		TTL:           24 * time.Hour,
		KeyPrefix:     "conversation:",
	}
}

// Store 基于 KV 的会话记忆
type Store struct {
	kv     cache.KV
	tok    tokenizer.Tokenizer
	config Config
	logger *zap.Logger
	now    func() time.Time
}

// NewStore 创建会话记忆. kv 为 nil 时所有操作为空操作.
func NewStore(kv cache.KV, tok tokenizer.Tokenizer, config Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tok == nil {
		tok = tokenizer.NewEstimatorTokenizer()
	}
	def := DefaultConfig()
	if config.MaxTurns <= 0 {
		config.MaxTurns = def.MaxTurns
	}
	if config.SummaryTurns <= 0 {
		config.SummaryTurns = def.SummaryTurns
	}
	if config.SummaryTokens <= 0 {
		config.SummaryTokens = def.SummaryTokens
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = def.KeyPrefix
	}
	return &Store{
		kv:     kv,
		tok:    tok,
		config: config,
		logger: logger.With(zap.String("component", "conversation_memory")),
		now:    time.Now,
	}
}

func (s *Store) enabled() bool {
	return s != nil && s.kv != nil
}

func (s *Store) key(id string) string {
	return s.config.KeyPrefix + id
}

// Load 读取会话，不存在时返回空会话
func (s *Store) Load(ctx context.Context, id string) (*Conversation, error) {
	conv := &Conversation{ID: id}
	if !s.enabled() || id == "" {
		return conv, nil
	}
	if err := cache.GetJSON(ctx, s.kv, s.key(id), conv); err != nil {
		if cache.IsCacheMiss(err) {
			return &Conversation{ID: id}, nil
		}
		return nil, fmt.Errorf("load conversation %s: %w", id, err)
	}
	return conv, nil
}

// Summary 返回会话摘要，失败时返回空串
func (s *Store) Summary(ctx context.Context, id string) string {
	conv, err := s.Load(ctx, id)
	if err != nil {
		s.logger.Warn("conversation summary unavailable", zap.String("conversation_id", id), zap.Error(err))
		return ""
	}
	return conv.Summary
}

// Append 追加一轮问答并重算摘要
func (s *Store) Append(ctx context.Context, id string, turn Turn) error {
	if !s.enabled() || id == "" {
		return nil
	}
	conv, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	if turn.At.IsZero() {
		turn.At = s.now().UTC()
	}
	conv.Turns = append(conv.Turns, turn)
	if over := len(conv.Turns) - s.config.MaxTurns; over > 0 {
		conv.Turns = conv.Turns[over:]
	}
	conv.Summary = s.summarize(conv.Turns)
	conv.UpdatedAt = turn.At

	if err := cache.PutJSON(ctx, s.kv, s.key(id), conv, s.config.TTL); err != nil {
		return fmt.Errorf("save conversation %s: %w", id, err)
	}
	s.logger.Debug("conversation turn appended",
		zap.String("conversation_id", id),
		zap.Int("turns", len(conv.Turns)))
	return nil
}

// Delete 删除会话
func (s *Store) Delete(ctx context.Context, id string) error {
	if !s.enabled() || id == "" {
		return nil
	}
	return s.kv.Delete(ctx, s.key(id))
}

var (
	citationToken = regexp.MustCompile(`\s*\[(?:#\d+|W\d+)\]`)
	sentenceEnd   = regexp.MustCompile(`[.!?](\s|$)`)
)

// summarize 取最近 SummaryTurns 轮，每轮保留问题与答案首句，去掉引用标记
func (s *Store) summarize(turns []Turn) string {
	start := len(turns) - s.config.SummaryTurns
	if start < 0 {
		start = 0
	}
	lines := make([]string, 0, 2*(len(turns)-start))
	for _, t := range turns[start:] {
		lines = append(lines, "User asked: "+oneLine(t.Query))
		if a := firstSentence(t.Answer); a != "" {
			lines = append(lines, "Answer: "+a)
		}
	}
	summary := strings.Join(lines, "\n")
	out, err := s.tok.Truncate(summary, s.config.SummaryTokens)
	if err != nil {
		return summary
	}
	return out
}

func firstSentence(answer string) string {
	if i := strings.Index(answer, "[Validation Notes]"); i >= 0 {
		answer = answer[:i]
	}
	answer = oneLine(citationToken.ReplaceAllString(answer, ""))
	if loc := sentenceEnd.FindStringIndex(answer); loc != nil {
		return strings.TrimSpace(answer[:loc[0]+1])
	}
	return answer
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
