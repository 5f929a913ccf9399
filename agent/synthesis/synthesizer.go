package synthesis

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/BaSui01/groundrag/llm"
	"github.com/BaSui01/groundrag/llm/tokenizer"
	"github.com/BaSui01/groundrag/rag"
	"go.uber.org/zap"
)

// MaxWebResults 可引用的网页结果上限，对应 [W1]..[W10]
const MaxWebResults = 10

// MissingContextAnswer 在没有任何上下文块时返回
const MissingContextAnswer = "The available documentation does not contain information to answer this question. " +
	"No relevant context was retrieved, so no grounded answer can be given. " +
	"Please rephrase the question or add the relevant specification documents to the corpus."

// Config 合成配置
type Config struct {
	Model         string        `json:"model" yaml:"model"`
	MaxTokens     int           `json:"max_tokens" yaml:"max_tokens"`
	Temperature   float32       `json:"temperature" yaml:"temperature"`
	ContextTokens int           `json:"context_tokens" yaml:"context_tokens"` // 上下文块的 token 预算
	Timeout       time.Duration `json:"timeout" yaml:"timeout"`
	Persona       string        `json:"persona" yaml:"persona"`
}

// DefaultConfig 返回默认合成配置
func DefaultConfig() Config {
	return Config{
		MaxTokens:     1500,
		Temperature:   0.2,
		ContextTokens: 6000,
		Timeout:       60 * time.Second,
		Persona:       "You are a senior Bluetooth protocol engineer answering questions from firmware and stack developers.",
	}
}

// Input 一次合成的输入
type Input struct {
	Query         string
	Blocks        []rag.ContextBlock
	Web           []rag.WebResult
	MemorySummary string
}

// Output 合成结果
type Output struct {
	Answer     string             `json:"answer"`
	Notes      []string           `json:"notes,omitempty"`
	UsedBlocks []rag.ContextBlock `json:"used_blocks"`
	Citations  []rag.Citation     `json:"citations"`
	Flattened  bool               `json:"flattened"` // 是否使用了单字符串回退请求
}

// Synthesizer 基于上下文块生成带引用的答案
type Synthesizer struct {
	provider llm.Provider
	tok      tokenizer.Tokenizer
	config   Config
	logger   *zap.Logger
}

// New 创建合成器。tok 为 nil 时使用估算分词器。
func New(provider llm.Provider, tok tokenizer.Tokenizer, config Config, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tok == nil {
		tok = tokenizer.NewEstimatorTokenizer()
	}
	def := DefaultConfig()
	if config.MaxTokens <= 0 {
		config.MaxTokens = def.MaxTokens
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.Persona == "" {
		config.Persona = def.Persona
	}
	return &Synthesizer{
		provider: provider,
		tok:      tok,
		config:   config,
		logger:   logger.With(zap.String("component", "synthesizer")),
	}
}

// Synthesize 生成答案。先发送结构化消息，失败或无文本时改用扁平化请求重试一次。
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) (*Output, error) {
	web := in.Web
	if len(web) > MaxWebResults {
		web = web[:MaxWebResults]
	}

	if len(in.Blocks) == 0 {
		s.logger.Info("no context blocks, returning missing-context answer")
		return &Output{
			Answer:    MissingContextAnswer,
			Notes:     []string{"no context blocks were available for synthesis"},
			Citations: rag.CitationsFromWeb(web),
		}, nil
	}
	if s.provider == nil {
		return nil, fmt.Errorf("synthesizer has no generation provider")
	}

	used, trimmed := s.fitBlocks(in.Blocks)
	if trimmed > 0 {
		s.logger.Debug("context trimmed to token budget",
			zap.Int("kept", len(used)),
			zap.Int("dropped", trimmed),
			zap.Int("budget", s.config.ContextTokens))
	}

	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: s.systemPrompt()},
		{Role: llm.RoleUser, Content: buildUserPrompt(in.Query, used, web, in.MemorySummary)},
	}

	answer, err := s.generate(ctx, &llm.ChatRequest{Messages: msgs})
	flattened := false
	if err != nil {
		s.logger.Warn("structured generation failed, retrying with flattened prompt", zap.Error(err))
		answer, err = s.generate(ctx, &llm.ChatRequest{Prompt: llm.Flatten(msgs)})
		if err != nil {
			return nil, fmt.Errorf("generation failed: %w", err)
		}
		flattened = true
	}

	out := &Output{
		Answer:     answer,
		Notes:      heuristicNotes(answer),
		UsedBlocks: used,
		Citations:  append(rag.CitationsFromBlocks(used), rag.CitationsFromWeb(web)...),
		Flattened:  flattened,
	}
	if trimmed > 0 {
		out.Notes = append(out.Notes, fmt.Sprintf("%d context block(s) dropped to fit the token budget", trimmed))
	}
	return out, nil
}

func (s *Synthesizer) generate(ctx context.Context, req *llm.ChatRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	req.Model = s.config.Model
	req.MaxTokens = s.config.MaxTokens
	req.Temperature = s.config.Temperature

	resp, err := s.provider.Completion(ctx, req)
	if err != nil {
		return "", err
	}
	return llm.FirstText(resp)
}

// fitBlocks 按 token 预算保留前缀块；首块始终保留，必要时截断。
func (s *Synthesizer) fitBlocks(blocks []rag.ContextBlock) ([]rag.ContextBlock, int) {
	if s.config.ContextTokens <= 0 {
		return blocks, 0
	}
	rendered := make([]string, len(blocks))
	for i, b := range blocks {
		rendered[i] = renderBlock(i+1, b)
	}
	n := tokenizer.FitBudget(s.tok, rendered, s.config.ContextTokens)
	if n > 0 {
		return blocks[:n], len(blocks) - n
	}

	first := blocks[0]
	header, _ := s.tok.CountTokens(renderBlock(1, rag.ContextBlock{Title: first.Title, Source: first.Source, SectionTag: first.SectionTag}))
	if room := s.config.ContextTokens - header; room > 0 {
		if cut, err := s.tok.Truncate(first.Content, room); err == nil {
			first.Content = cut
		}
	}
	return []rag.ContextBlock{first}, len(blocks) - 1
}

func (s *Synthesizer) systemPrompt() string {
	return s.config.Persona + `

Rules:
1. Answer only from the numbered context blocks and the web results provided. Do not use outside knowledge.
2. Structure procedural answers as explicit steps: "First, ...", "Second, ...", "Finally, ...".
3. End every factual sentence and every step with exactly one citation such as [#2] or [W1]. Cite only blocks that exist.
4. If sources disagree, say so explicitly and cite both sides.
5. If the context does not contain something the question needs, state that the information is missing.
6. The conversation background is for orientation only. Never cite it.
7. Finish with a "Glossary" section defining the protocol terms you used.`
}

// renderBlock 渲染单个上下文块: [#n] [SectionTag] Title (Source)
func renderBlock(n int, b rag.ContextBlock) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[#%d]", n)
	if b.SectionTag != "" {
		fmt.Fprintf(&sb, " [%s]", b.SectionTag)
	}
	if b.Title != "" {
		sb.WriteString(" " + b.Title)
	}
	if b.Source != "" {
		fmt.Fprintf(&sb, " (%s)", b.Source)
	}
	sb.WriteString("\n")
	sb.WriteString(strings.TrimSpace(b.Content))
	return sb.String()
}

func buildUserPrompt(query string, blocks []rag.ContextBlock, web []rag.WebResult, memory string) string {
	var sb strings.Builder

	if memory = strings.TrimSpace(memory); memory != "" {
		sb.WriteString("<<<CONVERSATION BACKGROUND (not citable)\n")
		sb.WriteString(memory)
		sb.WriteString("\nCONVERSATION BACKGROUND>>>\n\n")
	}

	sb.WriteString("<<<CONTEXT\n")
	for i, b := range blocks {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(renderBlock(i+1, b))
	}
	sb.WriteString("\nCONTEXT>>>\n\n")

	if len(web) > 0 {
		sb.WriteString("<<<WEB RESULTS\n")
		for i, w := range web {
			if i > 0 {
				sb.WriteString("\n\n")
			}
			fmt.Fprintf(&sb, "[W%d] %s (%s)\n%s", i+1, w.Title, w.URL, strings.TrimSpace(w.Content))
		}
		sb.WriteString("\nWEB RESULTS>>>\n\n")
	}

	sb.WriteString("Question: ")
	sb.WriteString(strings.TrimSpace(query))
	return sb.String()
}

var (
	hedgePattern    = regexp.MustCompile(`(?i)\b(missing|insufficient)\b`)
	glossaryPattern = regexp.MustCompile(`(?im)^\W*glossary\b`)
	stepPattern     = regexp.MustCompile(`(?i)\b(first|second|then|next|finally|step\s*\d+)\b`)
)

func heuristicNotes(answer string) []string {
	var notes []string
	if hedgePattern.MatchString(answer) {
		notes = append(notes, "answer reports missing or insufficient information in the context")
	}
	if !glossaryPattern.MatchString(answer) {
		notes = append(notes, "answer has no glossary section")
	}
	if !stepPattern.MatchString(answer) {
		notes = append(notes, "answer has no stepwise markers")
	}
	return notes
}
