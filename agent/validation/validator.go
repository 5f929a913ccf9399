package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/BaSui01/groundrag/rag"
	"go.uber.org/zap"
)

// Config 答案校验配置
type Config struct {
	// SupportPrefixLen 步骤文本前多少个字符必须出现在上下文中
	SupportPrefixLen int `json:"support_prefix_len" yaml:"support_prefix_len"`
	// SupportOverlap 前缀不匹配时，关键词命中比例达到该值仍视为有依据；<=0 关闭
	SupportOverlap float64 `json:"support_overlap" yaml:"support_overlap"`
	// RequireOrdinals 是否要求 first/second/finally 步骤结构
	RequireOrdinals bool `json:"require_ordinals" yaml:"require_ordinals"`
}

// DefaultConfig 返回默认校验配置
func DefaultConfig() Config {
	return Config{SupportPrefixLen: 20, SupportOverlap: 0.6, RequireOrdinals: true}
}

var (
	stepLine     = regexp.MustCompile(`(?i)\b(first|second|third|finally|step|procedure|conclusion|summary)\b`)
	glossaryHead = regexp.MustCompile(`(?i)^\W*glossary\b`)
	stepMarker   = regexp.MustCompile(`(?i)^\s*(?:[-*•>]+\s*)?(?:(?:step\s*\d+|\d+[.)])\s*[:.)-]?\s*)?(?:(?:first|second|third|then|next|finally|in conclusion|in summary|summary|conclusion|procedure)\b\s*[,:.-]?\s*)?`)
	contrastWord = regexp.MustCompile(`(?i)\b(however|but|although|whereas|conversely|in contrast|on the other hand)\b`)
	acknowledge  = regexp.MustCompile(`(?i)\b(contradict\w*|conflict\w*|disagree\w*|inconsisten\w*|discrepan\w*|differ\w*)\b`)
	ordinals     = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bfirst\b`),
		regexp.MustCompile(`(?i)\bsecond\b`),
		regexp.MustCompile(`(?i)\bfinally\b`),
	}
	ordinalNames = []string{"first", "second", "finally"}
)

// Validator 检查答案的引用、步骤结构、矛盾说明与事实依据
type Validator struct {
	config Config
	logger *zap.Logger
}

// NewValidator 创建答案校验器
func NewValidator(config Config, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.SupportPrefixLen <= 0 {
		config.SupportPrefixLen = DefaultConfig().SupportPrefixLen
	}
	return &Validator{config: config, logger: logger.With(zap.String("component", "validator"))}
}

type answerLine struct {
	text string
	step bool
}

// Validate 校验答案。孤立引用是唯一使 Validated 为 false 的发现，
// 其余发现只作为说明与再合成反馈。
func (v *Validator) Validate(answer string, blocks []rag.ContextBlock, synthesisNotes []string) *Result {
	answer = StripNotes(answer)
	res := newResult(answer)

	lines := splitLines(answer)
	v.checkSteps(res, lines)
	v.checkOrphans(res, answer, len(blocks))
	v.checkStructure(res, lines)
	v.checkContradictions(res, lines)
	v.checkSupport(res, lines, blocks)

	for _, n := range synthesisNotes {
		res.add(Finding{Code: CodeSynthesisNote, Message: "synthesis: " + n, Severity: SeverityInfo},
			synthesisFeedback(n))
	}

	res.Answer = Annotate(answer, res.Notes)
	v.logger.Debug("answer validated",
		zap.Bool("validated", res.Validated),
		zap.Int("notes", len(res.Notes)),
		zap.Int("feedback", len(res.Feedback)))
	return res
}

// splitLines 按行切分，跳过空行与术语表之后的内容
func splitLines(answer string) []answerLine {
	var out []answerLine
	for _, raw := range strings.Split(answer, "\n") {
		text := strings.TrimSpace(raw)
		if text == "" {
			continue
		}
		if glossaryHead.MatchString(text) {
			break
		}
		out = append(out, answerLine{text: text, step: stepLine.MatchString(text)})
	}
	return out
}

func (v *Validator) checkSteps(res *Result, lines []answerLine) {
	firstStep := make(map[string]int)
	reported := make(map[string]bool)

	for i, l := range lines {
		if !l.step {
			continue
		}
		spans := findCitations(l.text)
		if len(spans) == 0 {
			res.add(Finding{Code: CodeUncitedStep, Severity: SeverityWarning, Line: l.text,
				Message: "uncited step: " + quote(l.text)},
				"Add a single [#n] citation at the end of: "+quote(l.text))
			continue
		}

		last := spans[len(spans)-1]
		if len(spans) > 1 || len(last.refs) > 1 || !isTrailing(l.text, last) {
			res.add(Finding{Code: CodeMalformedCitation, Severity: SeverityWarning, Line: l.text,
				Message: "malformed citation: " + quote(l.text)},
				"Use exactly one citation token at the end of: "+quote(l.text))
		}

		for _, s := range spans {
			for _, ref := range s.refs {
				prev, seen := firstStep[ref]
				if !seen {
					firstStep[ref] = i
					continue
				}
				if prev != i && !reported[ref] {
					reported[ref] = true
					res.add(Finding{Code: CodeDuplicateCitation, Severity: SeverityInfo, Line: l.text,
						Message: fmt.Sprintf("duplicate citation [%s] reused across steps", ref)},
						fmt.Sprintf("Cite the block that supports this step, or merge it with the earlier step citing [%s]: %s",
							ref, quote(l.text)))
				}
			}
		}
	}
}

// checkOrphans 检查答案中的每个引用，不限于步骤行
func (v *Validator) checkOrphans(res *Result, answer string, n int) {
	seen := make(map[string]bool)
	for _, ref := range CitationRefs(answer) {
		if seen[ref] {
			continue
		}
		seen[ref] = true
		web, num := refNumber(ref)
		limit := n
		if web {
			limit = MaxWebRefs
		}
		if num >= 1 && num <= limit {
			continue
		}
		res.add(Finding{Code: CodeOrphanCitation, Severity: SeverityError,
			Message: fmt.Sprintf("orphan citation [%s] does not match any supplied source", ref)},
			fmt.Sprintf("Remove or correct citation [%s]; only [#1]..[#%d] and supplied web results may be cited", ref, n))
	}
}

func (v *Validator) checkStructure(res *Result, lines []answerLine) {
	if !v.config.RequireOrdinals {
		return
	}
	found := make(map[string]bool)
	for _, l := range lines {
		for i, o := range ordinals {
			if o.MatchString(l.text) {
				found[ordinalNames[i]] = true
			}
		}
	}
	var missing []string
	for _, o := range ordinalNames {
		if !found[o] {
			missing = append(missing, o)
		}
	}
	if len(missing) == 0 {
		return
	}
	res.add(Finding{Code: CodeStepStructure, Severity: SeverityWarning,
		Message: "incomplete stepwise structure: missing " + strings.Join(missing, ", ")},
		"Present the procedure as ordered steps (First, Second, ..., Finally), each ending with a citation")
}

// checkContradictions 转折词所在行及相邻行没有承认矛盾的措辞时提示
func (v *Validator) checkContradictions(res *Result, lines []answerLine) {
	for i, l := range lines {
		if !contrastWord.MatchString(l.text) {
			continue
		}
		ack := acknowledge.MatchString(l.text) ||
			(i > 0 && acknowledge.MatchString(lines[i-1].text)) ||
			(i+1 < len(lines) && acknowledge.MatchString(lines[i+1].text))
		if ack {
			continue
		}
		res.add(Finding{Code: CodeContradiction, Severity: SeverityInfo, Line: l.text,
			Message: "potential unsurfaced contradiction: " + quote(l.text)},
			"If the sources disagree, state the contradiction explicitly and cite both sides: "+quote(l.text))
	}
}

func (v *Validator) checkSupport(res *Result, lines []answerLine, blocks []rag.ContextBlock) {
	if len(blocks) == 0 {
		return
	}
	var ctxText strings.Builder
	for _, b := range blocks {
		ctxText.WriteString(b.Content)
		ctxText.WriteString(" ")
	}
	corpus := collapse(ctxText.String())
	corpusTerms := keyTerms(corpus)

	for _, l := range lines {
		if !l.step {
			continue
		}
		body := collapse(stepMarker.ReplaceAllString(stripCitations(l.text), ""))
		if body == "" {
			continue
		}
		prefix := []rune(body)
		if len(prefix) > v.config.SupportPrefixLen {
			prefix = prefix[:v.config.SupportPrefixLen]
		}
		if strings.Contains(corpus, string(prefix)) {
			continue
		}
		if v.config.SupportOverlap > 0 {
			if o := overlap(keyTerms(body), corpusTerms); o < 0 || o >= v.config.SupportOverlap {
				continue
			}
		}
		res.add(Finding{Code: CodeUnsupported, Severity: SeverityWarning, Line: l.text,
			Message: "not clearly supported by context: " + quote(l.text)},
			"Rephrase using the wording of the cited context or drop the claim: "+quote(l.text))
	}
}

// synthesisFeedback 把合成阶段的启发式说明转成再合成指令
func synthesisFeedback(note string) string {
	lower := strings.ToLower(note)
	switch {
	case strings.Contains(lower, "glossary"):
		return "Add a terminal Glossary section defining the protocol terms used."
	case strings.Contains(lower, "stepwise"):
		return "Present the answer as ordered steps (First, Second, ..., Finally), each ending with a citation."
	case strings.Contains(lower, "missing or insufficient"):
		return "Answer only what the cited blocks support and name exactly which information the context lacks."
	case strings.Contains(lower, "token budget"):
		return "Keep the answer grounded in the highest-ranked context blocks; lower-ranked blocks were omitted."
	default:
		return "Address this synthesis note: " + note
	}
}
