package validation

import (
	"fmt"

	"github.com/BaSui01/groundrag/rag"
	"go.uber.org/zap"
)

// WebValidator 用可选的网页结果交叉核对 [Wn] 引用，只产生说明与再合成反馈，不阻断答案
type WebValidator struct {
	threshold float64
	logger    *zap.Logger
}

// NewWebValidator 创建网页交叉校验器。threshold <= 0 时使用 0.2。
func NewWebValidator(threshold float64, logger *zap.Logger) *WebValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if threshold <= 0 {
		threshold = 0.2
	}
	return &WebValidator{threshold: threshold, logger: logger.With(zap.String("component", "web_validator"))}
}

// Validate 没有网页结果时不做任何检查
func (w *WebValidator) Validate(answer string, web []rag.WebResult) *Result {
	answer = StripNotes(answer)
	res := newResult(answer)
	if len(web) == 0 {
		return res
	}
	if len(web) > MaxWebRefs {
		web = web[:MaxWebRefs]
	}

	snippets := make([]map[string]struct{}, len(web))
	for i, r := range web {
		snippets[i] = keyTerms(r.Title + " " + r.Content)
	}

	orphans := make(map[string]bool)
	weak := make(map[string]bool)
	for _, l := range splitLines(answer) {
		for _, s := range findCitations(l.text) {
			for _, ref := range s.refs {
				isWeb, n := refNumber(ref)
				if !isWeb {
					continue
				}
				if n < 1 || n > len(web) {
					if !orphans[ref] {
						orphans[ref] = true
						res.add(Finding{Code: CodeWebOrphan, Severity: SeverityWarning,
							Message: fmt.Sprintf("orphan web citation [%s]: only %d web result(s) supplied", ref, len(web))},
							fmt.Sprintf("Remove or correct citation [%s]; only [W1]..[W%d] were supplied", ref, len(web)))
					}
					continue
				}
				key := ref + "\x00" + l.text
				if weak[key] {
					continue
				}
				if o := overlap(keyTerms(stripCitations(l.text)), snippets[n-1]); o >= 0 && o < w.threshold {
					weak[key] = true
					res.add(Finding{Code: CodeWebUnsupported, Severity: SeverityInfo, Line: l.text,
						Message: fmt.Sprintf("web source %s does not clearly support: %s", ref, quote(l.text))},
						fmt.Sprintf("Rephrase using the wording of web result %s or cite a supporting context block instead: %s",
							ref, quote(l.text)))
				}
			}
		}
	}

	// 网页发现不影响 Validated
	res.Validated = true
	res.Answer = Annotate(answer, res.Notes)
	w.logger.Debug("web cross-check finished", zap.Int("web_results", len(web)), zap.Int("notes", len(res.Notes)))
	return res
}
