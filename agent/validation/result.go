package validation

import "strings"

// NotesHeader 答案末尾的校验说明块标题
const NotesHeader = "[Validation Notes]"

// Severity 校验发现的严重程度
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// 校验发现代码
const (
	CodeUncitedStep       = "uncited_step"
	CodeMalformedCitation = "malformed_citation"
	CodeDuplicateCitation = "duplicate_citation"
	CodeOrphanCitation    = "orphan_citation"
	CodeStepStructure     = "step_structure"
	CodeContradiction     = "potential_contradiction"
	CodeUnsupported       = "unsupported_claim"
	CodeSynthesisNote     = "synthesis_note"
	CodeWebOrphan         = "web_orphan_citation"
	CodeWebUnsupported    = "web_unsupported"
)

// Finding 单条校验发现
type Finding struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Line     string   `json:"line,omitempty"`
}

// Result 校验结果。校验只做标注，不阻断答案。
type Result struct {
	Validated bool      `json:"validated"`
	Notes     []string  `json:"notes,omitempty"`
	Feedback  []string  `json:"feedback,omitempty"`
	Answer    string    `json:"answer"`
	Findings  []Finding `json:"findings,omitempty"`

	base string
}

func newResult(answer string) *Result {
	return &Result{Validated: true, Answer: answer, base: answer}
}

func (r *Result) add(f Finding, feedback string) {
	if f.Severity == SeverityError {
		r.Validated = false
	}
	r.Findings = append(r.Findings, f)
	r.Notes = append(r.Notes, f.Message)
	// 每条说明都对应一条再合成指令
	if feedback == "" {
		feedback = "Resolve this validation note: " + f.Message
	}
	r.Feedback = append(r.Feedback, feedback)
}

// Merge 合并另一结果的发现并重新生成带说明块的答案
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	if !other.Validated {
		r.Validated = false
	}
	r.Findings = append(r.Findings, other.Findings...)
	r.Notes = append(r.Notes, other.Notes...)
	r.Feedback = append(r.Feedback, other.Feedback...)
	r.Answer = Annotate(r.base, r.Notes)
}

// HasFeedback 是否需要再次合成
func (r *Result) HasFeedback() bool {
	return r != nil && len(r.Feedback) > 0
}

// Annotate 在答案末尾追加可见的校验说明块；已有的说明块会被替换。
func Annotate(answer string, notes []string) string {
	answer = StripNotes(answer)
	if len(notes) == 0 {
		return answer
	}
	var sb strings.Builder
	sb.WriteString(answer)
	sb.WriteString("\n\n")
	sb.WriteString(NotesHeader)
	for _, n := range notes {
		sb.WriteString("\n- ")
		sb.WriteString(n)
	}
	return sb.String()
}

// StripNotes 去掉答案中的校验说明块
func StripNotes(answer string) string {
	if i := strings.Index(answer, NotesHeader); i >= 0 {
		answer = answer[:i]
	}
	return strings.TrimRight(answer, " \t\r\n")
}
