package correction

import "time"

// Entry 一条人工确认的纠错记录，KV 中的权威副本
type Entry struct {
	ID                  string     `json:"id"`
	OriginalQuestion    string     `json:"original_question"`
	NormalizedQuestion  string     `json:"normalized_question"`
	QuestionVariants    []string   `json:"question_variants,omitempty"`
	WrongAnswer         string     `json:"wrong_answer,omitempty"`
	CorrectAnswer       string     `json:"correct_answer"`
	WrongAnswerSources  []string   `json:"wrong_answer_sources,omitempty"`
	CorrectAnswerSource string     `json:"correct_answer_source,omitempty"`
	CorrectedBy         string     `json:"corrected_by,omitempty"`
	CorrectedAt         time.Time  `json:"corrected_at"`
	TimesReused         int        `json:"times_reused"`
	LastUsed            *time.Time `json:"last_used,omitempty"`
}

// Phrasings 返回原问题与全部变体，顺序与向量条目编号一致
func (e *Entry) Phrasings() []string {
	out := make([]string, 0, 1+len(e.QuestionVariants))
	out = append(out, e.OriginalQuestion)
	return append(out, e.QuestionVariants...)
}

// Feedback 提交纠错的请求
type Feedback struct {
	Question            string   `json:"question"`
	Variants            []string `json:"variants,omitempty"`
	WrongAnswer         string   `json:"wrong_answer,omitempty"`
	CorrectAnswer       string   `json:"correct_answer"`
	WrongAnswerSources  []string `json:"wrong_answer_sources,omitempty"`
	CorrectAnswerSource string   `json:"correct_answer_source,omitempty"`
	CorrectedBy         string   `json:"corrected_by,omitempty"`
}

// Tier 命中层级
type Tier string

const (
	TierNone     Tier = ""
	TierExact    Tier = "exact"
	TierSemantic Tier = "semantic"
)

// LookupResult 查询纠错缓存的结果
type LookupResult struct {
	Found      bool    `json:"found"`
	Confidence float64 `json:"confidence"`
	Correction *Entry  `json:"correction,omitempty"`
	Tier       Tier    `json:"tier,omitempty"`
}

// StoreResult 写入纠错的结果
type StoreResult struct {
	Success  bool   `json:"success"`
	ID       string `json:"id,omitempty"`
	Variants int    `json:"variants"`
}
