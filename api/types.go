package api

import (
	"github.com/BaSui01/groundrag/correction"
	"github.com/BaSui01/groundrag/rag"
)

// =============================================================================
// 问答类型
// =============================================================================

// WebResult 是 rag.WebResult 的别名，规范定义在 rag/types.go。
type WebResult = rag.WebResult

// Citation 是 rag.Citation 的别名。
type Citation = rag.Citation

// QueryRequest 问答请求。
// @Description 问答请求结构
type QueryRequest struct {
	// 会话 ID，缺省时服务端生成
	ConversationID string `json:"conversation_id,omitempty" example:"conv-42"`
	// 问题
	Query string `json:"query" example:"What is the default ATT_MTU?" binding:"required"`
	// 可选的网页检索结果，用于交叉校验
	Web []WebResult `json:"web,omitempty"`
	// 调用方已持有的会话摘要，优先于服务端记忆
	MemorySummary string `json:"memory_summary,omitempty"`
	// 合成-校验迭代上限（1-10，缺省 2）
	MaxIter int `json:"max_iter,omitempty" example:"2"`
}

// QueryResponse 问答响应。
// @Description 问答响应结构
type QueryResponse struct {
	ConversationID  string     `json:"conversation_id"`
	Answer          string     `json:"answer"`
	Citations       []Citation `json:"citations"`
	FromCache       bool       `json:"from_cache"`
	Confidence      float64    `json:"confidence"`
	Iterations      int        `json:"iterations"`
	Validated       bool       `json:"validated"`
	KnowledgeGaps   []string   `json:"knowledge_gaps,omitempty"`
	ValidationNotes []string   `json:"validation_notes,omitempty"`
	RetrievalNotes  []string   `json:"retrieval_notes,omitempty"`
	CorrectionID    string     `json:"correction_id,omitempty"`
}

// =============================================================================
// 纠错缓存类型
// =============================================================================

// Correction 是 correction.Entry 的别名。
type Correction = correction.Entry

// CacheCheckRequest 只查询纠错缓存。
// @Description 纠错缓存查询请求
type CacheCheckRequest struct {
	Query string `json:"query" example:"How do I enable GATT notifications?" binding:"required"`
}

// CacheCheckResponse 纠错缓存查询结果。
// @Description 纠错缓存查询结果
type CacheCheckResponse struct {
	Found      bool        `json:"found"`
	Confidence float64     `json:"confidence"`
	Tier       string      `json:"tier,omitempty" example:"exact"`
	Correction *Correction `json:"correction,omitempty"`
}

// CorrectionRequest 提交人工纠错。
// @Description 人工纠错请求
type CorrectionRequest struct {
	Question            string   `json:"question" binding:"required"`
	Variants            []string `json:"variants,omitempty"`
	WrongAnswer         string   `json:"wrong_answer,omitempty"`
	CorrectAnswer       string   `json:"correct_answer" binding:"required"`
	WrongAnswerSources  []string `json:"wrong_answer_sources,omitempty"`
	CorrectAnswerSource string   `json:"correct_answer_source,omitempty"`
	CorrectedBy         string   `json:"corrected_by,omitempty"`
}

// Feedback 转换为 correction.Feedback
func (r CorrectionRequest) Feedback() correction.Feedback {
	return correction.Feedback{
		Question:            r.Question,
		Variants:            r.Variants,
		WrongAnswer:         r.WrongAnswer,
		CorrectAnswer:       r.CorrectAnswer,
		WrongAnswerSources:  r.WrongAnswerSources,
		CorrectAnswerSource: r.CorrectAnswerSource,
		CorrectedBy:         r.CorrectedBy,
	}
}

// CorrectionResponse 纠错写入结果。
// @Description 纠错写入结果
type CorrectionResponse struct {
	Success  bool   `json:"success"`
	ID       string `json:"id,omitempty" example:"3f9c0a..."`
	Variants int    `json:"variants"`
}

// =============================================================================
// 错误类型
// =============================================================================

// ErrorResponse 表示错误响应。
// @Description 错误响应结构
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail 错误详情。
// @Description 错误详细结构
type ErrorDetail struct {
	Code       string `json:"code" example:"INVALID_REQUEST"`
	Message    string `json:"message" example:"query is required"`
	HTTPStatus int    `json:"http_status,omitempty" example:"400"`
	Retryable  bool   `json:"retryable,omitempty" example:"false"`
}
