package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/BaSui01/groundrag/agent/orchestrator"
	"github.com/BaSui01/groundrag/api"
	"github.com/BaSui01/groundrag/types"
	"go.uber.org/zap"
)

// QueryService 问答入口
type QueryService interface {
	ProcessQuery(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, error)
}

// QueryHandler 问答接口处理器
type QueryHandler struct {
	service QueryService
	logger  *zap.Logger
}

// NewQueryHandler 创建问答处理器
func NewQueryHandler(service QueryService, logger *zap.Logger) *QueryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryHandler{
		service: service,
		logger:  logger.With(zap.String("handler", "query")),
	}
}

// HandleQuery 处理问答请求
// @Summary 问答
// @Description 先查纠错缓存，未命中时检索、合成并校验带引用的答案
// @Tags 问答
// @Accept json
// @Produce json
// @Param request body api.QueryRequest true "问答请求"
// @Success 200 {object} api.QueryResponse "答案"
// @Failure 400 {object} Response "无效请求"
// @Failure 502 {object} Response "检索失败"
// @Security ApiKeyAuth
// @Router /api/v1/query [post]
func (h *QueryHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.QueryRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if err := validateQueryRequest(&req); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	resp, err := h.service.ProcessQuery(r.Context(), orchestrator.Request{
		ConversationID: req.ConversationID,
		Query:          req.Query,
		Web:            req.Web,
		MemorySummary:  req.MemorySummary,
		MaxIter:        req.MaxIter,
	})
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	WriteSuccess(w, r, toQueryResponse(resp))
}

func validateQueryRequest(req *api.QueryRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return types.NewError(types.ErrInvalidRequest, "query is required").WithHTTPStatus(http.StatusBadRequest)
	}
	if req.MaxIter < 0 || req.MaxIter > orchestrator.MaxIterCap {
		return types.NewError(types.ErrInvalidRequest, "max_iter must be between 1 and 10").
			WithHTTPStatus(http.StatusBadRequest)
	}
	return nil
}

func toQueryResponse(resp *orchestrator.Response) api.QueryResponse {
	citations := resp.Citations
	if citations == nil {
		citations = []api.Citation{}
	}
	return api.QueryResponse{
		ConversationID:  resp.ConversationID,
		Answer:          resp.Answer,
		Citations:       citations,
		FromCache:       resp.FromCache,
		Confidence:      resp.Confidence,
		Iterations:      resp.Iterations,
		Validated:       resp.Validated,
		KnowledgeGaps:   resp.KnowledgeGaps,
		ValidationNotes: resp.ValidationNotes,
		RetrievalNotes:  resp.RetrievalNotes,
		CorrectionID:    resp.CorrectionID,
	}
}
