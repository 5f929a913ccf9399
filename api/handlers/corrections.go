package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/BaSui01/groundrag/api"
	"github.com/BaSui01/groundrag/correction"
	"github.com/BaSui01/groundrag/internal/ctxkeys"
	"github.com/BaSui01/groundrag/types"
	"go.uber.org/zap"
)

// CorrectionService 纠错缓存操作
type CorrectionService interface {
	CheckCache(ctx context.Context, query string) (correction.LookupResult, error)
	StoreCorrection(ctx context.Context, fb correction.Feedback) (correction.StoreResult, error)
	GetCorrection(ctx context.Context, id string) (*correction.Entry, error)
	DeleteCorrection(ctx context.Context, id string) error
}

// CorrectionHandler 纠错缓存接口处理器
type CorrectionHandler struct {
	service CorrectionService
	logger  *zap.Logger
}

// NewCorrectionHandler 创建纠错处理器
func NewCorrectionHandler(service CorrectionService, logger *zap.Logger) *CorrectionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CorrectionHandler{
		service: service,
		logger:  logger.With(zap.String("handler", "corrections")),
	}
}

// HandleCheck 只查询纠错缓存
// @Summary 查询纠错缓存
// @Tags 纠错
// @Accept json
// @Produce json
// @Param request body api.CacheCheckRequest true "查询"
// @Success 200 {object} api.CacheCheckResponse "查询结果"
// @Failure 400 {object} Response "无效请求"
// @Security ApiKeyAuth
// @Router /api/v1/corrections/check [post]
func (h *CorrectionHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.CacheCheckRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	res, err := h.service.CheckCache(r.Context(), req.Query)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, api.CacheCheckResponse{
		Found:      res.Found,
		Confidence: res.Confidence,
		Tier:       string(res.Tier),
		Correction: res.Correction,
	})
}

// HandleStore 提交人工纠错
// @Summary 提交纠错
// @Tags 纠错
// @Accept json
// @Produce json
// @Param request body api.CorrectionRequest true "纠错"
// @Success 200 {object} api.CorrectionResponse "写入结果"
// @Failure 400 {object} Response "无效请求"
// @Security ApiKeyAuth
// @Router /api/v1/corrections [post]
func (h *CorrectionHandler) HandleStore(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.CorrectionRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.Question) == "" || strings.TrimSpace(req.CorrectAnswer) == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrCorrectionInvalid,
			"question and correct_answer are required", h.logger)
		return
	}

	fb := req.Feedback()
	// 经 JWT 认证的审核人覆盖请求体中的 corrected_by
	if reviewer, ok := ctxkeys.Reviewer(r.Context()); ok {
		fb.CorrectedBy = reviewer
	}

	res, err := h.service.StoreCorrection(r.Context(), fb)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, api.CorrectionResponse{Success: res.Success, ID: res.ID, Variants: res.Variants})
}

// HandleGet 读取纠错记录
// @Summary 读取纠错
// @Tags 纠错
// @Produce json
// @Param id path string true "纠错 ID"
// @Success 200 {object} api.Correction "纠错记录"
// @Failure 404 {object} Response "不存在"
// @Security ApiKeyAuth
// @Router /api/v1/corrections/{id} [get]
func (h *CorrectionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	entry, err := h.service.GetCorrection(r.Context(), id)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, entry)
}

// HandleDelete 删除纠错记录
// @Summary 删除纠错
// @Tags 纠错
// @Produce json
// @Param id path string true "纠错 ID"
// @Success 200 {object} Response "已删除"
// @Security ApiKeyAuth
// @Router /api/v1/corrections/{id} [delete]
func (h *CorrectionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteCorrection(r.Context(), id); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	if reviewer, ok := ctxkeys.Reviewer(r.Context()); ok {
		h.logger.Info("correction deleted", zap.String("id", id), zap.String("reviewer", reviewer))
	}
	WriteSuccess(w, r, map[string]string{"id": id, "status": "deleted"})
}

func (h *CorrectionHandler) pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "correction id is required", h.logger)
		return "", false
	}
	return id, true
}
