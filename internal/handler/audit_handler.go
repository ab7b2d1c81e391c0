package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ryckox/syntagma/internal/model"
	"github.com/ryckox/syntagma/internal/service"
	pkgerrors "github.com/ryckox/syntagma/pkg/errors"
)

// AuditHandler 审计日志处理器
type AuditHandler struct {
	auditService *service.AuditService
}

// NewAuditHandler 创建审计日志处理器
func NewAuditHandler(auditService *service.AuditService) *AuditHandler {
	return &AuditHandler{
		auditService: auditService,
	}
}

// List 获取审计日志列表
// @Summary 获取审计日志列表
// @Tags 审计日志
// @Security Bearer
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Param ruleset_id query int false "规则集ID"
// @Param user_id query int false "操作者ID"
// @Param action query string false "操作类型"
// @Param start_time query string false "开始时间(RFC3339)"
// @Param end_time query string false "结束时间(RFC3339)"
// @Success 200 {object} PagedResponse{data=[]model.AuditRecord}
// @Router /api/audit [get]
func (h *AuditHandler) List(c *gin.Context) {
	var page model.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		BindError(c, err)
		return
	}

	var query service.AuditQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		BindError(c, err)
		return
	}

	records, err := h.auditService.List(c.Request.Context(), &page, &query)
	if err != nil {
		HandleError(c, err)
		return
	}

	SuccessPaged(c, records, page.Page, page.PageSize, page.Total, page.TotalPages())
}

// Get 获取审计日志详情
// @Security Bearer
// @Router /api/audit/{id} [get]
func (h *AuditHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	record, err := h.auditService.Get(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	if record == nil {
		HandleError(c, pkgerrors.ErrNotFound.WithMessage("审计记录不存在"))
		return
	}
	Success(c, record)
}
