package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ryckox/syntagma/internal/middleware"
	"github.com/ryckox/syntagma/internal/model"
	"github.com/ryckox/syntagma/internal/service"
)

// RulesetHandler 规则集处理器
type RulesetHandler struct {
	rulesetService *service.RulesetService
	auditService   *service.AuditService
}

// NewRulesetHandler 创建规则集处理器
func NewRulesetHandler(rulesetService *service.RulesetService, auditService *service.AuditService) *RulesetHandler {
	return &RulesetHandler{
		rulesetService: rulesetService,
		auditService:   auditService,
	}
}

// List 获取规则集列表
// @Summary 获取规则集列表
// @Tags 规则集
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Param status query string false "状态"
// @Param type_id query int false "类型ID"
// @Param topic_id query int false "主题ID"
// @Param search query string false "搜索标题和内容"
// @Success 200 {object} PagedResponse{data=[]model.Ruleset}
// @Router /api/rulesets [get]
func (h *RulesetHandler) List(c *gin.Context) {
	var page model.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		BindError(c, err)
		return
	}

	var query service.RulesetQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		BindError(c, err)
		return
	}

	rulesets, err := h.rulesetService.List(c.Request.Context(), middleware.GetActor(c), &page, &query)
	if err != nil {
		HandleError(c, err)
		return
	}

	SuccessPaged(c, rulesets, page.Page, page.PageSize, page.Total, page.TotalPages())
}

// Get 获取规则集详情
// @Router /api/rulesets/{id} [get]
func (h *RulesetHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	ruleset, err := h.rulesetService.Get(c.Request.Context(), middleware.GetActor(c), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, ruleset)
}

// Create 创建规则集
// @Security Bearer
// @Router /api/rulesets [post]
func (h *RulesetHandler) Create(c *gin.Context) {
	var req service.CreateRulesetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}

	ruleset, err := h.rulesetService.Create(c.Request.Context(), middleware.GetActor(c), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, ruleset)
}

// Update 更新规则集
// @Security Bearer
// @Router /api/rulesets/{id} [put]
func (h *RulesetHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req service.UpdateRulesetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}

	ruleset, err := h.rulesetService.Update(c.Request.Context(), middleware.GetActor(c), id, &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, ruleset)
}

// Delete 删除规则集
// @Security Bearer
// @Router /api/rulesets/{id} [delete]
func (h *RulesetHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.rulesetService.Delete(c.Request.Context(), middleware.GetActor(c), id); err != nil {
		HandleError(c, err)
		return
	}
	SuccessWithMessage(c, "规章已删除", nil)
}

// AuditTrail 规则集的审计记录
// @Security Bearer
// @Router /api/rulesets/{id}/audit [get]
func (h *RulesetHandler) AuditTrail(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var page model.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		BindError(c, err)
		return
	}

	records, err := h.auditService.ListByRuleset(c.Request.Context(), id, &page)
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessPaged(c, records, page.Page, page.PageSize, page.Total, page.TotalPages())
}
