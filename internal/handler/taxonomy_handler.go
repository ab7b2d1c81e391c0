package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ryckox/syntagma/internal/service"
)

// TaxonomyHandler 类型与主题处理器
type TaxonomyHandler struct {
	taxonomyService *service.TaxonomyService
}

// NewTaxonomyHandler 创建分类处理器
func NewTaxonomyHandler(taxonomyService *service.TaxonomyService) *TaxonomyHandler {
	return &TaxonomyHandler{taxonomyService: taxonomyService}
}

// Types 全部类型
// @Router /api/types [get]
func (h *TaxonomyHandler) Types(c *gin.Context) {
	types, err := h.taxonomyService.ListTypes(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, types)
}

// Topics 类型下的主题
// @Router /api/types/{id}/topics [get]
func (h *TaxonomyHandler) Topics(c *gin.Context) {
	typeID, ok := parseID(c, "id")
	if !ok {
		return
	}

	topics, err := h.taxonomyService.ListTopics(c.Request.Context(), typeID)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, topics)
}

// GetType 类型详情
// @Router /api/types/{id} [get]
func (h *TaxonomyHandler) GetType(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	t, err := h.taxonomyService.GetType(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, t)
}

// CreateType 创建类型
// @Security Bearer
// @Router /api/types [post]
func (h *TaxonomyHandler) CreateType(c *gin.Context) {
	var req service.CreateTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}

	t, err := h.taxonomyService.CreateType(c.Request.Context(), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, t)
}

// UpdateType 更新类型
// @Security Bearer
// @Router /api/types/{id} [put]
func (h *TaxonomyHandler) UpdateType(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req service.UpdateTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}

	t, err := h.taxonomyService.UpdateType(c.Request.Context(), id, &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, t)
}

// DeleteType 删除类型
// @Security Bearer
// @Router /api/types/{id} [delete]
func (h *TaxonomyHandler) DeleteType(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.taxonomyService.DeleteType(c.Request.Context(), id); err != nil {
		HandleError(c, err)
		return
	}
	SuccessWithMessage(c, "类型已删除", nil)
}

// GetTopic 主题详情
// @Router /api/topics/{id} [get]
func (h *TaxonomyHandler) GetTopic(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	topic, err := h.taxonomyService.GetTopic(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, topic)
}

// CreateTopic 在类型下创建主题
// @Security Bearer
// @Router /api/types/{id}/topics [post]
func (h *TaxonomyHandler) CreateTopic(c *gin.Context) {
	typeID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req service.CreateTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}

	topic, err := h.taxonomyService.CreateTopic(c.Request.Context(), typeID, &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, topic)
}

// UpdateTopic 更新主题
// @Security Bearer
// @Router /api/topics/{id} [put]
func (h *TaxonomyHandler) UpdateTopic(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req service.UpdateTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}

	topic, err := h.taxonomyService.UpdateTopic(c.Request.Context(), id, &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, topic)
}

// DeleteTopic 删除主题
// @Security Bearer
// @Router /api/topics/{id} [delete]
func (h *TaxonomyHandler) DeleteTopic(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.taxonomyService.DeleteTopic(c.Request.Context(), id); err != nil {
		HandleError(c, err)
		return
	}
	SuccessWithMessage(c, "主题已删除", nil)
}
