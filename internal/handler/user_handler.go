package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ryckox/syntagma/internal/middleware"
	"github.com/ryckox/syntagma/internal/service"
)

// UserHandler 用户管理处理器 (管理员)
type UserHandler struct {
	userService *service.UserService
}

// NewUserHandler 创建用户管理处理器
func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// List 用户列表
// @Security Bearer
// @Router /api/admin/users [get]
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.userService.List(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, users)
}

// Get 用户详情
// @Security Bearer
// @Router /api/admin/users/{id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	user, err := h.userService.Get(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, user)
}

// Create 创建用户
// @Security Bearer
// @Router /api/admin/users [post]
func (h *UserHandler) Create(c *gin.Context) {
	var req service.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}

	user, err := h.userService.Create(c.Request.Context(), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, user)
}

// Update 更新用户角色、状态或资料
// @Security Bearer
// @Router /api/admin/users/{id} [put]
func (h *UserHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req service.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}

	user, err := h.userService.Update(c.Request.Context(), middleware.GetActor(c), id, &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, user)
}

// Delete 删除用户
// @Security Bearer
// @Router /api/admin/users/{id} [delete]
func (h *UserHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.userService.Delete(c.Request.Context(), middleware.GetActor(c), id); err != nil {
		HandleError(c, err)
		return
	}
	SuccessWithMessage(c, "用户已删除", nil)
}
