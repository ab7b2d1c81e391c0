package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ryckox/syntagma/internal/middleware"
	"github.com/ryckox/syntagma/internal/service"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Login 登录
// @Summary 用户登录
// @Tags 认证
// @Param body body service.LoginRequest true "登录信息"
// @Success 200 {object} Response{data=service.LoginResponse}
// @Router /api/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, resp)
}

// Me 当前用户
// @Security Bearer
// @Router /api/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.authService.Profile(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, user)
}
