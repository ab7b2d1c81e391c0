package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ryckox/syntagma/internal/model"
	"github.com/ryckox/syntagma/internal/service"
)

const (
	// AuthHeader 认证头
	AuthHeader = "Authorization"
	// BearerPrefix Bearer 前缀
	BearerPrefix = "Bearer "
	// ContextKeyClaims 上下文中的 Claims 键
	ContextKeyClaims = "claims"
)

// TokenValidator 校验 JWT
type TokenValidator interface {
	ValidateToken(token string) (*service.Claims, error)
}

// AuthMiddleware 认证中间件结构体
type AuthMiddleware struct {
	validator TokenValidator
}

// NewAuthMiddleware 创建认证中间件
func NewAuthMiddleware(validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

func (m *AuthMiddleware) parse(c *gin.Context) (*service.Claims, string) {
	authHeader := c.GetHeader(AuthHeader)
	if authHeader == "" {
		return nil, "未提供认证信息"
	}
	if !strings.HasPrefix(authHeader, BearerPrefix) {
		return nil, "认证格式错误"
	}
	claims, err := m.validator.ValidateToken(strings.TrimPrefix(authHeader, BearerPrefix))
	if err != nil {
		return nil, "认证失败: " + err.Error()
	}
	return claims, ""
}

// Required 返回需要认证的中间件
func (m *AuthMiddleware) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, reason := m.parse(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    http.StatusUnauthorized,
				"message": reason,
			})
			return
		}
		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// Optional 携带有效令牌时写入用户信息，否则按匿名处理
func (m *AuthMiddleware) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(AuthHeader) != "" {
			if claims, _ := m.parse(c); claims != nil {
				c.Set(ContextKeyClaims, claims)
			}
		}
		c.Next()
	}
}

// RequireAdmin 仅管理员，需放在 Required 之后
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    http.StatusUnauthorized,
				"message": "未认证",
			})
			return
		}
		if claims.Role != model.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    http.StatusForbidden,
				"message": "需要管理员权限",
			})
			return
		}
		c.Next()
	}
}

// GetClaims 从上下文获取 Claims
func GetClaims(c *gin.Context) *service.Claims {
	if claims, exists := c.Get(ContextKeyClaims); exists {
		return claims.(*service.Claims)
	}
	return nil
}

// GetUserID 从上下文获取用户 ID
func GetUserID(c *gin.Context) int64 {
	if claims := GetClaims(c); claims != nil {
		return claims.UserID
	}
	return 0
}

// GetActor 当前请求的操作者，匿名请求返回 nil
func GetActor(c *gin.Context) *service.Actor {
	claims := GetClaims(c)
	if claims == nil {
		return nil
	}
	return &service.Actor{
		UserID:    claims.UserID,
		Username:  claims.Username,
		Role:      claims.Role,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}
