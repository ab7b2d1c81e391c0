package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ryckox/syntagma/internal/handler"
	"github.com/ryckox/syntagma/internal/middleware"
)

// Handlers 所有处理器
type Handlers struct {
	Auth     *handler.AuthHandler
	Ruleset  *handler.RulesetHandler
	Audit    *handler.AuditHandler
	Taxonomy *handler.TaxonomyHandler
	User     *handler.UserHandler
	Admin    *handler.AdminHandler
}

// New 创建 gin 引擎并挂载全局中间件和路由
func New(h *Handlers, authMiddleware *middleware.AuthMiddleware, cors middleware.CORSConfig) (*gin.Engine, error) {
	if err := handler.RegisterValidators(); err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		middleware.CORS(cors),
		middleware.Metrics(),
	)
	SetupRouter(r, h, authMiddleware)
	return r, nil
}

// SetupRouter 设置路由
func SetupRouter(r *gin.Engine, h *Handlers, authMiddleware *middleware.AuthMiddleware) {
	// 健康检查
	r.GET("/health", h.Admin.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		// 认证相关
		auth := api.Group("/auth")
		{
			auth.POST("/login", h.Auth.Login)
			auth.GET("/me", authMiddleware.Required(), h.Auth.Me)
		}

		// 类型与主题，读取公开，写入仅管理员
		types := api.Group("/types")
		{
			types.GET("", h.Taxonomy.Types)
			types.GET("/:id", h.Taxonomy.GetType)
			types.GET("/:id/topics", h.Taxonomy.Topics)

			manage := types.Group("", authMiddleware.Required(), middleware.RequireAdmin())
			manage.POST("", h.Taxonomy.CreateType)
			manage.PUT("/:id", h.Taxonomy.UpdateType)
			manage.DELETE("/:id", h.Taxonomy.DeleteType)
			manage.POST("/:id/topics", h.Taxonomy.CreateTopic)
		}
		topics := api.Group("/topics")
		{
			topics.GET("/:id", h.Taxonomy.GetTopic)

			manage := topics.Group("", authMiddleware.Required(), middleware.RequireAdmin())
			manage.PUT("/:id", h.Taxonomy.UpdateTopic)
			manage.DELETE("/:id", h.Taxonomy.DeleteTopic)
		}

		// 规则集，匿名用户只能读取已发布
		rulesets := api.Group("/rulesets")
		{
			rulesets.GET("", authMiddleware.Optional(), h.Ruleset.List)
			rulesets.GET("/:id", authMiddleware.Optional(), h.Ruleset.Get)
			rulesets.POST("", authMiddleware.Required(), h.Ruleset.Create)
			rulesets.PUT("/:id", authMiddleware.Required(), h.Ruleset.Update)
			rulesets.DELETE("/:id", authMiddleware.Required(), h.Ruleset.Delete)
			rulesets.GET("/:id/audit", authMiddleware.Required(), middleware.RequireAdmin(), h.Ruleset.AuditTrail)
		}

		// 审计日志 (管理员)
		audit := api.Group("/audit")
		audit.Use(authMiddleware.Required(), middleware.RequireAdmin())
		{
			audit.GET("", h.Audit.List)
			audit.GET("/:id", h.Audit.Get)
		}

		// 运维与用户管理 (管理员)
		admin := api.Group("/admin")
		admin.Use(authMiddleware.Required(), middleware.RequireAdmin())
		{
			admin.GET("/migrations", h.Admin.MigrationStatus)
			admin.POST("/backups", h.Admin.Backup)

			admin.GET("/users", h.User.List)
			admin.GET("/users/:id", h.User.Get)
			admin.POST("/users", h.User.Create)
			admin.PUT("/users/:id", h.User.Update)
			admin.DELETE("/users/:id", h.User.Delete)
		}
	}
}
