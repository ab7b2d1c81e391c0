package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ryckox/syntagma/internal/cache"
	"github.com/ryckox/syntagma/internal/config"
	"github.com/ryckox/syntagma/internal/database"
	"github.com/ryckox/syntagma/internal/handler"
	"github.com/ryckox/syntagma/internal/jobs"
	"github.com/ryckox/syntagma/internal/middleware"
	"github.com/ryckox/syntagma/internal/repository"
	"github.com/ryckox/syntagma/internal/router"
	"github.com/ryckox/syntagma/internal/service"
	"github.com/ryckox/syntagma/pkg/logger"
	"github.com/ryckox/syntagma/pkg/migrate"
)

// App 应用
type App struct {
	cfg         *config.Config
	db          *gorm.DB
	redisClient redis.UniversalClient
	runner      *migrate.Runner
	scheduler   *jobs.Scheduler
	httpServer  *http.Server
	engine      *gin.Engine
}

// New 创建应用，redisClient 可以为 nil
func New(cfg *config.Config, db *gorm.DB, redisClient redis.UniversalClient) *App {
	return &App{
		cfg:         cfg,
		db:          db,
		redisClient: redisClient,
	}
}

// Init 初始化应用，迁移失败时返回错误
func (a *App) Init(ctx context.Context) error {
	// 设置 Gin 模式
	if a.cfg.Server.Mode == gin.ReleaseMode || a.cfg.Server.Mode == gin.TestMode {
		gin.SetMode(a.cfg.Server.Mode)
	}

	runner, err := NewMigrationRunner(a.db, a.cfg)
	if err != nil {
		return err
	}
	if _, err := Migrate(ctx, runner); err != nil {
		return err
	}
	a.runner = runner

	// 初始化存储层
	repos := a.initRepositories()

	// 初始化服务层
	svcs, err := a.initServices(repos)
	if err != nil {
		return err
	}

	if _, err := svcs.Auth.EnsureAdmin(ctx,
		a.cfg.Bootstrap.AdminUsername,
		a.cfg.Bootstrap.AdminPassword,
		a.cfg.Bootstrap.AdminEmail); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	// 初始化处理器
	handlers, err := a.initHandlers(svcs)
	if err != nil {
		return err
	}

	cors := middleware.DefaultCORSConfig()
	if len(a.cfg.Server.CORSOrigins) > 0 {
		cors.AllowOrigins = a.cfg.Server.CORSOrigins
	}
	a.engine, err = router.New(handlers, middleware.NewAuthMiddleware(svcs.Auth), cors)
	if err != nil {
		return err
	}

	// 定时备份
	a.scheduler = jobs.NewScheduler()
	if err := a.scheduler.Register(a.cfg.Backup.Schedule, jobs.NewBackupJob(svcs.Backup)); err != nil {
		return err
	}

	// 创建 HTTP 服务器
	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:      a.engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("app initialized",
		zap.Int("port", a.cfg.Server.Port),
		zap.String("driver", a.cfg.Database.Driver),
		zap.Bool("cache", a.redisClient != nil))

	return nil
}

// repositories 存储层
type repositories struct {
	Ruleset  repository.RulesetRepository
	Taxonomy repository.TaxonomyRepository
	User     repository.UserRepository
	AuditLog repository.AuditLogRepository
}

// initRepositories 初始化存储层
func (a *App) initRepositories() *repositories {
	return &repositories{
		Ruleset:  repository.NewRulesetRepository(a.db),
		Taxonomy: repository.NewTaxonomyRepository(a.db),
		User:     repository.NewUserRepository(a.db),
		AuditLog: repository.NewAuditLogRepository(a.db),
	}
}

// services 服务层
type services struct {
	Auth     *service.AuthService
	Ruleset  *service.RulesetService
	Audit    *service.AuditService
	Taxonomy *service.TaxonomyService
	User     *service.UserService
	Backup   *service.BackupService
}

// initServices 初始化服务层
func (a *App) initServices(repos *repositories) (*services, error) {
	// 审计服务 (规则集服务依赖)
	auditSvc := service.NewAuditService(repos.AuditLog, logger.L())

	rulesetCache := cache.NewRulesetCache(a.redisClient, time.Duration(a.cfg.Redis.CacheTTLSeconds)*time.Second)
	var readCache service.RulesetCache
	if rulesetCache != nil {
		readCache = rulesetCache
	}

	backuper, err := database.NewBackuper(a.db, &a.cfg.Database, &a.cfg.Migration)
	if err != nil {
		return nil, err
	}

	authSvc := service.NewAuthService(repos.User, &service.AuthServiceConfig{
		JWTSecret:      a.cfg.JWT.Secret,
		JWTExpireHours: a.cfg.JWT.ExpireHours,
	})

	return &services{
		Auth:     authSvc,
		Ruleset:  service.NewRulesetService(repos.Ruleset, repos.Taxonomy, auditSvc, readCache, logger.L()),
		Audit:    auditSvc,
		Taxonomy: service.NewTaxonomyService(repos.Taxonomy),
		User:     service.NewUserService(repos.User, authSvc),
		Backup:   service.NewBackupService(backuper),
	}, nil
}

// initHandlers 初始化处理器
func (a *App) initHandlers(svcs *services) (*router.Handlers, error) {
	sqlDB, err := a.db.DB()
	if err != nil {
		return nil, err
	}
	return &router.Handlers{
		Auth:     handler.NewAuthHandler(svcs.Auth),
		Ruleset:  handler.NewRulesetHandler(svcs.Ruleset, svcs.Audit),
		Audit:    handler.NewAuditHandler(svcs.Audit),
		Taxonomy: handler.NewTaxonomyHandler(svcs.Taxonomy),
		User:     handler.NewUserHandler(svcs.User),
		Admin:    handler.NewAdminHandler(a.runner, svcs.Backup, sqlDB),
	}, nil
}

// Run 运行应用，阻塞直到服务器关闭
func (a *App) Run() error {
	a.scheduler.Start()
	logger.Info("starting HTTP server", zap.String("addr", a.httpServer.Addr))
	if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown 关闭应用
func (a *App) Shutdown(ctx context.Context) error {
	logger.Info("shutting down HTTP server")
	err := a.httpServer.Shutdown(ctx)
	a.scheduler.Stop()
	return err
}

// Engine 获取 Gin 引擎 (用于测试)
func (a *App) Engine() *gin.Engine {
	return a.engine
}
