package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ryckox/syntagma/internal/service"
	pkgerrors "github.com/ryckox/syntagma/pkg/errors"
	"github.com/ryckox/syntagma/pkg/migrate"
)

// MigrationStatusProvider 迁移状态
type MigrationStatusProvider interface {
	Status(ctx context.Context) ([]migrate.StatusEntry, error)
}

// Pinger 数据库连通性检查
type Pinger interface {
	PingContext(ctx context.Context) error
}

// AdminHandler 运维处理器
type AdminHandler struct {
	migrations MigrationStatusProvider
	backups    *service.BackupService
	db         Pinger
}

// NewAdminHandler 创建运维处理器
func NewAdminHandler(migrations MigrationStatusProvider, backups *service.BackupService, db Pinger) *AdminHandler {
	return &AdminHandler{
		migrations: migrations,
		backups:    backups,
		db:         db,
	}
}

// MigrationStatus 迁移脚本及执行状态
// @Security Bearer
// @Router /api/admin/migrations [get]
func (h *AdminHandler) MigrationStatus(c *gin.Context) {
	entries, err := h.migrations.Status(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, entries)
}

// Backup 立即备份数据库
// @Security Bearer
// @Router /api/admin/backups [post]
func (h *AdminHandler) Backup(c *gin.Context) {
	path, err := h.backups.Run(c.Request.Context(), service.BackupTriggerManual)
	if err != nil {
		if errors.Is(err, service.ErrBackupInProgress) {
			HandleError(c, pkgerrors.ErrConflict.WithMessage("备份正在进行中"))
			return
		}
		HandleError(c, pkgerrors.Wrap(pkgerrors.ErrInternal.WithMessage("备份失败"), err))
		return
	}
	Created(c, gin.H{"path": path})
}

// Health 健康检查
func (h *AdminHandler) Health(c *gin.Context) {
	if err := h.db.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
