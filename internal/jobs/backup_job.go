package jobs

import (
	"context"
	"time"

	"github.com/ryckox/syntagma/internal/service"
)

// BackupJob 定时数据库备份
type BackupJob struct {
	backups *service.BackupService
	timeout time.Duration
}

// NewBackupJob 创建备份任务
func NewBackupJob(backups *service.BackupService) *BackupJob {
	return &BackupJob{backups: backups, timeout: 30 * time.Minute}
}

// Name 任务名
func (j *BackupJob) Name() string { return "database-backup" }

// Timeout 超时时间
func (j *BackupJob) Timeout() time.Duration { return j.timeout }

// Execute 执行备份
func (j *BackupJob) Execute(ctx context.Context) error {
	_, err := j.backups.Run(ctx, service.BackupTriggerScheduled)
	return err
}
