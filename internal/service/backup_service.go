package service

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/ryckox/syntagma/internal/metrics"
	"github.com/ryckox/syntagma/pkg/logger"
	"github.com/ryckox/syntagma/pkg/migrate"
)

// 备份触发来源
const (
	BackupTriggerManual    = "manual"
	BackupTriggerScheduled = "scheduled"
	BackupTriggerCLI       = "cli"
)

// ErrBackupInProgress 已有备份在执行
var ErrBackupInProgress = errors.New("backup already in progress")

// BackupService 数据库备份
type BackupService struct {
	backuper migrate.Backuper
	mu       sync.Mutex
	running  bool
}

// NewBackupService 创建备份服务
func NewBackupService(backuper migrate.Backuper) *BackupService {
	return &BackupService{backuper: backuper}
}

// Run 执行一次备份，返回备份文件路径
func (s *BackupService) Run(ctx context.Context, trigger string) (string, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return "", ErrBackupInProgress
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	path, err := s.backuper.Backup(ctx)
	metrics.RecordBackup(trigger, err)
	if err != nil {
		logger.Error("database backup failed", zap.String("trigger", trigger), zap.Error(err))
		return "", err
	}
	logger.Info("database backup created", zap.String("trigger", trigger), zap.String("path", path))
	return path, nil
}
