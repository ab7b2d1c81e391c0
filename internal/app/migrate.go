package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ryckox/syntagma/internal/config"
	"github.com/ryckox/syntagma/internal/database"
	"github.com/ryckox/syntagma/internal/metrics"
	"github.com/ryckox/syntagma/migrations"
	"github.com/ryckox/syntagma/pkg/logger"
	"github.com/ryckox/syntagma/pkg/migrate"
)

// NewMigrationRunner 按数据库配置创建迁移器
func NewMigrationRunner(db *gorm.DB, cfg *config.Config) (*migrate.Runner, error) {
	dialect, err := migrate.ParseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	src, err := migrations.Source(dialect)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	backuper, err := database.NewBackuper(db, &cfg.Database, &cfg.Migration)
	if err != nil {
		return nil, err
	}

	return migrate.New(sqlDB, src, migrate.Options{
		Dialect:         dialect,
		Backuper:        backuper,
		RequireBackup:   cfg.Migration.RequireBackup,
		VerifyChecksums: cfg.Migration.VerifyChecksums,
		Logger:          logger.L().Named("migrate"),
	}), nil
}

// Migrate 执行全部待执行迁移，返回错误时调用方必须中止启动
func Migrate(ctx context.Context, runner *migrate.Runner) (*migrate.Result, error) {
	result, err := runner.Up(ctx)
	if err != nil {
		metrics.RecordMigrationFailure("up")
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	metrics.RecordMigrationsApplied(len(result.Applied))
	if result.BackupPath != "" {
		metrics.RecordBackup("migration", nil)
	}
	if !result.UpToDate {
		logger.Info("database migrated",
			zap.Int("applied", len(result.Applied)),
			zap.String("backup", result.BackupPath))
	}
	return result, nil
}

// Rollback 回滚最近一次迁移，没有已执行迁移时返回 nil
func Rollback(ctx context.Context, runner *migrate.Runner) (*migrate.AppliedMigration, error) {
	reverted, err := runner.Rollback(ctx)
	if err != nil {
		metrics.RecordMigrationFailure("rollback")
		return nil, fmt.Errorf("database rollback failed: %w", err)
	}
	return reverted, nil
}
