// Package database 负责建立数据库连接
package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/ryckox/syntagma/internal/config"
	"github.com/ryckox/syntagma/pkg/logger"
	"github.com/ryckox/syntagma/pkg/migrate"
)

const sqliteBusyTimeoutMs = 5000

// SQLiteDSN 开启外键约束和忙等待
func SQLiteDSN(path string) string {
	return fmt.Sprintf("%s?_foreign_keys=1&_busy_timeout=%d", path, sqliteBusyTimeoutMs)
}

// Open 按配置打开数据库
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Warn),
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		if dir := filepath.Dir(cfg.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database dir: %w", err)
			}
		}
		dialector = sqlite.Open(SQLiteDSN(cfg.Path))
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// SQLite 只允许一个写连接
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	// 测试连接
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.Driver == "sqlite" {
		logger.Info("database connected", zap.String("driver", cfg.Driver), zap.String("path", cfg.Path))
	} else {
		logger.Info("database connected",
			zap.String("driver", cfg.Driver),
			zap.String("host", cfg.Host),
			zap.Int("port", cfg.Port),
			zap.String("database", cfg.Name))
	}

	return db, nil
}

// Close 关闭数据库
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NewBackuper 按驱动选择备份方式
//
// SQLite 通过 db 的连接执行 VACUUM INTO，不直接复制正在写入的文件。
func NewBackuper(db *gorm.DB, dbCfg *config.DatabaseConfig, migCfg *config.MigrationConfig) (migrate.Backuper, error) {
	if dbCfg.Driver == "postgres" {
		return &migrate.PgDumpBackuper{
			DSN:     dbCfg.URL(),
			Dir:     migCfg.BackupDir,
			Command: migCfg.PgDumpPath,
		}, nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	return &migrate.VacuumBackuper{
		DB:  sqlDB,
		Dir: migCfg.BackupDir,
	}, nil
}
