package migrate

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Backuper 迁移前的数据库备份
type Backuper interface {
	// Backup 返回备份文件路径
	Backup(ctx context.Context) (string, error)
}

// BackupFunc 函数适配器
type BackupFunc func(ctx context.Context) (string, error)

// Backup 实现 Backuper
func (f BackupFunc) Backup(ctx context.Context) (string, error) {
	return f(ctx)
}

// backupName 生成 backup_2024-01-02T03-04-05-000Z 形式的文件名
func backupName(now time.Time, ext string) string {
	ts := now.UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	return "backup_" + ts + ext
}

// VacuumBackuper 通过已打开的连接执行 VACUUM INTO 生成一致的 SQLite 快照
//
// 快照在 SQLite 的读事务中生成，写入中的事务不会留下半页数据。
// 不能在事务内调用。
type VacuumBackuper struct {
	DB *sql.DB
	// Dir 备份目录
	Dir string
	Now func() time.Time
}

// Backup 实现 Backuper
func (b *VacuumBackuper) Backup(ctx context.Context) (string, error) {
	if b.DB == nil {
		return "", errors.New("database connection is nil")
	}
	if err := os.MkdirAll(b.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	target := filepath.Join(b.Dir, backupName(b.now(), ".db"))
	// VACUUM INTO 要求目标文件不存在
	if _, err := os.Stat(target); err == nil {
		return "", fmt.Errorf("backup file %s already exists", target)
	}
	if _, err := b.DB.ExecContext(ctx, "VACUUM INTO ?", target); err != nil {
		os.Remove(target)
		return "", fmt.Errorf("vacuum into backup file: %w", err)
	}
	return target, nil
}

func (b *VacuumBackuper) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

// PgDumpBackuper 调用 pg_dump 导出 PostgreSQL
type PgDumpBackuper struct {
	// DSN 连接串，直接交给 pg_dump --dbname
	DSN string
	Dir string
	// Command 默认 pg_dump
	Command string
	Now     func() time.Time
}

// Backup 实现 Backuper
func (b *PgDumpBackuper) Backup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(b.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	now := time.Now()
	if b.Now != nil {
		now = b.Now()
	}
	target := filepath.Join(b.Dir, backupName(now, ".sql"))

	command := b.Command
	if command == "" {
		command = "pg_dump"
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, command, "--dbname", b.DSN, "--file", target)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(target)
		return "", fmt.Errorf("pg_dump failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return target, nil
}
