// Package migrate 提供按版本号顺序执行的数据库迁移
//
// 迁移脚本按 golang-migrate 的命名规则存放: NNN_name.up.sql / NNN_name.down.sql,
// 版本号是文件名的数字前缀，也是唯一的排序依据。所有待执行脚本在同一个事务中执行，
// 任一脚本失败则整批回滚。元数据表记录已执行的版本。
//
// 本包不做跨进程互斥: 两个实例同时对同一个新库执行 Up 时，后提交者会因为版本主键冲突
// 或表已存在而失败。部署时应保证只有一个实例执行迁移。
package migrate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// DefaultTable 默认元数据表名
const DefaultTable = "schema_migrations"

var (
	// ErrMissingUp 脚本缺少 up 文件
	ErrMissingUp = errors.New("migration has no up script")
	// ErrMissingDown 脚本缺少 down 文件
	ErrMissingDown = errors.New("migration has no down script")
	// ErrDuplicateVersion 同一版本号出现多个脚本
	ErrDuplicateVersion = errors.New("duplicate migration version")
	// ErrBackupRequired 要求备份但备份失败
	ErrBackupRequired = errors.New("backup required before migration but failed")
)

// Script 已发现的迁移脚本
type Script struct {
	Version uint   `json:"version"`
	Name    string `json:"name"`
	HasUp   bool   `json:"has_up"`
	HasDown bool   `json:"has_down"`
}

// ID 返回 "003_add_audit_log" 形式的标识
func (s Script) ID() string {
	return fmt.Sprintf("%03d_%s", s.Version, s.Name)
}

// AppliedMigration 元数据表中的一行
type AppliedMigration struct {
	Version   uint      `json:"version"`
	Name      string    `json:"name"`
	AppliedAt time.Time `json:"applied_at"`
	Checksum  string    `json:"checksum,omitempty"`
}

// StatusEntry 迁移状态
type StatusEntry struct {
	Script
	Applied   bool       `json:"applied"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
}

// Result Up 的执行结果
type Result struct {
	Applied    []Script `json:"applied"`
	UpToDate   bool     `json:"up_to_date"`
	BackupPath string   `json:"backup_path,omitempty"`
}

// Options 迁移器选项
type Options struct {
	Dialect Dialect
	// Table 元数据表名，默认 schema_migrations
	Table string
	// Path 脚本在 source 中的目录，默认 "."
	Path string
	// Backuper 为 nil 时跳过备份
	Backuper Backuper
	// RequireBackup 备份失败时中止迁移；默认只记录警告并继续
	RequireBackup bool
	// VerifyChecksums 对比已执行脚本的摘要，不一致时记录警告
	VerifyChecksums bool
	Logger          *zap.Logger
}

// Runner 迁移器
type Runner struct {
	db     *sql.DB
	source fs.FS
	opts   Options
	logger *zap.Logger
}

// New 创建迁移器
func New(db *sql.DB, source fs.FS, opts Options) *Runner {
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	if opts.Path == "" {
		opts.Path = "."
	}
	if opts.Dialect == "" {
		opts.Dialect = DialectSQLite
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		db:     db,
		source: source,
		opts:   opts,
		logger: logger.With(zap.String("component", "migrate")),
	}
}

// openSource 打开脚本源，重复版本号直接报错
func (r *Runner) openSource() (source.Driver, error) {
	drv, err := iofs.New(r.source, r.opts.Path)
	if err != nil {
		var dup source.ErrDuplicateMigration
		if errors.As(err, &dup) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateVersion, dup.Name())
		}
		return nil, fmt.Errorf("open migration source: %w", err)
	}
	return drv, nil
}

// Discover 列出所有脚本，按版本号升序
func (r *Runner) Discover() ([]Script, error) {
	drv, err := r.openSource()
	if err != nil {
		return nil, err
	}
	defer drv.Close()

	return discover(drv)
}

func discover(drv source.Driver) ([]Script, error) {
	var scripts []Script

	version, err := drv.First()
	for err == nil {
		s := Script{Version: version}

		if rc, ident, upErr := drv.ReadUp(version); upErr == nil {
			rc.Close()
			s.HasUp = true
			s.Name = ident
		} else if !errors.Is(upErr, fs.ErrNotExist) {
			return nil, fmt.Errorf("read up script %d: %w", version, upErr)
		}

		if rc, ident, downErr := drv.ReadDown(version); downErr == nil {
			rc.Close()
			s.HasDown = true
			if s.Name == "" {
				s.Name = ident
			}
		} else if !errors.Is(downErr, fs.ErrNotExist) {
			return nil, fmt.Errorf("read down script %d: %w", version, downErr)
		}

		scripts = append(scripts, s)
		version, err = drv.Next(version)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	return scripts, nil
}

// ensureTable 创建元数据表，不在迁移事务内
func (r *Runner) ensureTable(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, r.opts.Dialect.createTableSQL(r.opts.Table)); err != nil {
		return fmt.Errorf("create %s: %w", r.opts.Table, err)
	}
	return nil
}

// Applied 读取已执行的迁移，按版本号升序
func (r *Runner) Applied(ctx context.Context) ([]AppliedMigration, error) {
	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}
	return r.applied(ctx)
}

func (r *Runner) applied(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT version, name, applied_at, checksum FROM %s ORDER BY version", r.opts.Table))
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var result []AppliedMigration
	for rows.Next() {
		m, err := scanApplied(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *m)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplied(row rowScanner) (*AppliedMigration, error) {
	var (
		m        AppliedMigration
		version  int64
		checksum sql.NullString
	)
	if err := row.Scan(&version, &m.Name, &m.AppliedAt, &checksum); err != nil {
		return nil, err
	}
	m.Version = uint(version)
	m.Checksum = checksum.String
	return &m, nil
}

// Pending 计算待执行的脚本，保持升序
func (r *Runner) Pending(ctx context.Context) ([]Script, error) {
	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}
	scripts, err := r.Discover()
	if err != nil {
		return nil, err
	}
	applied, err := r.applied(ctx)
	if err != nil {
		return nil, err
	}
	return pendingOf(scripts, applied), nil
}

func pendingOf(scripts []Script, applied []AppliedMigration) []Script {
	done := make(map[uint]struct{}, len(applied))
	for _, m := range applied {
		done[m.Version] = struct{}{}
	}
	pending := make([]Script, 0, len(scripts))
	for _, s := range scripts {
		if _, ok := done[s.Version]; !ok {
			pending = append(pending, s)
		}
	}
	return pending
}

// Status 返回每个脚本的执行状态
func (r *Runner) Status(ctx context.Context) ([]StatusEntry, error) {
	scripts, err := r.Discover()
	if err != nil {
		return nil, err
	}
	applied, err := r.Applied(ctx)
	if err != nil {
		return nil, err
	}

	byVersion := make(map[uint]AppliedMigration, len(applied))
	for _, m := range applied {
		byVersion[m.Version] = m
	}

	entries := make([]StatusEntry, 0, len(scripts))
	for _, s := range scripts {
		e := StatusEntry{Script: s}
		if m, ok := byVersion[s.Version]; ok {
			at := m.AppliedAt
			e.Applied = true
			e.AppliedAt = &at
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// pendingScript 待执行脚本及其内容
type pendingScript struct {
	Script
	body     string
	checksum string
}

// Up 执行所有待执行的迁移
func (r *Runner) Up(ctx context.Context) (*Result, error) {
	r.logger.Info("starting database migration")

	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}

	drv, err := r.openSource()
	if err != nil {
		return nil, err
	}
	defer drv.Close()

	scripts, err := discover(drv)
	if err != nil {
		return nil, err
	}
	applied, err := r.applied(ctx)
	if err != nil {
		return nil, err
	}

	if r.opts.VerifyChecksums {
		r.verifyChecksums(drv, applied)
	}

	pending := pendingOf(scripts, applied)
	if len(pending) == 0 {
		r.logger.Info("database is up to date, no migrations needed")
		return &Result{UpToDate: true}, nil
	}

	r.logger.Info("found pending migrations", zap.Int("count", len(pending)))

	batch := make([]pendingScript, 0, len(pending))
	for _, s := range pending {
		if !s.HasUp {
			return nil, fmt.Errorf("%w: %s", ErrMissingUp, s.ID())
		}
		body, err := readScript(drv.ReadUp(s.Version))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", s.ID(), err)
		}
		batch = append(batch, pendingScript{Script: s, body: body, checksum: checksum(body)})
	}

	backupPath, err := r.backup(ctx)
	if err != nil {
		return nil, err
	}

	if err := r.apply(ctx, batch); err != nil {
		return nil, err
	}

	result := &Result{BackupPath: backupPath}
	for _, p := range batch {
		result.Applied = append(result.Applied, p.Script)
	}
	r.logger.Info("all migrations applied", zap.Int("count", len(batch)))
	return result, nil
}

// apply 在一个事务中执行整批脚本
func (r *Runner) apply(ctx context.Context, batch []pendingScript) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration transaction: %w", err)
	}

	insert := fmt.Sprintf("INSERT INTO %s (version, name, checksum) VALUES (%s, %s, %s)",
		r.opts.Table, r.opts.Dialect.placeholder(1), r.opts.Dialect.placeholder(2), r.opts.Dialect.placeholder(3))

	for _, p := range batch {
		r.logger.Info("applying migration", zap.String("migration", p.ID()))

		if strings.TrimSpace(p.body) != "" {
			if _, err := tx.ExecContext(ctx, p.body); err != nil {
				r.rollback(tx)
				return fmt.Errorf("apply migration %s: %w", p.ID(), err)
			}
		}
		if _, err := tx.ExecContext(ctx, insert, int64(p.Version), p.Name, p.checksum); err != nil {
			r.rollback(tx)
			return fmt.Errorf("record migration %s: %w", p.ID(), err)
		}

		r.logger.Info("migration applied", zap.String("migration", p.ID()))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

func (r *Runner) rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil {
		r.logger.Error("rollback migration transaction failed", zap.Error(err))
		return
	}
	r.logger.Error("migration failed, transaction rolled back")
}

// Rollback 回滚版本号最大的一条已执行迁移；没有可回滚的迁移时返回 nil, nil
func (r *Runner) Rollback(ctx context.Context) (*AppliedMigration, error) {
	r.logger.Info("rolling back last migration")

	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}

	last, err := scanApplied(r.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT version, name, applied_at, checksum FROM %s ORDER BY version DESC LIMIT 1", r.opts.Table)))
	if errors.Is(err, sql.ErrNoRows) {
		r.logger.Info("no migrations to roll back")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last migration: %w", err)
	}

	drv, err := r.openSource()
	if err != nil {
		return nil, err
	}
	defer drv.Close()

	id := fmt.Sprintf("%03d_%s", last.Version, last.Name)
	body, err := readScript(drv.ReadDown(last.Version))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingDown, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read down script %s: %w", id, err)
	}

	if _, err := r.backup(ctx); err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin rollback transaction: %w", err)
	}
	if strings.TrimSpace(body) != "" {
		if _, err := tx.ExecContext(ctx, body); err != nil {
			r.rollback(tx)
			return nil, fmt.Errorf("roll back migration %s: %w", id, err)
		}
	}
	del := fmt.Sprintf("DELETE FROM %s WHERE version = %s", r.opts.Table, r.opts.Dialect.placeholder(1))
	if _, err := tx.ExecContext(ctx, del, int64(last.Version)); err != nil {
		r.rollback(tx)
		return nil, fmt.Errorf("delete migration record %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit rollback: %w", err)
	}

	r.logger.Info("migration rolled back", zap.String("migration", id))
	return last, nil
}

// backup 执行迁移前备份
func (r *Runner) backup(ctx context.Context) (string, error) {
	if r.opts.Backuper == nil {
		if r.opts.RequireBackup {
			return "", fmt.Errorf("%w: no backuper configured", ErrBackupRequired)
		}
		return "", nil
	}

	path, err := r.opts.Backuper.Backup(ctx)
	if err != nil {
		if r.opts.RequireBackup {
			return "", fmt.Errorf("%w: %v", ErrBackupRequired, err)
		}
		r.logger.Warn("backup before migration failed, continuing", zap.Error(err))
		return "", nil
	}

	r.logger.Info("backup created", zap.String("path", path))
	return path, nil
}

// verifyChecksums 已执行脚本内容变化时只记录警告
func (r *Runner) verifyChecksums(drv source.Driver, applied []AppliedMigration) {
	for _, m := range applied {
		if m.Checksum == "" {
			continue
		}
		body, err := readScript(drv.ReadUp(m.Version))
		if err != nil {
			continue
		}
		if sum := checksum(body); sum != m.Checksum {
			r.logger.Warn("applied migration changed on disk",
				zap.Uint("version", m.Version),
				zap.String("name", m.Name),
				zap.String("recorded", m.Checksum),
				zap.String("current", sum))
		}
	}
}

func readScript(rc io.ReadCloser, _ string, err error) (string, error) {
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func checksum(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}
