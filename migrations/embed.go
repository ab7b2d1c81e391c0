// Package migrations 内嵌各方言的数据库迁移脚本
package migrations

import (
	"embed"
	"fmt"
	"io/fs"

	"github.com/ryckox/syntagma/pkg/migrate"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

// Source 返回指定方言的脚本目录
func Source(dialect migrate.Dialect) (fs.FS, error) {
	switch dialect {
	case migrate.DialectSQLite, migrate.DialectPostgres:
		return fs.Sub(files, string(dialect))
	default:
		return nil, fmt.Errorf("no migrations for dialect %q", dialect)
	}
}
