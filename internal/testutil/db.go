// Package testutil 为各层测试提供已迁移的 SQLite 数据库
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ryckox/syntagma/internal/model"
	"github.com/ryckox/syntagma/migrations"
	"github.com/ryckox/syntagma/pkg/migrate"
)

// NewDB 创建临时文件数据库并执行全部迁移
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=1"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 单连接，避免 SQLITE_BUSY
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	src, err := migrations.Source(migrate.DialectSQLite)
	require.NoError(t, err)
	_, err = migrate.New(sqlDB, src, migrate.Options{Dialect: migrate.DialectSQLite}).Up(context.Background())
	require.NoError(t, err)

	return db
}

// Fixture 常用测试数据
type Fixture struct {
	Admin      *model.User
	Author     *model.User
	Other      *model.User
	Type       *model.RulesetType
	OtherType  *model.RulesetType
	Topics     []*model.Topic
	OtherTopic *model.Topic
}

// Password 测试用户的明文密码
const Password = "password123"

// Seed 写入用户、类型和主题
func Seed(t *testing.T, db *gorm.DB) *Fixture {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	require.NoError(t, err)

	newUser := func(name string, role model.UserRole) *model.User {
		u := &model.User{
			Username:     name,
			Email:        name + "@test.local",
			PasswordHash: string(hash),
			Role:         role,
			Active:       true,
			CreatedAt:    time.Now(),
			UpdatedAt:    time.Now(),
		}
		require.NoError(t, db.Create(u).Error)
		return u
	}

	f := &Fixture{
		Admin:  newUser("admin", model.RoleAdmin),
		Author: newUser("author", model.RoleUser),
		Other:  newUser("other", model.RoleUser),
	}

	f.Type = &model.RulesetType{Name: "Satzung", Color: "#3B82F6", Icon: "document"}
	require.NoError(t, db.Create(f.Type).Error)
	f.OtherType = &model.RulesetType{Name: "Richtlinie", Color: "#10B981", Icon: "book"}
	require.NoError(t, db.Create(f.OtherType).Error)

	for _, name := range []string{"Allgemein", "Finanzen"} {
		topic := &model.Topic{Name: name, TypeID: f.Type.ID}
		require.NoError(t, db.Create(topic).Error)
		f.Topics = append(f.Topics, topic)
	}
	f.OtherTopic = &model.Topic{Name: "Datenschutz", TypeID: f.OtherType.ID}
	require.NoError(t, db.Create(f.OtherTopic).Error)

	return f
}
