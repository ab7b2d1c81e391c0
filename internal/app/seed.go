package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/ryckox/syntagma/internal/config"
	"github.com/ryckox/syntagma/internal/repository"
	"github.com/ryckox/syntagma/internal/service"
)

// SeedReport 初始化数据的结果
type SeedReport struct {
	Taxonomy     *service.SeedResult
	AdminCreated bool
}

// Seed 迁移到最新后写入默认类型、主题和配置中的初始管理员，可重复执行
func Seed(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SeedReport, error) {
	runner, err := NewMigrationRunner(db, cfg)
	if err != nil {
		return nil, err
	}
	if _, err := Migrate(ctx, runner); err != nil {
		return nil, err
	}

	taxonomy, err := service.NewTaxonomyService(repository.NewTaxonomyRepository(db)).
		Seed(ctx, service.DefaultTaxonomy)
	if err != nil {
		return nil, fmt.Errorf("seed taxonomy: %w", err)
	}

	auth := service.NewAuthService(repository.NewUserRepository(db), &service.AuthServiceConfig{
		JWTSecret:      cfg.JWT.Secret,
		JWTExpireHours: cfg.JWT.ExpireHours,
	})
	created, err := auth.EnsureAdmin(ctx,
		cfg.Bootstrap.AdminUsername,
		cfg.Bootstrap.AdminPassword,
		cfg.Bootstrap.AdminEmail)
	if err != nil {
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	return &SeedReport{Taxonomy: taxonomy, AdminCreated: created}, nil
}
