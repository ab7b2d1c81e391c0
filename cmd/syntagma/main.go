package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ryckox/syntagma/internal/cache"
	"github.com/ryckox/syntagma/internal/config"
	"github.com/ryckox/syntagma/internal/database"
	"github.com/ryckox/syntagma/pkg/logger"
)

const serviceName = "syntagma"

var (
	// Version 构建时通过 ldflags 注入
	Version = "dev"

	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           serviceName,
	Short:         "Syntagma - versioned ruleset registry",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("SYNTAGMA_CONFIG"), "path to config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(seedCmd)
}

// bootstrap 加载配置并初始化日志
func bootstrap() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: serviceName,
	}); err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return cfg, nil
}

// openDatabase 初始化数据库连接
func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Open(&cfg.Database)
	if err != nil {
		logger.Error("failed to init database", zap.Error(err))
		return nil, err
	}
	return db, nil
}

// openRedis 未启用时返回 nil
func openRedis(ctx context.Context, cfg *config.Config) (redis.UniversalClient, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	return cache.NewClient(ctx, &cfg.Redis)
}
