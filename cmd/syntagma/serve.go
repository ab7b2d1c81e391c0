package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ryckox/syntagma/internal/app"
	"github.com/ryckox/syntagma/internal/database"
	"github.com/ryckox/syntagma/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run migrations and start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()

		logger.Info("starting service",
			zap.String("service", serviceName),
			zap.String("version", Version),
			zap.Int("port", cfg.Server.Port))

		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close(db)

		redisClient, err := openRedis(cmd.Context(), cfg)
		if err != nil {
			logger.Error("failed to init redis", zap.Error(err))
			return err
		}
		if redisClient != nil {
			defer redisClient.Close()
		}

		// 迁移失败时不启动服务
		application := app.New(cfg, db, redisClient)
		if err := application.Init(cmd.Context()); err != nil {
			logger.Error("failed to init application", zap.Error(err))
			return err
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- application.Run()
		}()

		// 等待终止信号
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-sigCh:
		case err := <-errCh:
			if err != nil {
				logger.Error("failed to run application", zap.Error(err))
				return err
			}
		}

		logger.Info("shutting down...")

		// 优雅关闭
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := application.Shutdown(ctx); err != nil {
			logger.Error("application shutdown error", zap.Error(err))
		}

		logger.Info("service stopped")
		return nil
	},
}
