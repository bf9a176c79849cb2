package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/padlog/padlog/internal/config"
	"github.com/padlog/padlog/internal/pkg/logger"
	"github.com/padlog/padlog/internal/service"
)

func main() {
	// 配置尚未加载，先挂引导日志器，确保初始化失败也有输出。
	logger.InitBootstrap()
	defer logger.Sync()

	app, err := initializeApplication()
	if err != nil {
		logger.L().Fatal("failed to initialize application", zap.Error(err))
	}
	defer app.Cleanup()

	if err := logger.Init(loggerOptions(app.Config)); err != nil {
		logger.L().Fatal("failed to initialize logger", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.L().Info("server listening",
			zap.String("addr", app.Server.Addr),
			zap.String("version", service.Version))
		if err := app.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()
	logger.L().Info("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Server.Shutdown(shutdownCtx); err != nil {
		logger.L().Error("graceful shutdown failed", zap.Error(err))
	}
	logger.L().Info("server stopped")
}

func loggerOptions(cfg *config.Config) logger.InitOptions {
	return logger.InitOptions{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: cfg.Log.ServiceName,
		Caller:      cfg.Log.Caller,
		Output: logger.OutputOptions{
			ToStdout: cfg.Log.Output.ToStdout,
			ToFile:   cfg.Log.Output.ToFile,
			FilePath: cfg.Log.Output.FilePath,
		},
		Rotation: logger.RotationOptions{
			MaxSizeMB:  cfg.Log.Rotation.MaxSizeMB,
			MaxBackups: cfg.Log.Rotation.MaxBackups,
			MaxAgeDays: cfg.Log.Rotation.MaxAgeDays,
			Compress:   cfg.Log.Rotation.Compress,
			LocalTime:  cfg.Log.Rotation.LocalTime,
		},
	}
}
