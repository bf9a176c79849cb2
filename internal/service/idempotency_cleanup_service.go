package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/padlog/padlog/internal/config"
	"github.com/padlog/padlog/internal/pkg/logger"
)

// IdempotencyCleanupService 定期清理幂等记录，避免表无限增长。
// 已完结的按保留期删，pending 残留（owner 崩溃未清场）按超时删。
type IdempotencyCleanupService struct {
	repo           IdempotencyRepository
	interval       time.Duration
	retention      time.Duration
	pendingTimeout time.Duration
	batch          int

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
}

func NewIdempotencyCleanupService(repo IdempotencyRepository, cfg *config.Config) *IdempotencyCleanupService {
	interval := 60 * time.Second
	retention := 24 * time.Hour
	pendingTimeout := time.Hour
	batch := 500
	if cfg != nil {
		if cfg.Idempotency.CleanupIntervalSeconds > 0 {
			interval = time.Duration(cfg.Idempotency.CleanupIntervalSeconds) * time.Second
		}
		if cfg.Idempotency.RetentionSeconds > 0 {
			retention = time.Duration(cfg.Idempotency.RetentionSeconds) * time.Second
		}
		if cfg.Idempotency.PendingTimeoutSeconds > 0 {
			pendingTimeout = time.Duration(cfg.Idempotency.PendingTimeoutSeconds) * time.Second
		}
		if cfg.Idempotency.CleanupBatchSize > 0 {
			batch = cfg.Idempotency.CleanupBatchSize
		}
	}
	return &IdempotencyCleanupService{
		repo:           repo,
		interval:       interval,
		retention:      retention,
		pendingTimeout: pendingTimeout,
		batch:          batch,
		stopCh:         make(chan struct{}),
	}
}

func (s *IdempotencyCleanupService) Start() {
	if s == nil || s.repo == nil {
		return
	}
	s.startOnce.Do(func() {
		logger.L().Info("idempotency cleanup started",
			zap.Duration("interval", s.interval),
			zap.Duration("retention", s.retention),
			zap.Int("batch", s.batch))
		go s.runLoop()
	})
}

func (s *IdempotencyCleanupService) Stop() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
		logger.L().Info("idempotency cleanup stopped")
	})
}

func (s *IdempotencyCleanupService) runLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// 启动后先清理一轮，防止重启后积压。
	s.cleanupOnce()

	for {
		select {
		case <-ticker.C:
			s.cleanupOnce()
		case <-s.stopCh:
			return
		}
	}
}

func (s *IdempotencyCleanupService) cleanupOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now()
	finalizedBefore := now.Add(-s.retention).UnixMilli()
	pendingBefore := now.Add(-s.pendingTimeout).UnixMilli()
	deleted, err := s.repo.DeleteExpired(ctx, finalizedBefore, pendingBefore, s.batch)
	if err != nil {
		logger.L().Warn("idempotency cleanup failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		logger.L().Info("idempotency records cleaned", zap.Int64("count", deleted))
	}
}
