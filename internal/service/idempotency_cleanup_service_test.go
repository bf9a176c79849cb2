package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/padlog/padlog/internal/config"
)

type cleanupRepoStub struct {
	memIdemRepo

	mu                  sync.Mutex
	deleteCalls         int
	lastFinalizedBefore int64
	lastPendingBefore   int64
	lastLimit           int
	deleteErr           error
}

func (r *cleanupRepoStub) DeleteExpired(_ context.Context, finalizedBeforeMS, pendingBeforeMS int64, limit int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteCalls++
	r.lastFinalizedBefore = finalizedBeforeMS
	r.lastPendingBefore = pendingBeforeMS
	r.lastLimit = limit
	if r.deleteErr != nil {
		return 0, r.deleteErr
	}
	return 1, nil
}

func TestIdempotencyCleanupConfigOverrides(t *testing.T) {
	cfg := testConfig()
	cfg.Idempotency.CleanupIntervalSeconds = 7
	cfg.Idempotency.RetentionSeconds = 3600
	cfg.Idempotency.PendingTimeoutSeconds = 120
	cfg.Idempotency.CleanupBatchSize = 321

	svc := NewIdempotencyCleanupService(&cleanupRepoStub{}, cfg)
	require.Equal(t, 7*time.Second, svc.interval)
	require.Equal(t, time.Hour, svc.retention)
	require.Equal(t, 2*time.Minute, svc.pendingTimeout)
	require.Equal(t, 321, svc.batch)

	// 未配置时落默认值
	fallback := NewIdempotencyCleanupService(&cleanupRepoStub{}, &config.Config{})
	require.Equal(t, 60*time.Second, fallback.interval)
	require.Equal(t, 24*time.Hour, fallback.retention)
	require.Equal(t, time.Hour, fallback.pendingTimeout)
	require.Equal(t, 500, fallback.batch)
}

func TestIdempotencyCleanupOncePassesCutoffs(t *testing.T) {
	repo := &cleanupRepoStub{}
	cfg := testConfig()
	cfg.Idempotency.RetentionSeconds = 3600
	cfg.Idempotency.PendingTimeoutSeconds = 600
	cfg.Idempotency.CleanupBatchSize = 99
	svc := NewIdempotencyCleanupService(repo, cfg)

	before := time.Now()
	svc.cleanupOnce()
	after := time.Now()

	require.Equal(t, 1, repo.deleteCalls)
	require.Equal(t, 99, repo.lastLimit)
	require.GreaterOrEqual(t, repo.lastFinalizedBefore, before.Add(-time.Hour).UnixMilli())
	require.LessOrEqual(t, repo.lastFinalizedBefore, after.Add(-time.Hour).UnixMilli())
	require.GreaterOrEqual(t, repo.lastPendingBefore, before.Add(-10*time.Minute).UnixMilli())
	require.LessOrEqual(t, repo.lastPendingBefore, after.Add(-10*time.Minute).UnixMilli())
}

func TestIdempotencyCleanupSwallowsRepoError(t *testing.T) {
	repo := &cleanupRepoStub{deleteErr: errors.New("table locked")}
	svc := NewIdempotencyCleanupService(repo, testConfig())
	svc.cleanupOnce() // 失败只记日志
	require.Equal(t, 1, repo.deleteCalls)
}

func TestIdempotencyCleanupLifecycle(t *testing.T) {
	repo := &cleanupRepoStub{}
	cfg := testConfig()
	cfg.Idempotency.CleanupIntervalSeconds = 3600
	svc := NewIdempotencyCleanupService(repo, cfg)

	svc.Start()
	svc.Start() // 幂等
	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return repo.deleteCalls >= 1
	}, 2*time.Second, 10*time.Millisecond, "startup runs one immediate cleanup")

	svc.Stop()
	svc.Stop()

	// nil repo 安全短路
	NewIdempotencyCleanupService(nil, nil).Start()
	var nilSvc *IdempotencyCleanupService
	nilSvc.Start()
	nilSvc.Stop()
}

func TestIdempotencyCleanupDeleteExpiredSemantics(t *testing.T) {
	repo := newMemIdemRepo()
	ctx := context.Background()

	// 三条记录：过期终态、新鲜终态、卡死 pending
	_, err := repo.InsertPending(ctx, "cap1", "old-final", fixtureNow-100)
	require.NoError(t, err)
	_, err = repo.Finalize(ctx, "cap1", "old-final", 200, `{"ok":true}`, fixtureNow-100)
	require.NoError(t, err)
	_, err = repo.InsertPending(ctx, "cap1", "fresh-final", fixtureNow)
	require.NoError(t, err)
	_, err = repo.Finalize(ctx, "cap1", "fresh-final", 200, `{"ok":true}`, fixtureNow+500)
	require.NoError(t, err)
	_, err = repo.InsertPending(ctx, "cap1", "stuck", fixtureNow-100)
	require.NoError(t, err)

	deleted, err := repo.DeleteExpired(ctx, fixtureNow, fixtureNow, 10)
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)
	require.False(t, repo.has("cap1", "old-final"))
	require.True(t, repo.has("cap1", "fresh-final"))
	require.False(t, repo.has("cap1", "stuck"))
}
