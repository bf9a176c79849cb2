//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdempotencyRepoInsertPendingDeduplicates(t *testing.T) {
	db := newTestDB(t)
	repo := NewIdempotencyRepository(db)
	ctx := context.Background()

	owner, err := repo.InsertPending(ctx, "cap-1", "deploy-v2", testEpochMS)
	require.NoError(t, err)
	require.True(t, owner)

	owner, err = repo.InsertPending(ctx, "cap-1", "deploy-v2", testEpochMS+1)
	require.NoError(t, err)
	require.False(t, owner, "same key under same capability is taken")

	// 键按 capability 隔离
	owner, err = repo.InsertPending(ctx, "cap-2", "deploy-v2", testEpochMS)
	require.NoError(t, err)
	require.True(t, owner)
	owner, err = repo.InsertPending(ctx, "cap-1", "deploy-v3", testEpochMS)
	require.NoError(t, err)
	require.True(t, owner)
}

func TestIdempotencyRepoFinalizeOnce(t *testing.T) {
	db := newTestDB(t)
	repo := NewIdempotencyRepository(db)
	ctx := context.Background()

	got, err := repo.Get(ctx, "cap-1", "nope")
	require.NoError(t, err)
	require.Nil(t, got)

	owner, err := repo.InsertPending(ctx, "cap-1", "deploy-v2", testEpochMS)
	require.NoError(t, err)
	require.True(t, owner)

	got, err = repo.Get(ctx, "cap-1", "deploy-v2")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Zero(t, got.ResponseStatus)
	require.Empty(t, got.ResponseBody)
	require.Equal(t, testEpochMS, got.CreatedAt)
	require.Zero(t, got.FinalizedAt)

	ok, err := repo.Finalize(ctx, "cap-1", "deploy-v2", 201, `{"ok":true}`, testEpochMS+500)
	require.NoError(t, err)
	require.True(t, ok)

	got, err = repo.Get(ctx, "cap-1", "deploy-v2")
	require.NoError(t, err)
	require.Equal(t, 201, got.ResponseStatus)
	require.Equal(t, `{"ok":true}`, got.ResponseBody)
	require.Equal(t, testEpochMS+500, got.FinalizedAt)

	// 已定格的结果不被第二次写覆盖
	ok, err = repo.Finalize(ctx, "cap-1", "deploy-v2", 200, `{"ok":false}`, testEpochMS+900)
	require.NoError(t, err)
	require.False(t, ok)
	got, err = repo.Get(ctx, "cap-1", "deploy-v2")
	require.NoError(t, err)
	require.Equal(t, `{"ok":true}`, got.ResponseBody)

	ok, err = repo.Finalize(ctx, "cap-1", "nope", 200, `{}`, testEpochMS)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIdempotencyRepoDeletePendingSkipsFinalized(t *testing.T) {
	db := newTestDB(t)
	repo := NewIdempotencyRepository(db)
	ctx := context.Background()

	_, err := repo.InsertPending(ctx, "cap-1", "abort-me", testEpochMS)
	require.NoError(t, err)
	ok, err := repo.DeletePending(ctx, "cap-1", "abort-me")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.DeletePending(ctx, "cap-1", "abort-me")
	require.NoError(t, err)
	require.False(t, ok)

	// 放弃后同键可以重新占位
	owner, err := repo.InsertPending(ctx, "cap-1", "abort-me", testEpochMS+10)
	require.NoError(t, err)
	require.True(t, owner)

	_, err = repo.InsertPending(ctx, "cap-1", "done", testEpochMS)
	require.NoError(t, err)
	_, err = repo.Finalize(ctx, "cap-1", "done", 200, `{"ok":true}`, testEpochMS)
	require.NoError(t, err)
	ok, err = repo.DeletePending(ctx, "cap-1", "done")
	require.NoError(t, err)
	require.False(t, ok, "finalized records are kept for replay")
	got, err := repo.Get(ctx, "cap-1", "done")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestIdempotencyRepoDeleteExpired(t *testing.T) {
	db := newTestDB(t)
	repo := NewIdempotencyRepository(db)
	ctx := context.Background()

	seed := func(key string, createdAt int64, finalizedAt int64) {
		t.Helper()
		owner, err := repo.InsertPending(ctx, "cap-1", key, createdAt)
		require.NoError(t, err)
		require.True(t, owner)
		if finalizedAt != 0 {
			ok, err := repo.Finalize(ctx, "cap-1", key, 200, `{"ok":true}`, finalizedAt)
			require.NoError(t, err)
			require.True(t, ok)
		}
	}
	seed("old-final", testEpochMS-5_000, testEpochMS-1_000)
	seed("edge-final", testEpochMS-5_000, testEpochMS) // 截止点命中也算过期
	seed("fresh-final", testEpochMS-5_000, testEpochMS+1_000)
	seed("stuck-pending", testEpochMS-1_000, 0)
	seed("live-pending", testEpochMS+1_000, 0)

	n, err := repo.DeleteExpired(ctx, testEpochMS, testEpochMS, 50)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	for _, key := range []string{"old-final", "edge-final", "stuck-pending"} {
		got, err := repo.Get(ctx, "cap-1", key)
		require.NoError(t, err)
		require.Nil(t, got, key)
	}
	for _, key := range []string{"fresh-final", "live-pending"} {
		got, err := repo.Get(ctx, "cap-1", key)
		require.NoError(t, err)
		require.NotNil(t, got, key)
	}
}

func TestIdempotencyRepoDeleteExpiredHonorsLimit(t *testing.T) {
	db := newTestDB(t)
	repo := NewIdempotencyRepository(db)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		_, err := repo.InsertPending(ctx, "cap-1", key, testEpochMS-5_000)
		require.NoError(t, err)
		_, err = repo.Finalize(ctx, "cap-1", key, 200, `{"ok":true}`, testEpochMS-1_000)
		require.NoError(t, err)
	}

	n, err := repo.DeleteExpired(ctx, testEpochMS, testEpochMS, 2)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	// limit<=0 回退默认批量，清掉剩下那条
	n, err = repo.DeleteExpired(ctx, testEpochMS, testEpochMS, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}
