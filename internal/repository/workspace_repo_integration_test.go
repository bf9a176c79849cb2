//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/padlog/padlog/internal/service"
)

func TestWorkspaceRepoRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewWorkspaceRepository(db)
	ctx := context.Background()

	ws := seedWorkspace(t, db, "fleet")

	got, err := repo.GetByID(ctx, ws.ID)
	require.NoError(t, err)
	require.Equal(t, ws.ID, got.ID)
	require.Equal(t, "fleet", got.Name)
	require.Equal(t, testEpochMS, got.CreatedAt)
	require.Zero(t, got.DeletedAt)

	_, err = repo.GetByID(ctx, "no-such-id")
	require.ErrorIs(t, err, service.ErrWorkspaceNotFound)
}

func TestStatsRepoCounts(t *testing.T) {
	db := newTestDB(t)
	stats := NewStatsRepository(db)
	files := NewFileRepository(db)
	ctx := context.Background()

	ws1 := seedWorkspace(t, db, "one")
	ws2 := seedWorkspace(t, db, "two")
	f1 := seedActiveFile(t, db, ws1.ID, "/a.md")
	f2 := seedActiveFile(t, db, ws1.ID, "/b.md")
	seedActiveFile(t, db, ws2.ID, "/c.md")
	seedAppend(t, db, f1.ID, nil)
	seedAppend(t, db, f1.ID, nil)
	seedAppend(t, db, f2.ID, nil)

	counts, err := stats.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), counts.Workspaces)
	require.Equal(t, int64(3), counts.Files)
	require.Equal(t, int64(3), counts.Appends)

	wsCounts, err := stats.WorkspaceCounts(ctx, ws1.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), wsCounts.Files)
	require.Equal(t, int64(3), wsCounts.Appends)

	// 软删除把文件移出计数，追加行保留到墓碑清除为止
	ok, err := files.SoftDelete(ctx, f1.ID, testEpochMS+10)
	require.NoError(t, err)
	require.True(t, ok)

	wsCounts, err = stats.WorkspaceCounts(ctx, ws1.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), wsCounts.Files)
	require.Equal(t, int64(3), wsCounts.Appends)
}
