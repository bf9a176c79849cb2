//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/padlog/padlog/internal/service"
)

func TestFileRepoCreateAndLookup(t *testing.T) {
	db := newTestDB(t)
	repo := NewFileRepository(db)
	ctx := context.Background()
	ws := seedWorkspace(t, db, "fleet")

	f := seedActiveFile(t, db, ws.ID, "/team/todo.md")

	got, err := repo.GetActiveByPath(ctx, ws.ID, "/team/todo.md")
	require.NoError(t, err)
	require.Equal(t, f.ID, got.ID)
	require.Equal(t, "# seeded", got.Content)

	byID, err := repo.GetByID(ctx, f.ID)
	require.NoError(t, err)
	require.Equal(t, f.Path, byID.Path)
	require.Zero(t, byID.DeletedAt)

	_, err = repo.GetActiveByPath(ctx, ws.ID, "/absent.md")
	require.ErrorIs(t, err, service.ErrFileNotFound)
	_, err = repo.GetByID(ctx, "no-such-id")
	require.ErrorIs(t, err, service.ErrFileNotFound)

	// 同路径活跃文件唯一
	err = repo.Create(ctx, &service.File{
		ID: uuid.NewString(), WorkspaceID: ws.ID, Path: "/team/todo.md",
		CreatedAt: testEpochMS, UpdatedAt: testEpochMS,
	})
	require.ErrorIs(t, err, service.ErrFileExists)
}

func TestFileRepoUpdateContent(t *testing.T) {
	db := newTestDB(t)
	repo := NewFileRepository(db)
	ctx := context.Background()
	ws := seedWorkspace(t, db, "fleet")
	f := seedActiveFile(t, db, ws.ID, "/team/todo.md")

	require.NoError(t, repo.UpdateContent(ctx, f.ID, "v2", testEpochMS+5))
	got, err := repo.GetByID(ctx, f.ID)
	require.NoError(t, err)
	require.Equal(t, "v2", got.Content)
	require.Equal(t, testEpochMS+5, got.UpdatedAt)

	// 软删除后内容不可再改
	_, err = repo.SoftDelete(ctx, f.ID, testEpochMS+6)
	require.NoError(t, err)
	require.ErrorIs(t, repo.UpdateContent(ctx, f.ID, "v3", testEpochMS+7), service.ErrFileNotFound)
}

func TestFileRepoTombstoneAndRecreate(t *testing.T) {
	db := newTestDB(t)
	repo := NewFileRepository(db)
	ctx := context.Background()
	ws := seedWorkspace(t, db, "fleet")
	f := seedActiveFile(t, db, ws.ID, "/team/todo.md")

	ok, err := repo.SoftDelete(ctx, f.ID, testEpochMS+1)
	require.NoError(t, err)
	require.True(t, ok)

	// 二次删除落空
	ok, err = repo.SoftDelete(ctx, f.ID, testEpochMS+2)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = repo.GetActiveByPath(ctx, ws.ID, "/team/todo.md")
	require.ErrorIs(t, err, service.ErrFileNotFound)
	tombstoned, err := repo.TombstoneExists(ctx, ws.ID, "/team/todo.md")
	require.NoError(t, err)
	require.True(t, tombstoned)

	// 部分唯一索引只约束活跃行，墓碑之上可以重建同路径
	recreated := seedActiveFile(t, db, ws.ID, "/team/todo.md")
	got, err := repo.GetActiveByPath(ctx, ws.ID, "/team/todo.md")
	require.NoError(t, err)
	require.Equal(t, recreated.ID, got.ID)

	// 墓碑仍在，重建后的活跃行不受影响
	tombstoned, err = repo.TombstoneExists(ctx, ws.ID, "/team/todo.md")
	require.NoError(t, err)
	require.True(t, tombstoned)
}

func TestFileRepoPurgeCascades(t *testing.T) {
	db := newTestDB(t)
	repo := NewFileRepository(db)
	ctx := context.Background()
	ws := seedWorkspace(t, db, "fleet")

	victim := seedActiveFile(t, db, ws.ID, "/old.md")
	seedAppend(t, db, victim.ID, nil)
	seedAppend(t, db, victim.ID, nil)
	survivor := seedActiveFile(t, db, ws.ID, "/new.md")
	seedAppend(t, db, survivor.ID, nil)

	_, err := repo.SoftDelete(ctx, victim.ID, testEpochMS+1)
	require.NoError(t, err)

	purged, err := repo.PurgeTombstonedBefore(ctx, testEpochMS+100, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)

	// 文件、追加与计数器一起消失
	require.Zero(t, countRows(t, db, "files", "id = ?", victim.ID))
	require.Zero(t, countRows(t, db, "appends", "file_id = ?", victim.ID))
	require.Zero(t, countRows(t, db, "append_counters", "file_id = ?", victim.ID))
	require.Equal(t, int64(1), countRows(t, db, "appends", "file_id = ?", survivor.ID))

	// 截止时间之前没有墓碑可清
	purged, err = repo.PurgeTombstonedBefore(ctx, testEpochMS+100, 10)
	require.NoError(t, err)
	require.Zero(t, purged)
}
