//go:build integration

package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/padlog/padlog/internal/config"
	"github.com/padlog/padlog/internal/service"
)

// newTestDB 在临时目录里开一个独立的 SQLite 库，用例之间互不串数据。
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Path:          filepath.Join(t.TempDir(), "padlog-test.db"),
			BusyTimeoutMS: 5000,
		},
	}
	db, err := NewDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedWorkspace(t *testing.T, db *sql.DB, name string) *service.Workspace {
	t.Helper()
	ws := &service.Workspace{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: testEpochMS,
	}
	require.NoError(t, NewWorkspaceRepository(db).Create(context.Background(), ws))
	return ws
}

func seedActiveFile(t *testing.T, db *sql.DB, workspaceID, path string) *service.File {
	t.Helper()
	f := &service.File{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Path:        path,
		Content:     "# seeded",
		CreatedAt:   testEpochMS,
		UpdatedAt:   testEpochMS,
	}
	require.NoError(t, NewFileRepository(db).Create(context.Background(), f))
	return f
}

// seedAppend 直接落一行追加。seq 走计数器，保证与正常写入路径一致。
func seedAppend(t *testing.T, db *sql.DB, fileID string, mut func(*service.Append)) *service.Append {
	t.Helper()
	ctx := context.Background()
	repo := NewAppendRepository(db)

	seq, err := repo.NextAppendID(ctx, fileID)
	require.NoError(t, err)
	a := &service.Append{
		ID:        uuid.NewString(),
		FileID:    fileID,
		AppendID:  appendIDForSeq(seq),
		Seq:       seq,
		Author:    "alice",
		Type:      "comment",
		CreatedAt: testEpochMS + seq,
	}
	if mut != nil {
		mut(a)
	}
	require.NoError(t, repo.Insert(ctx, a))
	return a
}

func appendIDForSeq(seq int64) string {
	return "a" + strconv.FormatInt(seq, 10)
}

const testEpochMS = int64(1_700_000_000_000)

func countRows(t *testing.T, db *sql.DB, table, where string, args ...any) int64 {
	t.Helper()
	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	var n int64
	require.NoError(t, db.QueryRowContext(context.Background(), query, args...).Scan(&n))
	return n
}
