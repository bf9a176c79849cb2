package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/padlog/padlog/internal/service"
)

type workspaceRepository struct {
	sql sqlExecutor
}

// NewWorkspaceRepository 创建工作区仓储。
func NewWorkspaceRepository(sqlDB *sql.DB) service.WorkspaceRepository {
	return &workspaceRepository{sql: sqlDB}
}

func (r *workspaceRepository) Create(ctx context.Context, ws *service.Workspace) error {
	query := `
		INSERT INTO workspaces (id, name, created_at, deleted_at)
		VALUES (?, ?, ?, 0)
	`
	_, err := r.sql.ExecContext(ctx, query, ws.ID, ws.Name, ws.CreatedAt)
	return err
}

func (r *workspaceRepository) GetByID(ctx context.Context, id string) (*service.Workspace, error) {
	query := `
		SELECT id, name, created_at, deleted_at
		FROM workspaces
		WHERE id = ? AND deleted_at = 0
	`
	ws := &service.Workspace{}
	err := scanSingleRow(ctx, r.sql, query, []any{id},
		&ws.ID, &ws.Name, &ws.CreatedAt, &ws.DeletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, service.ErrWorkspaceNotFound
	}
	if err != nil {
		return nil, err
	}
	return ws, nil
}

type statsRepository struct {
	sql sqlExecutor
}

// NewStatsRepository 创建统计仓储，/api/status 用。
func NewStatsRepository(sqlDB *sql.DB) service.StatsRepository {
	return &statsRepository{sql: sqlDB}
}

func (r *statsRepository) Counts(ctx context.Context) (*service.StoreCounts, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM workspaces WHERE deleted_at = 0),
			(SELECT COUNT(*) FROM files WHERE deleted_at IS NULL),
			(SELECT COUNT(*) FROM appends)
	`
	counts := &service.StoreCounts{}
	if err := scanSingleRow(ctx, r.sql, query, nil,
		&counts.Workspaces, &counts.Files, &counts.Appends); err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *statsRepository) WorkspaceCounts(ctx context.Context, workspaceID string) (*service.WorkspaceCounts, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM files WHERE workspace_id = ? AND deleted_at IS NULL),
			(SELECT COUNT(*) FROM appends a JOIN files f ON f.id = a.file_id WHERE f.workspace_id = ?)
	`
	counts := &service.WorkspaceCounts{}
	if err := scanSingleRow(ctx, r.sql, query, []any{workspaceID, workspaceID},
		&counts.Files, &counts.Appends); err != nil {
		return nil, err
	}
	return counts, nil
}
