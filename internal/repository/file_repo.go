package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/padlog/padlog/internal/service"
)

type fileRepository struct {
	db  *sql.DB
	sql sqlExecutor
}

// NewFileRepository 创建文件仓储。
func NewFileRepository(sqlDB *sql.DB) service.FileRepository {
	return &fileRepository{db: sqlDB, sql: sqlDB}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}

func (r *fileRepository) Create(ctx context.Context, f *service.File) error {
	query := `
		INSERT INTO files (id, workspace_id, path, content, created_at, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL)
	`
	_, err := r.sql.ExecContext(ctx, query,
		f.ID, f.WorkspaceID, f.Path, f.Content, f.CreatedAt, f.UpdatedAt)
	if isUniqueViolation(err) {
		return service.ErrFileExists
	}
	return err
}

func (r *fileRepository) GetActiveByPath(ctx context.Context, workspaceID, path string) (*service.File, error) {
	query := `
		SELECT id, workspace_id, path, content, created_at, updated_at
		FROM files
		WHERE workspace_id = ? AND path = ? AND deleted_at IS NULL
	`
	f := &service.File{}
	err := scanSingleRow(ctx, r.sql, query, []any{workspaceID, path},
		&f.ID, &f.WorkspaceID, &f.Path, &f.Content, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, service.ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (r *fileRepository) GetByID(ctx context.Context, id string) (*service.File, error) {
	query := `
		SELECT id, workspace_id, path, content, created_at, updated_at, deleted_at
		FROM files
		WHERE id = ?
	`
	f := &service.File{}
	var deletedAt sql.NullInt64
	err := scanSingleRow(ctx, r.sql, query, []any{id},
		&f.ID, &f.WorkspaceID, &f.Path, &f.Content, &f.CreatedAt, &f.UpdatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, service.ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	f.DeletedAt = deletedAt.Int64
	return f, nil
}

func (r *fileRepository) TombstoneExists(ctx context.Context, workspaceID, path string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM files
			WHERE workspace_id = ? AND path = ? AND deleted_at IS NOT NULL
		)
	`
	var exists bool
	if err := scanSingleRow(ctx, r.sql, query, []any{workspaceID, path}, &exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *fileRepository) UpdateContent(ctx context.Context, id, content string, nowMS int64) error {
	query := `
		UPDATE files SET content = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`
	res, err := r.sql.ExecContext(ctx, query, content, nowMS, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return service.ErrFileNotFound
	}
	return nil
}

func (r *fileRepository) SoftDelete(ctx context.Context, id string, nowMS int64) (bool, error) {
	query := `
		UPDATE files SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`
	res, err := r.sql.ExecContext(ctx, query, nowMS, id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// PurgeTombstonedBefore 物理清除过期墓碑及其追加与计数器，单事务内完成。
func (r *fileRepository) PurgeTombstonedBefore(ctx context.Context, cutoffMS int64, limit int) (int64, error) {
	if limit <= 0 {
		limit = 200
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin purge tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	victims := `
		SELECT id FROM files
		WHERE deleted_at IS NOT NULL AND deleted_at <= ?
		ORDER BY deleted_at ASC
		LIMIT ?
	`
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM appends WHERE file_id IN (`+victims+`)`, cutoffMS, limit); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM append_counters WHERE file_id IN (`+victims+`)`, cutoffMS, limit); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM files WHERE id IN (`+victims+`)`, cutoffMS, limit)
	if err != nil {
		return 0, err
	}
	purged, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit purge tx: %w", err)
	}
	return purged, nil
}
