package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/padlog/padlog/internal/domain"
	"github.com/padlog/padlog/internal/service"
)

const appendColumns = `id, file_id, append_id, seq, author, type, ref, status,
	priority, labels, due_at, assigned, expires_at, value, content, content_preview, content_hash, created_at`

type appendStore struct {
	sql sqlExecutor
}

type appendRepository struct {
	appendStore
	db *sql.DB
}

// NewAppendRepository 创建追加仓储。
func NewAppendRepository(sqlDB *sql.DB) service.AppendRepository {
	return &appendRepository{appendStore: appendStore{sql: sqlDB}, db: sqlDB}
}

// InTx 以写事务执行回调。DSN 带 _txlock=immediate，BeginTx 即持写锁，
// claim 判定与插入之间不会有并发写插队。
func (r *appendRepository) InTx(ctx context.Context, fn func(store service.AppendStore) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&appendStore{sql: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append tx: %w", err)
	}
	return nil
}

// NextAppendID 计数器 UPSERT 取号。计数只增不减：
// 调用方失败回滚时已取的号作为空洞留下，编号仍然单调。
func (s *appendStore) NextAppendID(ctx context.Context, fileID string) (int64, error) {
	query := `
		INSERT INTO append_counters (file_id, next_seq) VALUES (?, 2)
		ON CONFLICT(file_id) DO UPDATE SET next_seq = next_seq + 1
		RETURNING next_seq - 1
	`
	var seq int64
	if err := scanSingleRow(ctx, s.sql, query, []any{fileID}, &seq); err != nil {
		return 0, fmt.Errorf("allocate append id: %w", err)
	}
	return seq, nil
}

func (s *appendStore) Insert(ctx context.Context, a *service.Append) error {
	labels, err := marshalStringList(a.Labels)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO appends (
			id, file_id, append_id, seq, author, type, ref, status,
			priority, labels, due_at, assigned, expires_at, value, content, content_preview, content_hash, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.sql.ExecContext(ctx, query,
		a.ID, a.FileID, a.AppendID, a.Seq, a.Author, a.Type, a.Ref, a.Status,
		a.Priority, labels, a.DueAt, a.Assigned, a.ExpiresAt, a.Value, a.Content, a.ContentPreview, a.ContentHash, a.CreatedAt)
	return err
}

func scanAppend(scan func(dest ...any) error) (*service.Append, error) {
	a := &service.Append{}
	var labels string
	if err := scan(
		&a.ID, &a.FileID, &a.AppendID, &a.Seq, &a.Author, &a.Type, &a.Ref, &a.Status,
		&a.Priority, &labels, &a.DueAt, &a.Assigned, &a.ExpiresAt, &a.Value, &a.Content, &a.ContentPreview, &a.ContentHash, &a.CreatedAt,
	); err != nil {
		return nil, err
	}
	var err error
	a.Labels, err = unmarshalStringList(labels)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *appendStore) GetByAppendID(ctx context.Context, fileID, appendID string) (*service.Append, error) {
	query := `SELECT ` + appendColumns + ` FROM appends WHERE file_id = ? AND append_id = ?`
	row := s.sql.QueryRowContext(ctx, query, fileID, appendID)
	a, err := scanAppend(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, service.ErrAppendNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *appendStore) FindActiveClaim(ctx context.Context, fileID, ref string, nowMS int64) (*service.Append, error) {
	query := `
		SELECT ` + appendColumns + `
		FROM appends
		WHERE file_id = ? AND ref = ? AND type = ? AND status = ? AND expires_at > ?
		ORDER BY seq DESC
		LIMIT 1
	`
	row := s.sql.QueryRowContext(ctx, query, fileID, ref, domain.AppendTypeClaim, domain.StatusActive, nowMS)
	a, err := scanAppend(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *appendStore) UpdateClaimExpiry(ctx context.Context, id string, expiresAt int64) (bool, error) {
	// 不限定 status：renew 对非 active 的 claim 也允许延长租约时间戳
	query := `
		UPDATE appends SET expires_at = ?
		WHERE id = ? AND type = ?
	`
	res, err := s.sql.ExecContext(ctx, query, expiresAt, id, domain.AppendTypeClaim)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *appendStore) UpdateStatus(ctx context.Context, id, status string) (bool, error) {
	res, err := s.sql.ExecContext(ctx, `UPDATE appends SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// CompleteActiveClaims 任务完成时把其下 status=active 的 claim 全部置为
// completed，含租约已过但尚未被清扫的，避免清扫器事后误标 expired。
func (s *appendStore) CompleteActiveClaims(ctx context.Context, fileID, taskRef string, nowMS int64) (int64, error) {
	query := `
		UPDATE appends SET status = ?
		WHERE file_id = ? AND ref = ? AND type = ? AND status = ?
	`
	res, err := s.sql.ExecContext(ctx, query,
		domain.StatusCompleted, fileID, taskRef, domain.AppendTypeClaim, domain.StatusActive)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *appendStore) SetTaskStatus(ctx context.Context, fileID, taskRef, status string) (bool, error) {
	query := `
		UPDATE appends SET status = ?
		WHERE file_id = ? AND append_id = ? AND type = ?
	`
	res, err := s.sql.ExecContext(ctx, query, status, fileID, taskRef, domain.AppendTypeTask)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *appendStore) ListByFile(ctx context.Context, fileID string) ([]*service.Append, error) {
	query := `SELECT ` + appendColumns + ` FROM appends WHERE file_id = ? ORDER BY seq ASC`
	rows, err := s.sql.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var list []*service.Append
	for rows.Next() {
		a, err := scanAppend(rows.Scan)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

func (s *appendStore) CountActiveClaimsByAuthor(ctx context.Context, workspaceID, author string, nowMS int64) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM appends a
		JOIN files f ON f.id = a.file_id
		WHERE f.workspace_id = ? AND a.author = ? AND a.type = ? AND a.status = ? AND a.expires_at > ?
	`
	var count int64
	err := scanSingleRow(ctx, s.sql, query, []any{
		workspaceID, author, domain.AppendTypeClaim, domain.StatusActive, nowMS,
	}, &count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ExpireClaimsBefore 把租约到期仍 active 的 claim 置为 expired。
// 先选后改两条语句，调用方应包在 InTx 里保证原子。
func (s *appendStore) ExpireClaimsBefore(ctx context.Context, nowMS int64, limit int) ([]*service.SweptClaim, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `
		SELECT a.id, f.workspace_id, a.file_id, f.path, a.append_id, a.author, a.ref, a.expires_at
		FROM appends a
		JOIN files f ON f.id = a.file_id
		WHERE a.type = ? AND a.status = ? AND a.expires_at <= ?
		ORDER BY a.expires_at ASC
		LIMIT ?
	`
	rows, err := s.sql.QueryContext(ctx, query, domain.AppendTypeClaim, domain.StatusActive, nowMS, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []any
	var swept []*service.SweptClaim
	for rows.Next() {
		var id string
		claim := &service.SweptClaim{}
		if err := rows.Scan(&id, &claim.WorkspaceID, &claim.FileID, &claim.Path,
			&claim.AppendID, &claim.Author, &claim.Ref, &claim.ExpiresAt); err != nil {
			return nil, err
		}
		ids = append(ids, id)
		swept = append(swept, claim)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	update := `UPDATE appends SET status = ? WHERE id IN (` + placeholders + `)`
	args := append([]any{domain.StatusExpired}, ids...)
	if _, err := s.sql.ExecContext(ctx, update, args...); err != nil {
		return nil, err
	}
	return swept, nil
}
