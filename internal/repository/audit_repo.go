package repository

import (
	"context"
	"database/sql"

	"github.com/padlog/padlog/internal/service"
)

type auditRepository struct {
	sql sqlExecutor
}

// NewAuditRepository 创建审计流水仓储。
func NewAuditRepository(sqlDB *sql.DB) service.AuditRepository {
	return &auditRepository{sql: sqlDB}
}

func (r *auditRepository) Insert(ctx context.Context, evt *service.AuditEvent) error {
	query := `
		INSERT INTO audit_events (
			workspace_id, action, resource_type, resource_id, actor, actor_type, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.sql.ExecContext(ctx, query,
		evt.WorkspaceID, evt.Action, evt.ResourceType, evt.ResourceID,
		evt.Actor, evt.ActorType, evt.Metadata, evt.CreatedAt)
	return err
}

func (r *auditRepository) ListByWorkspace(ctx context.Context, workspaceID string, limit int) ([]*service.AuditEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query := `
		SELECT id, workspace_id, action, resource_type, resource_id, actor, actor_type, metadata, created_at
		FROM audit_events
		WHERE workspace_id = ?
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := r.sql.QueryContext(ctx, query, workspaceID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var list []*service.AuditEvent
	for rows.Next() {
		evt := &service.AuditEvent{}
		if err := rows.Scan(&evt.ID, &evt.WorkspaceID, &evt.Action, &evt.ResourceType,
			&evt.ResourceID, &evt.Actor, &evt.ActorType, &evt.Metadata, &evt.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, evt)
	}
	return list, rows.Err()
}

func (r *auditRepository) PurgeBefore(ctx context.Context, cutoffMS int64, limit int) (int64, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := `
		WITH victims AS (
			SELECT id FROM audit_events
			WHERE created_at <= ?
			ORDER BY id ASC
			LIMIT ?
		)
		DELETE FROM audit_events
		WHERE id IN (SELECT id FROM victims)
	`
	res, err := r.sql.ExecContext(ctx, query, cutoffMS, limit)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
