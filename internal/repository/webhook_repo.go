package repository

import (
	"context"
	"database/sql"

	"github.com/padlog/padlog/internal/service"
)

type webhookRepository struct {
	sql sqlExecutor
}

// NewWebhookRepository 创建 webhook 订阅仓储。
func NewWebhookRepository(sqlDB *sql.DB) service.WebhookRepository {
	return &webhookRepository{sql: sqlDB}
}

func (r *webhookRepository) Create(ctx context.Context, sub *service.WebhookSubscription) error {
	events, err := marshalStringList(sub.Events)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO webhook_subscriptions (
			id, workspace_id, url, secret, events, scope_type, scope_path, recursive, active, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.sql.ExecContext(ctx, query,
		sub.ID, sub.WorkspaceID, sub.URL, sub.Secret, events,
		sub.ScopeType, sub.ScopePath, sub.Recursive, sub.Active, sub.CreatedAt)
	return err
}

func (r *webhookRepository) scanSubscriptions(rows *sql.Rows) ([]*service.WebhookSubscription, error) {
	defer func() { _ = rows.Close() }()

	var list []*service.WebhookSubscription
	for rows.Next() {
		sub := &service.WebhookSubscription{}
		var events string
		if err := rows.Scan(&sub.ID, &sub.WorkspaceID, &sub.URL, &sub.Secret,
			&events, &sub.ScopeType, &sub.ScopePath, &sub.Recursive, &sub.Active, &sub.CreatedAt); err != nil {
			return nil, err
		}
		var err error
		sub.Events, err = unmarshalStringList(events)
		if err != nil {
			return nil, err
		}
		list = append(list, sub)
	}
	return list, rows.Err()
}

func (r *webhookRepository) ListActive(ctx context.Context, workspaceID string) ([]*service.WebhookSubscription, error) {
	query := `
		SELECT id, workspace_id, url, secret, events, scope_type, scope_path, recursive, active, created_at
		FROM webhook_subscriptions
		WHERE active = 1 AND (workspace_id = '' OR workspace_id = ?)
		ORDER BY created_at ASC
	`
	rows, err := r.sql.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	return r.scanSubscriptions(rows)
}

func (r *webhookRepository) List(ctx context.Context, workspaceID string) ([]*service.WebhookSubscription, error) {
	query := `
		SELECT id, workspace_id, url, secret, events, scope_type, scope_path, recursive, active, created_at
		FROM webhook_subscriptions
		WHERE workspace_id = ?
		ORDER BY created_at ASC
	`
	rows, err := r.sql.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	return r.scanSubscriptions(rows)
}

func (r *webhookRepository) Delete(ctx context.Context, workspaceID, id string) (bool, error) {
	res, err := r.sql.ExecContext(ctx,
		`DELETE FROM webhook_subscriptions WHERE id = ? AND workspace_id = ?`, id, workspaceID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
