package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/padlog/padlog/internal/service"
)

type capabilityRepository struct {
	sql sqlExecutor
}

// NewCapabilityRepository 创建能力密钥仓储。
func NewCapabilityRepository(sqlDB *sql.DB) service.CapabilityRepository {
	return &capabilityRepository{sql: sqlDB}
}

func marshalStringList(list []string) (string, error) {
	if len(list) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("marshal string list: %w", err)
	}
	return string(raw), nil
}

func unmarshalStringList(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("unmarshal string list: %w", err)
	}
	return list, nil
}

func (r *capabilityRepository) Create(ctx context.Context, key *service.CapabilityKey) error {
	allowedTypes, err := marshalStringList(key.AllowedTypes)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO capability_keys (
			id, workspace_id, key_hash, permission, scope_type, scope_path,
			bound_author, allowed_types, wip_limit, expires_at, revoked_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.sql.ExecContext(ctx, query,
		key.ID, key.WorkspaceID, key.KeyHash, key.Permission, key.ScopeType, key.ScopePath,
		key.BoundAuthor, allowedTypes, key.WIPLimit, key.ExpiresAt, key.RevokedAt, key.CreatedAt)
	return err
}

func (r *capabilityRepository) GetByHash(ctx context.Context, keyHash string) (*service.CapabilityKey, error) {
	query := `
		SELECT
			id, workspace_id, key_hash, permission, scope_type, scope_path,
			bound_author, allowed_types, wip_limit, expires_at, revoked_at, created_at
		FROM capability_keys
		WHERE key_hash = ?
	`
	key := &service.CapabilityKey{}
	var allowedTypes string
	err := scanSingleRow(ctx, r.sql, query, []any{keyHash},
		&key.ID, &key.WorkspaceID, &key.KeyHash, &key.Permission, &key.ScopeType, &key.ScopePath,
		&key.BoundAuthor, &allowedTypes, &key.WIPLimit, &key.ExpiresAt, &key.RevokedAt, &key.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, service.ErrCapabilityNotFound
	}
	if err != nil {
		return nil, err
	}
	key.AllowedTypes, err = unmarshalStringList(allowedTypes)
	if err != nil {
		return nil, err
	}
	return key, nil
}

func (r *capabilityRepository) Revoke(ctx context.Context, id string, nowMS int64) (bool, error) {
	query := `
		UPDATE capability_keys SET revoked_at = ?
		WHERE id = ? AND revoked_at = 0
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
