package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/padlog/padlog/internal/service"
)

type idempotencyRepository struct {
	sql sqlExecutor
}

// NewIdempotencyRepository 创建幂等记录仓储。
func NewIdempotencyRepository(sqlDB *sql.DB) service.IdempotencyRepository {
	return &idempotencyRepository{sql: sqlDB}
}

func (r *idempotencyRepository) InsertPending(ctx context.Context, capabilityKeyID, key string, nowMS int64) (bool, error) {
	query := `
		INSERT INTO idempotency_keys (
			capability_key_id, idem_key, response_status, response_body, created_at, finalized_at
		) VALUES (?, ?, 0, '', ?, 0)
		ON CONFLICT (capability_key_id, idem_key) DO NOTHING
	`
	res, err := r.sql.ExecContext(ctx, query, capabilityKeyID, key, nowMS)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *idempotencyRepository) Get(ctx context.Context, capabilityKeyID, key string) (*service.IdempotencyRecord, error) {
	query := `
		SELECT capability_key_id, idem_key, response_status, response_body, created_at, finalized_at
		FROM idempotency_keys
		WHERE capability_key_id = ? AND idem_key = ?
	`
	record := &service.IdempotencyRecord{}
	err := scanSingleRow(ctx, r.sql, query, []any{capabilityKeyID, key},
		&record.CapabilityKeyID,
		&record.Key,
		&record.ResponseStatus,
		&record.ResponseBody,
		&record.CreatedAt,
		&record.FinalizedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *idempotencyRepository) Finalize(ctx context.Context, capabilityKeyID, key string, status int, body string, nowMS int64) (bool, error) {
	query := `
		UPDATE idempotency_keys
		SET response_status = ?,
			response_body = ?,
			finalized_at = ?
		WHERE capability_key_id = ? AND idem_key = ? AND response_status = 0
	`
	res, err := r.sql.ExecContext(ctx, query, status, body, nowMS, capabilityKeyID, key)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *idempotencyRepository) DeletePending(ctx context.Context, capabilityKeyID, key string) (bool, error) {
	query := `
		DELETE FROM idempotency_keys
		WHERE capability_key_id = ? AND idem_key = ? AND response_status = 0
	`
	res, err := r.sql.ExecContext(ctx, query, capabilityKeyID, key)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *idempotencyRepository) DeleteExpired(ctx context.Context, finalizedBeforeMS, pendingBeforeMS int64, limit int) (int64, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `
		WITH victims AS (
			SELECT rowid AS rid
			FROM idempotency_keys
			WHERE (response_status <> 0 AND finalized_at <= ?)
				OR (response_status = 0 AND created_at <= ?)
			LIMIT ?
		)
		DELETE FROM idempotency_keys
		WHERE rowid IN (SELECT rid FROM victims)
	`
	res, err := r.sql.ExecContext(ctx, query, finalizedBeforeMS, pendingBeforeMS, limit)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
