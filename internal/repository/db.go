package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/padlog/padlog/internal/config"
)

// sqlExecutor 让仓储方法同时跑在连接池（*sql.DB）和事务（*sql.Tx）上。
type sqlExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanSingleRow(ctx context.Context, q sqlExecutor, query string, args []any, dest ...any) error {
	return q.QueryRowContext(ctx, query, args...).Scan(dest...)
}

// NewDB 打开 SQLite 并初始化表结构。连接池的关闭由应用收尾统一处理。
// DSN 带 _txlock=immediate：BeginTx 即拿写锁，claim 竞争依赖该语义。
func NewDB(cfg *config.Config) (*sql.DB, error) {
	if dir := filepath.Dir(cfg.Database.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// WAL 下读可并发，写仍单点；连接数压小避免 busy 风暴
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := InitSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return db, nil
}

// InitSchema 按序执行建表语句，全部幂等。
func InitSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}
	return nil
}

// 时间戳统一为 Unix 毫秒整数。deleted_at 用 NULL 表示活跃，
// 配合部分唯一索引实现"同路径删除后可重建"。
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS workspaces (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		deleted_at INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS files (
		id           TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL REFERENCES workspaces(id),
		path         TEXT NOT NULL,
		content      TEXT NOT NULL DEFAULT '',
		created_at   INTEGER NOT NULL,
		updated_at   INTEGER NOT NULL,
		deleted_at   INTEGER
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_files_workspace_path_active
		ON files(workspace_id, path) WHERE deleted_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_files_workspace ON files(workspace_id)`,

	`CREATE TABLE IF NOT EXISTS append_counters (
		file_id  TEXT PRIMARY KEY REFERENCES files(id),
		next_seq INTEGER NOT NULL DEFAULT 1
	)`,

	`CREATE TABLE IF NOT EXISTS appends (
		id              TEXT PRIMARY KEY,
		file_id         TEXT NOT NULL REFERENCES files(id),
		append_id       TEXT NOT NULL,
		seq             INTEGER NOT NULL,
		author          TEXT NOT NULL,
		type            TEXT NOT NULL,
		ref             TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL DEFAULT '',
		priority        TEXT NOT NULL DEFAULT '',
		labels          TEXT NOT NULL DEFAULT '',
		due_at          TEXT NOT NULL DEFAULT '',
		assigned        TEXT NOT NULL DEFAULT '',
		expires_at      INTEGER NOT NULL DEFAULT 0,
		value           TEXT NOT NULL DEFAULT '',
		content         TEXT NOT NULL DEFAULT '',
		content_preview TEXT NOT NULL DEFAULT '',
		content_hash    TEXT NOT NULL DEFAULT '',
		created_at      INTEGER NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_appends_file_append_id ON appends(file_id, append_id)`,
	`CREATE INDEX IF NOT EXISTS idx_appends_file_ref_type ON appends(file_id, ref, type, status)`,
	`CREATE INDEX IF NOT EXISTS idx_appends_claim_expiry ON appends(type, status, expires_at)`,

	`CREATE TABLE IF NOT EXISTS capability_keys (
		id            TEXT PRIMARY KEY,
		workspace_id  TEXT NOT NULL REFERENCES workspaces(id),
		key_hash      TEXT NOT NULL UNIQUE,
		permission    TEXT NOT NULL,
		scope_type    TEXT NOT NULL,
		scope_path    TEXT NOT NULL DEFAULT '/',
		bound_author  TEXT NOT NULL DEFAULT '',
		allowed_types TEXT NOT NULL DEFAULT '',
		wip_limit     INTEGER NOT NULL DEFAULT 0,
		expires_at    INTEGER NOT NULL DEFAULT 0,
		revoked_at    INTEGER NOT NULL DEFAULT 0,
		created_at    INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS idempotency_keys (
		capability_key_id TEXT NOT NULL,
		idem_key          TEXT NOT NULL,
		response_status   INTEGER NOT NULL DEFAULT 0,
		response_body     TEXT NOT NULL DEFAULT '',
		created_at        INTEGER NOT NULL,
		finalized_at      INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (capability_key_id, idem_key)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_idempotency_finalized ON idempotency_keys(finalized_at)`,

	`CREATE TABLE IF NOT EXISTS webhook_subscriptions (
		id           TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL DEFAULT '',
		url          TEXT NOT NULL,
		secret       TEXT NOT NULL DEFAULT '',
		events       TEXT NOT NULL DEFAULT '',
		scope_type   TEXT NOT NULL DEFAULT '',
		scope_path   TEXT NOT NULL DEFAULT '/',
		recursive    INTEGER NOT NULL DEFAULT 1,
		active       INTEGER NOT NULL DEFAULT 1,
		created_at   INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS audit_events (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		workspace_id  TEXT NOT NULL DEFAULT '',
		action        TEXT NOT NULL,
		resource_type TEXT NOT NULL DEFAULT '',
		resource_id   TEXT NOT NULL DEFAULT '',
		actor         TEXT NOT NULL DEFAULT '',
		actor_type    TEXT NOT NULL DEFAULT '',
		metadata      TEXT NOT NULL DEFAULT '',
		created_at    INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_workspace_time ON audit_events(workspace_id, created_at)`,
}
