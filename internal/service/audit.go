package service

import "context"

// AuditEvent 审计流水：谁对哪个资源做了什么。只为可观测性存在，
// 写入异步进行，失败只记日志，绝不影响请求结果。
type AuditEvent struct {
	ID           int64  `json:"id"`
	WorkspaceID  string `json:"workspaceId"`
	Action       string `json:"action"`
	ResourceType string `json:"resourceType"`
	ResourceID   string `json:"resourceId"`
	Actor        string `json:"actor"`
	ActorType    string `json:"actorType"`
	// Metadata JSON 文本，随 action 变化（appendId、path、错误码等）
	Metadata  string `json:"metadata,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

type AuditRepository interface {
	Insert(ctx context.Context, evt *AuditEvent) error
	ListByWorkspace(ctx context.Context, workspaceID string, limit int) ([]*AuditEvent, error)
	// PurgeBefore 删除早于 cutoff 的流水，返回删除行数。
	PurgeBefore(ctx context.Context, cutoffMS int64, limit int) (int64, error)
}
