// Package ctxkey 定义用于 context.Value 的类型安全 key
package ctxkey

// Key 定义 context key 的类型，避免使用内置 string 类型（staticcheck SA1029）
type Key string

const (
	// RequestID 为服务端生成/透传的请求 ID。
	RequestID Key = "ctx_request_id"

	// WorkspaceID 当前请求命中的工作区 ID（用于统一请求链路日志字段）。
	WorkspaceID Key = "ctx_workspace_id"

	// RequestTime 请求入口捕获的统一时钟；所有 expiresAt/幂等时间戳共用。
	RequestTime Key = "ctx_request_time"
)
