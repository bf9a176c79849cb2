package domain

// Append type constants
const (
	AppendTypeTask     = "task"
	AppendTypeClaim    = "claim"
	AppendTypeResponse = "response"
	AppendTypeCancel   = "cancel"
	AppendTypeRenew    = "renew"
	AppendTypeComment  = "comment"
	AppendTypeBlocked  = "blocked"
	AppendTypeAnswer   = "answer"
	AppendTypeVote     = "vote"
)

// AppendTypes 请求层封闭类型集合（未知 type 在进入状态机前拒绝）
var AppendTypes = map[string]struct{}{
	AppendTypeTask:     {},
	AppendTypeClaim:    {},
	AppendTypeResponse: {},
	AppendTypeCancel:   {},
	AppendTypeRenew:    {},
	AppendTypeComment:  {},
	AppendTypeBlocked:  {},
	AppendTypeAnswer:   {},
	AppendTypeVote:     {},
}

// Task / claim / blocked 状态常量
const (
	StatusOpen      = "open"
	StatusDone      = "done"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

// Capability 权限级别：read 只读，append 可追加，write 可写文件
const (
	PermissionRead   = "read"
	PermissionAppend = "append"
	PermissionWrite  = "write"
)

// Capability 作用域类型
const (
	ScopeWorkspace = "workspace"
	ScopeFolder    = "folder"
	ScopeFile      = "file"
)

// Vote 取值白名单
const (
	VoteUp   = "+1"
	VoteDown = "-1"
)

// 事件名（事件总线 + webhook 共用）
const (
	EventTaskCreated   = "task.created"
	EventTaskCompleted = "task.completed"
	EventTaskBlocked   = "task.blocked"
	EventClaimCreated  = "claim.created"
	EventClaimRenewed  = "claim.renewed"
	EventClaimReleased = "claim.released"
	EventClaimExpired  = "claim.expired"
	EventAppend        = "append"
)

// 审计 actor 类型
const (
	ActorTypeAgent  = "agent"
	ActorTypeAdmin  = "admin"
	ActorTypeSystem = "system"
)

// ReservedAuthors 禁止用作 append author 的保留名
var ReservedAuthors = map[string]struct{}{
	"system": {},
}

// Claim 生存期边界（秒）；请求未指定时使用默认值
const (
	ClaimExpiresDefaultSeconds = 1800
	ClaimExpiresMinSeconds     = 60
	ClaimExpiresMaxSeconds     = 86400
)
