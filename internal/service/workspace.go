package service

import "context"

// Workspace 租户根。时间均为毫秒时间戳。
type Workspace struct {
	ID        string
	Name      string
	CreatedAt int64
	DeletedAt int64 // 0 = 未删除
}

type WorkspaceRepository interface {
	Create(ctx context.Context, ws *Workspace) error
	GetByID(ctx context.Context, id string) (*Workspace, error)
}

// StoreCounts 状态接口用的粗粒度计数。
type StoreCounts struct {
	Workspaces int64 `json:"workspaces"`
	Files      int64 `json:"files"`
	Appends    int64 `json:"appends"`
}

// WorkspaceCounts 单个工作区的文件与追加计数。
type WorkspaceCounts struct {
	Files   int64 `json:"files"`
	Appends int64 `json:"appends"`
}

type StatsRepository interface {
	Counts(ctx context.Context) (*StoreCounts, error)
	WorkspaceCounts(ctx context.Context, workspaceID string) (*WorkspaceCounts, error)
}
