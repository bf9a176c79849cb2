package service

import "context"

// File 工作区内的 markdown 文件。路径已归一化（前导 /，无尾随 /）。
type File struct {
	ID          string
	WorkspaceID string
	Path        string
	Content     string
	CreatedAt   int64
	UpdatedAt   int64
	DeletedAt   int64 // 0 = 未删除；非零为墓碑
}

type FileRepository interface {
	Create(ctx context.Context, f *File) error
	// GetActiveByPath 只返回未删除文件；不存在返回 ErrFileNotFound。
	GetActiveByPath(ctx context.Context, workspaceID, path string) (*File, error)
	GetByID(ctx context.Context, id string) (*File, error)
	// TombstoneExists 判断路径上是否留有软删除墓碑（区分 FILE_DELETED 与 FILE_NOT_FOUND）。
	TombstoneExists(ctx context.Context, workspaceID, path string) (bool, error)
	UpdateContent(ctx context.Context, id, content string, nowMS int64) error
	SoftDelete(ctx context.Context, id string, nowMS int64) (bool, error)
	// PurgeTombstonedBefore 物理删除过期墓碑（级联清掉 appends 与计数器）。
	PurgeTombstonedBefore(ctx context.Context, cutoffMS int64, limit int) (int64, error)
}
