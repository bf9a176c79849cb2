package service

import (
	"context"

	"github.com/padlog/padlog/internal/domain"
)

// Append 追加记录。AppendID 是文件内单调编号（"a1"、"a2"…），
// Seq 为其数值部分，排序与续租比较都用它。
type Append struct {
	ID       string // uuid 主键
	FileID   string
	AppendID string // "a" + Seq
	Seq      int64
	Author   string
	Type     string
	Ref      string // claim/response/cancel/renew/blocked/answer/vote 指向的目标 append
	// Status 随类型取值：task=open/done/cancelled，claim=active/completed/cancelled/expired，
	// blocked=active/cancelled。其余类型为空。
	Status   string
	Priority string
	Labels   []string
	DueAt    string
	Assigned string
	// ExpiresAt claim 的租约到期毫秒时间戳；其余类型为 0
	ExpiresAt int64
	// Value vote 的取值（+1/-1）
	Value          string
	Content        string
	ContentPreview string
	// ContentHash content 的 sha256 十六进制；content 为空时为空
	ContentHash string
	CreatedAt   int64
}

func (a *Append) IsClaim() bool {
	return a.Type == domain.AppendTypeClaim
}

// ClaimActive 活跃 claim = status 为 active 且租约未到期。
func (a *Append) ClaimActive(nowMS int64) bool {
	return a.Type == domain.AppendTypeClaim && a.Status == domain.StatusActive && a.ExpiresAt > nowMS
}

// SweptClaim 清扫器标记过期后回传的最小视图，用于发事件。
type SweptClaim struct {
	WorkspaceID string
	FileID      string
	Path        string
	AppendID    string
	Author      string
	Ref         string
	ExpiresAt   int64
}

// AppendStore 追加存储操作集。实现既挂在连接池上（自动提交），
// 也挂在事务句柄上（InTx 回调内的 store）。
type AppendStore interface {
	// NextAppendID 取文件的下一个编号。计数只增不减，事务回滚不回收。
	NextAppendID(ctx context.Context, fileID string) (int64, error)
	Insert(ctx context.Context, a *Append) error
	// GetByAppendID 按文件内编号查找；不存在返回 ErrAppendNotFound。
	GetByAppendID(ctx context.Context, fileID, appendID string) (*Append, error)
	// FindActiveClaim 找 ref 指向同一 task 的活跃 claim；没有返回 nil。
	FindActiveClaim(ctx context.Context, fileID, ref string, nowMS int64) (*Append, error)
	// UpdateClaimExpiry 改租约到期时间，返回是否命中行。
	UpdateClaimExpiry(ctx context.Context, id string, expiresAt int64) (bool, error)
	UpdateStatus(ctx context.Context, id, status string) (bool, error)
	// CompleteActiveClaims 把 task 下所有活跃 claim 置为 completed。
	CompleteActiveClaims(ctx context.Context, fileID, taskRef string, nowMS int64) (int64, error)
	// SetTaskStatus 按编号改 task 状态（done/open）。
	SetTaskStatus(ctx context.Context, fileID, taskRef, status string) (bool, error)
	ListByFile(ctx context.Context, fileID string) ([]*Append, error)
	// CountActiveClaimsByAuthor 工作区内该作者的活跃 claim 数，WIP 限制用。
	CountActiveClaimsByAuthor(ctx context.Context, workspaceID, author string, nowMS int64) (int64, error)
	// ExpireClaimsBefore 把到期未处理的 claim 批量置为 expired，返回被清扫的租约。
	ExpireClaimsBefore(ctx context.Context, nowMS int64, limit int) ([]*SweptClaim, error)
}

// AppendRepository 在 AppendStore 之上提供事务边界。
// InTx 以 BEGIN IMMEDIATE 开启写事务，回调返回错误即回滚。
type AppendRepository interface {
	AppendStore
	InTx(ctx context.Context, fn func(store AppendStore) error) error
}
