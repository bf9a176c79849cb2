package service

import (
	"context"

	"github.com/padlog/padlog/internal/domain"
)

// CapabilityKey 能力密钥记录。明文密钥从不落库，按盐化哈希检索。
type CapabilityKey struct {
	ID          string
	WorkspaceID string
	KeyHash     string
	Permission  string // read/append/write
	ScopeType   string // workspace/folder/file
	ScopePath   string // 已归一化；workspace 作用域为 "/"
	BoundAuthor string // 空 = 不绑定
	// AllowedTypes 允许的 append 类型白名单；nil = 不限制
	AllowedTypes []string
	// WIPLimit 持有者在全工作区的活跃 claim 上限；0 = 不限制
	WIPLimit  int
	ExpiresAt int64 // 毫秒；0 = 永不过期
	RevokedAt int64 // 毫秒；0 = 未吊销
	CreatedAt int64
}

func (k *CapabilityKey) IsRevoked() bool {
	return k.RevokedAt > 0
}

func (k *CapabilityKey) IsExpired(nowMS int64) bool {
	return k.ExpiresAt > 0 && k.ExpiresAt <= nowMS
}

// HasValidScope workspace 作用域自洽；file/folder 必须带非空 scopePath。
func (k *CapabilityKey) HasValidScope() bool {
	switch k.ScopeType {
	case domain.ScopeWorkspace:
		return true
	case domain.ScopeFile, domain.ScopeFolder:
		return k.ScopePath != ""
	default:
		return false
	}
}

// AllowsType 白名单为空时放行全部类型。
func (k *CapabilityKey) AllowsType(appendType string) bool {
	if len(k.AllowedTypes) == 0 {
		return true
	}
	for _, t := range k.AllowedTypes {
		if t == appendType {
			return true
		}
	}
	return false
}

// KeyTriple 发放文件/工作区时一次性返回的明文密钥三元组。
type KeyTriple struct {
	Read   string `json:"read"`
	Append string `json:"append"`
	Write  string `json:"write"`
}

type CapabilityRepository interface {
	Create(ctx context.Context, key *CapabilityKey) error
	// GetByHash 哈希索引查找；不存在返回 ErrCapabilityNotFound。
	GetByHash(ctx context.Context, keyHash string) (*CapabilityKey, error)
	Revoke(ctx context.Context, id string, nowMS int64) (bool, error)
}
