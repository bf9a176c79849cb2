package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/padlog/padlog/internal/domain"
	"github.com/padlog/padlog/internal/pkg/pathutil"
)

// tierRank 权限阶梯 read < append < write；高档位覆盖低档位的操作。
var tierRank = map[string]int{
	domain.PermissionRead:   0,
	domain.PermissionAppend: 1,
	domain.PermissionWrite:  2,
}

func tierAdmits(keyPermission, required string) bool {
	kr, ok := tierRank[keyPermission]
	if !ok {
		return false
	}
	rr, ok := tierRank[required]
	if !ok {
		return false
	}
	return kr >= rr
}

// wellFormedKey URL 里的密钥形态预检：长度下限 + 字符集 [A-Za-z0-9_-]。
// 不合格的串直接 404，不触发哈希与查库。
func wellFormedKey(raw string) bool {
	if len(raw) < 22 {
		return false
	}
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}

// ValidateAuthor author 语法校验：1-64 字符、[A-Za-z0-9_-]、非保留名。
func ValidateAuthor(author string) error {
	if author == "" || len(author) > 64 {
		return ErrInvalidAuthor
	}
	for _, r := range author {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return ErrInvalidAuthor
		}
	}
	if _, reserved := domain.ReservedAuthors[author]; reserved {
		return ErrInvalidAuthor
	}
	return nil
}

// AuthzRequest 一次授权判定的输入。RawPath 为待归一化的文件路径
// （来自 URL 通配段或请求体）；Author/Types 仅 append 类请求携带。
type AuthzRequest struct {
	RawKey       string
	RequiredTier string
	RawPath      string
	Author       string
	Types        []string
	NowMS        int64
}

// AuthzResult 判定通过后的产物：密钥记录与归一化路径。
type AuthzResult struct {
	Key  *CapabilityKey
	Path string
}

// AuthzService 授权判定器。按固定顺序执行检查，首个失败即返回：
// 密钥缺陷（形态/不存在/作用域残缺/吊销/过期/越权/越界）一律 404，
// 不让探测者区分"钥匙无效"与"资源不存在"；作者与类型绑定违规按 400。
type AuthzService struct {
	capability *CapabilityService
}

func NewAuthzService(capability *CapabilityService) *AuthzService {
	return &AuthzService{capability: capability}
}

func (s *AuthzService) Evaluate(ctx context.Context, req *AuthzRequest) (*AuthzResult, error) {
	// 1. 密钥形态
	if !wellFormedKey(req.RawKey) {
		return nil, ErrInvalidKey
	}
	// 2. 记录存在
	key, err := s.capability.Resolve(ctx, req.RawKey)
	if err != nil {
		if errors.Is(err, ErrInvalidKey) {
			return nil, ErrInvalidKey
		}
		return nil, fmt.Errorf("resolve capability key: %w", err)
	}
	// 3. 作用域绑定自洽
	if !key.HasValidScope() {
		return nil, ErrInvalidKey
	}
	// 4. 吊销
	if key.IsRevoked() {
		return nil, ErrKeyRevoked
	}
	// 5. 过期
	if key.IsExpired(req.NowMS) {
		return nil, ErrKeyExpired
	}
	// 6. 权限档位
	if !tierAdmits(key.Permission, req.RequiredTier) {
		return nil, ErrPermissionDenied
	}
	// 7. 作用域路径包含
	path := ""
	if req.RawPath != "" {
		path, err = pathutil.Normalize(req.RawPath)
		if err != nil {
			return nil, ErrInvalidPath
		}
		switch key.ScopeType {
		case domain.ScopeFile:
			if path != key.ScopePath {
				return nil, ErrPermissionDenied
			}
		case domain.ScopeFolder:
			if !pathutil.ContainsPath(key.ScopePath, path) {
				return nil, ErrPermissionDenied
			}
		}
	}
	// 8. 作者绑定
	if req.Author != "" && key.BoundAuthor != "" && req.Author != key.BoundAuthor {
		return nil, ErrAuthorMismatch
	}
	// 9. 类型白名单（批量时逐项检查）
	for _, t := range req.Types {
		if !key.AllowsType(t) {
			return nil, ErrTypeNotAllowed
		}
	}
	return &AuthzResult{Key: key, Path: path}, nil
}
