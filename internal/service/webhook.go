package service

import (
	"context"

	"github.com/padlog/padlog/internal/domain"
	"github.com/padlog/padlog/internal/pkg/pathutil"
)

// WebhookSubscription 事件回调订阅。WorkspaceID 为空表示订阅全部工作区，
// Events 为空表示订阅全部事件。folder 作用域默认递归匹配子树，
// Recursive=false 时只命中直接子级。
type WebhookSubscription struct {
	ID          string   `json:"id" yaml:"id"`
	WorkspaceID string   `json:"workspaceId" yaml:"workspace_id"`
	URL         string   `json:"url" yaml:"url"`
	Secret      string   `json:"-" yaml:"secret"`
	Events      []string `json:"events" yaml:"events"`
	ScopeType   string   `json:"scopeType" yaml:"scope_type"`
	ScopePath   string   `json:"scopePath" yaml:"scope_path"`
	Recursive   bool     `json:"recursive" yaml:"recursive"`
	Active      bool     `json:"active" yaml:"active"`
	CreatedAt   int64    `json:"createdAt" yaml:"-"`
}

// Matches 订阅是否命中事件：工作区、事件名、路径作用域三重过滤。
func (s *WebhookSubscription) Matches(workspaceID, event, path string) bool {
	if !s.Active {
		return false
	}
	if s.WorkspaceID != "" && s.WorkspaceID != workspaceID {
		return false
	}
	if len(s.Events) > 0 {
		hit := false
		for _, e := range s.Events {
			if e == event {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return s.matchesPath(path)
}

func (s *WebhookSubscription) matchesPath(path string) bool {
	if s.ScopePath == "" || s.ScopePath == "/" || path == "" {
		return true
	}
	switch s.ScopeType {
	case domain.ScopeFile:
		return path == s.ScopePath
	case domain.ScopeFolder:
		if s.Recursive {
			return pathutil.ContainsPath(s.ScopePath, path)
		}
		return pathutil.IsDirectChild(s.ScopePath, path)
	default:
		// 未声明作用域类型时按递归前缀处理
		return pathutil.ContainsPath(s.ScopePath, path)
	}
}

type WebhookRepository interface {
	Create(ctx context.Context, sub *WebhookSubscription) error
	// ListActive 返回指定工作区可见的活跃订阅（含全局订阅）。
	ListActive(ctx context.Context, workspaceID string) ([]*WebhookSubscription, error)
	List(ctx context.Context, workspaceID string) ([]*WebhookSubscription, error)
	// Delete 限定工作区删除，防止越权删掉别人的订阅。
	Delete(ctx context.Context, workspaceID, id string) (bool, error)
}
