package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/padlog/padlog/internal/domain"
)

// WorkspaceService 工作区开通。创建即签发工作区级密钥三元组，
// 管理面鉴权在 handler 层完成。
type WorkspaceService struct {
	workspaces WorkspaceRepository
	stats      StatsRepository
	keys       *CapabilityService
}

func NewWorkspaceService(workspaces WorkspaceRepository, stats StatsRepository, keys *CapabilityService) *WorkspaceService {
	return &WorkspaceService{workspaces: workspaces, stats: stats, keys: keys}
}

type WorkspaceCreateResult struct {
	Workspace *Workspace
	Keys      *KeyTriple
}

func (s *WorkspaceService) Create(ctx context.Context, name string, nowMS int64) (*WorkspaceCreateResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidRequest.WithMessage("name is required")
	}
	if len(name) > 128 {
		return nil, ErrInvalidRequest.WithMessage("name must be at most 128 characters")
	}

	ws := &Workspace{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: nowMS,
	}
	if err := s.workspaces.Create(ctx, ws); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	keys, err := s.keys.MintTriple(ctx, ws.ID, domain.ScopeWorkspace, "/")
	if err != nil {
		return nil, fmt.Errorf("mint workspace keys: %w", err)
	}
	return &WorkspaceCreateResult{Workspace: ws, Keys: keys}, nil
}

// Get 返回工作区元数据及文件/追加计数。
func (s *WorkspaceService) Get(ctx context.Context, id string) (*Workspace, *WorkspaceCounts, error) {
	ws, err := s.workspaces.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	counts, err := s.stats.WorkspaceCounts(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("workspace counts: %w", err)
	}
	return ws, counts, nil
}
