package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/padlog/padlog/internal/domain"
	"github.com/padlog/padlog/internal/pkg/ip"
	"github.com/padlog/padlog/internal/pkg/response"
	"github.com/padlog/padlog/internal/server/middleware"
	"github.com/padlog/padlog/internal/service"
)

// WorkspaceHandler 工作区开通面，挂在管理员令牌后面。
type WorkspaceHandler struct {
	workspaces *service.WorkspaceService
	audit      *service.AuditService
}

func NewWorkspaceHandler(workspaces *service.WorkspaceService, audit *service.AuditService) *WorkspaceHandler {
	return &WorkspaceHandler{workspaces: workspaces, audit: audit}
}

type workspaceCreateRequest struct {
	Name string `json:"name"`
}

func workspaceView(ws *service.Workspace) gin.H {
	return gin.H{
		"id":        ws.ID,
		"name":      ws.Name,
		"createdAt": response.ISOTime(time.UnixMilli(ws.CreatedAt)),
	}
}

// Create POST /api/workspaces。建区并签发工作区级密钥三元组，
// 明文只在本次响应出现。
func (h *WorkspaceHandler) Create(c *gin.Context) {
	var body workspaceCreateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeDomainError(c, service.ErrInvalidRequest.WithMessage("request body must be valid JSON"))
		return
	}

	res, err := h.workspaces.Create(c.Request.Context(), body.Name, middleware.RequestTime(c))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	bindWorkspace(c, res.Workspace.ID)

	// 管理操作在审计里带上来源地址
	h.audit.RecordAction(res.Workspace.ID, "workspace.create", "workspace", res.Workspace.ID, "admin", domain.ActorTypeAdmin, map[string]any{
		"name": res.Workspace.Name,
		"ip":   ip.GetClientIP(c),
	})
	h.audit.RecordAction(res.Workspace.ID, "key.mint", "workspace", res.Workspace.ID, "admin", domain.ActorTypeAdmin, map[string]any{
		"scope": domain.ScopeWorkspace,
		"tiers": []string{domain.PermissionRead, domain.PermissionAppend, domain.PermissionWrite},
	})

	response.Created(c, gin.H{
		"workspace": workspaceView(res.Workspace),
		"keys":      res.Keys,
	}, "")
}

// Get GET /api/workspaces/:id。元数据加文件/追加计数。
func (h *WorkspaceHandler) Get(c *gin.Context) {
	ws, counts, err := h.workspaces.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	bindWorkspace(c, ws.ID)

	response.OK(c, gin.H{
		"workspace": workspaceView(ws),
		"counts":    counts,
	})
}
