package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/padlog/padlog/internal/config"
	"github.com/padlog/padlog/internal/domain"
	"github.com/padlog/padlog/internal/pkg/response"
	"github.com/padlog/padlog/internal/server/middleware"
	"github.com/padlog/padlog/internal/service"
)

// ReadHandler 读端点：文件正文 + 全量追加记录。read 档起步，
// 高档位密钥同样放行。
type ReadHandler struct {
	cfg   *config.Config
	authz *service.AuthzService
	files *service.FileService
}

func NewReadHandler(cfg *config.Config, authz *service.AuthzService, files *service.FileService) *ReadHandler {
	return &ReadHandler{cfg: cfg, authz: authz, files: files}
}

// appendView 追加记录的对外视图。零值字段省略。
type appendView struct {
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	Author    string   `json:"author"`
	TS        string   `json:"ts"`
	Ref       string   `json:"ref,omitempty"`
	Status    string   `json:"status,omitempty"`
	Priority  string   `json:"priority,omitempty"`
	Labels    []string `json:"labels,omitempty"`
	DueAt     string   `json:"dueAt,omitempty"`
	Assigned  string   `json:"assigned,omitempty"`
	ExpiresAt string   `json:"expiresAt,omitempty"`
	Value     string   `json:"value,omitempty"`
	Content   string   `json:"content,omitempty"`
}

func newAppendView(a *service.Append) *appendView {
	v := &appendView{
		ID:       a.AppendID,
		Type:     a.Type,
		Author:   a.Author,
		TS:       response.ISOTime(time.UnixMilli(a.CreatedAt)),
		Ref:      a.Ref,
		Status:   a.Status,
		Priority: a.Priority,
		Labels:   a.Labels,
		DueAt:    a.DueAt,
		Assigned: a.Assigned,
		Value:    a.Value,
		Content:  a.Content,
	}
	if a.ExpiresAt > 0 {
		v.ExpiresAt = response.ISOTime(time.UnixMilli(a.ExpiresAt))
	}
	return v
}

// Get GET /r/:key/*path。追加按文件内编号顺序返回。
func (h *ReadHandler) Get(c *gin.Context) {
	nowMS := middleware.RequestTime(c)
	rawKey := c.Param("key")

	authz, err := h.authz.Evaluate(c.Request.Context(), &service.AuthzRequest{
		RawKey:       rawKey,
		RequiredTier: domain.PermissionRead,
		RawPath:      c.Param("path"),
		NowMS:        nowMS,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	key, path := authz.Key, authz.Path
	bindWorkspace(c, key.WorkspaceID)

	file, appends, err := h.files.Get(c.Request.Context(), key.WorkspaceID, path)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	views := make([]*appendView, 0, len(appends))
	for _, a := range appends {
		views = append(views, newAppendView(a))
	}

	response.OKWithURL(c, gin.H{
		"path":      file.Path,
		"content":   file.Content,
		"createdAt": response.ISOTime(time.UnixMilli(file.CreatedAt)),
		"updatedAt": response.ISOTime(time.UnixMilli(file.UpdatedAt)),
		"appends":   views,
	}, readBackURL(h.cfg, rawKey, path))
}
