package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/padlog/padlog/internal/config"
	"github.com/padlog/padlog/internal/domain"
	"github.com/padlog/padlog/internal/pkg/response"
	"github.com/padlog/padlog/internal/server/middleware"
	"github.com/padlog/padlog/internal/service"
)

// FileHandler 文件生命周期：创建/改写、软删除。写档位专属。
type FileHandler struct {
	cfg   *config.Config
	authz *service.AuthzService
	files *service.FileService
	audit *service.AuditService
}

func NewFileHandler(cfg *config.Config, authz *service.AuthzService, files *service.FileService, audit *service.AuditService) *FileHandler {
	return &FileHandler{cfg: cfg, authz: authz, files: files, audit: audit}
}

type filePutRequest struct {
	Content string `json:"content"`
}

// reservedFilePath /append 与 /webhooks 子树是路由保留段，不允许当文件路径。
func reservedFilePath(path string) bool {
	if path == "/append" || path == "/webhooks" {
		return true
	}
	return strings.HasPrefix(path, "/webhooks/")
}

// Upsert PUT /w/:key/*path。创建返回 201 并附带该文件的密钥三元组
// 明文（仅此一次）；改写返回 200。
func (h *FileHandler) Upsert(c *gin.Context) {
	nowMS := middleware.RequestTime(c)
	rawKey := c.Param("key")

	var body filePutRequest
	bindErr := c.ShouldBindJSON(&body)
	if bindErr != nil {
		var maxErr *http.MaxBytesError
		if errors.As(bindErr, &maxErr) {
			c.Header("Content-Size-Limit", strconv.FormatInt(maxErr.Limit, 10))
			response.ErrorFrom(c, service.ErrPayloadTooLarge.WithMessage("request body exceeds the size limit"))
			return
		}
	}

	authz, err := h.authz.Evaluate(c.Request.Context(), &service.AuthzRequest{
		RawKey:       rawKey,
		RequiredTier: domain.PermissionWrite,
		RawPath:      c.Param("path"),
		NowMS:        nowMS,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	key, path := authz.Key, authz.Path
	bindWorkspace(c, key.WorkspaceID)

	if bindErr != nil {
		writeDomainError(c, service.ErrInvalidRequest.WithMessage("request body must be valid JSON"))
		return
	}
	if path == "" || path == "/" {
		writeDomainError(c, service.ErrInvalidPath.WithMessage("file path is required"))
		return
	}
	if reservedFilePath(path) {
		writeDomainError(c, service.ErrInvalidPath.WithMessage("path segment is reserved"))
		return
	}

	res, err := h.files.Upsert(c.Request.Context(), key.WorkspaceID, path, body.Content, nowMS)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	data := gin.H{
		"path":    res.File.Path,
		"created": res.Created,
		"file":    gin.H{"id": res.File.ID},
	}
	if res.Keys != nil {
		data["keys"] = res.Keys
	}

	action := "file.update"
	if res.Created {
		action = "file.create"
	}
	h.audit.RecordAction(key.WorkspaceID, action, "file", res.File.ID, key.ID, domain.ActorTypeAgent, map[string]any{"path": path})
	if res.Created {
		h.audit.RecordAction(key.WorkspaceID, "key.mint", "file", res.File.ID, key.ID, domain.ActorTypeAgent, map[string]any{
			"path":  path,
			"scope": domain.ScopeFile,
			"tiers": []string{domain.PermissionRead, domain.PermissionAppend, domain.PermissionWrite},
		})
	}

	if res.Created {
		response.Created(c, data, readBackURL(h.cfg, rawKey, path))
		return
	}
	response.OKWithURL(c, data, readBackURL(h.cfg, rawKey, path))
}

// Delete DELETE /w/:key/*path。软删除：路径立墓碑，追加与计数器保留
// 到清扫器过期回收；同路径重建视为新文件，编号从头计。
func (h *FileHandler) Delete(c *gin.Context) {
	nowMS := middleware.RequestTime(c)
	rawKey := c.Param("key")

	authz, err := h.authz.Evaluate(c.Request.Context(), &service.AuthzRequest{
		RawKey:       rawKey,
		RequiredTier: domain.PermissionWrite,
		RawPath:      c.Param("path"),
		NowMS:        nowMS,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	key, path := authz.Key, authz.Path
	bindWorkspace(c, key.WorkspaceID)

	f, err := h.files.Delete(c.Request.Context(), key.WorkspaceID, path, nowMS)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	h.audit.RecordAction(key.WorkspaceID, "file.delete", "file", f.ID, key.ID, domain.ActorTypeAgent, map[string]any{"path": path})
	response.OKWithURL(c, gin.H{"path": path, "deleted": true}, readBackURL(h.cfg, rawKey, path))
}
