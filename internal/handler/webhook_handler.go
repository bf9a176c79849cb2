package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/padlog/padlog/internal/domain"
	"github.com/padlog/padlog/internal/pkg/response"
	"github.com/padlog/padlog/internal/server/middleware"
	"github.com/padlog/padlog/internal/service"
)

// WebhookHandler 订阅管理面，要求工作区作用域的 write 密钥。
// 路由共用 /w/:key/*path 的通配段，由 router 按 /webhooks 保留段分派。
type WebhookHandler struct {
	authz    *service.AuthzService
	webhooks *service.WebhookService
	audit    *service.AuditService
}

func NewWebhookHandler(authz *service.AuthzService, webhooks *service.WebhookService, audit *service.AuditService) *WebhookHandler {
	return &WebhookHandler{authz: authz, webhooks: webhooks, audit: audit}
}

// authorize 工作区级 write 密钥校验；文件/目录作用域密钥无权管理订阅。
func (h *WebhookHandler) authorize(c *gin.Context) (*service.CapabilityKey, bool) {
	authz, err := h.authz.Evaluate(c.Request.Context(), &service.AuthzRequest{
		RawKey:       c.Param("key"),
		RequiredTier: domain.PermissionWrite,
		NowMS:        middleware.RequestTime(c),
	})
	if err != nil {
		writeDomainError(c, err)
		return nil, false
	}
	if authz.Key.ScopeType != domain.ScopeWorkspace {
		writeDomainError(c, service.ErrPermissionDenied)
		return nil, false
	}
	bindWorkspace(c, authz.Key.WorkspaceID)
	return authz.Key, true
}

// Subscribe POST /w/:key/webhooks。
func (h *WebhookHandler) Subscribe(c *gin.Context) {
	key, ok := h.authorize(c)
	if !ok {
		return
	}

	var body service.SubscribeInput
	if err := c.ShouldBindJSON(&body); err != nil {
		writeDomainError(c, service.ErrInvalidRequest.WithMessage("request body must be valid JSON"))
		return
	}

	sub, err := h.webhooks.Subscribe(c.Request.Context(), key.WorkspaceID, &body)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	h.audit.RecordAction(key.WorkspaceID, "webhook.subscribe", "webhook", sub.ID, key.ID, domain.ActorTypeAgent, map[string]any{
		"url":       sub.URL,
		"scopeType": sub.ScopeType,
	})
	response.Created(c, gin.H{"subscription": sub}, "")
}

// List GET /w/:key/webhooks。只列本工作区自己的订阅。
func (h *WebhookHandler) List(c *gin.Context) {
	key, ok := h.authorize(c)
	if !ok {
		return
	}

	subs, err := h.webhooks.List(c.Request.Context(), key.WorkspaceID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	response.OK(c, gin.H{"subscriptions": subs, "count": len(subs)})
}

// Unsubscribe DELETE /w/:key/webhooks/:id（id 取自通配段）。
func (h *WebhookHandler) Unsubscribe(c *gin.Context) {
	key, ok := h.authorize(c)
	if !ok {
		return
	}

	id := strings.TrimPrefix(c.Param("path"), "/webhooks/")
	if id == "" || strings.Contains(id, "/") {
		writeDomainError(c, service.ErrWebhookNotFound)
		return
	}

	deleted, err := h.webhooks.Unsubscribe(c.Request.Context(), key.WorkspaceID, id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	if !deleted {
		writeDomainError(c, service.ErrWebhookNotFound)
		return
	}

	h.audit.RecordAction(key.WorkspaceID, "webhook.unsubscribe", "webhook", id, key.ID, domain.ActorTypeAgent, nil)
	response.OK(c, gin.H{"id": id, "deleted": true})
}
