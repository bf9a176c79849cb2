package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/padlog/padlog/internal/config"
	"github.com/padlog/padlog/internal/domain"
	"github.com/padlog/padlog/internal/pkg/ctxkey"
	"github.com/padlog/padlog/internal/pkg/response"
	"github.com/padlog/padlog/internal/server/middleware"
	"github.com/padlog/padlog/internal/service"
)

// AppendHandler 追加调度器：解析密钥与路径、鉴权、幂等括号、
// 分派追加状态机，提交成功后写审计流水并广播事件。
type AppendHandler struct {
	cfg     *config.Config
	authz   *service.AuthzService
	appends *service.AppendService
	broker  *service.IdempotencyService
	audit   *service.AuditService
	bus     *service.EventBus
}

func NewAppendHandler(
	cfg *config.Config,
	authz *service.AuthzService,
	appends *service.AppendService,
	broker *service.IdempotencyService,
	audit *service.AuditService,
	bus *service.EventBus,
) *AppendHandler {
	return &AppendHandler{
		cfg:     cfg,
		authz:   authz,
		appends: appends,
		broker:  broker,
		audit:   audit,
		bus:     bus,
	}
}

// appendBody 单条与批量的联合请求体。批量模式使用顶层 author 加 appends
// 数组，二者不可与单条字段混用；path 仅在主体寻址端点生效。
type appendBody struct {
	service.AppendRequest
	Path    string                   `json:"path"`
	Appends []*service.AppendRequest `json:"appends"`
}

// hasSingleFields 是否携带了单条模式独有的字段（author 与 path 除外）。
func (b *appendBody) hasSingleFields() bool {
	return b.Type != "" || b.Content != "" || b.Ref != "" || b.Priority != "" ||
		len(b.Labels) > 0 || b.DueAt != "" || b.Assigned != "" || b.Value != "" ||
		b.ExpiresInSeconds != 0
}

// Append POST /a/:key/*path。*path 为保留段 /append 时改从请求体取
// 路径（或直接用文件作用域密钥的绑定路径）。
func (h *AppendHandler) Append(c *gin.Context) {
	h.handle(c, domain.PermissionAppend, true)
}

// AppendWrite POST /w/:key/*path，write 档位走相同的调度流程。
func (h *AppendHandler) AppendWrite(c *gin.Context) {
	h.handle(c, domain.PermissionWrite, false)
}

func (h *AppendHandler) handle(c *gin.Context, tier string, bodyAddressed bool) {
	nowMS := middleware.RequestTime(c)
	rawKey := c.Param("key")
	wildcard := c.Param("path")

	var body appendBody
	bindErr := c.ShouldBindJSON(&body)
	if bindErr != nil {
		var maxErr *http.MaxBytesError
		if errors.As(bindErr, &maxErr) {
			c.Header("Content-Size-Limit", strconv.FormatInt(maxErr.Limit, 10))
			response.ErrorFrom(c, service.ErrPayloadTooLarge.WithMessage("request body exceeds the size limit"))
			return
		}
		// 解析失败也先走鉴权，保持首错次序：密钥缺陷优先于请求体缺陷
		body = appendBody{}
	}

	batch := body.Appends != nil

	rawPath := wildcard
	if bodyAddressed && wildcard == "/append" {
		rawPath = body.Path
	}

	var types []string
	if batch {
		for _, item := range body.Appends {
			if item != nil && item.Type != "" {
				types = append(types, item.Type)
			}
		}
	} else if body.Type != "" {
		types = []string{body.Type}
	}

	authz, err := h.authz.Evaluate(c.Request.Context(), &service.AuthzRequest{
		RawKey:       rawKey,
		RequiredTier: tier,
		RawPath:      rawPath,
		Author:       body.Author,
		Types:        types,
		NowMS:        nowMS,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	key := authz.Key
	path := authz.Path
	if path == "" {
		// 主体寻址且未带 path：只有文件作用域密钥能兜底
		if key.ScopeType != domain.ScopeFile {
			writeDomainError(c, service.ErrInvalidPath.WithMessage("path is required"))
			return
		}
		path = key.ScopePath
	}
	bindWorkspace(c, key.WorkspaceID)

	if bindErr != nil {
		writeDomainError(c, service.ErrInvalidRequest.WithMessage("request body must be valid JSON"))
		return
	}
	if batch && body.hasSingleFields() {
		writeDomainError(c, service.ErrInvalidRequest.WithMessage("appends cannot be combined with single-append fields"))
		return
	}
	for _, item := range body.Appends {
		if item == nil {
			writeDomainError(c, service.ErrInvalidRequest.WithMessage("appends items must be objects"))
			return
		}
	}

	runIdempotent(c, h.broker, key.ID, nowMS, func(ctx context.Context) (int, []byte, error) {
		file, err := h.appends.ResolveFile(ctx, key.WorkspaceID, path)
		if err != nil {
			return 0, nil, err
		}

		if batch {
			results, err := h.appends.ExecuteBatch(ctx, key, file, body.Author, body.Appends, nowMS)
			if err != nil {
				return 0, nil, err
			}
			patches := make([]map[string]any, 0, len(results))
			for _, res := range results {
				patches = append(patches, appendData(res))
			}
			payload, err := response.Payload(gin.H{"results": patches, "count": len(patches)}, readBackURL(h.cfg, rawKey, path))
			if err != nil {
				return 0, nil, err
			}
			h.afterCommit(key, file, results)
			return http.StatusCreated, payload, nil
		}

		single := body.AppendRequest
		result, err := h.appends.Execute(ctx, key, file, &single, nowMS)
		if err != nil {
			return 0, nil, err
		}
		payload, err := response.Payload(appendData(result), readBackURL(h.cfg, rawKey, path))
		if err != nil {
			return 0, nil, err
		}
		h.afterCommit(key, file, []*service.AppendResult{result})
		return http.StatusCreated, payload, nil
	})
}

// afterCommit 提交成功后的扇出：审计入列、事件广播（webhook 投递挂在
// 总线上触发）。两者都不回写响应，失败只记日志。
func (h *AppendHandler) afterCommit(key *service.CapabilityKey, file *service.File, results []*service.AppendResult) {
	for _, res := range results {
		a := res.Append
		metadata := map[string]any{"path": file.Path}
		if a.Ref != "" {
			metadata["ref"] = a.Ref
		}
		if res.Reclaimed {
			metadata["reclaimed"] = true
		}
		h.audit.RecordAction(key.WorkspaceID, "append."+a.Type, "append", a.AppendID, a.Author, domain.ActorTypeAgent, metadata)

		// 事件 data 与响应 data 同构，订阅方看到的就是追加方拿到的
		h.bus.Publish(&service.Event{
			Name:        res.EventName,
			WorkspaceID: key.WorkspaceID,
			Path:        file.Path,
			AppendID:    a.AppendID,
			Author:      a.Author,
			Type:        a.Type,
			TS:          response.ISOTime(time.UnixMilli(a.CreatedAt)),
			Data:        appendData(res),
		})
	}
}

// appendData 单条追加的响应数据：固定头部字段叠加类型补丁。
func appendData(res *service.AppendResult) map[string]any {
	a := res.Append
	data := map[string]any{
		"id":     a.AppendID,
		"type":   a.Type,
		"author": a.Author,
		"ts":     response.ISOTime(time.UnixMilli(a.CreatedAt)),
	}
	for k, v := range res.Patch {
		data[k] = v
	}
	return data
}

// readBackURL 组装调用方自己的读回 URL：公共基址 + /r/ + 请求密钥 +
// 文件路径。读端点对任意档位放行，append/write 密钥同样可读。
func readBackURL(cfg *config.Config, rawKey, path string) string {
	return cfg.Server.PublicBaseURL + "/r/" + rawKey + path
}

// bindWorkspace 把命中的工作区 ID 写进请求上下文，访问日志按租户聚合。
func bindWorkspace(c *gin.Context, workspaceID string) {
	ctx := context.WithValue(c.Request.Context(), ctxkey.WorkspaceID, workspaceID)
	c.Request = c.Request.WithContext(ctx)
}
