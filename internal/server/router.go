package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/padlog/padlog/internal/config"
	"github.com/padlog/padlog/internal/handler"
	"github.com/padlog/padlog/internal/pkg/response"
	"github.com/padlog/padlog/internal/server/middleware"
)

// SetupRouter 配置路由器中间件和路由
func SetupRouter(r *gin.Engine, handlers *handler.Handlers, cfg *config.Config) *gin.Engine {
	// 应用中间件
	r.Use(middleware.RequestLogger())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.SecurityHeaders(cfg.Security.Headers))
	r.Use(middleware.BodyLimit(cfg.Server.MaxRequestBodySize))

	// 未命中路由统一回包络，不暴露 gin 默认文本
	r.NoRoute(func(c *gin.Context) {
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) {
		response.Error(c, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	registerRoutes(r, handlers, cfg)
	return r
}

// registerRoutes 注册所有 HTTP 路由。能力 URL 的三个前缀按档位分树：
// /r 读、/a 追加、/w 写。gin 的通配段不能与静态段共存，/w 下的
// /webhooks 与 /a 下的 /append 作为保留段在分派函数里裁决。
func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	r.GET("/health", h.System.Health)

	r.GET("/r/:key/*path", h.Read.Get)
	r.GET("/ws/:key", h.WS.Stream)

	r.POST("/a/:key/*path", h.Append.Append)

	w := r.Group("/w/:key")
	w.PUT("/*path", h.File.Upsert)
	w.POST("/*path", func(c *gin.Context) {
		if c.Param("path") == "/webhooks" {
			h.Webhook.Subscribe(c)
			return
		}
		h.Append.AppendWrite(c)
	})
	w.GET("/*path", func(c *gin.Context) {
		if c.Param("path") == "/webhooks" {
			h.Webhook.List(c)
			return
		}
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	w.DELETE("/*path", func(c *gin.Context) {
		if strings.HasPrefix(c.Param("path"), "/webhooks/") {
			h.Webhook.Unsubscribe(c)
			return
		}
		h.File.Delete(c)
	})

	// 管理面：令牌常量时间比对，未配置令牌时整组拒绝
	api := r.Group("/api", middleware.AdminAuth(cfg))
	api.POST("/workspaces", h.Workspace.Create)
	api.GET("/workspaces/:id", h.Workspace.Get)
	api.GET("/status", h.System.Status)
}
