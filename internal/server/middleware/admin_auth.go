package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/padlog/padlog/internal/config"
	"github.com/padlog/padlog/internal/pkg/ip"
	"github.com/padlog/padlog/internal/pkg/response"
	"github.com/padlog/padlog/internal/service"
)

// AdminAuth 管理面鉴权：静态 Bearer 令牌，恒定时间比较。
// 未配置令牌时管理接口整体关闭；配置了来源名单时令牌正确也要过名单。
func AdminAuth(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg == nil || !cfg.Auth.AdminEnabled() {
			response.AbortWith(c, service.ErrAdminUnauthorized.WithMessage("admin api is disabled"))
			return
		}
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			response.AbortWith(c, service.ErrAdminUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(cfg.Auth.AdminToken)) != 1 {
			response.AbortWith(c, service.ErrAdminUnauthorized)
			return
		}
		// 来源不符与令牌错误返回同一响应
		if !ip.Allowed(ip.GetClientIP(c), cfg.Auth.AdminAllowedIPs) {
			response.AbortWith(c, service.ErrAdminUnauthorized)
			return
		}
		c.Next()
	}
}
