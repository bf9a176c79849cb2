package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/padlog/padlog/internal/config"
)

// SecurityHeaders 纯 JSON API 的基线安全响应头。
func SecurityHeaders(cfg config.SecurityHeadersConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.Enabled {
			c.Header("X-Content-Type-Options", "nosniff")
			c.Header("X-Frame-Options", "DENY")
			c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
			c.Header("Cache-Control", "no-store")
		}
		c.Next()
	}
}
