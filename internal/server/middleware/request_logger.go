package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/padlog/padlog/internal/pkg/ctxkey"
	"github.com/padlog/padlog/internal/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestLogger 在请求入口注入 request-scoped logger 与统一请求时钟。
// 同一请求内所有 expiresAt / 幂等时间戳都取这一次捕获的毫秒时间。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request == nil {
			c.Next()
			return
		}

		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		ctx := context.WithValue(c.Request.Context(), ctxkey.RequestID, requestID)
		ctx = context.WithValue(ctx, ctxkey.RequestTime, time.Now().UnixMilli())

		requestLogger := logger.With(
			zap.String("component", "http"),
			zap.String("request_id", requestID),
			zap.String("path", redactPath(c.Request.URL.Path)),
			zap.String("method", c.Request.Method),
		)

		ctx = logger.IntoContext(ctx, requestLogger)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequestTime 取请求入口捕获的毫秒时钟，缺失时回退当前时间。
func RequestTime(c *gin.Context) int64 {
	if ms, ok := c.Request.Context().Value(ctxkey.RequestTime).(int64); ok {
		return ms
	}
	return time.Now().UnixMilli()
}
