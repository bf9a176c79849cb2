package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	infraerrors "github.com/padlog/padlog/internal/pkg/errors"
	"github.com/padlog/padlog/internal/pkg/logger"
	"github.com/padlog/padlog/internal/pkg/response"
	"github.com/padlog/padlog/internal/service"
)

const jsonContentType = "application/json; charset=utf-8"

// runIdempotent 在幂等括号内执行 execute 并写出响应。
// 未携带 Idempotency-Key 时直接执行；携带时按能力密钥维度去重：
// 重放已完结响应的原文（附 X-Idempotency-Replayed 头），等待中的并发
// 请求由 broker 内部轮询或以 409 收场。execute 出错时先释放 pending
// 占位再返回错误，同一键的重试不会被死锁。
func runIdempotent(
	c *gin.Context,
	broker *service.IdempotencyService,
	capabilityKeyID string,
	nowMS int64,
	execute func(ctx context.Context) (int, []byte, error),
) {
	idemKey, err := service.NormalizeIdempotencyKey(c.GetHeader("Idempotency-Key"))
	if err != nil {
		writeDomainError(c, err)
		return
	}

	if idemKey == "" || broker == nil {
		status, body, err := execute(c.Request.Context())
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.Data(status, jsonContentType, body)
		return
	}

	ctx := c.Request.Context()
	outcome, err := broker.Acquire(ctx, capabilityKeyID, idemKey, nowMS)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	if outcome.Replayed {
		c.Header("X-Idempotency-Replayed", "true")
		c.Data(outcome.Status, jsonContentType, outcome.Body)
		return
	}

	status, body, err := execute(ctx)
	// 收尾动作不随客户端断开而取消，否则 pending 占位会滞留到清理器
	cleanupCtx := context.WithoutCancel(ctx)
	if err != nil {
		broker.Abandon(cleanupCtx, capabilityKeyID, idemKey)
		writeDomainError(c, err)
		return
	}
	if ferr := broker.Complete(cleanupCtx, capabilityKeyID, idemKey, status, body); ferr != nil {
		logger.FromContext(ctx).Warn("finalize idempotency record failed", zap.Error(ferr))
	}
	c.Data(status, jsonContentType, body)
}

// writeDomainError 输出错误包络，并补齐协议要求的响应头：
// ALREADY_CLAIMED 带 Retry-After（秒，向上取整），
// PAYLOAD_TOO_LARGE 带 Content-Size-Limit（字节）。
func writeDomainError(c *gin.Context, err error) {
	se := infraerrors.FromError(err)
	if se != nil {
		switch se.Reason {
		case infraerrors.Reason(service.ErrAlreadyClaimed):
			if ms, ok := metaInt64(se.Metadata, "retryAfterMs"); ok {
				c.Header("Retry-After", strconv.FormatInt((ms+999)/1000, 10))
			}
		case infraerrors.Reason(service.ErrPayloadTooLarge):
			if limit, ok := metaInt64(se.Metadata, "limit"); ok {
				c.Header("Content-Size-Limit", strconv.FormatInt(limit, 10))
			}
		}
	}
	response.ErrorFrom(c, err)
}

func metaInt64(md map[string]any, key string) (int64, bool) {
	if md == nil {
		return 0, false
	}
	switch v := md[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
