// Package errors 提供贯穿服务层与 HTTP 层的应用错误模型。
// Status 即 HTTP 状态码，Reason 为稳定的机器可读错误码，
// Metadata 携带随响应下发的结构化细节。
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error 应用错误。实现 error 接口，可通过 errors.Is/As 解包。
type Error struct {
	Status   int            `json:"status"`
	Reason   string         `json:"reason"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("error: status = %d reason = %s message = %s cause = %v", e.Status, e.Reason, e.Message, e.cause)
	}
	return fmt.Sprintf("error: status = %d reason = %s message = %s", e.Status, e.Reason, e.Message)
}

// Unwrap 暴露底层 cause 给 errors.Is/As。
func (e *Error) Unwrap() error { return e.cause }

// Is 按 status + reason 判等，忽略 message 与 metadata。
func (e *Error) Is(err error) bool {
	if te := new(Error); errors.As(err, &te) {
		return te.Status == e.Status && te.Reason == e.Reason
	}
	return false
}

// WithCause 返回携带底层错误的副本。
func (e *Error) WithCause(cause error) *Error {
	err := Clone(e)
	err.cause = cause
	return err
}

// WithMetadata 返回携带结构化细节的副本。
func (e *Error) WithMetadata(md map[string]any) *Error {
	err := Clone(e)
	err.Metadata = md
	return err
}

// WithMessage 返回替换提示文案的副本。
func (e *Error) WithMessage(message string) *Error {
	err := Clone(e)
	err.Message = message
	return err
}

// Clone 深拷贝（metadata 浅拷贝一层）。
func Clone(err *Error) *Error {
	if err == nil {
		return nil
	}
	metadata := make(map[string]any, len(err.Metadata))
	for k, v := range err.Metadata {
		metadata[k] = v
	}
	if len(metadata) == 0 {
		metadata = nil
	}
	return &Error{
		Status:   err.Status,
		Reason:   err.Reason,
		Message:  err.Message,
		Metadata: metadata,
		cause:    err.cause,
	}
}

// New 构造应用错误。
func New(status int, reason, message string) *Error {
	return &Error{Status: status, Reason: reason, Message: message}
}

// Newf New 的格式化变体。
func Newf(status int, reason, format string, args ...any) *Error {
	return New(status, reason, fmt.Sprintf(format, args...))
}

// FromError 将任意 error 归一化为 *Error。
// 已是 *Error（含包装链中的）则原样返回；否则视为 500 INTERNAL_ERROR。
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	if se := new(Error); errors.As(err, &se) {
		return se
	}
	return New(http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
}

// Code 提取 HTTP 状态码；nil 返回 200。
func Code(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return FromError(err).Status
}

// Reason 提取错误码；nil 返回空串。
func Reason(err error) string {
	if err == nil {
		return ""
	}
	return FromError(err).Reason
}

func BadRequest(reason, message string) *Error {
	return New(http.StatusBadRequest, reason, message)
}

func Unauthorized(reason, message string) *Error {
	return New(http.StatusUnauthorized, reason, message)
}

func Forbidden(reason, message string) *Error {
	return New(http.StatusForbidden, reason, message)
}

func NotFound(reason, message string) *Error {
	return New(http.StatusNotFound, reason, message)
}

func Conflict(reason, message string) *Error {
	return New(http.StatusConflict, reason, message)
}

func Gone(reason, message string) *Error {
	return New(http.StatusGone, reason, message)
}

func PayloadTooLarge(reason, message string) *Error {
	return New(http.StatusRequestEntityTooLarge, reason, message)
}

func TooManyRequests(reason, message string) *Error {
	return New(http.StatusTooManyRequests, reason, message)
}

func InternalServer(reason, message string) *Error {
	return New(http.StatusInternalServerError, reason, message)
}

func ServiceUnavailable(reason, message string) *Error {
	return New(http.StatusServiceUnavailable, reason, message)
}
