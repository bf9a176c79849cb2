// Package response 统一 HTTP 响应包络：
// 成功 {ok:true, serverTime, data, webUrl?}，失败 {ok:false, error:{code, message, details?}}。
package response

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	infraerrors "github.com/padlog/padlog/internal/pkg/errors"
)

const isoMillis = "2006-01-02T15:04:05.000Z"

// ISOTime 输出 UTC 毫秒精度的 ISO-8601 时间串。
func ISOTime(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

type successBody struct {
	OK         bool   `json:"ok"`
	ServerTime string `json:"serverTime"`
	Data       any    `json:"data"`
	WebURL     string `json:"webUrl,omitempty"`
}

type errorBody struct {
	OK    bool       `json:"ok"`
	Error *ErrorInfo `json:"error"`
}

// ErrorInfo 错误包络内层。
type ErrorInfo struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// OK 200 成功响应。
func OK(c *gin.Context, data any) {
	writeSuccess(c, http.StatusOK, data, "")
}

// OKWithURL 200 成功响应并附 webUrl。
func OKWithURL(c *gin.Context, data any, webURL string) {
	writeSuccess(c, http.StatusOK, data, webURL)
}

// Created 201 成功响应（append / 资源创建）。
func Created(c *gin.Context, data any, webURL string) {
	writeSuccess(c, http.StatusCreated, data, webURL)
}

func writeSuccess(c *gin.Context, status int, data any, webURL string) {
	c.JSON(status, successBody{
		OK:         true,
		ServerTime: ISOTime(time.Now()),
		Data:       data,
		WebURL:     webURL,
	})
}

// Payload 预序列化成功包络。幂等重放要求存储响应原文，
// 调用方先拿到字节再决定落库与写出。
func Payload(data any, webURL string) ([]byte, error) {
	return json.Marshal(successBody{
		OK:         true,
		ServerTime: ISOTime(time.Now()),
		Data:       data,
		WebURL:     webURL,
	})
}

// Error 按显式状态码输出错误包络。
func Error(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorBody{OK: false, Error: &ErrorInfo{Code: code, Message: message}})
}

// ErrorFrom 从应用错误导出包络；非 *errors.Error 一律归为 500 INTERNAL_ERROR。
func ErrorFrom(c *gin.Context, err error) {
	se := infraerrors.FromError(err)
	if se == nil {
		se = infraerrors.InternalServer("INTERNAL_ERROR", "internal error")
	}
	c.JSON(se.Status, errorBody{OK: false, Error: &ErrorInfo{
		Code:    se.Reason,
		Message: se.Message,
		Details: se.Metadata,
	}})
}

// AbortWith 中间件用：输出错误包络并终止后续 handler。
func AbortWith(c *gin.Context, err error) {
	ErrorFrom(c, err)
	c.Abort()
}
