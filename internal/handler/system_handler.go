package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/padlog/padlog/internal/pkg/response"
	"github.com/padlog/padlog/internal/service"
)

// SystemHandler 健康探针与运维状态面。
type SystemHandler struct {
	status *service.StatusService
}

func NewSystemHandler(status *service.StatusService) *SystemHandler {
	return &SystemHandler{status: status}
}

// Health GET /health。固定 200，不走包络，访问日志跳过该路径。
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Status GET /api/status。管理员令牌后面的进程与存储快照。
func (h *SystemHandler) Status(c *gin.Context) {
	response.OK(c, h.status.Report(c.Request.Context()))
}
