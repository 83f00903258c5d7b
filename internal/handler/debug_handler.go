package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"shopchat-go/pkg/log"
)

// DebugHandler 为调试面板提供最近的日志。
type DebugHandler struct {
	ring *log.Ring
}

// NewDebugHandler 创建一个新的 DebugHandler。
func NewDebugHandler(ring *log.Ring) *DebugHandler {
	return &DebugHandler{ring: ring}
}

// Logs 按时间顺序返回缓冲区中的日志。
func (h *DebugHandler) Logs(c *gin.Context) {
	respond(c, http.StatusOK, "success", h.ring.Lines())
}

// Clear 清空日志缓冲区。
func (h *DebugHandler) Clear(c *gin.Context) {
	h.ring.Clear()
	respond(c, http.StatusOK, "success", nil)
}
