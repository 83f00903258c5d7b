package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"shopchat-go/internal/service"
	"shopchat-go/pkg/log"
)

// AdminHandler 负责管理员接口。
type AdminHandler struct {
	chatService service.ChatService
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(chatService service.ChatService) *AdminHandler {
	return &AdminHandler{chatService: chatService}
}

// ListConversations 列出仓库中保存的对话，已载入的附带实时状态。
func (h *AdminHandler) ListConversations(c *gin.Context) {
	list, err := h.chatService.ListConversations(c.Request.Context())
	if err != nil {
		log.Error("列出对话失败", err)
		respond(c, http.StatusInternalServerError, "failed to list conversations", nil)
		return
	}
	respond(c, http.StatusOK, "success", list)
}
