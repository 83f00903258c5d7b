// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"shopchat-go/internal/middleware"
	"shopchat-go/internal/model"
	"shopchat-go/internal/service"
	"shopchat-go/internal/view"
	"shopchat-go/pkg/log"
)

// ChatHandler 处理对话记录、消息提交、界面设置和评价。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// SendMessageRequest 是提交消息的请求体。
type SendMessageRequest struct {
	Message string `json:"message"`
}

// FeedbackRequest 是评价的请求体。
type FeedbackRequest struct {
	Rating model.Feedback `json:"rating" binding:"required"`
}

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": data})
}

// transcript 组装对话界面数据。
func (h *ChatHandler) transcript(c *gin.Context, userID string) (view.Transcript, error) {
	ctx := c.Request.Context()
	snap, err := h.chatService.Snapshot(ctx, userID)
	if err != nil {
		return view.Transcript{}, err
	}
	settings, err := h.chatService.Settings(ctx, userID)
	if err != nil {
		return view.Transcript{}, err
	}
	feedback, err := h.chatService.Feedback(ctx, userID)
	if err != nil {
		return view.Transcript{}, err
	}
	return view.NewTranscript(snap.Entries, snap.Busy, settings, feedback), nil
}

// GetMessages 返回当前用户的完整对话。
func (h *ChatHandler) GetMessages(c *gin.Context) {
	claims := middleware.CurrentClaims(c)
	t, err := h.transcript(c, claims.UserID)
	if err != nil {
		log.Error("获取对话记录失败", err)
		respond(c, http.StatusInternalServerError, "获取对话记录失败", nil)
		return
	}
	respond(c, http.StatusOK, "success", t)
}

// SendMessage 提交一条用户消息，结果通过轮询异步追加到对话中。
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, "无效的请求负载", nil)
		return
	}
	claims := middleware.CurrentClaims(c)

	sessionID, err := h.chatService.Submit(c.Request.Context(), claims.UserID, req.Message)
	switch {
	case err == nil:
		respond(c, http.StatusAccepted, "accepted", gin.H{"sessionId": sessionID})
	case errors.Is(err, service.ErrEmptyMessage):
		respond(c, http.StatusBadRequest, "消息不能为空", nil)
	case errors.Is(err, service.ErrBusy):
		respond(c, http.StatusConflict, "上一条消息仍在处理中", nil)
	case errors.Is(err, service.ErrSendFailed):
		// 错误提示已经追加到对话中
		respond(c, http.StatusBadGateway, "消息发送失败", gin.H{"sessionId": sessionID})
	case errors.Is(err, service.ErrClosed):
		respond(c, http.StatusServiceUnavailable, "服务正在关闭", nil)
	default:
		log.Error("提交消息失败", err)
		respond(c, http.StatusInternalServerError, "提交消息失败", nil)
	}
}

// GetSettings 返回当前用户的界面设置。
func (h *ChatHandler) GetSettings(c *gin.Context) {
	claims := middleware.CurrentClaims(c)
	settings, err := h.chatService.Settings(c.Request.Context(), claims.UserID)
	if err != nil {
		log.Error("获取界面设置失败", err)
		respond(c, http.StatusInternalServerError, "获取界面设置失败", nil)
		return
	}
	respond(c, http.StatusOK, "success", settings)
}

// UpdateSettings 保存演示模式和聊天模式。
func (h *ChatHandler) UpdateSettings(c *gin.Context) {
	var req model.ChatSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, "无效的请求负载", nil)
		return
	}
	claims := middleware.CurrentClaims(c)
	settings, err := h.chatService.UpdateSettings(c.Request.Context(), claims.UserID, req)
	if errors.Is(err, service.ErrInvalidChatMode) {
		respond(c, http.StatusBadRequest, "无效的聊天模式", nil)
		return
	}
	if err != nil {
		log.Error("保存界面设置失败", err)
		respond(c, http.StatusInternalServerError, "保存界面设置失败", nil)
		return
	}
	respond(c, http.StatusOK, "success", settings)
}

// SetFeedback 记录对一条助手消息的评价。
func (h *ChatHandler) SetFeedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, "无效的请求负载", nil)
		return
	}
	claims := middleware.CurrentClaims(c)
	entryID := c.Param("id")

	err := h.chatService.SetFeedback(c.Request.Context(), claims.UserID, entryID, req.Rating)
	switch {
	case err == nil:
		respond(c, http.StatusOK, "success", gin.H{"entryId": entryID, "rating": req.Rating})
	case errors.Is(err, service.ErrInvalidFeedback):
		respond(c, http.StatusBadRequest, "无效的评价", nil)
	case errors.Is(err, service.ErrEntryNotFound):
		respond(c, http.StatusNotFound, "消息不存在", nil)
	case errors.Is(err, service.ErrFeedbackNotAllowed):
		respond(c, http.StatusUnprocessableEntity, "只能评价助手的回复", nil)
	default:
		log.Error("保存评价失败", err)
		respond(c, http.StatusInternalServerError, "保存评价失败", nil)
	}
}
