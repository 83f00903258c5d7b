package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"shopchat-go/pkg/log"
	"shopchat-go/pkg/token"
)

// AuthHandler 签发访客 token。
type AuthHandler struct {
	jwtManager *token.JWTManager
}

// NewAuthHandler 创建一个新的 AuthHandler。jwtManager 为 nil 表示认证未启用。
func NewAuthHandler(jwtManager *token.JWTManager) *AuthHandler {
	return &AuthHandler{jwtManager: jwtManager}
}

// Guest 为新访客生成用户 ID 并签发 token，每个访客拥有独立的对话。
func (h *AuthHandler) Guest(c *gin.Context) {
	if h.jwtManager == nil {
		respond(c, http.StatusServiceUnavailable, "认证未启用", nil)
		return
	}
	userID := "guest-" + uuid.NewString()
	accessToken, err := h.jwtManager.GenerateToken(userID, token.RoleGuest)
	if err != nil {
		log.Error("签发访客 token 失败", err)
		respond(c, http.StatusInternalServerError, "签发 token 失败", nil)
		return
	}
	respond(c, http.StatusOK, "success", gin.H{"userId": userID, "token": accessToken})
}
