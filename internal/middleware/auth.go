// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"shopchat-go/pkg/token"
)

const claimsKey = "claims"

// AuthMiddleware 解析 JWT 并把 claims 存入上下文。
// jwtManager 为 nil 时不做认证，所有请求都以 defaultUserID 的身份访问（单用户本地模式，拥有管理员权限）。
// 浏览器的 WebSocket 无法设置请求头，因此也接受 ?token= 查询参数。
func AuthMiddleware(jwtManager *token.JWTManager, defaultUserID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtManager == nil {
			c.Set(claimsKey, &token.CustomClaims{UserID: defaultUserID, Role: token.RoleAdmin})
			c.Next()
			return
		}

		tokenString := c.Query("token")
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(authHeader, bearerPrefix) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的授权头格式", "data": nil})
				return
			}
			tokenString = strings.TrimPrefix(authHeader, bearerPrefix)
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "请求未包含授权信息", "data": nil})
			return
		}

		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效或已过期的 token", "data": nil})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// CurrentClaims 返回 AuthMiddleware 存入的身份。
func CurrentClaims(c *gin.Context) *token.CustomClaims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*token.CustomClaims)
	return claims
}
