package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopchat-go/pkg/token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(jwt *token.JWTManager) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger())
	authed := r.Group("/", AuthMiddleware(jwt, "testUser123"))
	authed.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": CurrentClaims(c).UserID})
	})
	authed.GET("/admin", AdminAuthMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func do(r http.Handler, path, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthDisabledUsesDefaultUser(t *testing.T) {
	r := newRouter(nil)

	w := do(r, "/me", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"userId":"testUser123"}`, w.Body.String())
	assert.Equal(t, http.StatusNoContent, do(r, "/admin", "").Code)
}

func TestAuthRequiresValidToken(t *testing.T) {
	jwt := token.NewJWTManager("secret", 1)
	r := newRouter(jwt)

	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", "Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", "Bearer garbage").Code)

	guest, err := jwt.GenerateToken("guest-1", token.RoleGuest)
	require.NoError(t, err)
	w := do(r, "/me", "Bearer "+guest)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "guest-1"))
	assert.Equal(t, http.StatusForbidden, do(r, "/admin", "Bearer "+guest).Code)

	// WebSocket 客户端通过查询参数传递 token
	assert.Equal(t, http.StatusOK, do(r, "/me?token="+guest, "").Code)

	admin, err := jwt.GenerateToken("ops", token.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, do(r, "/admin", "Bearer "+admin).Code)
}
