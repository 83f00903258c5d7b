package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"shopchat-go/internal/middleware"
	"shopchat-go/internal/service"
	"shopchat-go/pkg/log"
)

// ArchiveHandler 提供归档历史、全文检索和导出。依赖的服务未启用时对应接口返回 503。
type ArchiveHandler struct {
	archiveService service.ArchiveService
	searchService  service.SearchService
	exportService  service.ExportService
}

// NewArchiveHandler 创建一个新的 ArchiveHandler，任一服务都可以为 nil。
func NewArchiveHandler(archiveService service.ArchiveService, searchService service.SearchService, exportService service.ExportService) *ArchiveHandler {
	return &ArchiveHandler{
		archiveService: archiveService,
		searchService:  searchService,
		exportService:  exportService,
	}
}

// History 分页返回 MySQL 中的归档记录。
func (h *ArchiveHandler) History(c *gin.Context) {
	if h.archiveService == nil {
		respond(c, http.StatusServiceUnavailable, "归档未启用", nil)
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	claims := middleware.CurrentClaims(c)

	result, err := h.archiveService.History(c.Request.Context(), claims.UserID, page, size)
	if err != nil {
		log.Error("查询归档历史失败", err)
		respond(c, http.StatusInternalServerError, "查询归档历史失败", nil)
		return
	}
	respond(c, http.StatusOK, "success", result)
}

// Search 在当前用户的归档对话中全文检索。
func (h *ArchiveHandler) Search(c *gin.Context) {
	if h.searchService == nil {
		respond(c, http.StatusServiceUnavailable, "检索未启用", nil)
		return
	}
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	claims := middleware.CurrentClaims(c)

	hits, err := h.searchService.Search(c.Request.Context(), claims.UserID, c.Query("query"), size)
	if errors.Is(err, service.ErrEmptyQuery) {
		respond(c, http.StatusBadRequest, "查询不能为空", nil)
		return
	}
	if err != nil {
		log.Error("对话检索失败", err)
		respond(c, http.StatusInternalServerError, "对话检索失败", nil)
		return
	}
	respond(c, http.StatusOK, "success", hits)
}

// Export 把当前对话导出到对象存储并返回下载链接。
func (h *ArchiveHandler) Export(c *gin.Context) {
	if h.exportService == nil {
		respond(c, http.StatusServiceUnavailable, "导出未启用", nil)
		return
	}
	claims := middleware.CurrentClaims(c)
	result, err := h.exportService.Export(c.Request.Context(), claims.UserID)
	if err != nil {
		log.Error("导出对话失败", err)
		respond(c, http.StatusInternalServerError, "导出对话失败", nil)
		return
	}
	respond(c, http.StatusOK, "success", result)
}
