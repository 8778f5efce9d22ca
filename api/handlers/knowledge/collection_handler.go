package knowledge

import (
	"errors"
	"net/http"
	"strconv"

	response "backend/api/handlers/common"
	kb "backend/internal/knowledge"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// CollectionHandler 知识库集合管理处理器
type CollectionHandler struct {
	store kb.EntryStore
}

// NewCollectionHandler 创建集合管理处理器
func NewCollectionHandler(store kb.EntryStore) *CollectionHandler {
	return &CollectionHandler{store: store}
}

// DeleteCollection 删除集合下的全部条目
// @Summary 删除知识库集合
// @Tags KnowledgeBase
// @Produce json
// @Param collectionName path string true "集合名称"
// @Success 200 {object} DeleteCollectionResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/knowledge-base/collection/{collectionName} [delete]
func (h *CollectionHandler) DeleteCollection(c *gin.Context) {
	collectionName := c.Param("collectionName")
	if collectionName == "" {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: "缺少集合名称"})
		return
	}

	deleted, err := h.store.DeleteByCollection(c.Request.Context(), collectionName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{Success: false, Message: "删除集合失败: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, DeleteCollectionResponse{
		Success: true,
		Deleted: deleted,
		Message: "集合已删除",
	})
}

// ListEntries 分页查询集合下的条目
// @Summary 集合条目列表
// @Tags KnowledgeBase
// @Produce json
// @Param collectionName path string true "集合名称"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.ListResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/knowledge-base/collection/{collectionName}/entries [get]
func (h *CollectionHandler) ListEntries(c *gin.Context) {
	collectionName := c.Param("collectionName")
	if collectionName == "" {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: "缺少集合名称"})
		return
	}

	page := parsePositiveInt(c.Query("page"), 1)
	pageSize := parsePositiveInt(c.Query("page_size"), 20)

	entries, total, err := h.store.ListByCollection(c.Request.Context(), collectionName, page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{Success: false, Message: "查询条目失败: " + err.Error()})
		return
	}

	totalPage := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPage++
	}

	c.JSON(http.StatusOK, response.ListResponse{
		Items: entries,
		Pagination: response.PaginationMeta{
			Page:      page,
			PageSize:  pageSize,
			Total:     total,
			TotalPage: totalPage,
		},
	})
}

// DeleteEntry 删除单条条目
// @Summary 删除知识库条目
// @Tags KnowledgeBase
// @Produce json
// @Param id path int true "条目 ID"
// @Success 200 {object} response.APIResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/knowledge-base/entries/{id} [delete]
func (h *CollectionHandler) DeleteEntry(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: "条目 ID 非法"})
		return
	}

	if err := h.store.DeleteByID(c.Request.Context(), uint(id)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, response.ErrorResponse{Success: false, Message: "条目不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{Success: false, Message: "删除条目失败: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, response.APIResponse{Success: true, Message: "删除成功"})
}

// parsePositiveInt 解析正整数查询参数，非法时回退默认值
func parsePositiveInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
