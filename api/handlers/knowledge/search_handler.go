package knowledge

import (
	"net/http"

	response "backend/api/handlers/common"
	kb "backend/internal/knowledge"

	"github.com/gin-gonic/gin"
)

// SearchHandler 知识库检索处理器
type SearchHandler struct {
	service *kb.Service
}

// NewSearchHandler 创建检索处理器
func NewSearchHandler(service *kb.Service) *SearchHandler {
	return &SearchHandler{service: service}
}

// Search 在集合内做相似度检索
// @Summary 知识库检索
// @Tags KnowledgeBase
// @Accept json
// @Produce json
// @Param request body SearchRequest true "检索请求"
// @Success 200 {object} response.APIResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/knowledge-base/search [post]
func (h *SearchHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: "参数错误: " + err.Error()})
		return
	}

	hits, err := h.service.Search(c.Request.Context(), req.CollectionName, req.Query, req.TopK)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{Success: false, Message: "检索失败: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: gin.H{
		"hits":  hits,
		"total": len(hits),
	}})
}
