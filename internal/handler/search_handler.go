package handler

import (
	"net/http"

	"chatbot-go/internal/service"
	"chatbot-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SearchHandler 负责历史消息的全文搜索。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// SearchHistory 在当前用户的消息中搜索 q。
func (h *SearchHandler) SearchHistory(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	query := c.Query("q")
	log.Infof("[SearchHandler] 收到历史搜索请求, user: %s, query: %s", user.Username, query)

	hits, err := h.searchService.SearchHistory(c.Request.Context(), user, query)
	if err != nil {
		log.Warnf("[SearchHandler] 历史搜索失败, error: %v", err)
		respondError(c, err)
		return
	}

	log.Infof("[SearchHandler] 历史搜索成功, query: '%s', 返回 %d 条结果", query, len(hits))
	respondOK(c, http.StatusOK, "success", hits)
}
