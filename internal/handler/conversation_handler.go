package handler

import (
	"net/http"

	"chatbot-go/internal/apperr"
	"chatbot-go/internal/model"
	"chatbot-go/internal/service"
	"chatbot-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 负责对话列表、消息历史、重命名和删除。
type ConversationHandler struct {
	conversationService service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler 实例。
func NewConversationHandler(conversationService service.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversationService: conversationService}
}

// RenameRequest 是修改对话标题的请求体。
type RenameRequest struct {
	Title string `json:"title"`
}

// ListConversations 返回当前用户的全部对话，最近更新的在前。
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	convs, err := h.conversationService.ListForUser(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	summaries := make([]model.ConversationSummary, 0, len(convs))
	for i := range convs {
		summaries = append(summaries, convs[i].Summary())
	}
	respondOK(c, http.StatusOK, "success", summaries)
}

// GetMessages 按时间顺序返回对话中的全部消息。
func (h *ConversationHandler) GetMessages(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	conversationID := c.Param("id")
	msgs, err := h.conversationService.ListMessages(c.Request.Context(), conversationID, user.ID)
	if err != nil {
		log.Warnf("[ConversationHandler] 获取消息失败, user: %s, conversation: %s, error: %v", user.Username, conversationID, err)
		respondError(c, err)
		return
	}
	views := make([]model.MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, m.View())
	}
	respondOK(c, http.StatusOK, "success", views)
}

// Rename 修改对话标题。
func (h *ConversationHandler) Rename(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	var req RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("[ConversationHandler] Rename: Invalid request payload, error: %v", err)
		respondError(c, apperr.New(apperr.BadRequest, "Invalid request body"))
		return
	}
	conversationID := c.Param("id")
	conv, err := h.conversationService.Rename(c.Request.Context(), conversationID, user.ID, req.Title)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, "Conversation renamed", gin.H{"conversation_id": conv.ConversationID, "title": conv.Title})
}

// Delete 删除对话及其全部消息。
func (h *ConversationHandler) Delete(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	conversationID := c.Param("id")
	if err := h.conversationService.Delete(c.Request.Context(), conversationID, user.ID); err != nil {
		log.Warnf("[ConversationHandler] 删除对话失败, user: %s, conversation: %s, error: %v", user.Username, conversationID, err)
		respondError(c, err)
		return
	}
	log.Infof("[ConversationHandler] 对话已删除, user: %s, conversation: %s", user.Username, conversationID)
	respondOK(c, http.StatusOK, "Conversation deleted", nil)
}
