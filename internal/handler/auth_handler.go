package handler

import (
	"net/http"

	"chatbot-go/internal/apperr"
	"chatbot-go/internal/service"
	"chatbot-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AuthHandler 负责处理刷新 token 的请求。
type AuthHandler struct {
	userService service.UserService
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(userService service.UserService) *AuthHandler {
	return &AuthHandler{userService: userService}
}

// RefreshTokenRequest 定义了刷新 token API 的请求体结构。
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// RefreshToken 用 refresh token 换取一对新的 token，旧的 refresh token 作废。
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("RefreshToken: Invalid request payload, error: %v", err)
		respondError(c, apperr.New(apperr.Unauthorized, "Could not validate credentials"))
		return
	}

	access, refresh, err := h.userService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		log.Warnf("RefreshToken: Failed to refresh token, error: %v", err)
		respondError(c, err)
		return
	}

	log.Info("Token refreshed successfully")
	respondOK(c, http.StatusOK, "Token refreshed successfully", TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
	})
}
