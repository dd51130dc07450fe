package handler

import (
	"net/http"
	"strings"

	"chatbot-go/internal/apperr"
	"chatbot-go/internal/service"
	"chatbot-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UserHandler 负责处理用户注册、登录和个人信息相关的 API 请求。
type UserHandler struct {
	userService service.UserService
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(userService service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// RegisterRequest 定义了用户注册请求的结构体。
type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenRequest 是 OAuth2 password 模式的表单。
type TokenRequest struct {
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
}

// TokenResponse 是签发 token 后返回的数据。
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// Register 处理用户注册请求。
func (h *UserHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Register: Invalid request payload, error: %v", err)
		respondError(c, apperr.New(apperr.BadRequest, "username, email and password are required"))
		return
	}

	user, err := h.userService.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		log.Warnf("Register: Failed to register user '%s', error: %v", req.Username, err)
		respondError(c, err)
		return
	}

	log.Infof("Register: User '%s' registered successfully", user.Username)
	respondOK(c, http.StatusCreated, "User registered successfully", user.Profile())
}

// Token 校验用户名密码，签发 access token 与 refresh token。
func (h *UserHandler) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBind(&req); err != nil {
		log.Warnf("Token: Invalid form payload, error: %v", err)
		respondError(c, apperr.New(apperr.InvalidCredentials, "Incorrect username or password"))
		return
	}

	ctx := c.Request.Context()
	user, err := h.userService.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		log.Warnf("Token: Failed login attempt for user '%s', error: %v", req.Username, err)
		respondError(c, err)
		return
	}
	access, err := h.userService.IssueToken(user)
	if err != nil {
		respondError(c, apperr.Wrap(apperr.InternalError, "issue access token", err))
		return
	}
	refresh, err := h.userService.IssueRefreshToken(user)
	if err != nil {
		respondError(c, apperr.Wrap(apperr.InternalError, "issue refresh token", err))
		return
	}

	log.Infof("Token: User '%s' logged in successfully", user.Username)
	respondOK(c, http.StatusOK, "Login successful", TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
	})
}

// GetProfile 返回当前登录用户的信息。
func (h *UserHandler) GetProfile(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	respondOK(c, http.StatusOK, "success", user.Profile())
}

// Logout 作废当前请求携带的 access token。
func (h *UserHandler) Logout(c *gin.Context) {
	tokenString := c.GetString("token")
	if tokenString == "" {
		tokenString = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	if err := h.userService.Logout(c.Request.Context(), tokenString); err != nil {
		log.Warnf("Logout: Failed to logout, error: %v", err)
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, "Logout successful", nil)
}
