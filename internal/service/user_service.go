// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"strings"

	"chatbot-go/internal/apperr"
	"chatbot-go/internal/model"
	"chatbot-go/internal/repository"
	"chatbot-go/pkg/hash"
	"chatbot-go/pkg/log"
	"chatbot-go/pkg/token"

	"gorm.io/gorm"
)

// UserService 接口定义了所有与用户和 token 相关的业务操作。
type UserService interface {
	Register(ctx context.Context, username, email, password string) (*model.User, error)
	Authenticate(ctx context.Context, username, password string) (*model.User, error)
	IssueToken(user *model.User) (string, error)
	IssueRefreshToken(user *model.User) (string, error)
	Refresh(ctx context.Context, refreshToken string) (accessToken, newRefreshToken string, err error)
	ResolveToken(ctx context.Context, tokenString string) (*model.User, error)
	Logout(ctx context.Context, tokenString string) error
	GetProfile(ctx context.Context, username string) (*model.User, error)
}

// userService 是 UserService 接口的实现。
type userService struct {
	userRepo   repository.UserRepository
	blacklist  repository.TokenBlacklist
	jwtManager *token.JWTManager
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo repository.UserRepository, blacklist repository.TokenBlacklist, jwtManager *token.JWTManager) UserService {
	return &userService{
		userRepo:   userRepo,
		blacklist:  blacklist,
		jwtManager: jwtManager,
	}
}

var errUnauthorized = apperr.New(apperr.Unauthorized, "Could not validate credentials")

// Register 处理用户注册的业务逻辑。
func (s *userService) Register(ctx context.Context, username, email, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return nil, apperr.New(apperr.BadRequest, "username, email and password are required")
	}

	// 1. 检查用户名和邮箱是否已存在
	if _, err := s.userRepo.FindByUsername(ctx, username); err == nil {
		return nil, apperr.New(apperr.DuplicateUser, "Username already registered")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Wrap(apperr.InternalError, "find user", err)
	}
	if _, err := s.userRepo.FindByEmail(ctx, email); err == nil {
		return nil, apperr.New(apperr.DuplicateUser, "Email already registered")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Wrap(apperr.InternalError, "find user", err)
	}

	// 2. 对密码进行哈希处理
	hashedPassword, err := hash.HashPassword(password)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, "hash password", err)
	}

	// 3. 将用户存入数据库以生成ID
	newUser := &model.User{
		Username: username,
		Email:    email,
		Password: hashedPassword,
		IsActive: true,
	}
	if err := s.userRepo.Create(ctx, newUser); err != nil {
		// 并发注册时唯一索引兜底
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.New(apperr.DuplicateUser, "Username already registered")
		}
		return nil, apperr.Wrap(apperr.InternalError, "create user", err)
	}
	log.Infof("[UserService] 新用户注册成功, username: %s, id: %d", newUser.Username, newUser.ID)
	return newUser, nil
}

// Authenticate 校验用户名和密码。用户不存在与密码错误返回同一个错误。
func (s *userService) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	invalid := apperr.New(apperr.InvalidCredentials, "Incorrect username or password")
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalid
		}
		return nil, apperr.Wrap(apperr.InternalError, "find user", err)
	}
	if !hash.CheckPasswordHash(password, user.Password) {
		return nil, invalid
	}
	if !user.IsActive {
		return nil, invalid
	}
	return user, nil
}

func (s *userService) IssueToken(user *model.User) (string, error) {
	tok, err := s.jwtManager.GenerateToken(user.ID, user.Username)
	if err != nil {
		return "", apperr.Wrap(apperr.InternalError, "sign token", err)
	}
	return tok, nil
}

func (s *userService) IssueRefreshToken(user *model.User) (string, error) {
	tok, err := s.jwtManager.GenerateRefreshToken(user.ID, user.Username)
	if err != nil {
		return "", apperr.Wrap(apperr.InternalError, "sign token", err)
	}
	return tok, nil
}

// Refresh 用 refresh token 换取新的 token 对，旧的 refresh token 随即作废。
func (s *userService) Refresh(ctx context.Context, refreshToken string) (string, string, error) {
	claims, err := s.jwtManager.VerifyRefreshToken(refreshToken)
	if err != nil {
		return "", "", errUnauthorized
	}
	user, err := s.activeUser(ctx, refreshToken, claims.Username())
	if err != nil {
		return "", "", err
	}

	access, err := s.IssueToken(user)
	if err != nil {
		return "", "", err
	}
	refresh, err := s.IssueRefreshToken(user)
	if err != nil {
		return "", "", err
	}
	if err := s.blacklist.Add(ctx, refreshToken, claims.ExpiresAt.Time); err != nil {
		log.Errorf("[UserService] 作废旧 refresh token 失败: %v", err)
	}
	return access, refresh, nil
}

// ResolveToken 校验 access token 并返回对应的用户。任何失败都返回 Unauthorized。
func (s *userService) ResolveToken(ctx context.Context, tokenString string) (*model.User, error) {
	claims, err := s.jwtManager.VerifyToken(tokenString)
	if err != nil {
		return nil, errUnauthorized
	}
	return s.activeUser(ctx, tokenString, claims.Username())
}

func (s *userService) activeUser(ctx context.Context, tokenString, username string) (*model.User, error) {
	revoked, err := s.blacklist.Contains(ctx, tokenString)
	if err != nil {
		log.Errorf("[UserService] 查询 token 黑名单失败: %v", err)
		return nil, errUnauthorized
	}
	if revoked {
		return nil, errUnauthorized
	}
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil || !user.IsActive {
		return nil, errUnauthorized
	}
	return user, nil
}

// Logout 处理用户登出逻辑，将 token 加入黑名单直到其过期。
func (s *userService) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.jwtManager.VerifyToken(tokenString)
	if err != nil {
		return errUnauthorized
	}
	if err := s.blacklist.Add(ctx, tokenString, claims.ExpiresAt.Time); err != nil {
		return apperr.Wrap(apperr.InternalError, "blacklist token", err)
	}
	return nil
}

// GetProfile 根据用户名获取用户详细信息。
func (s *userService) GetProfile(ctx context.Context, username string) (*model.User, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.NotFound, "User not found")
		}
		return nil, apperr.Wrap(apperr.InternalError, "find user", err)
	}
	return user, nil
}
