package service

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ryckox/syntagma/internal/model"
	"github.com/ryckox/syntagma/internal/repository"
	pkgerrors "github.com/ryckox/syntagma/pkg/errors"
	"github.com/ryckox/syntagma/pkg/logger"
)

const tokenIssuer = "syntagma"

// AuthService 认证服务
type AuthService struct {
	userRepo       repository.UserRepository
	jwtSecret      []byte
	jwtExpireHours int
	bcryptCost     int
}

// AuthServiceConfig 认证服务配置
type AuthServiceConfig struct {
	JWTSecret      string
	JWTExpireHours int
	// BcryptCost 默认 bcrypt.DefaultCost
	BcryptCost int
}

// NewAuthService 创建认证服务
func NewAuthService(userRepo repository.UserRepository, cfg *AuthServiceConfig) *AuthService {
	expire := cfg.JWTExpireHours
	if expire <= 0 {
		expire = 24
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &AuthService{
		userRepo:       userRepo,
		jwtSecret:      []byte(cfg.JWTSecret),
		jwtExpireHours: expire,
		bcryptCost:     cost,
	}
}

// Claims JWT Claims
type Claims struct {
	UserID   int64          `json:"user_id"`
	Username string         `json:"username"`
	Role     model.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt int64       `json:"expires_at"`
	User      *model.User `json:"user"`
}

// Login 登录
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	user, err := s.userRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, pkgerrors.ErrInvalidCredential
	}

	if !user.Active {
		return nil, pkgerrors.ErrAccountDisabled
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, pkgerrors.ErrInvalidCredential
	}

	expiresAt := time.Now().Add(time.Duration(s.jwtExpireHours) * time.Hour)
	token, err := s.generateToken(user, expiresAt)
	if err != nil {
		return nil, err
	}

	logger.Info("user logged in", zap.Int64("user_id", user.ID), zap.String("username", user.Username))

	return &LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt.UnixMilli(),
		User:      user,
	}, nil
}

// generateToken 生成 JWT Token
func (s *AuthService) generateToken(user *model.User, expiresAt time.Time) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   user.Username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken 验证 JWT Token
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// Profile 当前用户信息
func (s *AuthService) Profile(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, pkgerrors.ErrNotFound.WithMessage("用户不存在")
	}
	return user, nil
}

// HashPassword 密码哈希
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// EnsureAdmin 不存在同名用户时创建初始管理员
func (s *AuthService) EnsureAdmin(ctx context.Context, username, password, email string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}
	existing, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return false, err
	}
	admin := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleAdmin,
		Active:       true,
	}
	if err := s.userRepo.Create(ctx, admin); err != nil {
		return false, err
	}
	logger.Info("bootstrap admin created", zap.String("username", username))
	return true, nil
}
