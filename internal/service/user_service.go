package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ryckox/syntagma/internal/model"
	"github.com/ryckox/syntagma/internal/repository"
	pkgerrors "github.com/ryckox/syntagma/pkg/errors"
	"github.com/ryckox/syntagma/pkg/logger"
)

// UserService 用户管理 (管理员)
type UserService struct {
	userRepo    repository.UserRepository
	authService *AuthService
}

// NewUserService 创建用户管理服务，密码哈希复用认证服务的配置
func NewUserService(userRepo repository.UserRepository, authService *AuthService) *UserService {
	return &UserService{userRepo: userRepo, authService: authService}
}

// CreateUserRequest 创建用户请求
type CreateUserRequest struct {
	Username string         `json:"username" binding:"required,min=3,max=50"`
	Email    string         `json:"email" binding:"required,email"`
	Password string         `json:"password" binding:"required,min=6,max=72"`
	Role     model.UserRole `json:"role" binding:"omitempty,oneof=admin user"`
	// Active 默认启用
	Active *bool `json:"active"`
}

// UpdateUserRequest 更新用户请求，nil 表示不修改
type UpdateUserRequest struct {
	Username *string         `json:"username" binding:"omitempty,min=3,max=50"`
	Email    *string         `json:"email" binding:"omitempty,email"`
	Password *string         `json:"password" binding:"omitempty,min=6,max=72"`
	Role     *model.UserRole `json:"role" binding:"omitempty,oneof=admin user"`
	Active   *bool           `json:"active"`
}

// List 全部用户
func (s *UserService) List(ctx context.Context) ([]*model.User, error) {
	return s.userRepo.List(ctx)
}

// Get 单个用户
func (s *UserService) Get(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, pkgerrors.ErrUserNotFound
	}
	return user, nil
}

// Create 创建用户，用户名和邮箱唯一
func (s *UserService) Create(ctx context.Context, req *CreateUserRequest) (*model.User, error) {
	username := strings.TrimSpace(req.Username)
	email := normalizeEmail(req.Email)
	if len(username) < 3 {
		return nil, pkgerrors.ErrInvalidRequest.WithDetail("username", "min")
	}

	hash, err := s.authService.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         req.Role,
		Active:       true,
	}
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	if req.Active != nil {
		user.Active = *req.Active
	}

	err = s.userRepo.Transaction(ctx, func(ctx context.Context) error {
		taken, err := s.userRepo.Taken(ctx, username, email, 0)
		if err != nil {
			return err
		}
		if taken {
			return pkgerrors.ErrNameTaken.WithMessage("用户名或邮箱已被占用")
		}
		return s.userRepo.Create(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("user created", zap.Int64("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// Update 部分更新用户，管理员不能停用或降级自己
func (s *UserService) Update(ctx context.Context, actor *Actor, id int64, req *UpdateUserRequest) (*model.User, error) {
	if actor == nil {
		return nil, pkgerrors.ErrUnauthorized
	}
	if actor.UserID == id {
		if req.Active != nil && !*req.Active {
			return nil, pkgerrors.ErrSelfAction.WithMessage("不能停用自己的账户")
		}
		if req.Role != nil && *req.Role != model.RoleAdmin {
			return nil, pkgerrors.ErrSelfAction.WithMessage("不能取消自己的管理员角色")
		}
	}

	updates := map[string]interface{}{}
	if req.Username != nil {
		username := strings.TrimSpace(*req.Username)
		if len(username) < 3 {
			return nil, pkgerrors.ErrInvalidRequest.WithDetail("username", "min")
		}
		updates["username"] = username
	}
	if req.Email != nil {
		updates["email"] = normalizeEmail(*req.Email)
	}
	if req.Password != nil {
		hash, err := s.authService.HashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		updates["password_hash"] = hash
	}
	if req.Role != nil {
		updates["role"] = *req.Role
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	if len(updates) == 0 {
		return nil, pkgerrors.ErrNoChanges
	}

	var updated *model.User
	err := s.userRepo.Transaction(ctx, func(ctx context.Context) error {
		existing, err := s.userRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return pkgerrors.ErrUserNotFound
		}

		username, email := existing.Username, existing.Email
		if v, ok := updates["username"].(string); ok {
			username = v
		}
		if v, ok := updates["email"].(string); ok {
			email = v
		}
		taken, err := s.userRepo.Taken(ctx, username, email, id)
		if err != nil {
			return err
		}
		if taken {
			return pkgerrors.ErrNameTaken.WithMessage("用户名或邮箱已被占用")
		}

		if err := s.userRepo.Update(ctx, id, updates); err != nil {
			return err
		}
		updated, err = s.userRepo.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Info("user updated", zap.Int64("user_id", id), zap.Int64("by", actor.UserID))
	return updated, nil
}

// Delete 删除用户；仍是规章作者的用户只能停用
func (s *UserService) Delete(ctx context.Context, actor *Actor, id int64) error {
	if actor == nil {
		return pkgerrors.ErrUnauthorized
	}
	if actor.UserID == id {
		return pkgerrors.ErrSelfAction.WithMessage("不能删除自己的账户")
	}

	err := s.userRepo.Transaction(ctx, func(ctx context.Context) error {
		count, err := s.userRepo.CountAuthored(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return pkgerrors.ErrInUse.WithMessage("用户仍是规章作者，请改为停用")
		}
		err = s.userRepo.Delete(ctx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.ErrUserNotFound
		}
		return err
	})
	if err != nil {
		return err
	}

	logger.Info("user deleted", zap.Int64("user_id", id), zap.Int64("by", actor.UserID))
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
