package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/ryckox/syntagma/internal/model"
)

// UserRepository 用户仓储接口
type UserRepository interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error

	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	Count(ctx context.Context) (int64, error)
	// List 按创建时间倒序
	List(ctx context.Context) ([]*model.User, error)
	Update(ctx context.Context, id int64, updates map[string]interface{}) error
	Delete(ctx context.Context, id int64) error
	// Taken 除 excludeID 外用户名或邮箱是否已被占用
	Taken(ctx context.Context, username, email string, excludeID int64) (bool, error)
	// CountAuthored 该用户创建的规则集数量
	CountAuthored(ctx context.Context, id int64) (int64, error)
}

type userRepository struct {
	*Repository
}

// NewUserRepository 创建用户仓储
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{Repository: NewRepository(db)}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return r.DB(ctx).Create(user).Error
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := r.DB(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := r.DB(ctx).Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&model.User{}).Count(&count).Error
	return count, err
}

func (r *userRepository) List(ctx context.Context) ([]*model.User, error) {
	var users []*model.User
	err := r.DB(ctx).Order("created_at DESC, id DESC").Find(&users).Error
	return users, err
}

func (r *userRepository) Update(ctx context.Context, id int64, updates map[string]interface{}) error {
	return r.DB(ctx).Model(&model.User{}).Where("id = ?", id).Updates(updates).Error
}

func (r *userRepository) Delete(ctx context.Context, id int64) error {
	result := r.DB(ctx).Delete(&model.User{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *userRepository) Taken(ctx context.Context, username, email string, excludeID int64) (bool, error) {
	var count int64
	err := r.DB(ctx).Model(&model.User{}).
		Where("(username = ? OR email = ?) AND id <> ?", username, email, excludeID).
		Count(&count).Error
	return count > 0, err
}

func (r *userRepository) CountAuthored(ctx context.Context, id int64) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&model.Ruleset{}).Where("created_by = ?", id).Count(&count).Error
	return count, err
}
