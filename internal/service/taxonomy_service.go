package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ryckox/syntagma/internal/model"
	"github.com/ryckox/syntagma/internal/repository"
	pkgerrors "github.com/ryckox/syntagma/pkg/errors"
	"github.com/ryckox/syntagma/pkg/logger"
)

const (
	defaultTypeColor = "#6B7280"
	defaultTypeIcon  = "document"
	minNameLength    = 2
)

// TaxonomyService 类型与主题
type TaxonomyService struct {
	taxonomyRepo repository.TaxonomyRepository
}

// NewTaxonomyService 创建分类服务
func NewTaxonomyService(taxonomyRepo repository.TaxonomyRepository) *TaxonomyService {
	return &TaxonomyService{taxonomyRepo: taxonomyRepo}
}

// CreateTypeRequest 创建类型请求
type CreateTypeRequest struct {
	Name        string `json:"name" binding:"required,min=2,max=100"`
	Description string `json:"description" binding:"max=500"`
	Color       string `json:"color" binding:"omitempty,len=7,hexcolor"`
	Icon        string `json:"icon" binding:"max=50"`
}

// UpdateTypeRequest 更新类型请求，nil 表示不修改
type UpdateTypeRequest struct {
	Name        *string `json:"name" binding:"omitempty,min=2,max=100"`
	Description *string `json:"description" binding:"omitempty,max=500"`
	Color       *string `json:"color" binding:"omitempty,len=7,hexcolor"`
	Icon        *string `json:"icon" binding:"omitempty,max=50"`
}

// CreateTopicRequest 创建主题请求
type CreateTopicRequest struct {
	Name        string `json:"name" binding:"required,min=2,max=100"`
	Description string `json:"description" binding:"max=500"`
}

// UpdateTopicRequest 更新主题请求，可移动到其他类型
type UpdateTopicRequest struct {
	Name        *string `json:"name" binding:"omitempty,min=2,max=100"`
	Description *string `json:"description" binding:"omitempty,max=500"`
	TypeID      *int64  `json:"type_id" binding:"omitempty,min=1"`
}

// ListTypes 全部类型
func (s *TaxonomyService) ListTypes(ctx context.Context) ([]*model.RulesetType, error) {
	return s.taxonomyRepo.ListTypes(ctx)
}

// GetType 单个类型
func (s *TaxonomyService) GetType(ctx context.Context, id int64) (*model.RulesetType, error) {
	t, err := s.taxonomyRepo.GetType(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, pkgerrors.ErrNotFound.WithMessage("类型不存在")
	}
	return t, nil
}

// ListTopics 某个类型下的主题
func (s *TaxonomyService) ListTopics(ctx context.Context, typeID int64) ([]*model.Topic, error) {
	exists, err := s.taxonomyRepo.TypeExists(ctx, typeID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, pkgerrors.ErrNotFound.WithMessage("类型不存在")
	}
	return s.taxonomyRepo.ListTopics(ctx, typeID)
}

// CreateType 创建类型，名称唯一
func (s *TaxonomyService) CreateType(ctx context.Context, req *CreateTypeRequest) (*model.RulesetType, error) {
	name, err := normalizeName(req.Name)
	if err != nil {
		return nil, err
	}

	t := &model.RulesetType{
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Color:       req.Color,
		Icon:        strings.TrimSpace(req.Icon),
	}
	if t.Color == "" {
		t.Color = defaultTypeColor
	}
	if t.Icon == "" {
		t.Icon = defaultTypeIcon
	}

	err = s.taxonomyRepo.Transaction(ctx, func(ctx context.Context) error {
		taken, err := s.taxonomyRepo.TypeNameTaken(ctx, name, 0)
		if err != nil {
			return err
		}
		if taken {
			return pkgerrors.ErrNameTaken.WithMessage("已存在同名类型")
		}
		return s.taxonomyRepo.CreateType(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("ruleset type created", zap.Int64("id", t.ID), zap.String("name", t.Name))
	return t, nil
}

// UpdateType 部分更新类型
func (s *TaxonomyService) UpdateType(ctx context.Context, id int64, req *UpdateTypeRequest) (*model.RulesetType, error) {
	updates := map[string]interface{}{}
	if req.Name != nil {
		name, err := normalizeName(*req.Name)
		if err != nil {
			return nil, err
		}
		updates["name"] = name
	}
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}
	if req.Color != nil {
		updates["color"] = *req.Color
	}
	if req.Icon != nil {
		updates["icon"] = strings.TrimSpace(*req.Icon)
	}
	if len(updates) == 0 {
		return nil, pkgerrors.ErrNoChanges
	}

	var updated *model.RulesetType
	err := s.taxonomyRepo.Transaction(ctx, func(ctx context.Context) error {
		existing, err := s.taxonomyRepo.GetType(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return pkgerrors.ErrNotFound.WithMessage("类型不存在")
		}
		if name, ok := updates["name"].(string); ok {
			taken, err := s.taxonomyRepo.TypeNameTaken(ctx, name, id)
			if err != nil {
				return err
			}
			if taken {
				return pkgerrors.ErrNameTaken.WithMessage("已存在同名类型")
			}
		}
		if err := s.taxonomyRepo.UpdateType(ctx, id, updates); err != nil {
			return err
		}
		updated, err = s.taxonomyRepo.GetType(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Info("ruleset type updated", zap.Int64("id", id))
	return updated, nil
}

// DeleteType 删除类型及其主题，仍有规章引用时拒绝
func (s *TaxonomyService) DeleteType(ctx context.Context, id int64) error {
	err := s.taxonomyRepo.Transaction(ctx, func(ctx context.Context) error {
		count, err := s.taxonomyRepo.CountRulesetsByType(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return pkgerrors.ErrInUse.
				WithMessage(fmt.Sprintf("类型仍被 %d 个规章使用，无法删除", count)).
				WithDetail("rulesets", fmt.Sprint(count))
		}
		err = s.taxonomyRepo.DeleteType(ctx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.ErrNotFound.WithMessage("类型不存在")
		}
		return err
	})
	if err != nil {
		return err
	}

	logger.Info("ruleset type deleted", zap.Int64("id", id))
	return nil
}

// GetTopic 单个主题
func (s *TaxonomyService) GetTopic(ctx context.Context, id int64) (*model.Topic, error) {
	t, err := s.taxonomyRepo.GetTopic(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, pkgerrors.ErrTopicNotFound
	}
	return t, nil
}

// CreateTopic 在类型下创建主题，同一类型内名称唯一
func (s *TaxonomyService) CreateTopic(ctx context.Context, typeID int64, req *CreateTopicRequest) (*model.Topic, error) {
	name, err := normalizeName(req.Name)
	if err != nil {
		return nil, err
	}
	topic := &model.Topic{
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		TypeID:      typeID,
	}

	err = s.taxonomyRepo.Transaction(ctx, func(ctx context.Context) error {
		exists, err := s.taxonomyRepo.TypeExists(ctx, typeID)
		if err != nil {
			return err
		}
		if !exists {
			return pkgerrors.ErrNotFound.WithMessage("类型不存在")
		}
		taken, err := s.taxonomyRepo.TopicNameTaken(ctx, typeID, name, 0)
		if err != nil {
			return err
		}
		if taken {
			return pkgerrors.ErrNameTaken.WithMessage("该类型下已存在同名主题")
		}
		return s.taxonomyRepo.CreateTopic(ctx, topic)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("topic created", zap.Int64("id", topic.ID), zap.Int64("type_id", typeID))
	return topic, nil
}

// UpdateTopic 部分更新主题
func (s *TaxonomyService) UpdateTopic(ctx context.Context, id int64, req *UpdateTopicRequest) (*model.Topic, error) {
	updates := map[string]interface{}{}
	if req.Name != nil {
		name, err := normalizeName(*req.Name)
		if err != nil {
			return nil, err
		}
		updates["name"] = name
	}
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}
	if req.TypeID != nil {
		updates["type_id"] = *req.TypeID
	}
	if len(updates) == 0 {
		return nil, pkgerrors.ErrNoChanges
	}

	var updated *model.Topic
	err := s.taxonomyRepo.Transaction(ctx, func(ctx context.Context) error {
		existing, err := s.taxonomyRepo.GetTopic(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return pkgerrors.ErrTopicNotFound
		}

		typeID, name := existing.TypeID, existing.Name
		if req.TypeID != nil && *req.TypeID != existing.TypeID {
			exists, err := s.taxonomyRepo.TypeExists(ctx, *req.TypeID)
			if err != nil {
				return err
			}
			if !exists {
				return pkgerrors.ErrTypeNotFound
			}
			// 已关联的规章要求主题属于规章的类型
			count, err := s.taxonomyRepo.CountRulesetsByTopic(ctx, id)
			if err != nil {
				return err
			}
			if count > 0 {
				return pkgerrors.ErrInUse.WithMessage("主题仍被规章使用，无法移动到其他类型")
			}
			typeID = *req.TypeID
		}
		if n, ok := updates["name"].(string); ok {
			name = n
		}
		taken, err := s.taxonomyRepo.TopicNameTaken(ctx, typeID, name, id)
		if err != nil {
			return err
		}
		if taken {
			return pkgerrors.ErrNameTaken.WithMessage("该类型下已存在同名主题")
		}

		if err := s.taxonomyRepo.UpdateTopic(ctx, id, updates); err != nil {
			return err
		}
		updated, err = s.taxonomyRepo.GetTopic(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Info("topic updated", zap.Int64("id", id))
	return updated, nil
}

// DeleteTopic 删除主题，仍有规章引用时拒绝
func (s *TaxonomyService) DeleteTopic(ctx context.Context, id int64) error {
	err := s.taxonomyRepo.Transaction(ctx, func(ctx context.Context) error {
		count, err := s.taxonomyRepo.CountRulesetsByTopic(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return pkgerrors.ErrInUse.
				WithMessage(fmt.Sprintf("主题仍被 %d 个规章使用，无法删除", count)).
				WithDetail("rulesets", fmt.Sprint(count))
		}
		err = s.taxonomyRepo.DeleteTopic(ctx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.ErrTopicNotFound
		}
		return err
	})
	if err != nil {
		return err
	}

	logger.Info("topic deleted", zap.Int64("id", id))
	return nil
}

// normalizeName 去除首尾空白后校验长度
func normalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if len([]rune(name)) < minNameLength {
		return "", pkgerrors.ErrInvalidRequest.
			WithMessage("名称至少需要 2 个字符").
			WithDetail("name", "min")
	}
	return name, nil
}
