package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/ryckox/syntagma/internal/model"
)

// TaxonomyRepository 类型与主题仓储接口
type TaxonomyRepository interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error

	CreateType(ctx context.Context, t *model.RulesetType) error
	// GetType 不存在时返回 nil, nil
	GetType(ctx context.Context, id int64) (*model.RulesetType, error)
	UpdateType(ctx context.Context, id int64, updates map[string]interface{}) error
	DeleteType(ctx context.Context, id int64) error
	// TypeNameTaken 除 excludeID 外是否已有同名类型
	TypeNameTaken(ctx context.Context, name string, excludeID int64) (bool, error)
	// CountRulesetsByType 引用该类型的规则集数量
	CountRulesetsByType(ctx context.Context, typeID int64) (int64, error)

	CreateTopic(ctx context.Context, t *model.Topic) error
	GetTopic(ctx context.Context, id int64) (*model.Topic, error)
	UpdateTopic(ctx context.Context, id int64, updates map[string]interface{}) error
	DeleteTopic(ctx context.Context, id int64) error
	// TopicNameTaken 同一类型下除 excludeID 外是否已有同名主题
	TopicNameTaken(ctx context.Context, typeID int64, name string, excludeID int64) (bool, error)
	CountRulesetsByTopic(ctx context.Context, topicID int64) (int64, error)

	TypeExists(ctx context.Context, id int64) (bool, error)
	// TopicsBelongToType 所有主题都存在且属于该类型
	TopicsBelongToType(ctx context.Context, typeID int64, topicIDs []int64) (bool, error)
	ListTypes(ctx context.Context) ([]*model.RulesetType, error)
	ListTopics(ctx context.Context, typeID int64) ([]*model.Topic, error)
}

type taxonomyRepository struct {
	*Repository
}

// NewTaxonomyRepository 创建类型与主题仓储
func NewTaxonomyRepository(db *gorm.DB) TaxonomyRepository {
	return &taxonomyRepository{Repository: NewRepository(db)}
}

func (r *taxonomyRepository) CreateType(ctx context.Context, t *model.RulesetType) error {
	return r.DB(ctx).Create(t).Error
}

func (r *taxonomyRepository) GetType(ctx context.Context, id int64) (*model.RulesetType, error) {
	var t model.RulesetType
	err := r.DB(ctx).First(&t, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *taxonomyRepository) UpdateType(ctx context.Context, id int64, updates map[string]interface{}) error {
	return r.DB(ctx).Model(&model.RulesetType{}).Where("id = ?", id).Updates(updates).Error
}

func (r *taxonomyRepository) DeleteType(ctx context.Context, id int64) error {
	result := r.DB(ctx).Delete(&model.RulesetType{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *taxonomyRepository) TypeNameTaken(ctx context.Context, name string, excludeID int64) (bool, error) {
	var count int64
	err := r.DB(ctx).Model(&model.RulesetType{}).
		Where("name = ? AND id <> ?", name, excludeID).
		Count(&count).Error
	return count > 0, err
}

func (r *taxonomyRepository) CountRulesetsByType(ctx context.Context, typeID int64) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&model.Ruleset{}).Where("type_id = ?", typeID).Count(&count).Error
	return count, err
}

func (r *taxonomyRepository) CreateTopic(ctx context.Context, t *model.Topic) error {
	return r.DB(ctx).Create(t).Error
}

func (r *taxonomyRepository) GetTopic(ctx context.Context, id int64) (*model.Topic, error) {
	var t model.Topic
	err := r.DB(ctx).First(&t, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *taxonomyRepository) UpdateTopic(ctx context.Context, id int64, updates map[string]interface{}) error {
	return r.DB(ctx).Model(&model.Topic{}).Where("id = ?", id).Updates(updates).Error
}

func (r *taxonomyRepository) DeleteTopic(ctx context.Context, id int64) error {
	result := r.DB(ctx).Delete(&model.Topic{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *taxonomyRepository) TopicNameTaken(ctx context.Context, typeID int64, name string, excludeID int64) (bool, error) {
	var count int64
	err := r.DB(ctx).Model(&model.Topic{}).
		Where("type_id = ? AND name = ? AND id <> ?", typeID, name, excludeID).
		Count(&count).Error
	return count > 0, err
}

func (r *taxonomyRepository) CountRulesetsByTopic(ctx context.Context, topicID int64) (int64, error) {
	var count int64
	err := r.DB(ctx).Table("ruleset_topics").Where("topic_id = ?", topicID).Count(&count).Error
	return count, err
}

func (r *taxonomyRepository) TypeExists(ctx context.Context, id int64) (bool, error) {
	var count int64
	err := r.DB(ctx).Model(&model.RulesetType{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

func (r *taxonomyRepository) TopicsBelongToType(ctx context.Context, typeID int64, topicIDs []int64) (bool, error) {
	unique := make(map[int64]struct{}, len(topicIDs))
	for _, id := range topicIDs {
		unique[id] = struct{}{}
	}
	if len(unique) == 0 {
		return true, nil
	}

	var count int64
	err := r.DB(ctx).Model(&model.Topic{}).
		Where("type_id = ? AND id IN ?", typeID, topicIDs).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count == int64(len(unique)), nil
}

func (r *taxonomyRepository) ListTypes(ctx context.Context) ([]*model.RulesetType, error) {
	var types []*model.RulesetType
	err := r.DB(ctx).Order("name").Find(&types).Error
	return types, err
}

func (r *taxonomyRepository) ListTopics(ctx context.Context, typeID int64) ([]*model.Topic, error) {
	var topics []*model.Topic
	err := r.DB(ctx).Where("type_id = ?", typeID).Order("name").Find(&topics).Error
	return topics, err
}
