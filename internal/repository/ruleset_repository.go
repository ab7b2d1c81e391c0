package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ryckox/syntagma/internal/model"
)

// ErrStaleVersion 版本号已被其他写入修改
var ErrStaleVersion = errors.New("ruleset version changed concurrently")

// RulesetFilter 规则集过滤条件
type RulesetFilter struct {
	// PublishedOnly 非管理员只能看到已发布
	PublishedOnly bool
	Status        model.RulesetStatus
	TypeID        int64
	TopicID       int64
	Search        string
	SortBy        string
	SortOrder     string
}

var rulesetSortFields = map[string]string{
	"title":      "rulesets.title",
	"created_at": "rulesets.created_at",
	"updated_at": "rulesets.updated_at",
	"version":    "rulesets.version",
	"type_name":  "ruleset_types.name",
}

// RulesetRepository 规则集仓储接口
type RulesetRepository interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error

	Create(ctx context.Context, ruleset *model.Ruleset) error
	GetByID(ctx context.Context, id int64) (*model.Ruleset, error)
	List(ctx context.Context, filter *RulesetFilter, page *model.Pagination) ([]*model.Ruleset, error)
	// UpdateCAS 仅当当前版本号等于 expectedVersion 时更新
	UpdateCAS(ctx context.Context, id int64, expectedVersion int, fields map[string]interface{}) error
	ReplaceTopics(ctx context.Context, rulesetID int64, topicIDs []int64) error
	ReplaceTags(ctx context.Context, rulesetID int64, names []string) error
	ReplaceTableOfContents(ctx context.Context, rulesetID int64, entries []model.TableOfContentsEntry) error
	Delete(ctx context.Context, id int64) error
}

type rulesetRepository struct {
	*Repository
}

// NewRulesetRepository 创建规则集仓储
func NewRulesetRepository(db *gorm.DB) RulesetRepository {
	return &rulesetRepository{Repository: NewRepository(db)}
}

type rulesetTopic struct {
	RulesetID int64 `gorm:"column:ruleset_id"`
	TopicID   int64 `gorm:"column:topic_id"`
}

func (rulesetTopic) TableName() string { return "ruleset_topics" }

type rulesetTag struct {
	RulesetID int64 `gorm:"column:ruleset_id"`
	TagID     int64 `gorm:"column:tag_id"`
}

func (rulesetTag) TableName() string { return "ruleset_tags" }

func (r *rulesetRepository) Create(ctx context.Context, ruleset *model.Ruleset) error {
	now := time.Now()
	ruleset.CreatedAt = now
	ruleset.UpdatedAt = now
	return r.DB(ctx).Omit(clause.Associations).Create(ruleset).Error
}

func (r *rulesetRepository) GetByID(ctx context.Context, id int64) (*model.Ruleset, error) {
	var ruleset model.Ruleset
	err := r.DB(ctx).
		Preload("Type").
		Preload("Creator").
		Preload("Topics").
		Preload("Tags").
		Preload("TableOfContents", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_index")
		}).
		First(&ruleset, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ruleset, nil
}

func (r *rulesetRepository) List(ctx context.Context, filter *RulesetFilter, page *model.Pagination) ([]*model.Ruleset, error) {
	var rulesets []*model.Ruleset

	query := r.DB(ctx).Model(&model.Ruleset{}).
		Joins("JOIN ruleset_types ON ruleset_types.id = rulesets.type_id")

	if filter == nil {
		filter = &RulesetFilter{}
	}
	if filter.PublishedOnly {
		query = query.Where("rulesets.status = ?", model.RulesetStatusPublished)
	} else if filter.Status != "" {
		query = query.Where("rulesets.status = ?", filter.Status)
	}
	if filter.TypeID > 0 {
		query = query.Where("rulesets.type_id = ?", filter.TypeID)
	}
	if filter.TopicID > 0 {
		query = query.Where("EXISTS (SELECT 1 FROM ruleset_topics rt WHERE rt.ruleset_id = rulesets.id AND rt.topic_id = ?)", filter.TopicID)
	}
	if filter.Search != "" {
		like := "%" + escapeLike(filter.Search) + "%"
		query = query.Where(`(LOWER(rulesets.title) LIKE LOWER(?) ESCAPE '\' OR LOWER(rulesets.content) LIKE LOWER(?) ESCAPE '\')`, like, like)
	}

	// 计算总数
	if err := query.Count(&page.Total).Error; err != nil {
		return nil, err
	}

	sortField, ok := rulesetSortFields[filter.SortBy]
	if !ok {
		sortField = rulesetSortFields["updated_at"]
	}
	desc := !strings.EqualFold(filter.SortOrder, "asc")

	// 分页查询
	err := query.
		Preload("Type").
		Preload("Creator").
		Preload("Topics").
		Preload("Tags").
		Order(clause.OrderByColumn{Column: clause.Column{Name: sortField, Raw: true}, Desc: desc}).
		Order("rulesets.id DESC").
		Offset(page.GetOffset()).
		Limit(page.GetLimit()).
		Find(&rulesets).Error

	return rulesets, err
}

func (r *rulesetRepository) UpdateCAS(ctx context.Context, id int64, expectedVersion int, fields map[string]interface{}) error {
	if _, ok := fields["updated_at"]; !ok {
		fields["updated_at"] = time.Now()
	}
	result := r.DB(ctx).Model(&model.Ruleset{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleVersion
	}
	return nil
}

func (r *rulesetRepository) ReplaceTopics(ctx context.Context, rulesetID int64, topicIDs []int64) error {
	db := r.DB(ctx)
	if err := db.Where("ruleset_id = ?", rulesetID).Delete(&rulesetTopic{}).Error; err != nil {
		return err
	}
	if len(topicIDs) == 0 {
		return nil
	}

	rows := make([]rulesetTopic, 0, len(topicIDs))
	seen := make(map[int64]struct{}, len(topicIDs))
	for _, id := range topicIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		rows = append(rows, rulesetTopic{RulesetID: rulesetID, TopicID: id})
	}
	return db.Create(&rows).Error
}

func (r *rulesetRepository) ReplaceTags(ctx context.Context, rulesetID int64, names []string) error {
	db := r.DB(ctx)
	if err := db.Where("ruleset_id = ?", rulesetID).Delete(&rulesetTag{}).Error; err != nil {
		return err
	}

	rows := make([]rulesetTag, 0, len(names))
	seen := make(map[int64]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		tag := model.Tag{Name: name}
		if err := db.Where(model.Tag{Name: name}).FirstOrCreate(&tag).Error; err != nil {
			return err
		}
		if _, dup := seen[tag.ID]; dup {
			continue
		}
		seen[tag.ID] = struct{}{}
		rows = append(rows, rulesetTag{RulesetID: rulesetID, TagID: tag.ID})
	}
	if len(rows) == 0 {
		return nil
	}
	return db.Create(&rows).Error
}

func (r *rulesetRepository) ReplaceTableOfContents(ctx context.Context, rulesetID int64, entries []model.TableOfContentsEntry) error {
	db := r.DB(ctx)
	if err := db.Where("ruleset_id = ?", rulesetID).Delete(&model.TableOfContentsEntry{}).Error; err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	rows := make([]model.TableOfContentsEntry, len(entries))
	for i, e := range entries {
		rows[i] = model.TableOfContentsEntry{
			RulesetID:  rulesetID,
			Level:      e.Level,
			Title:      e.Title,
			Content:    e.Content,
			OrderIndex: i + 1,
		}
		if rows[i].Level < 1 {
			rows[i].Level = 1
		}
	}
	return db.Create(&rows).Error
}

func (r *rulesetRepository) Delete(ctx context.Context, id int64) error {
	result := r.DB(ctx).Delete(&model.Ruleset{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// escapeLike 转义 LIKE 通配符，搜索词按字面匹配
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
