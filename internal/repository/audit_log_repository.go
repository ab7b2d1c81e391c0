package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ryckox/syntagma/internal/model"
)

// AuditLogFilter 审计日志过滤条件
type AuditLogFilter struct {
	RulesetID *int64
	UserID    *int64
	Action    model.AuditAction
	StartTime *time.Time
	EndTime   *time.Time
}

// AuditLogRepository 审计日志仓储接口，只追加不修改
type AuditLogRepository interface {
	Create(ctx context.Context, entry *model.AuditLogEntry) error
	GetByID(ctx context.Context, id int64) (*model.AuditLogEntry, error)
	List(ctx context.Context, page *model.Pagination, filter *AuditLogFilter) ([]*model.AuditLogEntry, error)
}

type auditLogRepository struct {
	*Repository
}

// NewAuditLogRepository 创建审计日志仓储
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{Repository: NewRepository(db)}
}

var newestFirst = clause.OrderBy{Columns: []clause.OrderByColumn{
	{Column: clause.Column{Name: "timestamp"}, Desc: true},
	{Column: clause.Column{Name: "id"}, Desc: true},
}}

func (r *auditLogRepository) Create(ctx context.Context, entry *model.AuditLogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	return r.DB(ctx).Create(entry).Error
}

func (r *auditLogRepository) GetByID(ctx context.Context, id int64) (*model.AuditLogEntry, error) {
	var entry model.AuditLogEntry
	err := r.DB(ctx).First(&entry, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *auditLogRepository) List(ctx context.Context, page *model.Pagination, filter *AuditLogFilter) ([]*model.AuditLogEntry, error) {
	var entries []*model.AuditLogEntry

	query := r.DB(ctx).Model(&model.AuditLogEntry{})

	if filter != nil {
		if filter.RulesetID != nil {
			query = query.Where("ruleset_id = ?", *filter.RulesetID)
		}
		if filter.UserID != nil {
			query = query.Where("user_id = ?", *filter.UserID)
		}
		if filter.Action != "" {
			query = query.Where("action = ?", filter.Action)
		}
		if filter.StartTime != nil {
			query = query.Where(clause.Gte{Column: clause.Column{Name: "timestamp"}, Value: *filter.StartTime})
		}
		if filter.EndTime != nil {
			query = query.Where(clause.Lte{Column: clause.Column{Name: "timestamp"}, Value: *filter.EndTime})
		}
	}

	// 计算总数
	if err := query.Count(&page.Total).Error; err != nil {
		return nil, err
	}

	// 分页查询，最新的在前
	err := query.Clauses(newestFirst).
		Offset(page.GetOffset()).
		Limit(page.GetLimit()).
		Find(&entries).Error

	return entries, err
}
