package service

import (
	"context"
	"errors"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ryckox/syntagma/internal/metrics"
	"github.com/ryckox/syntagma/internal/model"
	"github.com/ryckox/syntagma/internal/repository"
	pkgerrors "github.com/ryckox/syntagma/pkg/errors"
	"github.com/ryckox/syntagma/pkg/logger"
)

const (
	defaultCASAttempts = 3
	defaultCASDelay    = 20 * time.Millisecond
)

// RulesetCache 规则集读缓存
type RulesetCache interface {
	Get(ctx context.Context, id int64) (*model.Ruleset, bool)
	Set(ctx context.Context, ruleset *model.Ruleset)
	Invalidate(ctx context.Context, id int64)
}

// TOCInput 目录条目
type TOCInput struct {
	Level   int    `json:"level" binding:"omitempty,min=1,max=6"`
	Title   string `json:"title" binding:"required"`
	Content string `json:"content"`
}

// CreateRulesetRequest 创建规则集请求
type CreateRulesetRequest struct {
	Title           string              `json:"title" binding:"required,min=3,max=255"`
	TypeID          int64               `json:"type_id" binding:"required,min=1"`
	TopicIDs        []int64             `json:"topic_ids" binding:"required,min=1,dive,min=1"`
	Content         string              `json:"content" binding:"required,min=10"`
	Status          model.RulesetStatus `json:"status" binding:"omitempty,oneof=draft published"`
	TagNames        []string            `json:"tag_names" binding:"omitempty,dive,max=50"`
	TableOfContents []TOCInput          `json:"table_of_contents" binding:"omitempty,dive"`
	EffectiveDate   *time.Time          `json:"effective_date"`
}

// UpdateRulesetRequest 更新规则集请求
//
// nil 表示未提供该字段；空切片表示清空关联。
type UpdateRulesetRequest struct {
	Title           *string              `json:"title" binding:"omitempty,min=3,max=255"`
	TypeID          *int64               `json:"type_id" binding:"omitempty,min=1"`
	TopicIDs        []int64              `json:"topic_ids" binding:"omitempty,dive,min=1"`
	Content         *string              `json:"content" binding:"omitempty,min=10"`
	Status          *model.RulesetStatus `json:"status" binding:"omitempty,ruleset_status"`
	TagNames        []string             `json:"tag_names" binding:"omitempty,dive,max=50"`
	TableOfContents []TOCInput           `json:"table_of_contents" binding:"omitempty,dive"`
	EffectiveDate   *time.Time           `json:"effective_date"`
}

// contentChanged 请求是否带有影响版本号的字段
func (r *UpdateRulesetRequest) contentChanged() bool {
	return r.Title != nil || r.Content != nil || r.TypeID != nil ||
		r.TopicIDs != nil || r.TableOfContents != nil
}

func (r *UpdateRulesetRequest) associations() AssociationChanges {
	return AssociationChanges{
		TopicIDs:        r.TopicIDs != nil,
		TagNames:        r.TagNames != nil,
		TableOfContents: r.TableOfContents != nil,
	}
}

func (r *UpdateRulesetRequest) empty() bool {
	return r.Title == nil && r.Content == nil && r.TypeID == nil && r.Status == nil &&
		r.EffectiveDate == nil && !r.associations().any()
}

// RulesetQuery 规则集列表查询条件
type RulesetQuery struct {
	Status    model.RulesetStatus `form:"status" binding:"omitempty,ruleset_status"`
	TypeID    int64               `form:"type_id" binding:"omitempty,min=1"`
	TopicID   int64               `form:"topic_id" binding:"omitempty,min=1"`
	Search    string              `form:"search"`
	SortBy    string              `form:"sort_by" binding:"omitempty,oneof=title created_at updated_at version type_name"`
	SortOrder string              `form:"sort_order" binding:"omitempty,oneof=asc desc"`
}

// RulesetService 规则集服务
type RulesetService struct {
	rulesetRepo  repository.RulesetRepository
	taxonomyRepo repository.TaxonomyRepository
	auditService *AuditService
	cache        RulesetCache
	logger       *zap.Logger

	casAttempts int
	casDelay    time.Duration
	clock       clock.Clock
}

// NewRulesetService 创建规则集服务，cache 可以为 nil
func NewRulesetService(
	rulesetRepo repository.RulesetRepository,
	taxonomyRepo repository.TaxonomyRepository,
	auditService *AuditService,
	cache RulesetCache,
	log *zap.Logger,
) *RulesetService {
	if log == nil {
		log = logger.L()
	}
	return &RulesetService{
		rulesetRepo:  rulesetRepo,
		taxonomyRepo: taxonomyRepo,
		auditService: auditService,
		cache:        cache,
		logger:       log.Named("ruleset"),
		casAttempts:  defaultCASAttempts,
		casDelay:     defaultCASDelay,
		clock:        clock.WallClock,
	}
}

// SetRetry 设置版本冲突的重试次数和间隔
func (s *RulesetService) SetRetry(attempts int, delay time.Duration) {
	if attempts > 0 {
		s.casAttempts = attempts
	}
	if delay > 0 {
		s.casDelay = delay
	}
}

// canModify 只有创建者或管理员可以修改
func canModify(actor *Actor, ruleset *model.Ruleset) bool {
	return actor.IsAdmin() || (actor != nil && actor.UserID == ruleset.CreatedBy)
}

// validateTaxonomy 类型必须存在，主题必须属于该类型
func (s *RulesetService) validateTaxonomy(ctx context.Context, typeID int64, topicIDs []int64, checkType bool) error {
	if checkType {
		exists, err := s.taxonomyRepo.TypeExists(ctx, typeID)
		if err != nil {
			return err
		}
		if !exists {
			return pkgerrors.ErrTypeNotFound
		}
	}
	if len(topicIDs) == 0 {
		return nil
	}
	ok, err := s.taxonomyRepo.TopicsBelongToType(ctx, typeID, topicIDs)
	if err != nil {
		return err
	}
	if !ok {
		return pkgerrors.ErrTopicMismatch
	}
	return nil
}

func tocEntries(in []TOCInput) []model.TableOfContentsEntry {
	entries := make([]model.TableOfContentsEntry, len(in))
	for i, e := range in {
		entries[i] = model.TableOfContentsEntry{Level: e.Level, Title: e.Title, Content: e.Content}
	}
	return entries
}

// Create 创建规则集
func (s *RulesetService) Create(ctx context.Context, actor *Actor, req *CreateRulesetRequest) (*model.Ruleset, error) {
	if actor == nil {
		return nil, pkgerrors.ErrUnauthorized
	}
	if len(req.TopicIDs) == 0 {
		return nil, pkgerrors.ErrInvalidRequest.WithMessage("至少需要一个主题")
	}
	status := req.Status
	if status == "" {
		status = model.RulesetStatusDraft
	}
	if err := s.validateTaxonomy(ctx, req.TypeID, req.TopicIDs, true); err != nil {
		return nil, err
	}

	ruleset := &model.Ruleset{
		Title:         req.Title,
		Content:       req.Content,
		Status:        status,
		Version:       InitialVersion(status),
		TypeID:        req.TypeID,
		CreatedBy:     actor.UserID,
		EffectiveDate: req.EffectiveDate,
	}

	err := s.rulesetRepo.Transaction(ctx, func(ctx context.Context) error {
		if err := s.rulesetRepo.Create(ctx, ruleset); err != nil {
			return err
		}
		if err := s.rulesetRepo.ReplaceTopics(ctx, ruleset.ID, req.TopicIDs); err != nil {
			return err
		}
		if len(req.TagNames) > 0 {
			if err := s.rulesetRepo.ReplaceTags(ctx, ruleset.ID, req.TagNames); err != nil {
				return err
			}
		}
		if len(req.TableOfContents) > 0 {
			return s.rulesetRepo.ReplaceTableOfContents(ctx, ruleset.ID, tocEntries(req.TableOfContents))
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to create ruleset", zap.Error(err))
		return nil, err
	}

	metrics.RecordRulesetOperation(string(model.AuditActionCreated))
	s.logger.Info("ruleset created",
		zap.Int64("id", ruleset.ID),
		zap.String("status", string(ruleset.Status)),
		zap.Int("version", ruleset.Version),
		zap.Int64("user_id", actor.UserID))

	s.auditService.Record(ctx, &AuditInput{
		RulesetID: ruleset.ID,
		Action:    model.AuditActionCreated,
		Changes: BuildCreateChanges(ruleset, AssociationChanges{
			TopicIDs:        true,
			TagNames:        len(req.TagNames) > 0,
			TableOfContents: len(req.TableOfContents) > 0,
		}),
		VersionAfter: model.MarkerForVersion(ruleset.Version),
		Actor:        actor,
	})

	return s.rulesetRepo.GetByID(ctx, ruleset.ID)
}

// Update 更新规则集
//
// 版本号通过比较并交换写入，冲突时整体重读重试，重试耗尽返回 ErrVersionConflict。
func (s *RulesetService) Update(ctx context.Context, actor *Actor, id int64, req *UpdateRulesetRequest) (*model.Ruleset, error) {
	if actor == nil {
		return nil, pkgerrors.ErrUnauthorized
	}
	if req.empty() {
		return nil, pkgerrors.ErrNoChanges
	}

	// retry.Call 会包装致命错误，业务错误需原样返回
	var before, after *model.Ruleset
	var fatalErr error
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			var err error
			before, after, err = s.tryUpdate(ctx, actor, id, req)
			if err != nil && !errors.Is(err, repository.ErrStaleVersion) {
				fatalErr = err
			}
			return err
		},
		IsFatalError: func(err error) bool {
			return fatalErr != nil
		},
		NotifyFunc: func(err error, attempt int) {
			metrics.RecordVersionConflict()
			s.logger.Warn("ruleset version conflict",
				zap.Int64("id", id),
				zap.Int("attempt", attempt))
		},
		Attempts: s.casAttempts,
		Delay:    s.casDelay,
		Clock:    s.clock,
	})
	if fatalErr != nil {
		return nil, fatalErr
	}
	if err != nil {
		if retry.IsAttemptsExceeded(err) {
			return nil, pkgerrors.Wrap(pkgerrors.ErrVersionConflict, retry.LastError(err))
		}
		return nil, err
	}

	s.invalidate(ctx, id)
	metrics.RecordRulesetOperation(string(model.AuditActionUpdated))
	s.logger.Info("ruleset updated",
		zap.Int64("id", id),
		zap.Int("version_before", before.Version),
		zap.Int("version_after", after.Version),
		zap.Int64("user_id", actor.UserID))

	s.auditService.Record(ctx, &AuditInput{
		RulesetID:     id,
		Action:        model.AuditActionUpdated,
		Changes:       BuildUpdateChanges(before, after, req.associations()),
		VersionBefore: model.MarkerForVersion(before.Version),
		VersionAfter:  model.MarkerForVersion(after.Version),
		Actor:         actor,
	})

	return s.rulesetRepo.GetByID(ctx, id)
}

// tryUpdate 一次读-改-写
func (s *RulesetService) tryUpdate(ctx context.Context, actor *Actor, id int64, req *UpdateRulesetRequest) (before, after *model.Ruleset, err error) {
	err = s.rulesetRepo.Transaction(ctx, func(ctx context.Context) error {
		existing, err := s.rulesetRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return pkgerrors.ErrRulesetNotFound
		}
		if !canModify(actor, existing) {
			return pkgerrors.ErrForbidden.WithMessage("无权修改该规章")
		}

		typeID := existing.TypeID
		if req.TypeID != nil {
			typeID = *req.TypeID
		}
		if err := s.validateTaxonomy(ctx, typeID, req.TopicIDs, req.TypeID != nil); err != nil {
			return err
		}

		updated := *existing
		fields := make(map[string]interface{})
		if req.Title != nil {
			updated.Title = *req.Title
			fields["title"] = updated.Title
		}
		if req.Content != nil {
			updated.Content = *req.Content
			fields["content"] = updated.Content
		}
		if req.TypeID != nil {
			updated.TypeID = *req.TypeID
			fields["type_id"] = updated.TypeID
		}
		if req.Status != nil {
			updated.Status = *req.Status
			fields["status"] = string(updated.Status)
		}
		if req.EffectiveDate != nil {
			updated.EffectiveDate = req.EffectiveDate
			fields["effective_date"] = *req.EffectiveDate
		}
		updated.Version = NextVersion(existing.Status, existing.Version, updated.Status, req.contentChanged())
		fields["version"] = updated.Version

		if err := s.rulesetRepo.UpdateCAS(ctx, id, existing.Version, fields); err != nil {
			return err
		}
		if req.TopicIDs != nil {
			if err := s.rulesetRepo.ReplaceTopics(ctx, id, req.TopicIDs); err != nil {
				return err
			}
		}
		if req.TagNames != nil {
			if err := s.rulesetRepo.ReplaceTags(ctx, id, req.TagNames); err != nil {
				return err
			}
		}
		if req.TableOfContents != nil {
			if err := s.rulesetRepo.ReplaceTableOfContents(ctx, id, tocEntries(req.TableOfContents)); err != nil {
				return err
			}
		}

		before, after = existing, &updated
		return nil
	})
	return before, after, err
}

// Delete 删除规则集
func (s *RulesetService) Delete(ctx context.Context, actor *Actor, id int64) error {
	if actor == nil {
		return pkgerrors.ErrUnauthorized
	}

	existing, err := s.rulesetRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return pkgerrors.ErrRulesetNotFound
	}
	if !canModify(actor, existing) {
		return pkgerrors.ErrForbidden.WithMessage("无权删除该规章")
	}

	if err := s.rulesetRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.ErrRulesetNotFound
		}
		s.logger.Error("failed to delete ruleset", zap.Int64("id", id), zap.Error(err))
		return err
	}

	s.invalidate(ctx, id)
	metrics.RecordRulesetOperation(string(model.AuditActionDeleted))
	s.logger.Info("ruleset deleted", zap.Int64("id", id), zap.Int64("user_id", actor.UserID))

	s.auditService.Record(ctx, &AuditInput{
		RulesetID:     id,
		Action:        model.AuditActionDeleted,
		Changes:       BuildDeleteChanges(existing),
		VersionBefore: model.MarkerForVersion(existing.Version),
		VersionAfter:  model.Deleted(),
		Actor:         actor,
	})
	return nil
}

// Get 获取规则集
//
// 未发布的规则集只有管理员和创建者可见。
func (s *RulesetService) Get(ctx context.Context, viewer *Actor, id int64) (*model.Ruleset, error) {
	ruleset, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if ruleset.Status != model.RulesetStatusPublished && !canModify(viewer, ruleset) {
		return nil, pkgerrors.ErrForbidden.WithMessage("该规章尚未发布")
	}
	return ruleset, nil
}

func (s *RulesetService) load(ctx context.Context, id int64) (*model.Ruleset, error) {
	if s.cache != nil {
		if ruleset, ok := s.cache.Get(ctx, id); ok {
			return ruleset, nil
		}
	}

	ruleset, err := s.rulesetRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ruleset == nil {
		return nil, pkgerrors.ErrRulesetNotFound
	}
	if s.cache != nil {
		s.cache.Set(ctx, ruleset)
	}
	return ruleset, nil
}

func (s *RulesetService) invalidate(ctx context.Context, id int64) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
}

// List 获取规则集列表，非管理员只能看到已发布的
func (s *RulesetService) List(ctx context.Context, viewer *Actor, page *model.Pagination, query *RulesetQuery) ([]*model.Ruleset, error) {
	filter := &repository.RulesetFilter{PublishedOnly: !viewer.IsAdmin()}
	if query != nil {
		filter.Status = query.Status
		filter.TypeID = query.TypeID
		filter.TopicID = query.TopicID
		filter.Search = query.Search
		filter.SortBy = query.SortBy
		filter.SortOrder = query.SortOrder
	}
	return s.rulesetRepo.List(ctx, filter, page)
}
