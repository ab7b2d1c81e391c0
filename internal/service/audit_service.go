package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/ryckox/syntagma/internal/metrics"
	"github.com/ryckox/syntagma/internal/model"
	"github.com/ryckox/syntagma/internal/repository"
	"github.com/ryckox/syntagma/pkg/logger"
)

// 追踪的标量字段
const (
	fieldTitle   = "title"
	fieldContent = "content"
	fieldStatus  = "status"
	fieldTypeID  = "type_id"

	fieldTopicIDs        = "topic_ids"
	fieldTagNames        = "tag_names"
	fieldTableOfContents = "table_of_contents"
)

// AssociationChanges 整体替换的关联
type AssociationChanges struct {
	TopicIDs        bool
	TagNames        bool
	TableOfContents bool
}

func (a AssociationChanges) any() bool {
	return a.TopicIDs || a.TagNames || a.TableOfContents
}

func trackedValues(r *model.Ruleset) model.JSONMap {
	return model.JSONMap{
		fieldTitle:   r.Title,
		fieldContent: r.Content,
		fieldStatus:  string(r.Status),
		fieldTypeID:  r.TypeID,
	}
}

func newChangeSet() *model.ChangeSet {
	return &model.ChangeSet{
		FieldChanges: make(map[string]model.FieldChange),
		OldValues:    model.JSONMap{},
		NewValues:    model.JSONMap{},
	}
}

// markAssociations 关联只记录 "changed" 标记，新建时没有旧值
func markAssociations(cs *model.ChangeSet, assoc AssociationChanges, created bool) {
	mark := func(field string, changed bool) {
		if !changed {
			return
		}
		if created {
			cs.FieldChanges[field] = model.FieldChange{From: nil, To: model.AssociationChanged}
		} else {
			cs.FieldChanges[field] = model.FieldChange{From: model.AssociationChanged, To: model.AssociationChanged}
			cs.OldValues[field] = model.AssociationChanged
		}
		cs.NewValues[field] = model.AssociationChanged
	}
	mark(fieldTopicIDs, assoc.TopicIDs)
	mark(fieldTagNames, assoc.TagNames)
	mark(fieldTableOfContents, assoc.TableOfContents)
}

// BuildCreateChanges 新建时的变更集，旧值为空
func BuildCreateChanges(created *model.Ruleset, assoc AssociationChanges) *model.ChangeSet {
	cs := newChangeSet()
	for field, value := range trackedValues(created) {
		cs.FieldChanges[field] = model.FieldChange{From: nil, To: value}
		cs.NewValues[field] = value
	}
	markAssociations(cs, assoc, true)
	return cs
}

// BuildUpdateChanges 更新时的变更集，只包含值不同的字段
func BuildUpdateChanges(before, after *model.Ruleset, assoc AssociationChanges) *model.ChangeSet {
	cs := newChangeSet()
	oldValues := trackedValues(before)
	newValues := trackedValues(after)
	for field, from := range oldValues {
		to := newValues[field]
		if from == to {
			continue
		}
		cs.FieldChanges[field] = model.FieldChange{From: from, To: to}
		cs.OldValues[field] = from
		cs.NewValues[field] = to
	}
	markAssociations(cs, assoc, false)
	return cs
}

// BuildDeleteChanges 删除时的变更集，新值为空
func BuildDeleteChanges(deleted *model.Ruleset) *model.ChangeSet {
	cs := newChangeSet()
	for field, value := range trackedValues(deleted) {
		cs.FieldChanges[field] = model.FieldChange{From: value, To: nil}
		cs.OldValues[field] = value
	}
	return cs
}

// Actor 操作者快照
type Actor struct {
	UserID    int64
	Username  string
	Role      model.UserRole
	IP        string
	UserAgent string
}

// IsAdmin 是否管理员
func (a *Actor) IsAdmin() bool {
	return a != nil && a.Role == model.RoleAdmin
}

// AuditInput 一次审计写入
type AuditInput struct {
	RulesetID     int64
	Action        model.AuditAction
	Changes       *model.ChangeSet
	VersionBefore model.VersionMarker
	VersionAfter  model.VersionMarker
	Actor         *Actor
}

// AuditQuery 审计日志查询条件
type AuditQuery struct {
	RulesetID *int64            `form:"ruleset_id"`
	UserID    *int64            `form:"user_id"`
	Action    model.AuditAction `form:"action" binding:"omitempty,oneof=created updated deleted"`
	StartTime *time.Time        `form:"start_time" time_format:"2006-01-02T15:04:05Z07:00"`
	EndTime   *time.Time        `form:"end_time" time_format:"2006-01-02T15:04:05Z07:00"`
}

// AuditService 审计服务
type AuditService struct {
	auditRepo repository.AuditLogRepository
	logger    *zap.Logger
}

// NewAuditService 创建审计服务
func NewAuditService(auditRepo repository.AuditLogRepository, log *zap.Logger) *AuditService {
	if log == nil {
		log = logger.L()
	}
	return &AuditService{
		auditRepo: auditRepo,
		logger:    log.Named("audit"),
	}
}

// Record 写入审计日志
//
// 在主操作提交之后调用，写入失败只记录日志，不向调用方返回错误。
func (s *AuditService) Record(ctx context.Context, in *AuditInput) {
	entry, err := s.newEntry(in)
	if err == nil {
		err = s.auditRepo.Create(ctx, entry)
	}
	if err != nil {
		metrics.RecordAuditWriteFailure(string(in.Action))
		s.logger.Error("failed to write audit log",
			zap.Int64("ruleset_id", in.RulesetID),
			zap.String("action", string(in.Action)),
			zap.Error(err))
		return
	}
	s.logger.Debug("audit log written",
		zap.Int64("id", entry.ID),
		zap.Int64("ruleset_id", in.RulesetID),
		zap.String("action", string(in.Action)))
}

func (s *AuditService) newEntry(in *AuditInput) (*model.AuditLogEntry, error) {
	changes := in.Changes
	if changes == nil {
		changes = newChangeSet()
	}

	entry := &model.AuditLogEntry{
		RulesetID:     in.RulesetID,
		Action:        in.Action,
		VersionBefore: in.VersionBefore.Text(),
		VersionAfter:  in.VersionAfter.Text(),
	}

	var err error
	if entry.FieldChanges, err = encodeJSON(changes.FieldChanges); err != nil {
		return nil, err
	}
	if entry.OldValues, err = encodeJSON(changes.OldValues); err != nil {
		return nil, err
	}
	if entry.NewValues, err = encodeJSON(changes.NewValues); err != nil {
		return nil, err
	}

	if in.Actor != nil {
		if in.Actor.UserID > 0 {
			userID := in.Actor.UserID
			entry.UserID = &userID
		}
		entry.UserName = in.Actor.Username
		entry.IPAddress = in.Actor.IP
		entry.UserAgent = in.Actor.UserAgent
	}
	return entry, nil
}

func encodeJSON(v interface{}) (*string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

// ListByRuleset 获取某个规则集的审计日志，最新的在前
func (s *AuditService) ListByRuleset(ctx context.Context, rulesetID int64, page *model.Pagination) ([]*model.AuditRecord, error) {
	return s.List(ctx, page, &AuditQuery{RulesetID: &rulesetID})
}

// List 获取审计日志列表
func (s *AuditService) List(ctx context.Context, page *model.Pagination, query *AuditQuery) ([]*model.AuditRecord, error) {
	filter := &repository.AuditLogFilter{}
	if query != nil {
		filter.RulesetID = query.RulesetID
		filter.UserID = query.UserID
		filter.Action = query.Action
		filter.StartTime = query.StartTime
		filter.EndTime = query.EndTime
	}

	entries, err := s.auditRepo.List(ctx, page, filter)
	if err != nil {
		return nil, err
	}

	records := make([]*model.AuditRecord, 0, len(entries))
	for _, entry := range entries {
		records = append(records, s.decode(entry))
	}
	return records, nil
}

// Get 根据 ID 获取审计日志，不存在时返回 nil
func (s *AuditService) Get(ctx context.Context, id int64) (*model.AuditRecord, error) {
	entry, err := s.auditRepo.GetByID(ctx, id)
	if err != nil || entry == nil {
		return nil, err
	}
	return s.decode(entry), nil
}

// decode 解析存储的映射，无法解析的字段置空并标记 Corrupt
func (s *AuditService) decode(entry *model.AuditLogEntry) *model.AuditRecord {
	record := &model.AuditRecord{
		ID:        entry.ID,
		RulesetID: entry.RulesetID,
		Action:    entry.Action,
		UserID:    entry.UserID,
		UserName:  entry.UserName,
		IPAddress: entry.IPAddress,
		UserAgent: entry.UserAgent,
		Timestamp: entry.Timestamp,
	}

	corrupt := func(column string, err error) {
		record.Corrupt = true
		s.logger.Warn("malformed audit log payload",
			zap.Int64("id", entry.ID),
			zap.String("column", column),
			zap.Error(err))
	}

	marker := func(column string, raw *string) model.VersionMarker {
		if raw == nil {
			return model.VersionMarker{}
		}
		m, err := model.ParseVersionMarker(*raw)
		if err != nil {
			corrupt(column, err)
		}
		return m
	}
	record.VersionBefore = marker("version_before", entry.VersionBefore)
	record.VersionAfter = marker("version_after", entry.VersionAfter)

	if entry.FieldChanges != nil {
		changes, err := decodeFieldChanges(*entry.FieldChanges)
		if err != nil {
			corrupt("field_changes", err)
		} else {
			record.FieldChanges = changes
		}
	}
	if entry.OldValues != nil {
		if err := json.Unmarshal([]byte(*entry.OldValues), &record.OldValues); err != nil {
			record.OldValues = nil
			corrupt("old_values", err)
		}
	}
	if entry.NewValues != nil {
		if err := json.Unmarshal([]byte(*entry.NewValues), &record.NewValues); err != nil {
			record.NewValues = nil
			corrupt("new_values", err)
		}
	}
	return record
}

// decodeFieldChanges 兼容 {from,to} 对象与旧数据中的 [from, to] 数组
func decodeFieldChanges(raw string) (map[string]model.FieldChange, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, err
	}

	changes := make(map[string]model.FieldChange, len(fields))
	for field, value := range fields {
		var change model.FieldChange
		var pair []interface{}
		var obj map[string]interface{}

		switch {
		case json.Unmarshal(value, &pair) == nil && len(pair) == 2:
			change = model.FieldChange{From: pair[0], To: pair[1]}
		case json.Unmarshal(value, &obj) == nil && hasFromTo(obj):
			change = model.FieldChange{From: obj["from"], To: obj["to"]}
		default:
			var plain interface{}
			if err := json.Unmarshal(value, &plain); err != nil {
				return nil, err
			}
			change = model.FieldChange{To: plain}
		}
		changes[field] = change
	}
	return changes, nil
}

func hasFromTo(obj map[string]interface{}) bool {
	if obj == nil {
		return false
	}
	_, from := obj["from"]
	_, to := obj["to"]
	return from || to
}
