package model

import "time"

// AuditAction 审计动作类型
type AuditAction string

const (
	AuditActionCreated AuditAction = "created"
	AuditActionUpdated AuditAction = "updated"
	AuditActionDeleted AuditAction = "deleted"
)

// AssociationChanged 关联整体替换时记录的标记值
const AssociationChanged = "changed"

// AuditLogEntry 规则集审计日志，写入后不再修改
//
// 三个映射和两个版本标记都以原始文本存储，读取时再解析，解析失败不影响整行读取。
type AuditLogEntry struct {
	ID            int64       `gorm:"primaryKey;column:id" json:"id"`
	RulesetID     int64       `gorm:"column:ruleset_id;index" json:"ruleset_id"`
	Action        AuditAction `gorm:"column:action" json:"action"`
	FieldChanges  *string     `gorm:"column:field_changes;type:text" json:"-"`
	OldValues     *string     `gorm:"column:old_values;type:text" json:"-"`
	NewValues     *string     `gorm:"column:new_values;type:text" json:"-"`
	VersionBefore *string     `gorm:"column:version_before;type:text" json:"-"`
	VersionAfter  *string     `gorm:"column:version_after;type:text" json:"-"`
	UserID        *int64      `gorm:"column:user_id;index" json:"user_id"`
	UserName      string      `gorm:"column:user_name" json:"user_name"`
	IPAddress     string      `gorm:"column:ip_address" json:"ip_address"`
	UserAgent     string      `gorm:"column:user_agent" json:"user_agent"`
	Timestamp     time.Time   `gorm:"column:timestamp;autoCreateTime" json:"timestamp"`
}

// TableName 表名
func (AuditLogEntry) TableName() string {
	return "ruleset_audit_log"
}

// FieldChange 单个字段的前后值
type FieldChange struct {
	From interface{} `json:"from"`
	To   interface{} `json:"to"`
}

// ChangeSet 一次变更的三组映射
type ChangeSet struct {
	FieldChanges map[string]FieldChange
	OldValues    JSONMap
	NewValues    JSONMap
}

// AuditRecord 解析后的审计记录
type AuditRecord struct {
	ID            int64                  `json:"id"`
	RulesetID     int64                  `json:"ruleset_id"`
	Action        AuditAction            `json:"action"`
	FieldChanges  map[string]FieldChange `json:"field_changes"`
	OldValues     JSONMap                `json:"old_values"`
	NewValues     JSONMap                `json:"new_values"`
	VersionBefore VersionMarker          `json:"version_before"`
	VersionAfter  VersionMarker          `json:"version_after"`
	UserID        *int64                 `json:"user_id"`
	UserName      string                 `json:"user_name"`
	IPAddress     string                 `json:"ip_address"`
	UserAgent     string                 `json:"user_agent"`
	Timestamp     time.Time              `json:"timestamp"`
	// Corrupt 存储的映射无法解析
	Corrupt bool `json:"corrupt,omitempty"`
}
