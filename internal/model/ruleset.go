package model

import "time"

// RulesetStatus 规则集状态
type RulesetStatus string

const (
	RulesetStatusDraft     RulesetStatus = "draft"
	RulesetStatusPublished RulesetStatus = "published"
	RulesetStatusArchived  RulesetStatus = "archived"
)

// IsValid 是否合法状态
func (s RulesetStatus) IsValid() bool {
	switch s {
	case RulesetStatusDraft, RulesetStatusPublished, RulesetStatusArchived:
		return true
	}
	return false
}

// Ruleset 规则集
type Ruleset struct {
	ID            int64         `gorm:"primaryKey;column:id" json:"id"`
	Title         string        `gorm:"column:title" json:"title"`
	Content       string        `gorm:"column:content" json:"content"`
	Status        RulesetStatus `gorm:"column:status" json:"status"`
	Version       int           `gorm:"column:version" json:"version"`
	TypeID        int64         `gorm:"column:type_id" json:"type_id"`
	CreatedBy     int64         `gorm:"column:created_by" json:"created_by"`
	CreatedAt     time.Time     `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"column:updated_at" json:"updated_at"`
	EffectiveDate *time.Time    `gorm:"column:effective_date" json:"effective_date,omitempty"`

	Type            *RulesetType           `gorm:"foreignKey:TypeID" json:"type,omitempty"`
	Creator         *User                  `gorm:"foreignKey:CreatedBy" json:"creator,omitempty"`
	Topics          []Topic                `gorm:"many2many:ruleset_topics" json:"topics"`
	Tags            []Tag                  `gorm:"many2many:ruleset_tags" json:"tags"`
	TableOfContents []TableOfContentsEntry `gorm:"foreignKey:RulesetID" json:"table_of_contents"`
}

// TableName 表名
func (Ruleset) TableName() string {
	return "rulesets"
}

// TopicIDs 返回关联主题 ID
func (r *Ruleset) TopicIDs() []int64 {
	ids := make([]int64, 0, len(r.Topics))
	for _, t := range r.Topics {
		ids = append(ids, t.ID)
	}
	return ids
}

// TagNames 返回关联标签名
func (r *Ruleset) TagNames() []string {
	names := make([]string, 0, len(r.Tags))
	for _, t := range r.Tags {
		names = append(names, t.Name)
	}
	return names
}

// TableOfContentsEntry 目录条目
type TableOfContentsEntry struct {
	ID         int64  `gorm:"primaryKey;column:id" json:"id"`
	RulesetID  int64  `gorm:"column:ruleset_id" json:"ruleset_id"`
	Level      int    `gorm:"column:level" json:"level"`
	Title      string `gorm:"column:title" json:"title"`
	Content    string `gorm:"column:content" json:"content"`
	OrderIndex int    `gorm:"column:order_index" json:"order_index"`
}

// TableName 表名
func (TableOfContentsEntry) TableName() string {
	return "table_of_contents"
}
