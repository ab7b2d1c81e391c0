package model

import "time"

// RulesetType 规则集类型
type RulesetType struct {
	ID          int64     `gorm:"primaryKey;column:id" json:"id"`
	Name        string    `gorm:"column:name;uniqueIndex" json:"name"`
	Description string    `gorm:"column:description" json:"description"`
	Color       string    `gorm:"column:color" json:"color"`
	Icon        string    `gorm:"column:icon" json:"icon"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName 表名
func (RulesetType) TableName() string {
	return "ruleset_types"
}

// Topic 主题，隶属于某个类型
type Topic struct {
	ID          int64     `gorm:"primaryKey;column:id" json:"id"`
	Name        string    `gorm:"column:name" json:"name"`
	Description string    `gorm:"column:description" json:"description"`
	TypeID      int64     `gorm:"column:type_id" json:"type_id"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName 表名
func (Topic) TableName() string {
	return "topics"
}

// Tag 标签
type Tag struct {
	ID        int64     `gorm:"primaryKey;column:id" json:"id"`
	Name      string    `gorm:"column:name;uniqueIndex" json:"name"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName 表名
func (Tag) TableName() string {
	return "tags"
}
