package service

import "github.com/ryckox/syntagma/internal/model"

// InitialVersion 新建规则集的版本号：直接发布为 1，否则为 0
func InitialVersion(status model.RulesetStatus) int {
	if status == model.RulesetStatusPublished {
		return 1
	}
	return 0
}

// NextVersion 更新后的版本号
//
// 进入发布状态时至少为 1；保持发布状态且内容有变化时加 1；其余情况不变。
// contentChanged 指请求中带有 title、content、type_id、topic_ids 或目录。
func NextVersion(prevStatus model.RulesetStatus, prevVersion int, newStatus model.RulesetStatus, contentChanged bool) int {
	wasPublished := prevStatus == model.RulesetStatusPublished
	willBePublished := newStatus == model.RulesetStatusPublished

	switch {
	case willBePublished && !wasPublished:
		if prevVersion < 1 {
			return 1
		}
		return prevVersion
	case willBePublished && contentChanged:
		return prevVersion + 1
	default:
		return prevVersion
	}
}
