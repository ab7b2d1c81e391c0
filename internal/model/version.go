package model

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// VersionKind 版本标记类别，零值表示缺失
type VersionKind uint8

const (
	VersionAbsent VersionKind = iota
	VersionUnpublished
	VersionNumbered
	VersionDeleted
)

const (
	markerUnpublished = "unpublished"
	markerDeleted     = "deleted"
)

// VersionMarker 审计记录中的版本前后值
//
// 存储为文本: "unpublished"、"<n>"、"deleted"，缺失时为 NULL。
// 审计表中的原始文本由读取方用 ParseVersionMarker 解析。
// 历史数据中的 "0" 读作 unpublished。
type VersionMarker struct {
	Kind   VersionKind
	Number int
}

// Unpublished 从未发布
func Unpublished() VersionMarker {
	return VersionMarker{Kind: VersionUnpublished}
}

// Numbered 已发布版本号
func Numbered(n int) VersionMarker {
	return VersionMarker{Kind: VersionNumbered, Number: n}
}

// Deleted 已删除
func Deleted() VersionMarker {
	return VersionMarker{Kind: VersionDeleted}
}

// MarkerForVersion 版本计数器转换为标记，0 表示未发布过
func MarkerForVersion(version int) VersionMarker {
	if version <= 0 {
		return Unpublished()
	}
	return Numbered(version)
}

// IsAbsent 是否缺失
func (m VersionMarker) IsAbsent() bool {
	return m.Kind == VersionAbsent
}

// String 规范文本形式，缺失时为空串
func (m VersionMarker) String() string {
	switch m.Kind {
	case VersionUnpublished:
		return markerUnpublished
	case VersionNumbered:
		return strconv.Itoa(m.Number)
	case VersionDeleted:
		return markerDeleted
	default:
		return ""
	}
}

// ParseVersionMarker 解析文本形式
func ParseVersionMarker(s string) (VersionMarker, error) {
	switch s {
	case "":
		return VersionMarker{}, nil
	case markerUnpublished:
		return Unpublished(), nil
	case markerDeleted:
		return Deleted(), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return VersionMarker{}, fmt.Errorf("invalid version marker %q", s)
	}
	return MarkerForVersion(n), nil
}

// Text 存储文本，缺失时为 nil
func (m VersionMarker) Text() *string {
	if m.IsAbsent() {
		return nil
	}
	s := m.String()
	return &s
}

// MarshalJSON 缺失时输出 null
func (m VersionMarker) MarshalJSON() ([]byte, error) {
	if m.IsAbsent() {
		return []byte("null"), nil
	}
	return json.Marshal(m.String())
}

// UnmarshalJSON 接受字符串、数字或 null
func (m *VersionMarker) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = VersionMarker{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := ParseVersionMarker(s)
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid version marker %s", data)
	}
	*m = MarkerForVersion(n)
	return nil
}
