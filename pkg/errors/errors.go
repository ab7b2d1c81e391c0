// Package errors 定义带错误码和 HTTP 状态的业务错误
package errors

import (
	"errors"
	"maps"
	"net/http"
)

// Error 业务错误，Code 相同即视为同一错误
type Error struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
	cause      error
}

func (e *Error) Error() string {
	msg := e.Code + ": " + e.Message
	if e.cause != nil {
		msg += " (cause: " + e.cause.Error() + ")"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is 按错误码比较
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// clone 哨兵错误是共享的，修改前必须复制
func (e *Error) clone() *Error {
	c := *e
	c.Details = maps.Clone(e.Details)
	return &c
}

// WithDetail 返回附加了字段详情的副本
func (e *Error) WithDetail(key, value string) *Error {
	c := e.clone()
	if c.Details == nil {
		c.Details = map[string]string{}
	}
	c.Details[key] = value
	return c
}

// WithMessage 返回替换了提示信息的副本
func (e *Error) WithMessage(message string) *Error {
	c := e.clone()
	c.Message = message
	return c
}

// NewWithStatus 定义新的错误码
func NewWithStatus(code, message string, httpStatus int) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap 保留 err 的错误码并记录底层原因
func Wrap(err *Error, cause error) *Error {
	c := err.clone()
	c.cause = cause
	return c
}

// FromError 提取错误链中的业务错误，找不到时归为内部错误
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var bizErr *Error
	if errors.As(err, &bizErr) {
		return bizErr
	}
	return Wrap(ErrInternal, err)
}

// Is 等同 errors.Is
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// 通用
var (
	ErrInternal       = NewWithStatus("INTERNAL_ERROR", "内部错误", http.StatusInternalServerError)
	ErrInvalidRequest = NewWithStatus("INVALID_REQUEST", "请求参数无效", http.StatusBadRequest)
	ErrUnauthorized   = NewWithStatus("UNAUTHORIZED", "未授权", http.StatusUnauthorized)
	ErrForbidden      = NewWithStatus("FORBIDDEN", "禁止访问", http.StatusForbidden)
	ErrNotFound       = NewWithStatus("NOT_FOUND", "资源不存在", http.StatusNotFound)
	ErrConflict       = NewWithStatus("CONFLICT", "资源冲突", http.StatusConflict)
)

// 规章
var (
	ErrRulesetNotFound   = NewWithStatus("RULESET_NOT_FOUND", "规章不存在", http.StatusNotFound)
	ErrTypeNotFound      = NewWithStatus("TYPE_NOT_FOUND", "指定的类型不存在", http.StatusBadRequest)
	ErrTopicMismatch     = NewWithStatus("TOPIC_MISMATCH", "主题不存在或不属于指定类型", http.StatusBadRequest)
	ErrNoChanges         = NewWithStatus("NO_CHANGES", "未提供任何更新数据", http.StatusBadRequest)
	ErrVersionConflict   = NewWithStatus("VERSION_CONFLICT", "规章已被并发修改，请重试", http.StatusConflict)
	ErrInvalidCredential = NewWithStatus("INVALID_CREDENTIAL", "用户名或密码错误", http.StatusUnauthorized)
	ErrAccountDisabled   = NewWithStatus("ACCOUNT_DISABLED", "账户已禁用", http.StatusForbidden)
)

// 分类与用户管理
var (
	ErrTopicNotFound = NewWithStatus("TOPIC_NOT_FOUND", "主题不存在", http.StatusNotFound)
	ErrUserNotFound  = NewWithStatus("USER_NOT_FOUND", "用户不存在", http.StatusNotFound)
	ErrNameTaken     = NewWithStatus("NAME_TAKEN", "名称已被占用", http.StatusConflict)
	ErrInUse         = NewWithStatus("IN_USE", "仍被规章引用，无法删除", http.StatusConflict)
	ErrSelfAction    = NewWithStatus("SELF_ACTION", "不能对自己的账户执行此操作", http.StatusBadRequest)
)
