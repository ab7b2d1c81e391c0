package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	pkgerrors "github.com/ryckox/syntagma/pkg/errors"
	"github.com/ryckox/syntagma/pkg/logger"
)

// Response 统一响应结构
type Response struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Error   string            `json:"error,omitempty"`
	Details map[string]string `json:"details,omitempty"`
	Data    interface{}       `json:"data,omitempty"`
}

// PagedResponse 分页响应
type PagedResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
	Meta    PageMeta    `json:"meta"`
}

// PageMeta 分页元数据
type PageMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage 成功响应带消息
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: message,
		Data:    data,
	})
}

// SuccessPaged 分页成功响应
func SuccessPaged(c *gin.Context, data interface{}, page, pageSize int, total int64, totalPages int) {
	c.JSON(http.StatusOK, PagedResponse{
		Code:    0,
		Message: "success",
		Data:    data,
		Meta: PageMeta{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
		},
	})
}

// HandleError 按业务错误码写出错误响应，未知错误按 500 处理
func HandleError(c *gin.Context, err error) {
	bizErr := pkgerrors.FromError(err)
	if bizErr.HTTPStatus >= http.StatusInternalServerError {
		logger.WithContext(c.Request.Context()).Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(bizErr.HTTPStatus, Response{
		Code:    bizErr.HTTPStatus,
		Message: bizErr.Message,
		Error:   bizErr.Code,
		Details: bizErr.Details,
	})
}

// BindError 请求绑定或校验失败
func BindError(c *gin.Context, err error) {
	bizErr := pkgerrors.ErrInvalidRequest
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			bizErr = bizErr.WithDetail(fieldName(fe), fe.Tag())
		}
	} else {
		bizErr = bizErr.WithDetail("body", err.Error())
	}
	HandleError(c, bizErr)
}

// fieldName 取 json 名优先的字段路径
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	return ns
}

// BadRequest 请求参数错误
func BadRequest(c *gin.Context, message string) {
	HandleError(c, pkgerrors.ErrInvalidRequest.WithMessage(message))
}
