// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 错误分类，决定传输层的状态码
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation_error"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeStore      ErrorType = "store_failure"
)

// AppError 服务层返回的错误
// Message 可以直接展示给客户端，Err 只用于日志
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func newAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{Type: errType, Message: message, Err: cause}
}

// NewValidationError 请求体无法解析
func NewValidationError(message string, cause error) *AppError {
	return newAppError(ErrorTypeValidation, message, cause)
}

// NewNotFoundError 会话或世界不存在
func NewNotFoundError(message string, cause error) *AppError {
	return newAppError(ErrorTypeNotFound, message, cause)
}

// NewStoreError 包装持久层故障，保留原始错误用于诊断
func NewStoreError(message string, cause error) *AppError {
	return newAppError(ErrorTypeStore, message, cause)
}

// IsValidationError 错误链中是否有验证错误
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsNotFoundError 错误链中是否有未找到错误
func IsNotFoundError(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsStoreError 错误链中是否有存储故障
func IsStoreError(err error) bool {
	return hasType(err, ErrorTypeStore)
}

// Message 返回可展示的错误信息；非 AppError 返回 fallback
func Message(err error, fallback string) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return fallback
}

func hasType(err error, errType ErrorType) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == errType
}
