// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest        = "BAD_REQUEST"
	ErrorNotFound          = "NOT_FOUND"
	ErrorInternalError     = "INTERNAL_ERROR"
	ErrorRateLimitExceeded = "RATE_LIMIT_EXCEEDED"

	// 资源不存在
	ErrorSessionNotFound = "SESSION_NOT_FOUND"
	ErrorWorldNotFound   = "WORLD_NOT_FOUND"

	// 存储失败
	ErrorStoreFailure = "STORE_FAILURE"
)
