// internal/api/handlers.go
package api

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Corphon/odissey/internal/errors"
	"github.com/Corphon/odissey/internal/models"
	"github.com/Corphon/odissey/internal/services"
	"github.com/Corphon/odissey/internal/utils"
)

const (
	serviceName    = "Odissey Storytelling API"
	serviceVersion = "0.1.0"
)

// Handler 处理API请求
type Handler struct {
	UserService    *services.UserService    // 用户服务
	WorldService   *services.WorldService   // 世界服务
	SessionService *services.SessionService // 会话服务
	Transcripts    *TranscriptHub           // 会话记录推送
	Metrics        *utils.APIMetrics        // 请求指标
	Response       *ResponseHelper          // 响应助手
	logger         *utils.Logger
}

// NewHandler 创建API处理器
func NewHandler(users *services.UserService, worlds *services.WorldService, sessions *services.SessionService,
	transcripts *TranscriptHub, metrics *utils.APIMetrics, debug bool) *Handler {
	if metrics == nil {
		metrics = utils.NewAPIMetrics(nil)
	}
	if transcripts == nil {
		transcripts = NewTranscriptHub(metrics.Collector())
	}
	return &Handler{
		UserService:    users,
		WorldService:   worlds,
		SessionService: sessions,
		Transcripts:    transcripts,
		Metrics:        metrics,
		Response:       NewResponseHelper(debug),
		logger:         utils.GetLogger(),
	}
}

// CreateSessionRequest 创建会话的请求体
type CreateSessionRequest struct {
	UserID              string             `json:"user_id"`
	WorldID             string             `json:"world_id"`
	PersonalitySnapshot models.Personality `json:"personality_snapshot"`
}

// InteractRequest 互动请求体，只读取 message
type InteractRequest struct {
	Message string `json:"message"`
}

// bindPayload 解析请求体；空请求体等同于 {}
func bindPayload(c *gin.Context, v interface{}) error {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return apperrors.NewValidationError("Failed to read request body", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperrors.NewValidationError("Invalid JSON body", err)
	}
	return nil
}

// writeError 把服务层错误映射为HTTP响应
func (h *Handler) writeError(c *gin.Context, resource string, err error) {
	message := apperrors.Message(err, "Internal server error")

	switch {
	case apperrors.IsValidationError(err):
		h.Response.BadRequest(c, message, err.Error())
	case apperrors.IsNotFoundError(err):
		h.Response.NotFound(c, resource, message)
	case apperrors.IsStoreError(err):
		h.Metrics.Increment(utils.MetricStoreFailures)
		h.logger.Error(message, map[string]interface{}{
			"path":       c.FullPath(),
			"request_id": c.GetString(requestIDKey),
			"error":      err.Error(),
		})
		h.Response.InternalError(c, ErrorStoreFailure, message, err.Error())
	default:
		h.logger.Error("请求处理失败", map[string]interface{}{"path": c.FullPath(), "error": err.Error()})
		h.Response.InternalError(c, ErrorInternalError, message, err.Error())
	}
}

// HealthCheck 服务健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"status":    "healthy",
		"service":   serviceName,
		"version":   serviceVersion,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ListDemoWorlds 公开演示世界列表
func (h *Handler) ListDemoWorlds(c *gin.Context) {
	demos, err := h.WorldService.ListDemoWorlds(c.Request.Context())
	if err != nil {
		h.writeError(c, "world", err)
		return
	}
	h.Response.Success(c, gin.H{"demo_worlds": demos})
}

// CreateUser 创建用户
func (h *Handler) CreateUser(c *gin.Context) {
	var req services.CreateUserRequest
	if err := bindPayload(c, &req); err != nil {
		h.writeError(c, "user", err)
		return
	}

	result, err := h.UserService.CreateUser(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, "user", err)
		return
	}
	h.Metrics.Increment(utils.MetricUsersCreated)
	h.Response.Success(c, result)
}

// CreateWorld 创建世界
func (h *Handler) CreateWorld(c *gin.Context) {
	var req services.CreateWorldRequest
	if err := bindPayload(c, &req); err != nil {
		h.writeError(c, "world", err)
		return
	}

	result, err := h.WorldService.CreateWorld(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, "world", err)
		return
	}
	h.Metrics.Increment(utils.MetricWorldsCreated)
	h.Response.Success(c, result)
}

// ListWorlds 公开世界列表
func (h *Handler) ListWorlds(c *gin.Context) {
	worlds, err := h.WorldService.ListWorlds(c.Request.Context())
	if err != nil {
		h.writeError(c, "world", err)
		return
	}
	h.Response.Success(c, gin.H{"worlds": worlds})
}

// GetWorld 获取单个世界
func (h *Handler) GetWorld(c *gin.Context) {
	world, err := h.WorldService.GetWorld(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "world", err)
		return
	}
	h.Response.Success(c, world)
}

// CreateSession 创建会话并返回开场白
func (h *Handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := bindPayload(c, &req); err != nil {
		h.writeError(c, "session", err)
		return
	}

	result, err := h.SessionService.CreateSession(c.Request.Context(), req.UserID, req.WorldID, req.PersonalitySnapshot)
	if err != nil {
		h.writeError(c, "session", err)
		return
	}

	h.Metrics.Increment(utils.MetricSessionsCreated)
	if result.Opening == nil {
		h.Metrics.Increment(utils.MetricSessionsWithoutWorld)
		h.logger.Warn("会话引用的世界不存在", map[string]interface{}{
			"session_id": result.SessionID,
			"world_id":   req.WorldID,
		})
	}
	h.Transcripts.PublishChatLog(result.SessionID, result.Opening)
	h.Response.Success(c, result)
}

// Interact 处理一次会话互动
func (h *Handler) Interact(c *gin.Context) {
	sessionID := c.Param("id")

	var req InteractRequest
	if err := bindPayload(c, &req); err != nil {
		h.writeError(c, "session", err)
		return
	}

	start := time.Now()
	result, err := h.SessionService.ProcessTurn(c.Request.Context(), sessionID, req.Message)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			h.Metrics.Increment(utils.MetricTurnsSessionNotFound)
		}
		h.writeError(c, "session", err)
		return
	}
	h.Metrics.RecordTurn(time.Since(start))

	h.Transcripts.PublishChatLog(sessionID, result.UserEntry, result.NarratorEntry)
	h.Response.Success(c, result)
}

// GetTranscript 获取会话记录
func (h *Handler) GetTranscript(c *gin.Context) {
	sessionID := c.Param("id")
	logs, err := h.SessionService.Transcript(c.Request.Context(), sessionID)
	if err != nil {
		h.writeError(c, "session", err)
		return
	}
	h.Response.Success(c, gin.H{
		"session_id": sessionID,
		"entries":    logs,
	})
}

// SessionWebSocket 订阅会话记录推送
func (h *Handler) SessionWebSocket(c *gin.Context) {
	h.Transcripts.ServeSession(c)
}

// GetMetrics 指标快照
func (h *Handler) GetMetrics(c *gin.Context) {
	h.Response.Success(c, h.Metrics.Collector().GetMetrics())
}

// NotFound 未匹配的路由
func (h *Handler) NotFound(c *gin.Context) {
	h.Response.NotFound(c, "", "Not found")
}
