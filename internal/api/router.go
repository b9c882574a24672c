// internal/api/router.go
package api

import (
	"fmt"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Corphon/odissey/internal/config"
	"github.com/Corphon/odissey/internal/di"
	"github.com/Corphon/odissey/internal/services"
	"github.com/Corphon/odissey/internal/utils"
)

// SetupRouter 从依赖注入容器取出服务并配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()

	userService, ok := container.Get("user").(*services.UserService)
	if !ok {
		return nil, fmt.Errorf("用户服务未正确初始化")
	}

	worldService, ok := container.Get("world").(*services.WorldService)
	if !ok {
		return nil, fmt.Errorf("世界服务未正确初始化")
	}

	sessionService, ok := container.Get("session").(*services.SessionService)
	if !ok {
		return nil, fmt.Errorf("会话服务未正确初始化")
	}

	metrics, ok := container.Get("metrics").(*utils.APIMetrics)
	if !ok {
		return nil, fmt.Errorf("指标服务未正确初始化")
	}

	transcripts, ok := container.Get("transcripts").(*TranscriptHub)
	if !ok {
		transcripts = NewTranscriptHub(metrics.Collector())
		container.Register("transcripts", transcripts)
	}

	handler := NewHandler(userService, worldService, sessionService, transcripts, metrics, cfg.DebugMode)
	return NewRouter(handler, cfg), nil
}

// NewRouter 注册路由表
func NewRouter(handler *Handler, cfg *config.Config) *gin.Engine {
	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(MetricsMiddleware(handler.Metrics))
	r.Use(corsMiddleware(cfg.CORSOrigins))
	if cfg.DebugMode {
		r.Use(gin.Logger())
	}

	limiter := NewRateLimiter()

	r.GET("/", handler.HealthCheck)
	r.GET("/demo-worlds", handler.ListDemoWorlds)
	r.GET("/metrics", handler.GetMetrics)

	r.POST("/users", handler.CreateUser)

	worlds := r.Group("/worlds")
	{
		worlds.GET("", handler.ListWorlds)
		worlds.POST("", handler.CreateWorld)
		worlds.GET("/:id", handler.GetWorld)
	}

	sessions := r.Group("/sessions")
	{
		sessions.POST("", handler.CreateSession)
		sessions.POST("/:id/interact", InteractRateLimit(limiter, handler.Response, cfg.RateLimitPerMinute), handler.Interact)
		sessions.GET("/:id/transcript", handler.GetTranscript)
	}

	// WebSocket 会话记录推送
	r.GET("/ws/sessions/:id", handler.SessionWebSocket)

	r.NoRoute(handler.NotFound)

	return r
}

// corsMiddleware 实现跨域资源共享
func corsMiddleware(origins []string) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:        12 * time.Hour,
	}

	corsConfig.AllowAllOrigins = len(origins) == 0 || slices.Contains(origins, "*")
	if !corsConfig.AllowAllOrigins {
		corsConfig.AllowOrigins = origins
	}
	return cors.New(corsConfig)
}
