// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/Corphon/odissey/internal/api"
	"github.com/Corphon/odissey/internal/config"
	"github.com/Corphon/odissey/internal/di"
	"github.com/Corphon/odissey/internal/services"
	"github.com/Corphon/odissey/internal/storage"
	"github.com/Corphon/odissey/internal/utils"
)

// Server 可被优雅关闭的HTTP服务器
type Server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// App 应用实例：配置、路由、服务器和停止信号
type App struct {
	config   *config.Config
	router   http.Handler
	server   Server
	stopChan chan os.Signal
}

var (
	instance *App
	appMutex sync.Mutex
)

const shutdownTimeout = 30 * time.Second

// GetApp 获取应用单例
func GetApp() *App {
	appMutex.Lock()
	defer appMutex.Unlock()

	if instance == nil {
		instance = &App{
			stopChan: make(chan os.Signal, 1),
		}
	}
	return instance
}

// Initialize 按顺序完成配置、日志、服务、路由的初始化
func Initialize(cfg *config.Config) error {
	app := GetApp()
	app.config = cfg
	config.SetCurrentConfig(cfg)

	if err := initLogger(cfg.LogDir); err != nil {
		return fmt.Errorf("初始化日志系统失败: %w", err)
	}

	if err := InitServices(); err != nil {
		return fmt.Errorf("初始化服务失败: %w", err)
	}

	router, err := api.SetupRouter()
	if err != nil {
		return fmt.Errorf("设置路由失败: %w", err)
	}
	app.router = router
	app.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	utils.GetLogger().Info("应用初始化完成", map[string]interface{}{
		"port":            cfg.Port,
		"db_path":         cfg.DBPath,
		"serialize_turns": cfg.SerializeTurns,
		"services":        di.GetContainer().GetNames(),
	})
	return nil
}

// initLogger 日志文件按日期命名
func initLogger(logDir string) error {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return err
	}
	logFile := filepath.Join(logDir, fmt.Sprintf("odissey_%s.log", time.Now().Format("2006-01-02")))
	return utils.InitLogger(logFile, IsDebugMode())
}

// InitServices 按依赖顺序创建并注册服务，已注册的服务不会被替换
func InitServices() error {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()
	logger := utils.GetLogger()

	// 1. 存储
	if !container.Has("store") {
		sqliteStore, err := storage.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("打开数据库失败: %w", err)
		}
		container.Register("store", storage.NewCachedStore(sqliteStore, cfg.CacheSize, cfg.CacheTTL))
		logger.Info("数据库已打开", map[string]interface{}{
			"path":       cfg.DBPath,
			"cache_size": cfg.CacheSize,
		})
	}
	store, ok := container.Get("store").(storage.Store)
	if !ok {
		return fmt.Errorf("存储服务类型不正确")
	}

	// 2. 指标
	if !container.Has("metrics") {
		container.Register("metrics", utils.NewAPIMetrics(utils.GetMetricsCollector()))
	}

	// 3. 叙事引擎
	if !container.Has("narrative") {
		container.Register("narrative", services.NewNarrativeEngine(services.NewRandomSource()))
	}
	engine, ok := container.Get("narrative").(*services.NarrativeEngine)
	if !ok {
		return fmt.Errorf("叙事引擎类型不正确")
	}

	// 4. 会话锁（可选）
	var locks *services.LockManager
	if cfg.SerializeTurns {
		if !container.Has("locks") {
			container.Register("locks", services.NewLockManager())
		}
		locks, _ = container.Get("locks").(*services.LockManager)
	}

	// 5. 业务服务
	if !container.Has("user") {
		container.Register("user", services.NewUserService(store))
	}
	if !container.Has("world") {
		container.Register("world", services.NewWorldService(store))
	}
	if !container.Has("session") {
		container.Register("session", services.NewSessionService(store, engine, locks))
	}

	// 6. 会话记录推送
	if !container.Has("transcripts") {
		metrics := container.Get("metrics").(*utils.APIMetrics)
		container.Register("transcripts", api.NewTranscriptHub(metrics.Collector()))
	}

	return nil
}

// Run 启动服务器并阻塞，直到收到停止信号
func Run() error {
	app := GetApp()
	if app.server == nil {
		return fmt.Errorf("服务器未初始化")
	}

	signal.Notify(app.stopChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(app.stopChan)

	serverErr := make(chan error, 1)
	go func() {
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	logger := utils.GetLogger()
	if app.config != nil {
		logger.Infof("服务器启动在端口 %s", app.config.Port)
	}

	select {
	case err := <-serverErr:
		app.cleanup()
		return fmt.Errorf("启动服务器失败: %w", err)
	case sig := <-app.stopChan:
		logger.Info("正在关闭服务器", map[string]interface{}{"signal": sig.String()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := app.server.Shutdown(ctx)
	app.cleanup()
	if err != nil {
		return fmt.Errorf("服务器强制关闭: %w", err)
	}
	return nil
}

// cleanup 释放容器中的资源并刷新日志
func (app *App) cleanup() {
	logger := utils.GetLogger()
	if err := di.GetContainer().CloseAll(); err != nil {
		logger.Error("释放资源失败", map[string]interface{}{"error": err.Error()})
	}
	logger.Info("服务器已关闭", nil)
	logger.Sync()
}

// IsDebugMode 检查是否处于调试模式
func IsDebugMode() bool {
	appMutex.Lock()
	app := instance
	appMutex.Unlock()

	if app == nil || app.config == nil {
		return false
	}
	return app.config.DebugMode
}
