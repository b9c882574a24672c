package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/odissey/internal/config"
	"github.com/Corphon/odissey/internal/di"
	"github.com/Corphon/odissey/internal/services"
	"github.com/Corphon/odissey/internal/storage"
	"github.com/Corphon/odissey/internal/utils"
)

// 测试前的设置工作
func setupTest(t *testing.T) *config.Config {
	t.Helper()
	instance = nil
	di.GetContainer().Clear()

	tempDir := t.TempDir()
	cfg := &config.Config{
		Port:               "0",
		DataDir:            filepath.Join(tempDir, "data"),
		DBPath:             filepath.Join(tempDir, "data", "odissey.db"),
		LogDir:             filepath.Join(tempDir, "logs"),
		DebugMode:          false,
		RateLimitPerMinute: 0,
		CORSOrigins:        []string{"*"},
	}

	t.Cleanup(func() {
		_ = di.GetContainer().CloseAll()
		di.GetContainer().Clear()
		utils.GetLogger().Sync()
		instance = nil
	})
	return cfg
}

// mockServer 测试用服务器
type mockServer struct {
	ShutdownCalled bool
}

func (m *mockServer) ListenAndServe() error {
	return http.ErrServerClosed
}

func (m *mockServer) Shutdown(ctx context.Context) error {
	m.ShutdownCalled = true
	return nil
}

func TestGetApp(t *testing.T) {
	instance = nil

	app1 := GetApp()
	require.NotNil(t, app1)
	assert.Same(t, app1, GetApp())
	assert.NotNil(t, app1.stopChan)
}

func TestInitializeWiresServices(t *testing.T) {
	cfg := setupTest(t)
	cfg.SerializeTurns = true
	cfg.CacheSize = 100
	cfg.CacheTTL = time.Minute

	require.NoError(t, Initialize(cfg))

	app := GetApp()
	assert.Same(t, cfg, app.config)
	require.NotNil(t, app.router)

	container := di.GetContainer()
	for _, name := range []string{"store", "metrics", "narrative", "locks", "user", "world", "session", "transcripts"} {
		assert.True(t, container.Has(name), "service %s should be registered", name)
	}
	_, ok := container.Get("session").(*services.SessionService)
	assert.True(t, ok)
	_, ok = container.Get("store").(*storage.CachedStore)
	assert.True(t, ok, "store should be wrapped by the read cache")

	// 日志文件按日期创建
	files, err := os.ReadDir(cfg.LogDir)
	require.NoError(t, err)
	assert.NotEmpty(t, files)

	_, err = os.Stat(cfg.DBPath)
	assert.NoError(t, err)

	// 路由可以直接处理请求
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "healthy"))
}

func TestInitServicesSkipsLocksByDefault(t *testing.T) {
	cfg := setupTest(t)
	config.SetCurrentConfig(cfg)

	require.NoError(t, InitServices())
	assert.False(t, di.GetContainer().Has("locks"))

	// CacheSize 为 0 时直接使用 SQLite
	_, ok := di.GetContainer().Get("store").(*storage.SQLiteStore)
	assert.True(t, ok)
}

func TestInitServicesKeepsRegisteredServices(t *testing.T) {
	cfg := setupTest(t)
	config.SetCurrentConfig(cfg)

	engine := services.NewNarrativeEngine(nil)
	di.GetContainer().Register("narrative", engine)

	require.NoError(t, InitServices())
	assert.Same(t, engine, di.GetContainer().Get("narrative"))
}

func TestRun(t *testing.T) {
	setupTest(t)

	testApp := &App{
		config:   &config.Config{Port: "8081"},
		stopChan: make(chan os.Signal, 1),
	}
	instance = testApp
	mockSrv := &mockServer{}
	testApp.server = mockSrv

	go func() {
		time.Sleep(100 * time.Millisecond)
		testApp.stopChan <- syscall.SIGTERM
	}()

	require.NoError(t, Run())
	assert.True(t, mockSrv.ShutdownCalled)
}

func TestRunWithoutServer(t *testing.T) {
	setupTest(t)
	instance = &App{stopChan: make(chan os.Signal, 1)}

	assert.Error(t, Run())
}

func TestIsDebugMode(t *testing.T) {
	setupTest(t)

	instance = nil
	assert.False(t, IsDebugMode())

	testApp := &App{}
	instance = testApp
	assert.False(t, IsDebugMode())

	testApp.config = &config.Config{DebugMode: true}
	assert.True(t, IsDebugMode())

	testApp.config.DebugMode = false
	assert.False(t, IsDebugMode())
}
