// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// 当前配置的单例实例
var (
	currentConfig *Config
	configMutex   sync.RWMutex
)

// Config 存储应用配置
type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	DataDir   string `env:"DATA_DIR" envDefault:"data"`
	DBPath    string `env:"DB_PATH"`
	LogDir    string `env:"LOG_DIR" envDefault:"logs"`
	DebugMode bool   `env:"DEBUG_MODE" envDefault:"true"`

	// 为 true 时同一会话的回合串行处理（仅限单进程内）
	SerializeTurns bool `env:"SERIALIZE_TURNS" envDefault:"false"`

	// 每个客户端每分钟允许的互动请求数，<=0 表示不限流
	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MIN" envDefault:"30"`

	// 世界/会话读缓存，CACHE_SIZE<=0 关闭
	CacheSize int           `env:"CACHE_SIZE" envDefault:"1000"`
	CacheTTL  time.Duration `env:"CACHE_TTL" envDefault:"10m"`

	CORSOrigins []string `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load 从 .env（可选）和环境变量加载配置
func Load() (*Config, error) {
	// 尝试加载.env文件（可选）
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("警告: 读取 .env 失败: %v", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("解析环境变量失败: %w", err)
	}

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "odissey.db")
	}
	if cfg.Port == "" {
		return nil, fmt.Errorf("端口不能为空")
	}

	SetCurrentConfig(cfg)
	return cfg, nil
}

// SetCurrentConfig 替换当前配置
func SetCurrentConfig(cfg *Config) {
	configMutex.Lock()
	defer configMutex.Unlock()
	currentConfig = cfg
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *Config {
	configMutex.RLock()
	cfg := currentConfig
	configMutex.RUnlock()

	if cfg == nil {
		// 尚未加载时按环境变量现场加载
		loaded, err := Load()
		if err != nil {
			log.Printf("警告: 加载配置失败，使用默认值: %v", err)
			return &Config{
				Port:               "8080",
				DataDir:            "data",
				DBPath:             filepath.Join("data", "odissey.db"),
				LogDir:             "logs",
				DebugMode:          true,
				RateLimitPerMinute: 30,
				CacheSize:          1000,
				CacheTTL:           10 * time.Minute,
				CORSOrigins:        []string{"*"},
			}
		}
		cfg = loaded
	}

	// 返回配置的副本
	configCopy := *cfg
	configCopy.CORSOrigins = append([]string(nil), cfg.CORSOrigins...)
	return &configCopy
}
