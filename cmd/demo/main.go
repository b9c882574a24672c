// cmd/demo/main.go
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Corphon/odissey/internal/app"
	"github.com/Corphon/odissey/internal/config"
	"github.com/Corphon/odissey/internal/di"
	"github.com/Corphon/odissey/internal/services"
	"github.com/Corphon/odissey/internal/utils"
)

var dbPath string

// rootCmd 控制台工具入口
var rootCmd = &cobra.Command{
	Use:   "demo",
	Short: "Odissey console tools",
	Long:  "Seed demo worlds from YAML and play a story session in the terminal, using the same services as the HTTP server.",
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		shutdown()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $DB_PATH or data/odissey.db)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		shutdown()
		os.Exit(1)
	}
}

// consoleServices 控制台命令用到的服务
type consoleServices struct {
	users    *services.UserService
	worlds   *services.WorldService
	sessions *services.SessionService
}

// bootstrap 加载配置、初始化日志并注册服务
func bootstrap() (*consoleServices, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
		config.SetCurrentConfig(cfg)
	}

	logFile := filepath.Join(cfg.LogDir, fmt.Sprintf("console_%s.log", time.Now().Format("2006-01-02")))
	if err := utils.InitLogger(logFile, cfg.DebugMode); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️ 无法初始化日志文件: %v\n", err)
	}

	if err := app.InitServices(); err != nil {
		return nil, fmt.Errorf("初始化服务失败: %w", err)
	}

	container := di.GetContainer()
	return &consoleServices{
		users:    container.Get("user").(*services.UserService),
		worlds:   container.Get("world").(*services.WorldService),
		sessions: container.Get("session").(*services.SessionService),
	}, nil
}

func shutdown() {
	if err := di.GetContainer().CloseAll(); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️ 释放资源失败: %v\n", err)
	}
	utils.GetLogger().Sync()
}
