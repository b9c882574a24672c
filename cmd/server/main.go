// cmd/server/main.go
package main

import (
	"log"
	"os"

	"github.com/Corphon/odissey/internal/app"
	"github.com/Corphon/odissey/internal/config"
	"github.com/Corphon/odissey/internal/utils"
)

func main() {
	log.Println("🚀 启动 Odissey 服务器...")

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 2. 创建必要的目录
	for _, dir := range []string{cfg.DataDir, cfg.LogDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("创建目录失败 %s: %v", dir, err)
		}
	}

	// 3. 初始化日志、存储、服务和路由
	if err := app.Initialize(cfg); err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}

	logger := utils.GetLogger()
	logger.Infof("🔗 访问地址: http://localhost:%s", cfg.Port)

	// 4. 运行直到收到停止信号
	if err := app.Run(); err != nil {
		log.Fatalf("❌ 服务器异常退出: %v", err)
	}
	log.Println("✅ 服务器优雅关闭完成")
}
