// internal/di/container.go
package di

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Container 是一个简单的依赖注入容器，按注册顺序记录服务
type Container struct {
	services map[string]interface{}
	order    []string
	mutex    sync.RWMutex
}

// 全局容器实例（单例模式）
var (
	globalContainer *Container
	once            sync.Once
)

// NewContainer 创建一个新的依赖注入容器
func NewContainer() *Container {
	return &Container{
		services: make(map[string]interface{}),
	}
}

// GetContainer 获取全局容器实例
func GetContainer() *Container {
	once.Do(func() {
		globalContainer = NewContainer()
	})
	return globalContainer
}

// Register 在容器中注册一个服务实例，同名服务会被替换
func (c *Container) Register(name string, service interface{}) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, exists := c.services[name]; !exists {
		c.order = append(c.order, name)
	}
	c.services[name] = service
}

// Get 从容器中获取一个服务实例
func (c *Container) Get(name string) interface{} {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.services[name]
}

// Has 检查容器中是否存在指定名称的服务
func (c *Container) Has(name string) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	_, exists := c.services[name]
	return exists
}

// Clear 清空容器中的所有服务
func (c *Container) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.services = make(map[string]interface{})
	c.order = nil
}

// GetNames 按注册顺序返回服务名称
func (c *Container) GetNames() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return append([]string(nil), c.order...)
}

// stopper 后台协程需要停止的服务
type stopper interface {
	Stop()
}

// shutdowner 持有连接需要关闭的服务
type shutdowner interface {
	Shutdown()
}

// CloseAll 按注册的逆序释放服务（io.Closer、Stop、Shutdown），返回所有错误
func (c *Container) CloseAll() error {
	c.mutex.RLock()
	names := append([]string(nil), c.order...)
	services := make(map[string]interface{}, len(c.services))
	for k, v := range c.services {
		services[k] = v
	}
	c.mutex.RUnlock()

	var errs []error
	for i := len(names) - 1; i >= 0; i-- {
		switch svc := services[names[i]].(type) {
		case io.Closer:
			if err := svc.Close(); err != nil {
				errs = append(errs, fmt.Errorf("关闭 %s 失败: %w", names[i], err))
			}
		case stopper:
			svc.Stop()
		case shutdowner:
			svc.Shutdown()
		}
	}
	return errors.Join(errs...)
}
