// internal/services/lock_manager.go
package services

import (
	"sync"
	"sync/atomic"
	"time"
)

// LockManager 按会话ID分配互斥锁，同一会话的回合在进程内串行执行
type LockManager struct {
	sessionLocks  map[string]*LockInfo
	globalLock    sync.Mutex
	lockTTL       time.Duration
	maxLocks      int
	cleanupTicker *time.Ticker
	done          chan struct{}
	stopOnce      sync.Once
}

// LockInfo 包装锁和相关信息
type LockInfo struct {
	Mutex          sync.Mutex
	LastUsed       time.Time
	ReferenceCount int32 // 正在等待或持有该锁的协程数，大于 0 时不会被清理
}

// NewLockManager 创建锁管理器并启动后台清理
func NewLockManager() *LockManager {
	lm := &LockManager{
		sessionLocks: make(map[string]*LockInfo),
		lockTTL:      30 * time.Minute,
		maxLocks:     200,
		done:         make(chan struct{}),
	}

	lm.startCleanup(5 * time.Minute)
	return lm
}

// acquire 取得会话锁的引用，调用方负责 release
func (lm *LockManager) acquire(sessionID string) *LockInfo {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	info, exists := lm.sessionLocks[sessionID]
	if !exists {
		info = &LockInfo{}
		lm.sessionLocks[sessionID] = info
	}
	atomic.AddInt32(&info.ReferenceCount, 1)
	info.LastUsed = time.Now()
	return info
}

func (lm *LockManager) release(info *LockInfo) {
	lm.globalLock.Lock()
	info.LastUsed = time.Now()
	lm.globalLock.Unlock()
	atomic.AddInt32(&info.ReferenceCount, -1)
}

// ExecuteWithSessionLock 在会话锁保护下执行操作
func (lm *LockManager) ExecuteWithSessionLock(sessionID string, fn func() error) error {
	info := lm.acquire(sessionID)
	defer lm.release(info)

	info.Mutex.Lock()
	defer info.Mutex.Unlock()

	return fn()
}

// Size 当前持有的锁数量
func (lm *LockManager) Size() int {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()
	return len(lm.sessionLocks)
}

// Stop 停止后台清理
func (lm *LockManager) Stop() {
	lm.stopOnce.Do(func() {
		lm.cleanupTicker.Stop()
		close(lm.done)
	})
}

// 定期清理未使用的锁
func (lm *LockManager) startCleanup(interval time.Duration) {
	lm.cleanupTicker = time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-lm.cleanupTicker.C:
				lm.cleanupUnusedLocks(time.Now())
			case <-lm.done:
				return
			}
		}
	}()
}

func (lm *LockManager) cleanupUnusedLocks(now time.Time) {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	// 只有在锁数量过多时才清理
	if len(lm.sessionLocks) <= lm.maxLocks {
		return
	}
	for sessionID, info := range lm.sessionLocks {
		if atomic.LoadInt32(&info.ReferenceCount) > 0 {
			continue
		}
		if now.Sub(info.LastUsed) > lm.lockTTL {
			delete(lm.sessionLocks, sessionID)
		}
	}
}
