// internal/storage/cached_store.go
package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Corphon/odissey/internal/models"
)

// CacheEntry 缓存条目
type CacheEntry struct {
	World     *models.World
	Session   *models.SessionContext
	CreatedAt time.Time
	LastRead  time.Time
}

// CachedStore 读穿缓存：世界和会话上下文写入后不再变化，
// 命中直接返回副本；未命中（含 ErrNotFound）不缓存
type CachedStore struct {
	Store

	mutex      sync.RWMutex
	cache      map[string]*CacheEntry
	maxSize    int
	expiration time.Duration
	now        func() time.Time

	hits   int64
	misses int64
}

// NewCachedStore 包装一个 Store；maxSize<=0 时返回原 Store
func NewCachedStore(inner Store, maxSize int, expiration time.Duration) Store {
	if maxSize <= 0 {
		return inner
	}
	return &CachedStore{
		Store:      inner,
		cache:      make(map[string]*CacheEntry),
		maxSize:    maxSize,
		expiration: expiration,
		now:        time.Now,
	}
}

// SelectWorldByID 先查缓存
func (s *CachedStore) SelectWorldByID(ctx context.Context, id string) (*models.World, error) {
	key := "world:" + id
	if entry := s.lookup(key); entry != nil && entry.World != nil {
		return entry.World.Clone(), nil
	}

	world, err := s.Store.SelectWorldByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.put(key, &CacheEntry{World: world.Clone()})
	return world, nil
}

// SelectSessionWithWorld 每个回合都会调用，缓存收益最大
func (s *CachedStore) SelectSessionWithWorld(ctx context.Context, sessionID string) (*models.SessionContext, error) {
	key := "session:" + sessionID
	if entry := s.lookup(key); entry != nil && entry.Session != nil {
		return entry.Session.Clone(), nil
	}

	sc, err := s.Store.SelectSessionWithWorld(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.put(key, &CacheEntry{Session: sc.Clone()})
	return sc, nil
}

// Stats 返回命中/未命中次数和当前条目数
func (s *CachedStore) Stats() (hits, misses int64, size int) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.hits, s.misses, len(s.cache)
}

// ClearCache 清空缓存
func (s *CachedStore) ClearCache() {
	s.mutex.Lock()
	s.cache = make(map[string]*CacheEntry)
	s.mutex.Unlock()
}

func (s *CachedStore) lookup(key string) *CacheEntry {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry, ok := s.cache[key]
	now := s.now()
	if !ok {
		s.misses++
		return nil
	}
	if s.expiration > 0 && now.Sub(entry.CreatedAt) > s.expiration {
		delete(s.cache, key)
		s.misses++
		return nil
	}
	entry.LastRead = now
	s.hits++
	return entry
}

func (s *CachedStore) put(key string, entry *CacheEntry) {
	now := s.now()
	entry.CreatedAt = now
	entry.LastRead = now

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.cache[key] = entry

	// 超出上限时清理最少使用的 20%（至少 1 个）
	if len(s.cache) > s.maxSize {
		s.cleanupLRU(max(1, s.maxSize/5))
	}
}

// 调用方持有写锁
func (s *CachedStore) cleanupLRU(count int) {
	type keyAge struct {
		key  string
		time time.Time
	}

	entries := make([]keyAge, 0, len(s.cache))
	for k, v := range s.cache {
		entries = append(entries, keyAge{k, v.LastRead})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].time.Before(entries[j].time)
	})

	for i := 0; i < min(count, len(entries)); i++ {
		delete(s.cache, entries[i].key)
	}
}
