package cache

import "sync"

// MemoryCache is a session-scoped CacheService. Entries live until Clear.
type MemoryCache[T any] struct {
	mu      sync.RWMutex
	entries map[string]T
}

func NewMemoryCache[T any]() *MemoryCache[T] {
	return &MemoryCache[T]{entries: make(map[string]T)}
}

func (mc *MemoryCache[T]) GenerateKey(params ...interface{}) string {
	return GenerateKey(params...)
}

func (mc *MemoryCache[T]) Get(key string) (T, bool) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	data, ok := mc.entries[key]
	return data, ok
}

func (mc *MemoryCache[T]) Set(key string, data T) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.entries[key] = data
	return nil
}

func (mc *MemoryCache[T]) Len() int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return len(mc.entries)
}

func (mc *MemoryCache[T]) Clear() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.entries = make(map[string]T)
}
