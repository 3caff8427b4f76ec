package cache

import "sync"

// index 是 key → Entry 的并发安全映射，每个 key 至多一个条目。
type index struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func newIndex() *index {
	return &index{entries: make(map[string]Entry)}
}

func (i *index) get(key string) (Entry, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	entry, ok := i.entries[key]
	return entry, ok
}

func (i *index) has(key string) bool {
	_, ok := i.get(key)
	return ok
}

// upsert 以 last-write-wins 语义写入条目。
func (i *index) upsert(key string, entry Entry) {
	i.mu.Lock()
	i.entries[key] = entry
	i.mu.Unlock()
}

// insertIfAbsent 仅在 key 不存在时写入，用于启动扫描，避免覆盖已完成的写入。
func (i *index) insertIfAbsent(key string, entry Entry) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, exists := i.entries[key]; exists {
		return false
	}
	i.entries[key] = entry
	return true
}

func (i *index) pop(key string) (Entry, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	entry, ok := i.entries[key]
	if ok {
		delete(i.entries, key)
	}
	return entry, ok
}

// removeIfSame 仅当 key 仍指向 expected 时删除，避免误删并发写入的新条目。
func (i *index) removeIfSame(key string, expected Entry) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	current, ok := i.entries[key]
	if !ok || current != expected {
		return false
	}
	delete(i.entries, key)
	return true
}

func (i *index) snapshot() map[string]Entry {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make(map[string]Entry, len(i.entries))
	for key, entry := range i.entries {
		out[key] = entry
	}
	return out
}

func (i *index) reset() {
	i.mu.Lock()
	i.entries = make(map[string]Entry)
	i.mu.Unlock()
}

func (i *index) len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}
