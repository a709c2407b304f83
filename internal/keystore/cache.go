package keystore

import "sync"

// MemoryCache is an in-process key cache; keys live for the client
// session only.
type MemoryCache struct {
	mu   sync.RWMutex
	keys map[string]string
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{keys: make(map[string]string)}
}

// Get returns the exported key for a room.
func (c *MemoryCache) Get(roomID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok := c.keys[roomID]
	return key, ok
}

// Put stores the exported key for a room.
func (c *MemoryCache) Put(roomID, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[roomID] = key
	return nil
}
