package voices

import "sync"

// uploadCache remembers, per voice, the filename the TTS backend assigned to
// an uploaded reference. Entries are invalidated synchronously by every
// library mutation and by the filesystem watcher, so a stale external name
// is never handed to a synthesis request.
type uploadCache struct {
	mu      sync.RWMutex
	entries map[string]string
}

func newUploadCache() *uploadCache {
	return &uploadCache{entries: make(map[string]string)}
}

func (c *uploadCache) get(voiceID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.entries[voiceID]
	return name, ok
}

func (c *uploadCache) put(voiceID, externalName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[voiceID] = externalName
}

func (c *uploadCache) invalidate(voiceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, voiceID)
}

func (c *uploadCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
