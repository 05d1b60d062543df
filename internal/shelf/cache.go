package shelf

import "sync"

// SourceCache holds file references obtained this session, keyed by video id.
// It bridges sessions where the file access cannot store durable handles:
// a video imported or relinked from a picker stays playable until the cache
// is cleared. The zero value is not usable; call NewSourceCache.
type SourceCache struct {
	mu      sync.RWMutex
	entries map[string]FileRef
}

func NewSourceCache() *SourceCache {
	return &SourceCache{entries: make(map[string]FileRef)}
}

func (c *SourceCache) Put(videoID string, f FileRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[videoID] = f
}

// PutAll stores several references at once.
func (c *SourceCache) PutAll(refs map[string]FileRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, f := range refs {
		c.entries[id] = f
	}
}

// Get returns the cached reference for videoID, if any.
func (c *SourceCache) Get(videoID string) (FileRef, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.entries[videoID]
	return f, ok
}

func (c *SourceCache) Remove(videoID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, videoID)
}

func (c *SourceCache) RemoveAll(videoIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range videoIDs {
		delete(c.entries, id)
	}
}

// Clear drops every entry. Called when the session ends.
func (c *SourceCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]FileRef)
}

func (c *SourceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
