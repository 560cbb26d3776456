package registry

import (
	"image"
	"sync"
)

// ThumbnailCache maps window ids to their latest preview image. The
// refresh loop replaces the whole map each cycle, which implicitly drops
// entries for windows that have gone away.
type ThumbnailCache struct {
	mu     sync.RWMutex
	images map[uint32]*image.RGBA
}

// NewThumbnailCache returns an empty cache.
func NewThumbnailCache() *ThumbnailCache {
	return &ThumbnailCache{images: make(map[uint32]*image.RGBA)}
}

// Get returns the cached preview for id, if any.
func (c *ThumbnailCache) Get(id uint32) (*image.RGBA, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	img, ok := c.images[id]
	return img, ok
}

// Replace swaps in a freshly built preview map.
func (c *ThumbnailCache) Replace(images map[uint32]*image.RGBA) {
	if images == nil {
		images = make(map[uint32]*image.RGBA)
	}
	c.mu.Lock()
	c.images = images
	c.mu.Unlock()
}

// Len returns the number of cached previews.
func (c *ThumbnailCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}
