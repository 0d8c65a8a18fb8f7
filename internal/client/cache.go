package client

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/estatehub/catalog/internal/models"
)

// FeaturedListKey is the well-known cache key for the featured list;
// it is list-shaped and invalidated alongside query pages.
const FeaturedListKey = "featured-list"

// QueryCache holds locally cached query results keyed by normalized
// filter cache keys, plus point lookups by id and slug. Invalidation is
// deliberately coarse: any accepted mutation clears every list-shaped
// key, since the cache never re-evaluates filter predicates against the
// changed record. Over-invalidation beats staleness.
type QueryCache struct {
	mu       sync.RWMutex
	lists    map[string]*models.PageResult
	byID     map[string]*models.Property
	bySlug   map[string]*models.Property
	slugByID map[string]string
	logger   *logrus.Logger
}

func NewQueryCache(logger *logrus.Logger) *QueryCache {
	return &QueryCache{
		lists:    make(map[string]*models.PageResult),
		byID:     make(map[string]*models.Property),
		bySlug:   make(map[string]*models.Property),
		slugByID: make(map[string]string),
		logger:   logger,
	}
}

func (c *QueryCache) PutList(key string, result *models.PageResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists[key] = result
}

func (c *QueryCache) GetList(key string) (*models.PageResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result, ok := c.lists[key]
	return result, ok
}

func (c *QueryCache) PutProperty(p *models.Property) {
	if p == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[p.ID] = p
	if p.Slug != "" {
		c.bySlug[p.Slug] = p
		c.slugByID[p.ID] = p.Slug
	}
}

func (c *QueryCache) GetByID(id string) (*models.Property, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.byID[id]
	return p, ok
}

func (c *QueryCache) GetBySlug(slug string) (*models.Property, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.bySlug[slug]
	return p, ok
}

// Invalidate maps a change event to the cached entries it makes stale:
// every list-shaped key, plus the point lookups for the affected id.
// Point lookups for unrelated ids survive.
func (c *QueryCache) Invalidate(event models.ChangeEvent) {
	switch event.Type {
	case models.EventPropertyCreated, models.EventPropertyUpdated, models.EventPropertyDeleted:
	default:
		// Unknown event types are ignored, not an error.
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := len(c.lists)
	c.lists = make(map[string]*models.PageResult)

	delete(c.byID, event.ID)
	if slug, ok := c.slugByID[event.ID]; ok {
		delete(c.bySlug, slug)
		delete(c.slugByID, event.ID)
	}

	c.logger.WithFields(logrus.Fields{
		"event_type":    event.Type,
		"property_id":   event.ID,
		"lists_dropped": dropped,
	}).Debug("Cache invalidated")
}

// ListKeys reports how many list-shaped entries are currently cached.
func (c *QueryCache) ListKeys() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.lists)
}
