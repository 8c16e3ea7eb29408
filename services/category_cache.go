package services

import (
	"context"
	"sync"
	"time"

	"grievance-management-api/models"
)

const categoryCacheTTL = 5 * time.Minute

// CategoryCache keeps the category list for dashboard labelling. Category
// writes through CategoryService invalidate it.
type CategoryCache struct {
	repo CategoryRepository
	ttl  time.Duration
	now  func() time.Time

	mu        sync.RWMutex
	items     []models.GrievanceCategory
	fetchedAt time.Time
}

func NewCategoryCache(repo CategoryRepository) *CategoryCache {
	return &CategoryCache{repo: repo, ttl: categoryCacheTTL, now: time.Now}
}

func (c *CategoryCache) fresh() bool {
	return c.items != nil && c.now().Sub(c.fetchedAt) < c.ttl
}

// All returns every category, active or not.
func (c *CategoryCache) All(ctx context.Context) ([]models.GrievanceCategory, error) {
	c.mu.RLock()
	if c.fresh() {
		items := c.items
		c.mu.RUnlock()
		return items, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fresh() {
		return c.items, nil
	}

	rows, err := c.repo.ListCategories(ctx, false)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []models.GrievanceCategory{}
	}
	c.items = rows
	c.fetchedAt = c.now()
	return rows, nil
}

// Invalidate drops the cached list.
func (c *CategoryCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
}
