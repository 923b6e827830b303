// Package catalog serves the active mission list from the cache when it can
// and from the document store when it must.
package catalog

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jghoshh/missioncenter/backend/storage/cache"
	"github.com/jghoshh/missioncenter/models"
)

// ActiveKey is the cache key holding the active missions.
const ActiveKey = "missions:active"

// MissionLister is the part of the document store the catalog reads from.
type MissionLister interface {
	FindMissions(ctx context.Context, activeOnly bool) ([]models.Mission, error)
}

// Catalog is a cache-aside view of the active missions, ordered by week.
// A nil cache makes every call go to the store.
type Catalog struct {
	store MissionLister
	cache storage.CacheInterface
	ttl   time.Duration
}

// New returns a Catalog reading from store and caching for ttl.
func New(store MissionLister, c storage.CacheInterface, ttl time.Duration) *Catalog {
	return &Catalog{store: store, cache: c, ttl: ttl}
}

// ListActive returns the active missions. Cache failures are logged and the
// store is used instead.
func (c *Catalog) ListActive(ctx context.Context) ([]models.Mission, error) {
	if c.cache != nil {
		var cached []models.Mission
		err := c.cache.Get(ctx, ActiveKey, &cached)
		switch {
		case err == nil:
			return cached, nil
		case !errors.Is(err, storage.ErrCacheMiss):
			log.Printf("catalog cache read failed: %v", err)
		}
	}

	missions, err := c.store.FindMissions(ctx, true)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, ActiveKey, missions, c.ttl); err != nil {
			log.Printf("catalog cache write failed: %v", err)
		}
	}
	return missions, nil
}

// Invalidate drops the cached list. Called after every catalog change.
func (c *Catalog) Invalidate(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Delete(ctx, ActiveKey)
}
