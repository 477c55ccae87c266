package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fenilmodi00/lottery-backend/database"
	"github.com/fenilmodi00/lottery-backend/models"
	"github.com/fenilmodi00/lottery-backend/shared"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// CatalogSource produces a full catalog; ScraperRegistry is the production source
type CatalogSource interface {
	ScrapeAll(ctx context.Context) (ScrapeReport, error)
}

// catalogEntry is the single cache slot. It is replaced, never mutated.
type catalogEntry struct {
	shows     []models.Show
	timestamp time.Time
	report    ScrapeReport
}

// CatalogCache is a single-slot, time-boxed catalog store with forced refresh
// and stale fallback. Overlapping refreshes share one scrape.
type CatalogCache struct {
	source    CatalogSource
	store     database.Store
	storeKey  string
	ttl       time.Duration
	now       func() time.Time
	slot      atomic.Pointer[catalogEntry]
	group     singleflight.Group
	refreshes atomic.Int64
}

// NewCatalogCache creates a cache; store may be nil to disable persistence
func NewCatalogCache(source CatalogSource, store database.Store, cfg shared.CacheConfig) *CatalogCache {
	return &CatalogCache{
		source:   source,
		store:    store,
		storeKey: cfg.StoreKey,
		ttl:      cfg.CatalogTTL,
		now:      time.Now,
	}
}

// WithClock replaces the clock; tests use it to move through the TTL window
func (c *CatalogCache) WithClock(now func() time.Time) *CatalogCache {
	c.now = now
	return c
}

// RefreshCount returns how many scrapes the cache has started
func (c *CatalogCache) RefreshCount() int64 {
	return c.refreshes.Load()
}

// Get returns the catalog. A fresh entry is served unless forceRefresh is
// set; otherwise a scrape runs. When the scrape fails any previous entry is
// returned marked stale, and only with no entry at all does Get fail.
func (c *CatalogCache) Get(ctx context.Context, forceRefresh bool) (models.CatalogSnapshot, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component":     "CatalogCache",
		"method":        "Get",
		"force_refresh": forceRefresh,
	})

	current := c.slot.Load()
	if !forceRefresh && current != nil && c.now().Sub(current.timestamp) < c.ttl {
		return c.snapshot(current, false), nil
	}

	fresh, err := c.refresh(ctx)
	if err == nil {
		return c.snapshot(fresh, false), nil
	}

	if previous := c.slot.Load(); previous != nil {
		logger.WithError(err).Warn("Catalog refresh failed, serving stale entry")
		return c.snapshot(previous, true), nil
	}

	logger.WithError(err).Error("Catalog refresh failed with no cached entry")
	return models.CatalogSnapshot{}, shared.NewServiceError(shared.ErrorCategoryResource, "NO_CATALOG_AVAILABLE",
		"no catalog available", "CatalogCache", "Get", true, fmt.Errorf("%w: %w", shared.ErrNoCatalogAvailable, err))
}

// refresh collapses concurrent callers onto one scrape
func (c *CatalogCache) refresh(ctx context.Context) (*catalogEntry, error) {
	result, err, joined := c.group.Do("refresh", func() (interface{}, error) {
		c.refreshes.Add(1)
		report, err := c.source.ScrapeAll(ctx)
		if err != nil {
			return nil, err
		}
		entry := &catalogEntry{
			shows:     report.Shows,
			timestamp: c.now(),
			report:    report,
		}
		c.slot.Store(entry)
		c.persist(ctx, entry)
		return entry, nil
	})
	if joined {
		logrus.WithField("component", "CatalogCache").Debug("Joined in-flight catalog refresh")
	}
	if err != nil {
		return nil, err
	}
	return result.(*catalogEntry), nil
}

func (c *CatalogCache) snapshot(entry *catalogEntry, stale bool) models.CatalogSnapshot {
	shows := make([]models.Show, len(entry.shows))
	copy(shows, entry.shows)
	return models.CatalogSnapshot{
		Shows:             shows,
		Timestamp:         entry.timestamp,
		Stale:             stale || c.now().Sub(entry.timestamp) >= c.ttl,
		Degraded:          entry.report.Degraded,
		FailedPlatforms:   entry.report.FailedPlatforms,
		FallbackPlatforms: entry.report.FallbackPlatforms,
	}
}

func (c *CatalogCache) persist(ctx context.Context, entry *catalogEntry) {
	if c.store == nil {
		return
	}
	payload, err := json.Marshal(models.PersistedCatalog{
		Shows:     entry.shows,
		Timestamp: entry.timestamp.UnixMilli(),
	})
	if err == nil {
		err = c.store.Set(ctx, c.storeKey, payload)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"component": "CatalogCache",
			"method":    "persist",
		}).WithError(err).Warn("Failed to persist catalog")
	}
}

// LoadPersisted warms the slot from the store. Nothing is loaded when the
// slot is already populated or the store holds no catalog.
func (c *CatalogCache) LoadPersisted(ctx context.Context) (bool, error) {
	if c.store == nil || c.slot.Load() != nil {
		return false, nil
	}
	raw, found, err := c.store.Get(ctx, c.storeKey)
	if err != nil || !found {
		return false, err
	}
	var persisted models.PersistedCatalog
	if err := json.Unmarshal(raw, &persisted); err != nil {
		return false, shared.WrapError(err, shared.ErrorCategoryStorage, "CATALOG_DECODE_FAILED", "CatalogCache", "LoadPersisted", false)
	}
	entry := &catalogEntry{
		shows:     persisted.Shows,
		timestamp: time.UnixMilli(persisted.Timestamp),
	}
	loaded := c.slot.CompareAndSwap(nil, entry)

	logrus.WithFields(logrus.Fields{
		"component": "CatalogCache",
		"method":    "LoadPersisted",
		"shows":     len(entry.shows),
		"age":       c.now().Sub(entry.timestamp),
		"loaded":    loaded,
	}).Info("Loaded persisted catalog")
	return loaded, nil
}
