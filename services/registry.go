package services

import (
	"context"
	"sync"

	"github.com/fenilmodi00/lottery-backend/models"
	"github.com/fenilmodi00/lottery-backend/shared"
	"github.com/sirupsen/logrus"
)

// ScrapeReport is the outcome of one pass over every registered platform
type ScrapeReport struct {
	Shows             []models.Show
	FailedPlatforms   []models.Platform
	FallbackPlatforms []models.Platform
	Degraded          bool
}

// ScraperRegistry owns one scraper per platform. Built-in platforms are
// registered lazily on first access.
type ScraperRegistry struct {
	factory  SessionFactory
	table    *PlatformTable
	config   shared.ScraperConfig
	pacing   shared.PacingProfile
	pacer    *shared.Pacer
	metrics  *shared.ServiceMetrics
	once     sync.Once
	mutex    sync.RWMutex
	order    []models.Platform
	scrapers map[models.Platform]PlatformScraper
}

// NewScraperRegistry creates a registry over table's platforms
func NewScraperRegistry(factory SessionFactory, table *PlatformTable, cfg shared.ScraperConfig, pacing shared.PacingProfile, pacer *shared.Pacer) *ScraperRegistry {
	return &ScraperRegistry{
		factory:  factory,
		table:    table,
		config:   cfg,
		pacing:   pacing,
		pacer:    pacer,
		metrics:  shared.NewServiceMetrics("ScraperRegistry"),
		scrapers: make(map[models.Platform]PlatformScraper),
	}
}

func (r *ScraperRegistry) ensureBuiltins() {
	r.once.Do(func() {
		for _, def := range r.table.Definitions() {
			r.registerLocked(newScraperFor(def, r.config, r.pacing, r.pacer), false)
		}
		logrus.WithFields(logrus.Fields{
			"component": "ScraperRegistry",
			"platforms": len(r.order),
		}).Debug("Registered built-in scrapers")
	})
}

func (r *ScraperRegistry) registerLocked(scraper PlatformScraper, replace bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, exists := r.scrapers[scraper.Platform()]; exists {
		if !replace {
			return
		}
	} else {
		r.order = append(r.order, scraper.Platform())
	}
	r.scrapers[scraper.Platform()] = scraper
}

// Register adds or replaces the scraper for its platform
func (r *ScraperRegistry) Register(scraper PlatformScraper) {
	r.ensureBuiltins()
	r.registerLocked(scraper, true)
}

// Scraper returns the scraper for a platform
func (r *ScraperRegistry) Scraper(platform models.Platform) (PlatformScraper, bool) {
	r.ensureBuiltins()
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	scraper, ok := r.scrapers[platform]
	return scraper, ok
}

// Platforms lists registered platforms in registration order
func (r *ScraperRegistry) Platforms() []models.Platform {
	r.ensureBuiltins()
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return append([]models.Platform(nil), r.order...)
}

// Metrics exposes per-platform scrape counters
func (r *ScraperRegistry) Metrics() *shared.ServiceMetrics { return r.metrics }

// ScrapeAll runs every scraper in turn with a pacing delay between platforms.
// One platform failing never aborts the others; the call fails only when
// every platform failed.
func (r *ScraperRegistry) ScrapeAll(ctx context.Context) (ScrapeReport, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "ScraperRegistry",
		"method":    "ScrapeAll",
	})

	platforms := r.Platforms()
	var report ScrapeReport

	for i, platform := range platforms {
		if i > 0 {
			if err := r.pacer.Wait(ctx, r.pacing.BetweenPlatforms); err != nil {
				return report, err
			}
		}
		scraper, _ := r.Scraper(platform)

		elapsed := stopwatch()
		result, err := scraper.Scrape(ctx, r.factory)
		r.metrics.RecordRequest(err == nil, elapsed())

		if err != nil {
			report.FailedPlatforms = append(report.FailedPlatforms, platform)
			r.metrics.IncrementCounter("scrape_failed:" + string(platform))
			logger.WithError(err).WithField("platform", platform).Warn("Platform scrape failed, continuing with others")
			continue
		}
		if result.UsedFallback {
			report.FallbackPlatforms = append(report.FallbackPlatforms, platform)
			r.metrics.IncrementCounter("scrape_fallback:" + string(platform))
		}
		r.metrics.AddCounter("shows:"+string(platform), int64(len(result.Shows)))
		report.Shows = append(report.Shows, result.Shows...)
	}

	report.Degraded = len(report.FailedPlatforms) > 0 || len(report.FallbackPlatforms) > 0

	if len(platforms) > 0 && len(report.FailedPlatforms) == len(platforms) {
		return report, shared.NewServiceError(shared.ErrorCategoryUpstream, "ALL_PLATFORMS_FAILED",
			"every platform scrape failed", "ScraperRegistry", "ScrapeAll", true, shared.ErrAllPlatformsFailed)
	}

	logger.WithFields(logrus.Fields{
		"shows":    len(report.Shows),
		"failed":   report.FailedPlatforms,
		"fallback": report.FallbackPlatforms,
		"degraded": report.Degraded,
	}).Info("Completed scrape of all platforms")
	r.metrics.LogSummary()
	return report, nil
}
