package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/fenilmodi00/lottery-backend/models"
	"github.com/fenilmodi00/lottery-backend/shared"
	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
)

// ScrapeResult is one platform's contribution to the catalog
type ScrapeResult struct {
	Shows        []models.Show
	UsedFallback bool
}

// PlatformScraper discovers the active lotteries of one platform
type PlatformScraper interface {
	Platform() models.Platform
	BaseURL() string
	Scrape(ctx context.Context, factory SessionFactory) (ScrapeResult, error)
}

// errEmptyListing marks a live scrape that found nothing; treated as breakage
var errEmptyListing = errors.New("listing page yielded no shows")

// listingScraperBase holds what the browser and static scrapers share
type listingScraperBase struct {
	definition PlatformDefinition
	config     shared.ScraperConfig
	pacing     shared.PacingProfile
	pacer      *shared.Pacer
}

func (b *listingScraperBase) Platform() models.Platform { return b.definition.Platform }

func (b *listingScraperBase) BaseURL() string { return b.definition.BaseURL }

func (b *listingScraperBase) extract(root *goquery.Selection) []models.Show {
	if b.definition.Extract != nil {
		return b.definition.Extract(root, b.definition, b.config.MaxNameLength)
	}
	return ExtractListings(root, b.definition, b.config.MaxNameLength)
}

// finish applies the platform's failure policy
func (b *listingScraperBase) finish(shows []models.Show, scrapeErr error) (ScrapeResult, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "PlatformScraper",
		"platform":  b.definition.Platform,
	})
	if scrapeErr == nil && len(shows) == 0 {
		scrapeErr = errEmptyListing
	}
	if scrapeErr == nil {
		logger.WithField("shows", len(shows)).Info("Scraped platform listing")
		return ScrapeResult{Shows: shows}, nil
	}

	if b.definition.FailurePolicy == FallbackOnFailure && len(b.definition.Fallback) > 0 {
		logger.WithError(scrapeErr).Warn("Scrape failed, using curated fallback list")
		fallback := make([]models.Show, len(b.definition.Fallback))
		copy(fallback, b.definition.Fallback)
		return ScrapeResult{Shows: fallback, UsedFallback: true}, nil
	}

	logger.WithError(scrapeErr).Error("Scrape failed")
	return ScrapeResult{}, shared.WrapError(scrapeErr, shared.ErrorCategoryUpstream, "SCRAPE_FAILED",
		"PlatformScraper", "Scrape:"+string(b.definition.Platform), true)
}

func mergeNewShows(existing []models.Show, seen map[string]bool, round []models.Show) ([]models.Show, int) {
	added := 0
	for _, show := range round {
		if seen[show.URL] {
			continue
		}
		seen[show.URL] = true
		existing = append(existing, show)
		added++
	}
	return existing, added
}

// BrowserListingScraper renders the listing page in an anti-detection session
type BrowserListingScraper struct {
	listingScraperBase
}

// NewBrowserListingScraper creates a scraper for client-rendered listing pages
func NewBrowserListingScraper(def PlatformDefinition, cfg shared.ScraperConfig, pacing shared.PacingProfile, pacer *shared.Pacer) *BrowserListingScraper {
	return &BrowserListingScraper{listingScraperBase{definition: def, config: cfg, pacing: pacing, pacer: pacer}}
}

// Scrape navigates, waits for client rendering, extracts and paginates
func (s *BrowserListingScraper) Scrape(ctx context.Context, factory SessionFactory) (ScrapeResult, error) {
	shows, err := s.scrapeLive(ctx, factory)
	return s.finish(shows, err)
}

func (s *BrowserListingScraper) scrapeLive(ctx context.Context, factory SessionFactory) ([]models.Show, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "BrowserListingScraper",
		"method":    "scrapeLive",
		"platform":  s.definition.Platform,
	})

	session, err := factory.CreateSession(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close()
	page := session.Page()

	navCtx, cancel := context.WithTimeout(ctx, s.config.NavigationTimeout)
	err = page.Navigate(navCtx, s.definition.BaseURL)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("navigate %s: %w", s.definition.BaseURL, err)
	}
	if err := s.pacer.Wait(ctx, s.pacing.ContentSettle); err != nil {
		return nil, err
	}

	root, err := snapshotDocument(ctx, page, FrameScope{})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	shows, _ := mergeNewShows(nil, seen, s.extract(root))

	for round := 0; round < s.config.MaxPaginationRuns; round++ {
		control, ok := FindPaginationControl(root)
		if !ok {
			break
		}
		if err := page.Click(ctx, FrameScope{}, control.Selector); err != nil {
			logger.WithError(err).Debug("Pagination control click failed")
			break
		}
		if err := s.pacer.Wait(ctx, s.pacing.ContentSettle); err != nil {
			return shows, err
		}
		root, err = snapshotDocument(ctx, page, FrameScope{})
		if err != nil {
			break
		}
		var added int
		shows, added = mergeNewShows(shows, seen, s.extract(root))
		logger.WithFields(logrus.Fields{"round": round + 1, "added": added}).Debug("Pagination round")
		if added == 0 {
			break
		}
	}
	return shows, nil
}

func snapshotDocument(ctx context.Context, page AutomationPage, scope FrameScope) (*goquery.Selection, error) {
	html, err := page.Snapshot(ctx, scope)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return doc.Selection, nil
}

// StaticListingScraper fetches server-rendered listings with colly, no browser
type StaticListingScraper struct {
	listingScraperBase
	newCollector func() *colly.Collector
}

// NewStaticListingScraper creates a browserless scraper
func NewStaticListingScraper(def PlatformDefinition, cfg shared.ScraperConfig, pacing shared.PacingProfile, pacer *shared.Pacer) *StaticListingScraper {
	return &StaticListingScraper{
		listingScraperBase: listingScraperBase{definition: def, config: cfg, pacing: pacing, pacer: pacer},
		newCollector: func() *colly.Collector {
			return colly.NewCollector()
		},
	}
}

// Scrape fetches the listing and follows anchor pagination; factory is unused
func (s *StaticListingScraper) Scrape(ctx context.Context, _ SessionFactory) (ScrapeResult, error) {
	shows, err := s.fetch(ctx)
	return s.finish(shows, err)
}

func (s *StaticListingScraper) fetch(ctx context.Context) ([]models.Show, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "StaticListingScraper",
		"method":    "fetch",
		"platform":  s.definition.Platform,
	})
	base, err := url.Parse(s.definition.BaseURL)
	if err != nil {
		return nil, err
	}

	collector := s.newCollector()
	collector.SetRequestTimeout(s.config.StaticFetchTimeout)
	userAgent := shared.RandomUserAgent()
	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		shared.SetBrowserLikeHeaders(*r.Headers, userAgent)
	})

	var (
		root     *goquery.Selection
		fetchErr error
	)
	collector.OnHTML("html", func(e *colly.HTMLElement) {
		root = e.DOM
	})
	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("fetch %s (status %d): %w", r.Request.URL, r.StatusCode, err)
	})

	visit := func(target string) (*goquery.Selection, error) {
		root, fetchErr = nil, nil
		if err := collector.Visit(target); err != nil {
			return nil, err
		}
		if fetchErr != nil {
			return nil, fetchErr
		}
		if root == nil {
			return nil, fmt.Errorf("fetch %s: no html document", target)
		}
		return root, nil
	}

	page, err := visit(s.definition.BaseURL)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	shows, _ := mergeNewShows(nil, seen, s.extract(page))
	visited := map[string]bool{s.definition.BaseURL: true}

	for round := 0; round < s.config.MaxPaginationRuns; round++ {
		control, ok := FindPaginationControl(page)
		if !ok {
			break
		}
		next, ok := PaginationHref(control, page, base)
		if !ok || visited[next] {
			break
		}
		visited[next] = true
		if err := s.pacer.Wait(ctx, s.pacing.ContentSettle); err != nil {
			return shows, err
		}
		page, err = visit(next)
		if err != nil {
			logger.WithError(err).Debug("Pagination fetch failed")
			break
		}
		var added int
		shows, added = mergeNewShows(shows, seen, s.extract(page))
		if added == 0 {
			break
		}
	}
	return shows, ctx.Err()
}

// newScraperFor picks the scraper implementation a definition asks for
func newScraperFor(def PlatformDefinition, cfg shared.ScraperConfig, pacing shared.PacingProfile, pacer *shared.Pacer) PlatformScraper {
	if def.StaticListing {
		return NewStaticListingScraper(def, cfg, pacing, pacer)
	}
	return NewBrowserListingScraper(def, cfg, pacing, pacer)
}

// stopwatch measures one operation for metrics
func stopwatch() func() time.Duration {
	start := time.Now()
	return func() time.Duration { return time.Since(start) }
}
