package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fenilmodi00/lottery-backend/models"
	"github.com/fenilmodi00/lottery-backend/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubScraper struct {
	platform models.Platform
	result   ScrapeResult
	err      error
	calls    atomic.Int64
}

func (s *stubScraper) Platform() models.Platform { return s.platform }
func (s *stubScraper) BaseURL() string           { return "https://example.test/" + string(s.platform) }
func (s *stubScraper) Scrape(context.Context, SessionFactory) (ScrapeResult, error) {
	s.calls.Add(1)
	return s.result, s.err
}

func newTestRegistry(scrapers ...PlatformScraper) *ScraperRegistry {
	registry := NewScraperRegistry(&fakeSessionFactory{}, NewPlatformTable(nil), testScraperConfig(), shared.ZeroPacingProfile(), testPacer())
	for _, scraper := range scrapers {
		registry.Register(scraper)
	}
	return registry
}

func TestScrapeAllConcatenatesInRegistrationOrder(t *testing.T) {
	bd := &stubScraper{platform: models.PlatformBroadwayDirect, result: ScrapeResult{Shows: []models.Show{testShow("Aladdin", "musical")}}}
	ls := &stubScraper{platform: models.PlatformLuckySeat, result: ScrapeResult{Shows: []models.Show{testShow("Hamilton", "musical")}}}

	report, err := newTestRegistry(bd, ls).ScrapeAll(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Shows, 2)
	assert.Equal(t, "Aladdin", report.Shows[0].Name)
	assert.Equal(t, "Hamilton", report.Shows[1].Name)
	assert.False(t, report.Degraded)
}

func TestScrapeAllToleratesPartialFailure(t *testing.T) {
	bd := &stubScraper{platform: models.PlatformBroadwayDirect, err: errors.New("layout changed")}
	st := &stubScraper{platform: models.PlatformSocialToaster, result: ScrapeResult{Shows: []models.Show{testShow("Chicago", "musical")}}}
	ls := &stubScraper{platform: models.PlatformLuckySeat, result: ScrapeResult{Shows: []models.Show{testShow("Hamilton", "musical")}, UsedFallback: true}}

	registry := newTestRegistry(bd, st, ls)
	report, err := registry.ScrapeAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Shows, 2)
	assert.Equal(t, []models.Platform{models.PlatformBroadwayDirect}, report.FailedPlatforms)
	assert.Equal(t, []models.Platform{models.PlatformLuckySeat}, report.FallbackPlatforms)
	assert.True(t, report.Degraded)
	assert.EqualValues(t, 1, st.calls.Load())
	assert.EqualValues(t, 1, registry.Metrics().Counter("scrape_failed:broadway_direct"))
}

func TestScrapeAllFailsWhenEveryPlatformFails(t *testing.T) {
	registry := newTestRegistry(
		&stubScraper{platform: models.PlatformBroadwayDirect, err: errors.New("down")},
		&stubScraper{platform: models.PlatformLuckySeat, err: errors.New("down")},
	)
	_, err := registry.ScrapeAll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrAllPlatformsFailed))
}

func TestScrapeAllPacesOnlyBetweenPlatforms(t *testing.T) {
	pacing := shared.ZeroPacingProfile()
	pacing.BetweenPlatforms = shared.DelayRange{Min: time.Second, Max: 2 * time.Second}
	pacer, recorder := recordingPacer()

	registry := NewScraperRegistry(&fakeSessionFactory{}, NewPlatformTable(nil), testScraperConfig(), pacing, pacer)
	registry.Register(&stubScraper{platform: models.PlatformBroadwayDirect, result: ScrapeResult{Shows: []models.Show{testShow("Aladdin", "")}}})
	registry.Register(&stubScraper{platform: models.PlatformSocialToaster, err: errors.New("down")})
	registry.Register(&stubScraper{platform: models.PlatformLuckySeat, result: ScrapeResult{Shows: []models.Show{testShow("Hamilton", "")}}})

	_, err := registry.ScrapeAll(context.Background())
	require.NoError(t, err)

	delays := recorder.all()
	require.Len(t, delays, 2, "one wait before each platform after the first")
	assert.Len(t, recorder.within(pacing.BetweenPlatforms), 2)
	assert.EqualValues(t, 2, pacer.WaitCount())

	single, singleRecorder := recordingPacer()
	registry = NewScraperRegistry(&fakeSessionFactory{}, NewPlatformTable(nil), testScraperConfig(), pacing, single)
	registry.Register(&stubScraper{platform: models.PlatformLuckySeat, result: ScrapeResult{Shows: []models.Show{testShow("Six", "")}}})
	_, err = registry.ScrapeAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, singleRecorder.all(), "a single platform never waits")
}

func TestRegisterReplacesExistingPlatform(t *testing.T) {
	first := &stubScraper{platform: models.PlatformBroadwayDirect, err: errors.New("old")}
	second := &stubScraper{platform: models.PlatformBroadwayDirect, result: ScrapeResult{Shows: []models.Show{testShow("Six", "")}}}

	registry := newTestRegistry(first, second)
	assert.Equal(t, []models.Platform{models.PlatformBroadwayDirect}, registry.Platforms())

	report, err := registry.ScrapeAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Shows, 1)
	assert.Zero(t, first.calls.Load())
}

func TestBuiltinScrapersRegisteredLazily(t *testing.T) {
	registry := NewScraperRegistry(&fakeSessionFactory{}, DefaultPlatformTable(), testScraperConfig(), shared.ZeroPacingProfile(), testPacer())

	assert.Equal(t, []models.Platform{
		models.PlatformBroadwayDirect, models.PlatformSocialToaster, models.PlatformLuckySeat,
	}, registry.Platforms())

	scraper, ok := registry.Scraper(models.PlatformSocialToaster)
	require.True(t, ok)
	assert.IsType(t, &StaticListingScraper{}, scraper)

	scraper, ok = registry.Scraper(models.PlatformBroadwayDirect)
	require.True(t, ok)
	assert.IsType(t, &BrowserListingScraper{}, scraper)
}

func TestBrowserListingScraperExtractsRenderedListing(t *testing.T) {
	factory := &fakeSessionFactory{newPage: func() AutomationPage { return newFakePage(broadwayDirectListing) }}
	scraper := NewBrowserListingScraper(broadwayDirect(t), testScraperConfig(), shared.ZeroPacingProfile(), testPacer())

	result, err := scraper.Scrape(context.Background(), factory)
	require.NoError(t, err)
	assert.False(t, result.UsedFallback)
	assert.Len(t, result.Shows, 3)

	created, closed := factory.counts()
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, closed)
}

func TestBrowserListingScraperFailurePolicies(t *testing.T) {
	launchFails := &fakeSessionFactory{launchErr: errors.New("no chrome")}

	t.Run("fallback", func(t *testing.T) {
		scraper := NewBrowserListingScraper(broadwayDirect(t), testScraperConfig(), shared.ZeroPacingProfile(), testPacer())
		result, err := scraper.Scrape(context.Background(), launchFails)
		require.NoError(t, err)
		assert.True(t, result.UsedFallback)
		assert.Len(t, result.Shows, 5)
	})

	t.Run("empty listing falls back", func(t *testing.T) {
		factory := &fakeSessionFactory{newPage: func() AutomationPage { return newFakePage(`<html><body><p>Maintenance</p></body></html>`) }}
		scraper := NewBrowserListingScraper(broadwayDirect(t), testScraperConfig(), shared.ZeroPacingProfile(), testPacer())
		result, err := scraper.Scrape(context.Background(), factory)
		require.NoError(t, err)
		assert.True(t, result.UsedFallback)
	})

	t.Run("propagate", func(t *testing.T) {
		def := broadwayDirect(t)
		def.FailurePolicy = PropagateFailure
		scraper := NewBrowserListingScraper(def, testScraperConfig(), shared.ZeroPacingProfile(), testPacer())
		_, err := scraper.Scrape(context.Background(), launchFails)
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrBrowserLaunch))
	})
}

func TestStaticListingScraperFollowsPagination(t *testing.T) {
	var userAgents, fetchModes []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgents = append(userAgents, r.Header.Get("User-Agent"))
		fetchModes = append(fetchModes, r.Header.Get("Sec-Fetch-Mode"))
		if r.URL.Path != "/lotteries" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `<html><body><div class="lottery_show"><a href="/st/lottery/hadestown">Hadestown</a></div></body></html>`)
			return
		}
		fmt.Fprint(w, `<html><body>
<div class="lottery_show"><a href="/st/lottery/chicago">Chicago Lottery</a></div>
<div class="lottery_show"><a href="/st/lottery/mj">MJ - Enter Now</a></div>
<a href="/lotteries?page=2">Next</a>
</body></html>`)
	}))
	defer server.Close()

	base, err := url.Parse(server.URL)
	require.NoError(t, err)
	def := PlatformDefinition{
		Platform:         models.PlatformSocialToaster,
		BaseURL:          server.URL + "/lotteries",
		Domains:          []string{base.Hostname()},
		DefaultGenre:     "musical",
		FailurePolicy:    PropagateFailure,
		StaticListing:    true,
		ListingSelectors: []string{".lottery_show a"},
	}

	result, err := NewStaticListingScraper(def, testScraperConfig(), shared.ZeroPacingProfile(), testPacer()).Scrape(context.Background(), nil)
	require.NoError(t, err)
	names := make([]string, 0, len(result.Shows))
	for _, show := range result.Shows {
		names = append(names, show.Name)
	}
	assert.Equal(t, []string{"Chicago", "MJ", "Hadestown"}, names)

	require.Len(t, userAgents, 2)
	assert.Contains(t, shared.DesktopUserAgents, userAgents[0])
	assert.Equal(t, userAgents[0], userAgents[1], "one identity per scrape")
	assert.Equal(t, []string{"navigate", "navigate"}, fetchModes)
}

func TestStaticListingScraperPropagatesHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer server.Close()

	base, err := url.Parse(server.URL)
	require.NoError(t, err)
	def := PlatformDefinition{
		Platform:      models.PlatformSocialToaster,
		BaseURL:       server.URL + "/",
		Domains:       []string{base.Hostname()},
		FailurePolicy: PropagateFailure,
		StaticListing: true,
	}

	_, err = NewStaticListingScraper(def, testScraperConfig(), shared.ZeroPacingProfile(), testPacer()).Scrape(context.Background(), nil)
	require.Error(t, err)
	var serviceErr *shared.ServiceError
	require.True(t, errors.As(err, &serviceErr))
	assert.Equal(t, "SCRAPE_FAILED", serviceErr.Code)
}
