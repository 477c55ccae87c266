package services

import (
	"net/url"
	"strings"

	"github.com/fenilmodi00/lottery-backend/models"
)

// FailurePolicy states what a scraper does when a live scrape fails
type FailurePolicy int

const (
	// FallbackOnFailure returns the platform's curated fallback list
	FallbackOnFailure FailurePolicy = iota
	// PropagateFailure surfaces the error to the registry
	PropagateFailure
)

func (p FailurePolicy) String() string {
	if p == PropagateFailure {
		return "propagate"
	}
	return "fallback"
}

// PlatformDefinition is one row of the platform table. Registering a new
// platform means adding a definition and, when the shared heuristics are not
// enough, an Extract function.
type PlatformDefinition struct {
	Platform      models.Platform
	DisplayName   string
	BaseURL       string
	Domains       []string
	DefaultGenre  string
	FailurePolicy FailurePolicy
	// StaticListing platforms render their listing server-side and are fetched without a browser
	StaticListing bool
	// Fallback is used when FailurePolicy is FallbackOnFailure
	Fallback []models.Show
	// ListingSelectors are tried before the generic listing heuristics
	ListingSelectors []string
	// EntryButtonSelectors are the stable class-name selectors for the entry affordance
	EntryButtonSelectors []string
	// Extract overrides the generic listing extraction when set
	Extract ListingExtractor
}

func curated(platform models.Platform, genre string, entries ...[2]string) []models.Show {
	shows := make([]models.Show, 0, len(entries))
	for _, entry := range entries {
		g := genre
		shows = append(shows, models.Show{
			Name:     entry[0],
			Platform: platform,
			URL:      entry[1],
			Genre:    &g,
			Active:   true,
		})
	}
	return shows
}

// builtinPlatforms is the platform table
func builtinPlatforms() []PlatformDefinition {
	return []PlatformDefinition{
		{
			Platform:      models.PlatformBroadwayDirect,
			DisplayName:   "Broadway Direct",
			BaseURL:       "https://lottery.broadwaydirect.com/",
			Domains:       []string{"lottery.broadwaydirect.com", "broadwaydirect.com"},
			DefaultGenre:  "musical",
			FailurePolicy: FallbackOnFailure,
			Fallback: curated(models.PlatformBroadwayDirect, "musical",
				[2]string{"Aladdin", "https://lottery.broadwaydirect.com/show/aladdin-ny/"},
				[2]string{"The Lion King", "https://lottery.broadwaydirect.com/show/the-lion-king/"},
				[2]string{"Wicked", "https://lottery.broadwaydirect.com/show/wicked/"},
				[2]string{"MJ The Musical", "https://lottery.broadwaydirect.com/show/mj-ny/"},
				[2]string{"Six", "https://lottery.broadwaydirect.com/show/six-ny/"},
			),
			ListingSelectors:     []string{"a.show-link", ".show-card a[href*='/show/']", "a[href*='/show/']"},
			EntryButtonSelectors: []string{"a.enter-button", "a.enter-lottery-link", "button.enter-button"},
		},
		{
			Platform:             models.PlatformSocialToaster,
			DisplayName:          "Social Toaster",
			BaseURL:              "https://my.socialtoaster.com/st/lottery_select/?key=BROADWAY",
			Domains:              []string{"socialtoaster.com"},
			DefaultGenre:         "musical",
			FailurePolicy:        PropagateFailure,
			StaticListing:        true,
			ListingSelectors:     []string{".lottery_show a", "a[href*='lottery_select']", "a[href*='/st/']"},
			EntryButtonSelectors: []string{"a.btn-enter", "input.lottery_enter", "button.btn-enter"},
		},
		{
			Platform:      models.PlatformLuckySeat,
			DisplayName:   "Lucky Seat",
			BaseURL:       "https://www.luckyseat.com/",
			Domains:       []string{"luckyseat.com"},
			DefaultGenre:  "musical",
			FailurePolicy: FallbackOnFailure,
			Fallback: curated(models.PlatformLuckySeat, "musical",
				[2]string{"Hamilton", "https://www.luckyseat.com/shows/hamilton-new-york"},
				[2]string{"Chicago", "https://www.luckyseat.com/shows/chicago-new-york"},
			),
			ListingSelectors:     []string{"a.show-tile", ".show-card a", "a[href*='/shows/']"},
			EntryButtonSelectors: []string{"button.enter-lottery", "a.enter-lottery", ".lottery-cta button"},
		},
	}
}

// PlatformTable indexes platform definitions by platform and by domain
type PlatformTable struct {
	definitions []PlatformDefinition
	byPlatform  map[models.Platform]PlatformDefinition
}

// NewPlatformTable builds a table from definitions, keeping their order
func NewPlatformTable(definitions []PlatformDefinition) *PlatformTable {
	table := &PlatformTable{byPlatform: make(map[models.Platform]PlatformDefinition)}
	for _, def := range definitions {
		table.definitions = append(table.definitions, def)
		table.byPlatform[def.Platform] = def
	}
	return table
}

// DefaultPlatformTable returns the built-in platforms
func DefaultPlatformTable() *PlatformTable {
	return NewPlatformTable(builtinPlatforms())
}

// Definitions returns all definitions in registration order
func (t *PlatformTable) Definitions() []PlatformDefinition {
	return append([]PlatformDefinition(nil), t.definitions...)
}

// Lookup returns the definition for a platform
func (t *PlatformTable) Lookup(platform models.Platform) (PlatformDefinition, bool) {
	def, ok := t.byPlatform[platform]
	return def, ok
}

// DetectPlatform classifies a URL strictly by its hostname. The host must
// equal a registered domain or end with "."+domain; substrings elsewhere in
// the URL are ignored.
func (t *PlatformTable) DetectPlatform(rawURL string) (PlatformDefinition, bool) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Scheme == "" {
		return PlatformDefinition{}, false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return PlatformDefinition{}, false
	}
	host := strings.TrimSuffix(strings.ToLower(parsed.Hostname()), ".")
	if host == "" {
		return PlatformDefinition{}, false
	}

	for _, def := range t.definitions {
		for _, domain := range def.Domains {
			domain = strings.ToLower(domain)
			if host == domain || strings.HasSuffix(host, "."+domain) {
				return def, true
			}
		}
	}
	return PlatformDefinition{}, false
}
