package models

import (
	"strings"
	"time"
)

// Platform identifies a lottery-hosting ticketing site
type Platform string

const (
	PlatformBroadwayDirect Platform = "broadway_direct"
	PlatformSocialToaster  Platform = "social_toaster"
	PlatformLuckySeat      Platform = "lucky_seat"
)

// Show is a single lottery listing discovered on a platform.
// Identity is the (Platform, Name) pair.
type Show struct {
	Name     string   `json:"name"`
	Platform Platform `json:"platform"`
	URL      string   `json:"url"`
	Genre    *string  `json:"genre,omitempty"`
	Active   bool     `json:"active"`
}

// Key returns the identity key of the show
func (s Show) Key() string {
	return ShowKey(s.Platform, s.Name)
}

// ShowKey builds the normalized identity key for a platform/name pair
func ShowKey(platform Platform, name string) string {
	return string(platform) + ":" + strings.ToLower(strings.TrimSpace(name))
}

// CatalogSnapshot is what catalog consumers receive from the cache
type CatalogSnapshot struct {
	Shows             []Show     `json:"shows"`
	Timestamp         time.Time  `json:"timestamp"`
	Stale             bool       `json:"stale"`
	Degraded          bool       `json:"degraded"`
	FailedPlatforms   []Platform `json:"failed_platforms,omitempty"`
	FallbackPlatforms []Platform `json:"fallback_platforms,omitempty"`
}

// PersistedCatalog is the interop shape written to the key-value store
type PersistedCatalog struct {
	Shows     []Show `json:"shows"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
}
