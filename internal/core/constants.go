// Package core provides shared constants and small parsing helpers for the
// prospect CLI.
package core

import (
	"os"
	"path/filepath"
	"time"
)

// Upstream API configuration
const (
	PlacesBaseURL    = "https://places.googleapis.com/v1"
	InsightsBaseURL  = "https://areainsights.googleapis.com/v1"
	GeocodeBaseURL   = "https://maps.googleapis.com/maps/api/geocode/json"
	APIKeyEnvVar     = "PROSPECT_PLACES_API_KEY"
	TokenEnvVar      = "PROSPECT_TOKEN"
	DefaultUserAgent = "prospect/" + Version
)

// Search defaults
const (
	DefaultMinRating      = 0.0
	DefaultMaxRating      = 5.0
	DefaultRadiusKm       = 5.0
	MaxRadiusKm           = 50.0
	UpstreamItemCeiling   = 100 // items the aggregate endpoint will list per request
	ResultCap             = 80  // places enriched per request
	MaxSplitDepth         = 6
	MinSplittableWidth    = 0.1
	DefaultEnrichWorkers  = 10
	DefaultTargetPlatform = "Owner.com"
)

// Per-call timeouts. Website crawls get a much shorter budget than the
// places endpoints because the sites are arbitrary third parties.
const (
	SearchTimeout = 30 * time.Second
	DetailTimeout = 15 * time.Second
	CrawlTimeout  = 5 * time.Second
)

// Cache defaults
const (
	FastTierCapacity  = 100
	DurableBudgetMB   = 500
	DefaultCacheTTL   = 7 * 24 * time.Hour
	DefaultPlaceTTL   = 24 * time.Hour
	WriteQueueSize    = 256
	DurableEvictRatio = 0.10
)

// CacheRoot returns the default directory for on-disk cache state.
func CacheRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".prospect")
}

// Version is the current CLI version.
const Version = "0.3.0"
