// Package config loads prospect configuration.
//
// Sources, highest priority first:
//  1. Environment variables (PROSPECT_ prefix, "." replaced by "_", e.g.
//     PROSPECT_PLACES_API_KEY or PROSPECT_CACHE_BACKEND)
//  2. YAML config file (--config, default ./prospect.yaml, optional)
//  3. Built-in defaults (Default)
//
// Sections:
//
//	places    upstream API key, base URLs, timeouts, retries, rate limit, breaker
//	search    bisection limits, result cap, enrichment workers, target platform
//	cache     fast tier capacity, durable budget and backend
//	store     shared search/place cache tables
//	supabase  project URL and key (shared store and token verification)
//	auth      token verification mode
//	logging   level, format and optional rotated log file
package config

import (
	"path/filepath"
	"time"

	"github.com/colthorp/prospect/internal/core"
)

// Config is the complete runtime configuration.
type Config struct {
	Places   PlacesConfig   `mapstructure:"places"`
	Search   SearchConfig   `mapstructure:"search"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Store    StoreConfig    `mapstructure:"store"`
	Supabase SupabaseConfig `mapstructure:"supabase"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type PlacesConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	PlacesBaseURL   string        `mapstructure:"places_base_url" validate:"required,url"`
	InsightsBaseURL string        `mapstructure:"insights_base_url" validate:"required,url"`
	GeocodeBaseURL  string        `mapstructure:"geocode_base_url" validate:"required,url"`
	SearchTimeout   time.Duration `mapstructure:"search_timeout" validate:"gt=0"`
	DetailTimeout   time.Duration `mapstructure:"detail_timeout" validate:"gt=0"`
	CrawlTimeout    time.Duration `mapstructure:"crawl_timeout" validate:"gt=0"`
	MaxRetries      int           `mapstructure:"max_retries" validate:"gte=1,lte=10"`
	RetryBase       time.Duration `mapstructure:"retry_base" validate:"gt=0"`
	RatePerSecond   float64       `mapstructure:"rate_per_second" validate:"gte=0"`
	Burst           int           `mapstructure:"burst" validate:"gte=0"`
	BreakerFailures uint32        `mapstructure:"breaker_failures" validate:"gte=1"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout" validate:"gt=0"`
}

type SearchConfig struct {
	MaxDepth       int     `mapstructure:"max_depth" validate:"gte=0,lte=10"`
	MinRangeWidth  float64 `mapstructure:"min_range_width" validate:"gt=0,lte=5"`
	ResultCap      int     `mapstructure:"result_cap" validate:"gte=1,lte=1000"`
	EnrichWorkers  int     `mapstructure:"enrich_workers" validate:"gte=1,lte=100"`
	TargetPlatform string  `mapstructure:"target_platform" validate:"required"`
}

type CacheConfig struct {
	FastCapacity    int           `mapstructure:"fast_capacity" validate:"gte=1"`
	DurableBudgetMB int64         `mapstructure:"durable_budget_mb" validate:"gte=1"`
	DefaultTTL      time.Duration `mapstructure:"default_ttl" validate:"gt=0"`
	Backend         string        `mapstructure:"backend" validate:"oneof=sqlite filesystem memory"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	Dir             string        `mapstructure:"dir"`
	WriteQueue      int           `mapstructure:"write_queue" validate:"gte=1"`
}

type StoreConfig struct {
	Backend   string        `mapstructure:"backend" validate:"oneof=sqlite supabase none"`
	SearchTTL time.Duration `mapstructure:"search_ttl" validate:"gt=0"`
	PlaceTTL  time.Duration `mapstructure:"place_ttl" validate:"gt=0"`
}

type SupabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
	Key string `mapstructure:"key"`
}

type AuthConfig struct {
	Mode   string `mapstructure:"mode" validate:"oneof=static supabase"`
	Token  string `mapstructure:"token"`
	UserID string `mapstructure:"user_id"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json console"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
}

// Default returns the built-in configuration.
func Default() *Config {
	root := core.CacheRoot()
	return &Config{
		Places: PlacesConfig{
			PlacesBaseURL:   core.PlacesBaseURL,
			InsightsBaseURL: core.InsightsBaseURL,
			GeocodeBaseURL:  core.GeocodeBaseURL,
			SearchTimeout:   core.SearchTimeout,
			DetailTimeout:   core.DetailTimeout,
			CrawlTimeout:    core.CrawlTimeout,
			MaxRetries:      3,
			RetryBase:       time.Second,
			RatePerSecond:   10,
			Burst:           5,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Search: SearchConfig{
			MaxDepth:       core.MaxSplitDepth,
			MinRangeWidth:  core.MinSplittableWidth,
			ResultCap:      core.ResultCap,
			EnrichWorkers:  core.DefaultEnrichWorkers,
			TargetPlatform: core.DefaultTargetPlatform,
		},
		Cache: CacheConfig{
			FastCapacity:    core.FastTierCapacity,
			DurableBudgetMB: core.DurableBudgetMB,
			DefaultTTL:      core.DefaultCacheTTL,
			Backend:         "sqlite",
			SQLitePath:      filepath.Join(root, "cache.db"),
			Dir:             filepath.Join(root, "cache"),
			WriteQueue:      core.WriteQueueSize,
		},
		Store: StoreConfig{
			Backend:   "sqlite",
			SearchTTL: core.DefaultCacheTTL,
			PlaceTTL:  core.DefaultPlaceTTL,
		},
		Auth: AuthConfig{
			Mode:   "static",
			UserID: "local",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// DurableBudgetBytes returns the durable tier budget in bytes.
func (c *Config) DurableBudgetBytes() int64 {
	return c.Cache.DurableBudgetMB << 20
}
