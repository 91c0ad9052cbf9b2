// Package config holds the process-wide Config value: a chainable
// With*() builder over private fields, a configDTO for JSON files, and
// a Build() validation step, covering every operator-facing option of
// the scrape/enrichment pipeline.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// SeedSourceConfig is one named AERC calendar entry point
// (seed_sources), kept as a config-local type rather than importing
// internal/discovery.SeedSource directly so config stays a leaf
// package; callers convert at the wiring boundary (internal/cli).
type SeedSourceConfig struct {
	Name        string
	URLTemplate string
}

// GeocodingProvider enumerates the geocoding_provider values.
type GeocodingProvider string

const (
	GeocodingProviderNominatim GeocodingProvider = "nominatim"
	GeocodingProviderGoogle    GeocodingProvider = "google"
)

type Config struct {
	//===============
	// Store / provider credentials
	//===============
	databaseURL       string
	geminiAPIKey      string
	geocodingAPIKey   string
	geocodingProvider GeocodingProvider
	geocodingUserAgent string

	//===============
	// Rate limiting / retry
	//===============
	requestsPerSecond float64
	burst             int
	maxRetries        int
	baseDelay         time.Duration

	//===============
	// Cache
	//===============
	cacheTTLHTML    time.Duration
	cacheTTLGeocode time.Duration

	//===============
	// Operator flags
	//===============
	scraperDebug    bool
	scraperRefresh  bool
	scraperValidate bool

	//===============
	// Scheduling
	//===============
	scrapeSchedule     string
	enrichmentSchedule string

	//===============
	// Deadlines / concurrency
	//===============
	runDeadline     time.Duration
	requestDeadline time.Duration
	nUpsert         int
	detailBatchSize int

	//===============
	// Fetch scope
	//===============
	allowedHosts []string
	seedSources  []SeedSourceConfig

	userAgent string
}

type configDTO struct {
	DatabaseURL        string            `json:"databaseUrl,omitempty"`
	GeminiAPIKey       string            `json:"geminiApiKey,omitempty"`
	GeocodingAPIKey    string            `json:"geocodingApiKey,omitempty"`
	GeocodingProvider  GeocodingProvider `json:"geocodingProvider,omitempty"`
	GeocodingUserAgent string            `json:"geocodingUserAgent,omitempty"`
	RequestsPerSecond  float64           `json:"requestsPerSecond,omitempty"`
	Burst              int               `json:"burst,omitempty"`
	MaxRetries         int               `json:"maxRetries,omitempty"`
	BaseDelay          time.Duration     `json:"baseDelay,omitempty"`
	CacheTTLHTML       time.Duration     `json:"cacheTtlHtml,omitempty"`
	CacheTTLGeocode    time.Duration     `json:"cacheTtlGeocode,omitempty"`
	ScraperDebug       bool              `json:"scraperDebug,omitempty"`
	ScraperRefresh     bool              `json:"scraperRefresh,omitempty"`
	ScraperValidate    bool              `json:"scraperValidate,omitempty"`
	ScrapeSchedule     string            `json:"scrapeSchedule,omitempty"`
	EnrichmentSchedule string            `json:"enrichmentSchedule,omitempty"`
	RunDeadline        time.Duration     `json:"runDeadline,omitempty"`
	RequestDeadline    time.Duration     `json:"requestDeadline,omitempty"`
	NUpsert            int               `json:"nUpsert,omitempty"`
	DetailBatchSize    int               `json:"detailBatchSize,omitempty"`
	AllowedHosts       []string          `json:"allowedHosts,omitempty"`
	SeedSources        []SeedSourceConfig `json:"seedSources,omitempty"`
	UserAgent          string            `json:"userAgent,omitempty"`
}

func newConfigFromDTO(dto configDTO) (Config, error) {
	cfg := *WithDefault()

	if dto.DatabaseURL != "" {
		cfg.databaseURL = dto.DatabaseURL
	}
	if dto.GeminiAPIKey != "" {
		cfg.geminiAPIKey = dto.GeminiAPIKey
	}
	if dto.GeocodingAPIKey != "" {
		cfg.geocodingAPIKey = dto.GeocodingAPIKey
	}
	if dto.GeocodingProvider != "" {
		cfg.geocodingProvider = dto.GeocodingProvider
	}
	if dto.GeocodingUserAgent != "" {
		cfg.geocodingUserAgent = dto.GeocodingUserAgent
	}
	if dto.RequestsPerSecond != 0 {
		cfg.requestsPerSecond = dto.RequestsPerSecond
	}
	if dto.Burst != 0 {
		cfg.burst = dto.Burst
	}
	if dto.MaxRetries != 0 {
		cfg.maxRetries = dto.MaxRetries
	}
	if dto.BaseDelay != 0 {
		cfg.baseDelay = dto.BaseDelay
	}
	if dto.CacheTTLHTML != 0 {
		cfg.cacheTTLHTML = dto.CacheTTLHTML
	}
	if dto.CacheTTLGeocode != 0 {
		cfg.cacheTTLGeocode = dto.CacheTTLGeocode
	}
	cfg.scraperDebug = dto.ScraperDebug
	cfg.scraperRefresh = dto.ScraperRefresh
	cfg.scraperValidate = dto.ScraperValidate
	if dto.ScrapeSchedule != "" {
		cfg.scrapeSchedule = dto.ScrapeSchedule
	}
	if dto.EnrichmentSchedule != "" {
		cfg.enrichmentSchedule = dto.EnrichmentSchedule
	}
	if dto.RunDeadline != 0 {
		cfg.runDeadline = dto.RunDeadline
	}
	if dto.RequestDeadline != 0 {
		cfg.requestDeadline = dto.RequestDeadline
	}
	if dto.NUpsert != 0 {
		cfg.nUpsert = dto.NUpsert
	}
	if dto.DetailBatchSize != 0 {
		cfg.detailBatchSize = dto.DetailBatchSize
	}
	if len(dto.AllowedHosts) > 0 {
		cfg.allowedHosts = dto.AllowedHosts
	}
	if len(dto.SeedSources) > 0 {
		cfg.seedSources = dto.SeedSources
	}
	if dto.UserAgent != "" {
		cfg.userAgent = dto.UserAgent
	}

	return cfg.Build()
}

func WithConfigFile(path string) (Config, error) {
	_, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
	}
	configContent, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}
	cfgDTO := configDTO{}

	if err := json.Unmarshal(configContent, &cfgDTO); err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}

	return newConfigFromDTO(cfgDTO)
}

// WithDefault returns a Config populated with sane out-of-the-box
// values for every option; seed_sources and database_url are the two
// fields with no sensible default (empty) and Build() rejects an
// attempt to run the pipeline without at least one seed source.
func WithDefault() *Config {
	defaultConfig := Config{
		geocodingProvider:  GeocodingProviderNominatim,
		geocodingUserAgent: "aerc-harvester/1.0 (contact: ops@aerc-harvest.example)",
		requestsPerSecond:  1.0,
		burst:              2,
		maxRetries:         5,
		baseDelay:          200 * time.Millisecond,
		cacheTTLHTML:       6 * time.Hour,
		cacheTTLGeocode:    30 * 24 * time.Hour,
		scraperDebug:       false,
		scraperRefresh:     false,
		scraperValidate:    true,
		scrapeSchedule:     "0 */6 * * *",
		enrichmentSchedule: "0 3 * * *",
		runDeadline:        20 * time.Minute,
		requestDeadline:    15 * time.Second,
		nUpsert:            8,
		detailBatchSize:    10,
		userAgent:          "aerc-harvester/1.0",
	}
	return &defaultConfig
}

func (c *Config) WithDatabaseURL(url string) *Config {
	c.databaseURL = url
	return c
}

func (c *Config) WithGeminiAPIKey(key string) *Config {
	c.geminiAPIKey = key
	return c
}

func (c *Config) WithGeocodingAPIKey(key string) *Config {
	c.geocodingAPIKey = key
	return c
}

func (c *Config) WithGeocodingProvider(provider GeocodingProvider) *Config {
	c.geocodingProvider = provider
	return c
}

func (c *Config) WithGeocodingUserAgent(userAgent string) *Config {
	c.geocodingUserAgent = userAgent
	return c
}

func (c *Config) WithRequestsPerSecond(rps float64) *Config {
	c.requestsPerSecond = rps
	return c
}

func (c *Config) WithBurst(burst int) *Config {
	c.burst = burst
	return c
}

func (c *Config) WithMaxRetries(maxRetries int) *Config {
	c.maxRetries = maxRetries
	return c
}

func (c *Config) WithBaseDelay(delay time.Duration) *Config {
	c.baseDelay = delay
	return c
}

func (c *Config) WithCacheTTLHTML(ttl time.Duration) *Config {
	c.cacheTTLHTML = ttl
	return c
}

func (c *Config) WithCacheTTLGeocode(ttl time.Duration) *Config {
	c.cacheTTLGeocode = ttl
	return c
}

func (c *Config) WithScraperDebug(debug bool) *Config {
	c.scraperDebug = debug
	return c
}

func (c *Config) WithScraperRefresh(refresh bool) *Config {
	c.scraperRefresh = refresh
	return c
}

func (c *Config) WithScraperValidate(validate bool) *Config {
	c.scraperValidate = validate
	return c
}

func (c *Config) WithScrapeSchedule(cronSpec string) *Config {
	c.scrapeSchedule = cronSpec
	return c
}

func (c *Config) WithEnrichmentSchedule(cronSpec string) *Config {
	c.enrichmentSchedule = cronSpec
	return c
}

func (c *Config) WithRunDeadline(deadline time.Duration) *Config {
	c.runDeadline = deadline
	return c
}

func (c *Config) WithRequestDeadline(deadline time.Duration) *Config {
	c.requestDeadline = deadline
	return c
}

func (c *Config) WithNUpsert(n int) *Config {
	c.nUpsert = n
	return c
}

func (c *Config) WithDetailBatchSize(n int) *Config {
	c.detailBatchSize = n
	return c
}

func (c *Config) WithAllowedHosts(hosts []string) *Config {
	c.allowedHosts = hosts
	return c
}

func (c *Config) WithSeedSources(sources []SeedSourceConfig) *Config {
	c.seedSources = sources
	return c
}

func (c *Config) WithUserAgent(userAgent string) *Config {
	c.userAgent = userAgent
	return c
}

// Build validates the assembled Config:
// missing seed sources or an unreachable geocoding_provider selection
// are fatal at startup.
func (c *Config) Build() (Config, error) {
	if len(c.seedSources) == 0 {
		return Config{}, fmt.Errorf("%w: seed_sources cannot be empty", ErrInvalidConfig)
	}
	if c.geocodingProvider == GeocodingProviderGoogle && c.geocodingAPIKey == "" {
		return Config{}, fmt.Errorf("%w: geocoding_provider=google requires geocoding_api_key", ErrInvalidConfig)
	}
	if c.geocodingProvider == GeocodingProviderNominatim && c.geocodingUserAgent == "" {
		return Config{}, fmt.Errorf("%w: geocoding_provider=nominatim requires geocoding_user_agent", ErrInvalidConfig)
	}
	return *c, nil
}

func (c Config) DatabaseURL() string                  { return c.databaseURL }
func (c Config) GeminiAPIKey() string                 { return c.geminiAPIKey }
func (c Config) GeocodingAPIKey() string               { return c.geocodingAPIKey }
func (c Config) GeocodingProvider() GeocodingProvider  { return c.geocodingProvider }
func (c Config) GeocodingUserAgent() string            { return c.geocodingUserAgent }
func (c Config) RequestsPerSecond() float64            { return c.requestsPerSecond }
func (c Config) Burst() int                            { return c.burst }
func (c Config) MaxRetries() int                       { return c.maxRetries }
func (c Config) BaseDelay() time.Duration              { return c.baseDelay }
func (c Config) CacheTTLHTML() time.Duration           { return c.cacheTTLHTML }
func (c Config) CacheTTLGeocode() time.Duration        { return c.cacheTTLGeocode }
func (c Config) ScraperDebug() bool                    { return c.scraperDebug }
func (c Config) ScraperRefresh() bool                  { return c.scraperRefresh }
func (c Config) ScraperValidate() bool                 { return c.scraperValidate }
func (c Config) ScrapeSchedule() string                { return c.scrapeSchedule }
func (c Config) EnrichmentSchedule() string             { return c.enrichmentSchedule }
func (c Config) RunDeadline() time.Duration            { return c.runDeadline }
func (c Config) RequestDeadline() time.Duration        { return c.requestDeadline }
func (c Config) NUpsert() int                          { return c.nUpsert }
func (c Config) DetailBatchSize() int                  { return c.detailBatchSize }
func (c Config) UserAgent() string                     { return c.userAgent }

func (c Config) AllowedHosts() []string {
	hosts := make([]string, len(c.allowedHosts))
	copy(hosts, c.allowedHosts)
	return hosts
}

func (c Config) SeedSources() []SeedSourceConfig {
	sources := make([]SeedSourceConfig, len(c.seedSources))
	copy(sources, c.seedSources)
	return sources
}
