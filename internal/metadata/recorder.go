package metadata

import (
	"sync"
	"time"
)

/*
Metadata Collected
- Fetch timestamps
- HTTP status codes
- Content hashes
- Crawl/run depth
- Cache hit/miss/eviction counters
- Geocode and detail-enrichment attempt outcomes

Logging Goals
- Debuggable run behavior
- Post-run auditability
- Failure diagnostics

Structured logging is preferred.

Allowed:
- Primitive values
- Timestamps
- URLs (as values, not objects with behavior)
- Hashes
- Status codes
- Durations
- Identifiers (event id, run id)
*/

// MetadataSink is the write-through, ambient observability surface
// every pipeline component and worker records against. It never drives
// control flow; ErrorCause values recorded here are for dashboards
// only (see the ErrorCause doc block in data.go).
type MetadataSink interface {
	RecordFetch(fetchUrl string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int)
	RecordAssetFetch(assetUrl string, httpStatus int, duration time.Duration, retryCount int)
	RecordError(observedAt time.Time, packageName string, action string, cause ErrorCause, errorString string, attrs []Attribute)
	RecordArtifact(kind ArtifactKind, path string, attrs []Attribute)
	RecordCacheEvent(hit bool, evicted bool, validatorFailed bool)
	RecordGeocodeAttempt(provider string, success bool, duration time.Duration)
	RecordDetailAttempt(provider string, success bool, duration time.Duration)
	RecordRunReport(runID string, source string, stats CrawlStats)
}

// Recorder is the process-wide MetadataSink implementation. It holds no
// behavior beyond counting and appending — per the ambient-state design
// note, it is the one permitted singleton-shaped dependency, and it is
// a pure write-through registry rather than a decision-maker.
type Recorder struct {
	mu sync.Mutex

	fetches        []FetchEvent
	assetFetches   []AssetFetchEvent
	errors         []ErrorRecord
	artifacts      []ArtifactRecord
	runReports     map[string]CrawlStats

	cacheHits           int
	cacheMisses         int
	cacheEvictions      int
	cacheValidatorFails int

	geocodeAttempts int
	geocodeSuccess  int
	detailAttempts  int
	detailSuccess   int
}

func NewRecorder() *Recorder {
	return &Recorder{
		runReports: make(map[string]CrawlStats),
	}
}

var _ MetadataSink = (*Recorder)(nil)

func (r *Recorder) RecordFetch(fetchUrl string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches = append(r.fetches, FetchEvent{
		fetchUrl:    fetchUrl,
		httpStatus:  httpStatus,
		duration:    duration,
		contentType: contentType,
		retryCount:  retryCount,
		crawlDepth:  crawlDepth,
	})
}

func (r *Recorder) RecordAssetFetch(assetUrl string, httpStatus int, duration time.Duration, retryCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assetFetches = append(r.assetFetches, AssetFetchEvent{
		assetUrl:   assetUrl,
		httpStatus: httpStatus,
		duration:   duration,
		retryCount: retryCount,
	})
}

func (r *Recorder) RecordError(observedAt time.Time, packageName string, action string, cause ErrorCause, errorString string, attrs []Attribute) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, ErrorRecord{
		packageName: packageName,
		action:      action,
		cause:       cause,
		errorString: errorString,
		observedAt:  observedAt,
		attrs:       attrs,
	})
}

func (r *Recorder) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts = append(r.artifacts, ArtifactRecord{Kind: kind, Paths: path})
}

func (r *Recorder) RecordCacheEvent(hit bool, evicted bool, validatorFailed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.cacheHits++
	} else {
		r.cacheMisses++
	}
	if evicted {
		r.cacheEvictions++
	}
	if validatorFailed {
		r.cacheValidatorFails++
	}
}

func (r *Recorder) RecordGeocodeAttempt(provider string, success bool, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.geocodeAttempts++
	if success {
		r.geocodeSuccess++
	}
}

func (r *Recorder) RecordDetailAttempt(provider string, success bool, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detailAttempts++
	if success {
		r.detailSuccess++
	}
}

func (r *Recorder) RecordRunReport(runID string, source string, stats CrawlStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runReports[runID] = stats
}

// Snapshot returns a point-in-time copy of the counters MetricsSink
// exposes to an operator or dashboard.
type Snapshot struct {
	TotalFetches        int
	TotalAssetFetches   int
	TotalErrors         int
	TotalArtifacts      int
	CacheHits           int
	CacheMisses         int
	CacheEvictions      int
	CacheValidatorFails int
	GeocodeAttempts     int
	GeocodeSuccess      int
	DetailAttempts      int
	DetailSuccess       int
}

func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		TotalFetches:        len(r.fetches),
		TotalAssetFetches:   len(r.assetFetches),
		TotalErrors:         len(r.errors),
		TotalArtifacts:      len(r.artifacts),
		CacheHits:           r.cacheHits,
		CacheMisses:         r.cacheMisses,
		CacheEvictions:      r.cacheEvictions,
		CacheValidatorFails: r.cacheValidatorFails,
		GeocodeAttempts:     r.geocodeAttempts,
		GeocodeSuccess:      r.geocodeSuccess,
		DetailAttempts:      r.detailAttempts,
		DetailSuccess:       r.detailSuccess,
	}
}
