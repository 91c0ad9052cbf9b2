/*
Responsibilities
- Decide freshness of a stored FetchRecord (TTL + caller validator)
- Evict entries whose validator predicate fails
- Honour a global force-refresh flag that bypasses freshness checks
- Report hit/miss/eviction/validator-fail counters to the MetadataSink

ContentCache carries no storage logic of its own; it is the
TTL/validator/force-refresh policy layer over a Backend (MemoryBackend
or DiskBackend).
*/
package cache

import (
	"net/url"
	"sync/atomic"
	"time"

	"github.com/aerc-harvest/harvester/internal/metadata"
	"github.com/aerc-harvest/harvester/internal/model"
	"github.com/aerc-harvest/harvester/pkg/failure"
	"github.com/aerc-harvest/harvester/pkg/hashutil"
	"github.com/aerc-harvest/harvester/pkg/urlutil"
)

// Validator inspects a fresh-by-TTL entry's payload and reports whether
// it is still usable (e.g. "parsed row count >= 1", "payload is
// non-empty HTML"). A validator that returns false evicts the entry.
type Validator func(payload []byte) bool

// Stats are the counters the cache reports.
type Stats struct {
	Hits           int64
	Misses         int64
	Evictions      int64
	ValidatorFails int64
}

type ContentCache struct {
	backend      Backend
	metadataSink metadata.MetadataSink
	hashAlgo     hashutil.HashAlgo

	hits           atomic.Int64
	misses         atomic.Int64
	evictions      atomic.Int64
	validatorFails atomic.Int64
}

func NewContentCache(backend Backend, metadataSink metadata.MetadataSink, hashAlgo hashutil.HashAlgo) *ContentCache {
	return &ContentCache{
		backend:      backend,
		metadataSink: metadataSink,
		hashAlgo:     hashAlgo,
	}
}

// Key returns the stable cache key for a URL: a hash of the
// canonicalized form (scheme+host lowercased, path normalized, query
// stripped per pkg/urlutil.Canonicalize).
func (c *ContentCache) Key(rawURL string) (string, failure.ClassifiedError) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", &CacheError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseHashComputationFailed,
			Key:       rawURL,
		}
	}
	canonical := urlutil.Canonicalize(*parsed)
	hash, hashErr := hashutil.HashBytes([]byte(canonical.String()), c.hashAlgo)
	if hashErr != nil {
		return "", &CacheError{
			Message:   hashErr.Error(),
			Retryable: false,
			Cause:     ErrCauseHashComputationFailed,
			Key:       rawURL,
		}
	}
	return hash, nil
}

// Get looks up rawURL. If forceRefresh is set, the freshness and
// validator checks are bypassed entirely and Get always reports a miss
// (the caller is expected to fetch and Put a new entry). Otherwise an
// entry is fresh iff now is before Expires AND validate (if non-nil)
// returns true for its payload; a validator failure evicts the entry.
func (c *ContentCache) Get(rawURL string, now time.Time, forceRefresh bool, validate Validator) (model.FetchRecord, bool, failure.ClassifiedError) {
	if forceRefresh {
		c.recordMiss()
		return model.FetchRecord{}, false, nil
	}

	key, keyErr := c.Key(rawURL)
	if keyErr != nil {
		return model.FetchRecord{}, false, keyErr
	}

	record, found, err := c.backend.Get(key)
	if err != nil {
		return model.FetchRecord{}, false, err
	}
	if !found {
		c.recordMiss()
		return model.FetchRecord{}, false, nil
	}

	if !record.Fresh(now) {
		c.recordMiss()
		return model.FetchRecord{}, false, nil
	}

	if validate != nil && !validate(record.Payload) {
		c.validatorFails.Add(1)
		c.evictions.Add(1)
		if delErr := c.backend.Delete(key); delErr != nil {
			return model.FetchRecord{}, false, delErr
		}
		c.metadataSink.RecordCacheEvent(false, true, true)
		return model.FetchRecord{}, false, nil
	}

	c.recordHit()
	return record, true, nil
}

// Put writes a fresh entry for rawURL with the given TTL, ETag, and
// content hash, replacing any existing entry whole. Entries are
// immutable once written; this is always a full replacement.
func (c *ContentCache) Put(rawURL string, payload []byte, fetchedAt time.Time, ttl time.Duration, etag, contentHash string) failure.ClassifiedError {
	key, keyErr := c.Key(rawURL)
	if keyErr != nil {
		return keyErr
	}

	record := model.FetchRecord{
		URL:         rawURL,
		FetchedAt:   fetchedAt,
		Expires:     fetchedAt.Add(ttl),
		ETag:        etag,
		ContentHash: contentHash,
		Payload:     payload,
	}

	return c.backend.Put(key, record)
}

func (c *ContentCache) recordHit() {
	c.hits.Add(1)
	c.metadataSink.RecordCacheEvent(true, false, false)
}

func (c *ContentCache) recordMiss() {
	c.misses.Add(1)
	c.metadataSink.RecordCacheEvent(false, false, false)
}

// Stats snapshots the cache's running counters.
func (c *ContentCache) Stats() Stats {
	return Stats{
		Hits:           c.hits.Load(),
		Misses:         c.misses.Load(),
		Evictions:      c.evictions.Load(),
		ValidatorFails: c.validatorFails.Load(),
	}
}
