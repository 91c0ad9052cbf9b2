package cache

import (
	"testing"
	"time"

	"github.com/aerc-harvest/harvester/internal/metadata"
	"github.com/aerc-harvest/harvester/pkg/hashutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockMetadataSink struct {
	cacheEvents []cacheEvent
}

type cacheEvent struct {
	hit, evicted, validatorFailed bool
}

func (m *mockMetadataSink) RecordFetch(fetchUrl string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int) {
}
func (m *mockMetadataSink) RecordAssetFetch(assetUrl string, httpStatus int, duration time.Duration, retryCount int) {
}
func (m *mockMetadataSink) RecordArtifact(kind metadata.ArtifactKind, path string, attrs []metadata.Attribute) {
}
func (m *mockMetadataSink) RecordCacheEvent(hit bool, evicted bool, validatorFailed bool) {
	m.cacheEvents = append(m.cacheEvents, cacheEvent{hit, evicted, validatorFailed})
}
func (m *mockMetadataSink) RecordGeocodeAttempt(provider string, success bool, duration time.Duration) {
}
func (m *mockMetadataSink) RecordDetailAttempt(provider string, success bool, duration time.Duration) {
}
func (m *mockMetadataSink) RecordRunReport(runID string, source string, stats metadata.CrawlStats) {}
func (m *mockMetadataSink) RecordError(observedAt time.Time, packageName string, action string, cause metadata.ErrorCause, errorString string, attrs []metadata.Attribute) {
}

func TestContentCache_MissThenHitAfterPut(t *testing.T) {
	sink := &mockMetadataSink{}
	c := NewContentCache(NewMemoryBackend(), sink, hashutil.HashAlgoSHA256)

	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	url := "https://aerc.org/calendar?page=1"

	_, found, err := c.Get(url, now, false, nil)
	require.Nil(t, err)
	assert.False(t, found)

	require.Nil(t, c.Put(url, []byte("<html></html>"), now, time.Hour, "etag-1", "hash-1"))

	record, found, err := c.Get(url, now.Add(time.Minute), false, nil)
	require.Nil(t, err)
	require.True(t, found)
	assert.Equal(t, "<html></html>", string(record.Payload))

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestContentCache_ExpiredEntryIsMiss(t *testing.T) {
	sink := &mockMetadataSink{}
	c := NewContentCache(NewMemoryBackend(), sink, hashutil.HashAlgoSHA256)

	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	url := "https://aerc.org/calendar"

	require.Nil(t, c.Put(url, []byte("content"), now, time.Minute, "", ""))

	_, found, err := c.Get(url, now.Add(2*time.Minute), false, nil)
	require.Nil(t, err)
	assert.False(t, found)
}

func TestContentCache_ValidatorFailureEvicts(t *testing.T) {
	sink := &mockMetadataSink{}
	backend := NewMemoryBackend()
	c := NewContentCache(backend, sink, hashutil.HashAlgoSHA256)

	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	url := "https://aerc.org/calendar"

	require.Nil(t, c.Put(url, []byte(""), now, time.Hour, "", ""))

	alwaysFails := func(payload []byte) bool { return len(payload) > 0 }
	_, found, err := c.Get(url, now, false, alwaysFails)
	require.Nil(t, err)
	assert.False(t, found)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.ValidatorFails)
	assert.Equal(t, int64(1), stats.Evictions)
	assert.Equal(t, 0, backend.Size())
}

func TestContentCache_ForceRefreshBypassesFreshEntry(t *testing.T) {
	sink := &mockMetadataSink{}
	c := NewContentCache(NewMemoryBackend(), sink, hashutil.HashAlgoSHA256)

	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	url := "https://aerc.org/calendar"

	require.Nil(t, c.Put(url, []byte("content"), now, time.Hour, "", ""))

	_, found, err := c.Get(url, now, true, nil)
	require.Nil(t, err)
	assert.False(t, found)
}

func TestContentCache_KeyIsStableAcrossHostCaseAndTrailingSlash(t *testing.T) {
	sink := &mockMetadataSink{}
	c := NewContentCache(NewMemoryBackend(), sink, hashutil.HashAlgoSHA256)

	k1, err := c.Key("https://AERC.org/calendar/")
	require.Nil(t, err)
	k2, err := c.Key("https://aerc.org/calendar")
	require.Nil(t, err)
	assert.Equal(t, k1, k2)
}

func TestDiskBackend_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	backend := NewDiskBackend(dir, hashutil.HashAlgoSHA256)

	sink := &mockMetadataSink{}
	c := NewContentCache(backend, sink, hashutil.HashAlgoSHA256)

	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	url := "https://aerc.org/calendar"

	require.Nil(t, c.Put(url, []byte("persisted"), now, time.Hour, "etag", "hash"))

	reopened := NewContentCache(backend, sink, hashutil.HashAlgoSHA256)
	record, found, err := reopened.Get(url, now.Add(time.Minute), false, nil)
	require.Nil(t, err)
	require.True(t, found)
	assert.Equal(t, "persisted", string(record.Payload))
}

func TestDiskBackend_MissingKeyIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	backend := NewDiskBackend(dir, hashutil.HashAlgoSHA256)

	_, found, err := backend.Get("nonexistent")
	require.Nil(t, err)
	assert.False(t, found)
}
