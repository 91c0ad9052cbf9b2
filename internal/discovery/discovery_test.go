package discovery

import (
	"net/url"
	"testing"
	"time"

	"github.com/aerc-harvest/harvester/internal/metadata"
	"github.com/aerc-harvest/harvester/pkg/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockMetadataSink struct {
	errorCauses []metadata.ErrorCause
}

func (m *mockMetadataSink) RecordFetch(fetchUrl string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int) {
}
func (m *mockMetadataSink) RecordAssetFetch(assetUrl string, httpStatus int, duration time.Duration, retryCount int) {
}
func (m *mockMetadataSink) RecordArtifact(kind metadata.ArtifactKind, path string, attrs []metadata.Attribute) {
}
func (m *mockMetadataSink) RecordCacheEvent(hit bool, evicted bool, validatorFailed bool) {}
func (m *mockMetadataSink) RecordGeocodeAttempt(provider string, success bool, duration time.Duration) {
}
func (m *mockMetadataSink) RecordDetailAttempt(provider string, success bool, duration time.Duration) {
}
func (m *mockMetadataSink) RecordRunReport(runID string, source string, stats metadata.CrawlStats) {}
func (m *mockMetadataSink) RecordError(observedAt time.Time, packageName string, action string, cause metadata.ErrorCause, errorString string, attrs []metadata.Attribute) {
	m.errorCauses = append(m.errorCauses, cause)
}

func fixedNow(y int) func() time.Time {
	return func() time.Time { return time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC) }
}

func TestDiscover_NoSeedSourcesIsFatal(t *testing.T) {
	sink := &mockMetadataSink{}
	d := NewAERCDiscoverer(sink, nil, 1, 1, fixedNow(2026), nil)

	pages, err := d.Discover()
	require.Error(t, err)
	assert.Nil(t, pages)
	assert.Equal(t, failure.SeverityFatal, err.Severity())
}

func TestDiscover_ExpandsYearTemplateAcrossSpan(t *testing.T) {
	sink := &mockMetadataSink{}
	seeds := []SeedSource{{Name: "aerc-calendar", URLTemplate: "https://aerc.org/calendar/{year}"}}
	d := NewAERCDiscoverer(sink, seeds, 1, 1, fixedNow(2026), nil)

	pages, err := d.Discover()
	require.Nil(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, 2025, pages[0].Year)
	assert.Equal(t, "https://aerc.org/calendar/2025", pages[0].URL.String())
	assert.Equal(t, 2026, pages[1].Year)
	assert.Equal(t, 2027, pages[2].Year)
	assert.Equal(t, "aerc-calendar", pages[0].Source)
}

func TestDiscover_NonTemplatedSeedYieldsOnePage(t *testing.T) {
	sink := &mockMetadataSink{}
	seeds := []SeedSource{{Name: "static-page", URLTemplate: "https://aerc.org/rides"}}
	d := NewAERCDiscoverer(sink, seeds, 2, 2, fixedNow(2026), nil)

	pages, err := d.Discover()
	require.Nil(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 0, pages[0].Year)
}

func TestDiscover_RobotDisallowDropsPageWithoutFailingRun(t *testing.T) {
	sink := &mockMetadataSink{}
	seeds := []SeedSource{{Name: "aerc-calendar", URLTemplate: "https://aerc.org/calendar/{year}"}}
	blockAll := RobotAdapter(func(target url.URL) (bool, error) { return false, nil })
	d := NewAERCDiscoverer(sink, seeds, 0, 0, fixedNow(2026), blockAll)

	pages, err := d.Discover()
	require.Nil(t, err)
	assert.Empty(t, pages)
	assert.Contains(t, sink.errorCauses, metadata.CausePolicyDisallow)
}

func TestDiscover_RobotAllowKeepsPage(t *testing.T) {
	sink := &mockMetadataSink{}
	seeds := []SeedSource{{Name: "aerc-calendar", URLTemplate: "https://aerc.org/rides"}}
	allowAll := RobotAdapter(func(target url.URL) (bool, error) { return true, nil })
	d := NewAERCDiscoverer(sink, seeds, 0, 0, fixedNow(2026), allowAll)

	pages, err := d.Discover()
	require.Nil(t, err)
	require.Len(t, pages, 1)
}
