package mdconvert_test

import (
	"time"

	"github.com/aerc-harvest/harvester/internal/metadata"
)

// mockMetadataSink is a no-op MetadataSink that records error causes so
// tests can assert a conversion failure was reported.
type mockMetadataSink struct {
	errorCauses []metadata.ErrorCause
}

func newMockMetadataSink() *mockMetadataSink { return &mockMetadataSink{} }

func (m *mockMetadataSink) RecordFetch(fetchUrl string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int) {
}
func (m *mockMetadataSink) RecordAssetFetch(assetUrl string, httpStatus int, duration time.Duration, retryCount int) {
}
func (m *mockMetadataSink) RecordError(observedAt time.Time, packageName string, action string, cause metadata.ErrorCause, errorString string, attrs []metadata.Attribute) {
	m.errorCauses = append(m.errorCauses, cause)
}
func (m *mockMetadataSink) RecordArtifact(kind metadata.ArtifactKind, path string, attrs []metadata.Attribute) {
}
func (m *mockMetadataSink) RecordCacheEvent(hit bool, evicted bool, validatorFailed bool)         {}
func (m *mockMetadataSink) RecordGeocodeAttempt(provider string, success bool, d time.Duration)  {}
func (m *mockMetadataSink) RecordDetailAttempt(provider string, success bool, d time.Duration)   {}
func (m *mockMetadataSink) RecordRunReport(runID string, source string, stats metadata.CrawlStats) {
}
