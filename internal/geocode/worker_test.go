package geocode

import (
	"context"
	"testing"
	"time"

	"github.com/aerc-harvest/harvester/internal/cache"
	"github.com/aerc-harvest/harvester/internal/metadata"
	"github.com/aerc-harvest/harvester/internal/model"
	"github.com/aerc-harvest/harvester/internal/repository"
	"github.com/aerc-harvest/harvester/pkg/failure"
	"github.com/aerc-harvest/harvester/pkg/hashutil"
	"github.com/aerc-harvest/harvester/pkg/retry"
	"github.com/aerc-harvest/harvester/pkg/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockMetadataSink struct {
	errorCauses      []metadata.ErrorCause
	geocodeAttempts  int
	geocodeSuccesses int
}

func (m *mockMetadataSink) RecordFetch(fetchUrl string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int) {
}
func (m *mockMetadataSink) RecordAssetFetch(assetUrl string, httpStatus int, duration time.Duration, retryCount int) {
}
func (m *mockMetadataSink) RecordArtifact(kind metadata.ArtifactKind, path string, attrs []metadata.Attribute) {
}
func (m *mockMetadataSink) RecordCacheEvent(hit bool, evicted bool, validatorFailed bool) {}
func (m *mockMetadataSink) RecordGeocodeAttempt(provider string, success bool, duration time.Duration) {
	m.geocodeAttempts++
	if success {
		m.geocodeSuccesses++
	}
}
func (m *mockMetadataSink) RecordDetailAttempt(provider string, success bool, duration time.Duration) {
}
func (m *mockMetadataSink) RecordRunReport(runID string, source string, stats metadata.CrawlStats) {}
func (m *mockMetadataSink) RecordError(observedAt time.Time, packageName string, action string, cause metadata.ErrorCause, errorString string, attrs []metadata.Attribute) {
	m.errorCauses = append(m.errorCauses, cause)
}

type stubGeocoder struct {
	calls  int
	result GeocodeResult
	err    failure.ClassifiedError
}

func (s *stubGeocoder) Geocode(ctx context.Context, query string) (GeocodeResult, failure.ClassifiedError) {
	s.calls++
	return s.result, s.err
}

type stubRepo struct {
	geocodable []model.Event
	marked     map[int64][2]*float64
}

func newStubRepo(events ...model.Event) *stubRepo {
	return &stubRepo{geocodable: events, marked: map[int64][2]*float64{}}
}

func (r *stubRepo) Upsert(ctx context.Context, event model.Event) (model.Event, failure.ClassifiedError) {
	return event, nil
}
func (r *stubRepo) Get(ctx context.Context, id int64) (model.Event, failure.ClassifiedError) {
	for _, e := range r.geocodable {
		if e.ID == id {
			return e, nil
		}
	}
	return model.Event{}, &repository.RepositoryError{Message: "no event with this id", Cause: repository.ErrCauseNotFound}
}
func (r *stubRepo) ListForGeocoding(ctx context.Context, limit int) ([]model.Event, failure.ClassifiedError) {
	return r.geocodable, nil
}
func (r *stubRepo) ListForDetailEnrichment(ctx context.Context, now time.Time) ([]model.Event, failure.ClassifiedError) {
	return nil, nil
}
func (r *stubRepo) ListByLocation(ctx context.Context, query repository.LocationQuery) ([]model.Event, failure.ClassifiedError) {
	return nil, nil
}
func (r *stubRepo) MarkGeocoded(ctx context.Context, id int64, lat *float64, lng *float64) failure.ClassifiedError {
	r.marked[id] = [2]*float64{lat, lng}
	return nil
}
func (r *stubRepo) UpdateDetails(ctx context.Context, id int64, patch map[string]any, checkedAt time.Time) failure.ClassifiedError {
	return nil
}
func (r *stubRepo) SaveRunReport(ctx context.Context, report model.RunReport) failure.ClassifiedError {
	return nil
}

func testRetryParam() retry.RetryParam {
	return retry.NewRetryParam(time.Millisecond, 0, 1, 2, timeutil.NewBackoffParam(time.Millisecond, 2, time.Second))
}

func TestGeocodeOne_EmptyLocation_RecordsErrorWithoutCallingProvider(t *testing.T) {
	sink := &mockMetadataSink{}
	provider := &stubGeocoder{}
	repo := newStubRepo()
	w := NewGeocodeWorker(sink, repo, provider, "nominatim", cache.NewMemoryBackend(), hashutil.HashAlgoSHA256, time.Hour, time.Minute, testRetryParam())

	err := w.GeocodeOne(context.Background(), model.Event{ID: 1})
	require.Error(t, err)
	assert.Equal(t, 0, provider.calls)
	assert.Contains(t, sink.errorCauses, metadata.CauseInvariantViolation)
}

func TestGeocodeOne_Success_MarksCoordinatesAndCaches(t *testing.T) {
	sink := &mockMetadataSink{}
	provider := &stubGeocoder{result: GeocodeResult{Lat: 44.7972, Lng: -106.9507, Found: true}}
	repo := newStubRepo()
	backend := cache.NewMemoryBackend()
	w := NewGeocodeWorker(sink, repo, provider, "nominatim", backend, hashutil.HashAlgoSHA256, time.Hour, time.Minute, testRetryParam())

	event := model.Event{ID: 7, Location: "Sheridan, WY", City: "Sheridan", State: "WY", Country: "USA"}
	err := w.GeocodeOne(context.Background(), event)
	require.NoError(t, err)

	marked := repo.marked[7]
	require.NotNil(t, marked[0])
	require.NotNil(t, marked[1])
	assert.InDelta(t, 44.7972, *marked[0], 0.0001)
	assert.Equal(t, 1, provider.calls)

	// Second call for the same query hits the cache; provider not called again.
	err = w.GeocodeOne(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.calls)
}

func TestGeocodeOne_TerminalNotFound_MarksAttemptedWithNilCoordinates(t *testing.T) {
	sink := &mockMetadataSink{}
	provider := &stubGeocoder{err: &GeocodeError{Message: "no results", Cause: ErrCauseNotFound}}
	repo := newStubRepo()
	w := NewGeocodeWorker(sink, repo, provider, "nominatim", cache.NewMemoryBackend(), hashutil.HashAlgoSHA256, time.Hour, time.Minute, testRetryParam())

	event := model.Event{ID: 9, Location: "Nowhere Ranch"}
	err := w.GeocodeOne(context.Background(), event)
	require.NoError(t, err)

	marked, ok := repo.marked[9]
	require.True(t, ok)
	assert.Nil(t, marked[0])
	assert.Nil(t, marked[1])
}

func TestGeocodeOne_RetryableFailure_LeavesEventUnattempted(t *testing.T) {
	sink := &mockMetadataSink{}
	provider := &stubGeocoder{err: &GeocodeError{Message: "timeout", Retryable: true, Cause: ErrCauseProviderTimeout}}
	repo := newStubRepo()
	w := NewGeocodeWorker(sink, repo, provider, "nominatim", cache.NewMemoryBackend(), hashutil.HashAlgoSHA256, time.Hour, time.Minute, testRetryParam())

	event := model.Event{ID: 11, Location: "Somewhere"}
	err := w.GeocodeOne(context.Background(), event)
	require.Error(t, err)
	_, marked := repo.marked[11]
	assert.False(t, marked)
	assert.Equal(t, 2, provider.calls) // MaxAttempts from testRetryParam
}

func TestRunBatch_ProcessesAllEligibleEvents(t *testing.T) {
	sink := &mockMetadataSink{}
	provider := &stubGeocoder{result: GeocodeResult{Lat: 1, Lng: 2, Found: true}}
	repo := newStubRepo(
		model.Event{ID: 1, Location: "A"},
		model.Event{ID: 2, Location: "B"},
	)
	w := NewGeocodeWorker(sink, repo, provider, "nominatim", cache.NewMemoryBackend(), hashutil.HashAlgoSHA256, time.Hour, time.Minute, testRetryParam())

	processed, err := w.RunBatch(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)
}

func TestListen_LocationChangedMessage_RegeocodesEvent(t *testing.T) {
	sink := &mockMetadataSink{}
	provider := &stubGeocoder{result: GeocodeResult{Lat: 35.1, Lng: -111.6, Found: true}}
	repo := newStubRepo(model.Event{ID: 3, Location: "Flagstaff, AZ", GeocodingAttempted: true})
	w := NewGeocodeWorker(sink, repo, provider, "nominatim", cache.NewMemoryBackend(), hashutil.HashAlgoSHA256, time.Hour, time.Minute, testRetryParam())

	ch := make(chan LocationChangedEvent, 1)
	ch <- LocationChangedEvent{EventID: 3}
	close(ch)
	w.Listen(context.Background(), ch)

	marked, ok := repo.marked[3]
	require.True(t, ok)
	require.NotNil(t, marked[0])
	assert.InDelta(t, 35.1, *marked[0], 0.0001)
	assert.Equal(t, 1, provider.calls)
}

func TestListen_UnknownEventID_RecordsRepositoryError(t *testing.T) {
	sink := &mockMetadataSink{}
	provider := &stubGeocoder{}
	repo := newStubRepo()
	w := NewGeocodeWorker(sink, repo, provider, "nominatim", cache.NewMemoryBackend(), hashutil.HashAlgoSHA256, time.Hour, time.Minute, testRetryParam())

	ch := make(chan LocationChangedEvent, 1)
	ch <- LocationChangedEvent{EventID: 404}
	close(ch)
	w.Listen(context.Background(), ch)

	assert.Equal(t, 0, provider.calls)
	assert.Contains(t, sink.errorCauses, metadata.CauseRepository)
}
