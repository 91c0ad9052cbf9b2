package orchestrator_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/aerc-harvest/harvester/internal/aercparser"
	"github.com/aerc-harvest/harvester/internal/discovery"
	"github.com/aerc-harvest/harvester/internal/eventnorm"
	"github.com/aerc-harvest/harvester/internal/fetcher"
	"github.com/aerc-harvest/harvester/internal/htmlnorm"
	"github.com/aerc-harvest/harvester/internal/metadata"
	"github.com/aerc-harvest/harvester/internal/model"
	"github.com/aerc-harvest/harvester/internal/orchestrator"
	"github.com/aerc-harvest/harvester/internal/repository"
	"github.com/aerc-harvest/harvester/pkg/failure"
	"github.com/aerc-harvest/harvester/pkg/retry"
	"github.com/aerc-harvest/harvester/pkg/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- test doubles ---

type mockMetadataSink struct {
	errorCauses []metadata.ErrorCause
	runReports  []metadata.CrawlStats
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
func (m *mockMetadataSink) RecordRunReport(runID string, source string, stats metadata.CrawlStats) {
	m.runReports = append(m.runReports, stats)
}
func (m *mockMetadataSink) RecordError(observedAt time.Time, packageName string, action string, cause metadata.ErrorCause, errorString string, attrs []metadata.Attribute) {
	m.errorCauses = append(m.errorCauses, cause)
}

type stubDiscoverer struct {
	pages []discovery.TargetPage
	err   failure.ClassifiedError
}

func (s stubDiscoverer) Discover() ([]discovery.TargetPage, failure.ClassifiedError) {
	return s.pages, s.err
}

type stubFetcher struct {
	bodyByURL map[string][]byte
	errByURL  map[string]failure.ClassifiedError
}

func (s stubFetcher) Fetch(ctx context.Context, crawlDepth int, fetchParam fetcher.FetchParam, retryParam retry.RetryParam) (fetcher.FetchResult, failure.ClassifiedError) {
	fetchURL := fetchParam.URL()
	u := fetchURL.String()
	if err, ok := s.errByURL[u]; ok {
		return fetcher.FetchResult{}, err
	}
	return fetcher.NewFetchResultForTest(fetchParam.URL(), s.bodyByURL[u], 200, nil, time.Now(), fetcher.SourceNetwork), nil
}

type passthroughHTMLNorm struct{}

func (passthroughHTMLNorm) Normalize(rawHTML []byte) (htmlnorm.Result, failure.ClassifiedError) {
	return htmlnorm.Result{HTML: string(rawHTML)}, nil
}

type stubParser struct {
	eventsPerURL map[string][]model.RawEvent
	errByURL     map[string]failure.ClassifiedError
}

func (s stubParser) Parse(pageURL string, normalizedHTML string, pageOrder int) (aercparser.Result, failure.ClassifiedError) {
	if err, ok := s.errByURL[pageURL]; ok {
		return aercparser.Result{}, err
	}
	return aercparser.Result{Events: s.eventsPerURL[pageURL]}, nil
}

type passthroughEventNorm struct{}

func (passthroughEventNorm) Normalize(rawEvents []model.RawEvent) (eventnorm.Result, failure.ClassifiedError) {
	events := make([]model.Event, 0, len(rawEvents))
	for _, r := range rawEvents {
		events = append(events, model.Event{
			Source: r.Source, RideID: r.RideID, Name: r.Name,
			DateStart: r.DateStart, DateEnd: r.DateEnd,
		})
	}
	return eventnorm.Result{Events: events}, nil
}

type memUpsertRepo struct {
	stored  map[string]model.Event
	reports []model.RunReport
}

func newMemUpsertRepo() *memUpsertRepo { return &memUpsertRepo{stored: map[string]model.Event{}} }

func (r *memUpsertRepo) Upsert(ctx context.Context, event model.Event) (model.Event, failure.ClassifiedError) {
	now := time.Now()
	key := event.IdentityKey()
	if _, exists := r.stored[key]; !exists {
		event.CreatedAt = now
		event.UpdatedAt = now
	} else {
		event.UpdatedAt = now
	}
	r.stored[key] = event
	return event, nil
}
func (r *memUpsertRepo) Get(ctx context.Context, id int64) (model.Event, failure.ClassifiedError) {
	return model.Event{}, nil
}
func (r *memUpsertRepo) ListForGeocoding(ctx context.Context, limit int) ([]model.Event, failure.ClassifiedError) {
	return nil, nil
}
func (r *memUpsertRepo) ListForDetailEnrichment(ctx context.Context, now time.Time) ([]model.Event, failure.ClassifiedError) {
	return nil, nil
}
func (r *memUpsertRepo) ListByLocation(ctx context.Context, query repository.LocationQuery) ([]model.Event, failure.ClassifiedError) {
	return nil, nil
}
func (r *memUpsertRepo) MarkGeocoded(ctx context.Context, id int64, lat *float64, lng *float64) failure.ClassifiedError {
	return nil
}
func (r *memUpsertRepo) UpdateDetails(ctx context.Context, id int64, patch map[string]any, checkedAt time.Time) failure.ClassifiedError {
	return nil
}
func (r *memUpsertRepo) SaveRunReport(ctx context.Context, report model.RunReport) failure.ClassifiedError {
	r.reports = append(r.reports, report)
	return nil
}

type testFatalError struct{ msg string }

func (e testFatalError) Error() string                  { return e.msg }
func (e testFatalError) Severity() failure.Severity      { return failure.SeverityFatal }

type testRecoverableError struct{ msg string }

func (e testRecoverableError) Error() string             { return e.msg }
func (e testRecoverableError) Severity() failure.Severity { return failure.SeverityRecoverable }

func mustURL(t *testing.T, raw string) url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return *u
}

func newOrchestrator(
	disc discovery.Discoverer,
	fx fetcher.Fetcher,
	hn htmlnorm.Normalizer,
	p aercparser.Parser,
	en eventnorm.Normalizer,
	repo repository.Repository,
	sink *mockMetadataSink,
) *orchestrator.Orchestrator {
	return orchestrator.NewOrchestrator(sink, disc, fx, hn, p, en, repo, orchestrator.Config{
		SourceLabel:   "aerc",
		UserAgent:     "harvester-test/1.0",
		FetchTTL:      time.Hour,
		FetchWorkers:  2,
		UpsertWorkers: 2,
		RetryParam:    retry.NewRetryParam(time.Millisecond, 0, 1, 1, timeutil.NewBackoffParam(time.Millisecond, 2, time.Second)),
	})
}

func TestRun_HappyPath_InsertsEventsAndMarksOK(t *testing.T) {
	sink := &mockMetadataSink{}
	pageURL := mustURL(t, "https://aerc.org/calendar/2026")
	disc := stubDiscoverer{pages: []discovery.TargetPage{{URL: pageURL, Source: "aerc-calendar", Year: 2026}}}
	fx := stubFetcher{bodyByURL: map[string][]byte{pageURL.String(): []byte("<html></html>")}}
	parser := stubParser{eventsPerURL: map[string][]model.RawEvent{
		pageURL.String(): {{Source: "aerc", RideID: "1001", Name: "Big Horn 100"}},
	}}
	repo := newMemUpsertRepo()

	o := newOrchestrator(disc, fx, passthroughHTMLNorm{}, parser, passthroughEventNorm{}, repo, sink)
	report, err := o.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, model.RunOutcomeOK, report.Outcome)
	assert.Equal(t, 1, report.Counts.Fetched)
	assert.Equal(t, 1, report.Counts.Parsed)
	assert.Equal(t, 1, report.Counts.Valid)
	assert.Equal(t, 1, report.Counts.Inserted)
	assert.True(t, report.Counts.CheckInvariant())
	require.Len(t, sink.runReports, 1)

	// The finished report is also persisted through the repository.
	require.Len(t, repo.reports, 1)
	assert.Equal(t, report.RunID, repo.reports[0].RunID)
}

func TestRun_NoValidEvents_MarksDegraded(t *testing.T) {
	sink := &mockMetadataSink{}
	pageURL := mustURL(t, "https://aerc.org/calendar/2026")
	disc := stubDiscoverer{pages: []discovery.TargetPage{{URL: pageURL, Source: "aerc-calendar"}}}
	fx := stubFetcher{bodyByURL: map[string][]byte{pageURL.String(): []byte("<html></html>")}}
	parser := stubParser{eventsPerURL: map[string][]model.RawEvent{pageURL.String(): {}}}
	repo := newMemUpsertRepo()

	o := newOrchestrator(disc, fx, passthroughHTMLNorm{}, parser, passthroughEventNorm{}, repo, sink)
	report, err := o.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, model.RunOutcomeDegraded, report.Outcome)
	assert.Equal(t, 0, report.Counts.Valid)
}

func TestRun_TwoConsecutiveDegradedRuns_RecordsAlert(t *testing.T) {
	sink := &mockMetadataSink{}
	pageURL := mustURL(t, "https://aerc.org/calendar/2026")
	disc := stubDiscoverer{pages: []discovery.TargetPage{{URL: pageURL, Source: "aerc-calendar"}}}
	fx := stubFetcher{bodyByURL: map[string][]byte{pageURL.String(): []byte("<html></html>")}}
	parser := stubParser{eventsPerURL: map[string][]model.RawEvent{pageURL.String(): {}}}
	repo := newMemUpsertRepo()

	o := newOrchestrator(disc, fx, passthroughHTMLNorm{}, parser, passthroughEventNorm{}, repo, sink)
	_, err := o.Run(context.Background())
	require.NoError(t, err)
	_, err = o.Run(context.Background())
	require.NoError(t, err)

	assert.Contains(t, sink.errorCauses, metadata.CauseInvariantViolation)
}

func TestRun_RecoverablePageFailure_SkipsPageButRunSucceeds(t *testing.T) {
	sink := &mockMetadataSink{}
	goodURL := mustURL(t, "https://aerc.org/calendar/2026")
	badURL := mustURL(t, "https://aerc.org/calendar/2027")
	disc := stubDiscoverer{pages: []discovery.TargetPage{
		{URL: goodURL, Source: "aerc-calendar"},
		{URL: badURL, Source: "aerc-calendar"},
	}}
	fx := stubFetcher{
		bodyByURL: map[string][]byte{goodURL.String(): []byte("<html></html>")},
		errByURL:  map[string]failure.ClassifiedError{badURL.String(): testRecoverableError{msg: "timeout"}},
	}
	parser := stubParser{eventsPerURL: map[string][]model.RawEvent{
		goodURL.String(): {{Source: "aerc", RideID: "2002", Name: "Tevis Cup"}},
	}}
	repo := newMemUpsertRepo()

	o := newOrchestrator(disc, fx, passthroughHTMLNorm{}, parser, passthroughEventNorm{}, repo, sink)
	report, err := o.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, model.RunOutcomeOK, report.Outcome)
	assert.Equal(t, 1, report.Counts.Valid)
	assert.Len(t, report.Errors, 1)
}

func TestRun_FatalPageFailure_AbortsRun(t *testing.T) {
	sink := &mockMetadataSink{}
	badURL := mustURL(t, "https://aerc.org/calendar/2027")
	disc := stubDiscoverer{pages: []discovery.TargetPage{{URL: badURL, Source: "aerc-calendar"}}}
	fx := stubFetcher{errByURL: map[string]failure.ClassifiedError{badURL.String(): testFatalError{msg: "disk full"}}}
	parser := stubParser{}
	repo := newMemUpsertRepo()

	o := newOrchestrator(disc, fx, passthroughHTMLNorm{}, parser, passthroughEventNorm{}, repo, sink)
	_, err := o.Run(context.Background())

	require.Error(t, err)
}

func TestRun_DiscoveryFatalError_AbortsImmediately(t *testing.T) {
	sink := &mockMetadataSink{}
	disc := stubDiscoverer{err: testFatalError{msg: "no seeds"}}
	repo := newMemUpsertRepo()

	o := newOrchestrator(disc, stubFetcher{}, passthroughHTMLNorm{}, stubParser{}, passthroughEventNorm{}, repo, sink)
	report, err := o.Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, model.RunOutcomeFatal, report.Outcome)
}

// mergingEventNorm collapses every raw row sharing an identity into one
// canceled event, the shape a three-day pioneer ride with a
// cancellation marker produces.
type mergingEventNorm struct{}

func (mergingEventNorm) Normalize(rawEvents []model.RawEvent) (eventnorm.Result, failure.ClassifiedError) {
	first := rawEvents[0]
	return eventnorm.Result{Events: []model.Event{{
		Source: first.Source, RideID: first.RideID, Name: first.Name,
		RideDays: len(rawEvents), IsMultiDayEvent: len(rawEvents) >= 2,
		IsPioneerRide: len(rawEvents) >= 3, IsCanceled: true,
	}}}, nil
}

func TestRun_MultiDayMergeKeepsCountsClosed(t *testing.T) {
	sink := &mockMetadataSink{}
	pageURL := mustURL(t, "https://aerc.org/calendar/2026")
	disc := stubDiscoverer{pages: []discovery.TargetPage{{URL: pageURL, Source: "aerc-calendar", Year: 2026}}}
	fx := stubFetcher{bodyByURL: map[string][]byte{pageURL.String(): []byte("<html></html>")}}
	parser := stubParser{eventsPerURL: map[string][]model.RawEvent{
		pageURL.String(): {
			{Source: "aerc", RideID: "500", Name: "Owyhee Pioneer"},
			{Source: "aerc", RideID: "500", Name: "Owyhee Pioneer"},
			{Source: "aerc", RideID: "500", Name: "Owyhee Pioneer"},
		},
	}}
	repo := newMemUpsertRepo()

	o := newOrchestrator(disc, fx, passthroughHTMLNorm{}, parser, mergingEventNorm{}, repo, sink)
	report, err := o.Run(context.Background())

	require.NoError(t, err)
	// Three per-day rows merge into one canonical event; the counts
	// are taken post-merge so they stay closed.
	assert.Equal(t, 1, report.Counts.Parsed)
	assert.Equal(t, 1, report.Counts.Inserted)
	assert.Equal(t, 1, report.Counts.Canceled)
	assert.True(t, report.Counts.CheckInvariant())
	for _, e := range report.Errors {
		assert.NotEqual(t, "invariant", e.Kind)
	}
}
