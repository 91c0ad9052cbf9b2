package memrepo

import (
	"testing"
	"time"

	"github.com/aerc-harvest/harvester/internal/model"
	"github.com/aerc-harvest/harvester/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func baseEvent() model.Event {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	return model.Event{
		Source:    "aerc",
		RideID:    "ride-1",
		Name:      "Big Horn 100",
		Location:  "Sheridan, WY",
		DateStart: start,
		DateEnd:   start,
	}
}

func TestUpsert_InsertsNewEventWithID(t *testing.T) {
	repo := NewRepository()
	stored, err := repo.Upsert(t.Context(), baseEvent())
	require.Nil(t, err)
	assert.Equal(t, int64(1), stored.ID)
	assert.False(t, stored.CreatedAt.IsZero())
}

func TestUpsert_ScraperNilPreservation(t *testing.T) {
	repo := NewRepository()
	first := baseEvent()
	first.RideManager = "Jane Doe"
	stored, err := repo.Upsert(t.Context(), first)
	require.Nil(t, err)

	second := baseEvent()
	second.RideManager = "" // scrape omitted this field this pass
	updated, err := repo.Upsert(t.Context(), second)
	require.Nil(t, err)
	assert.Equal(t, stored.ID, updated.ID)
	assert.Equal(t, "Jane Doe", updated.RideManager)
}

func TestUpsert_EventDetailsScrapedValueWinsOnConflict(t *testing.T) {
	repo := NewRepository()
	first := baseEvent()
	first.EventDetails = map[string]any{"directions": "old", "amenities": "water"}
	_, err := repo.Upsert(t.Context(), first)
	require.Nil(t, err)

	second := baseEvent()
	second.EventDetails = map[string]any{"directions": "new"}
	updated, err := repo.Upsert(t.Context(), second)
	require.Nil(t, err)
	assert.Equal(t, "new", updated.EventDetails["directions"])
	assert.Equal(t, "water", updated.EventDetails["amenities"])
}

func TestUpsert_CancellationIsStickyWithinPass(t *testing.T) {
	repo := NewRepository()
	first := baseEvent()
	_, err := repo.Upsert(t.Context(), first)
	require.Nil(t, err)

	canceled := baseEvent()
	canceled.IsCanceled = true
	updated, err := repo.Upsert(t.Context(), canceled)
	require.Nil(t, err)
	assert.True(t, updated.IsCanceled)
}

func TestUpsert_DoesNotRegressGeocodingState(t *testing.T) {
	repo := NewRepository()
	first := baseEvent()
	stored, err := repo.Upsert(t.Context(), first)
	require.Nil(t, err)

	geoErr := repo.MarkGeocoded(t.Context(), stored.ID, ptr(44.7), ptr(-106.9))
	require.Nil(t, geoErr)

	rescraped := baseEvent()
	updated, err := repo.Upsert(t.Context(), rescraped)
	require.Nil(t, err)
	assert.True(t, updated.GeocodingAttempted)
	require.NotNil(t, updated.Latitude)
	assert.Equal(t, 44.7, *updated.Latitude)
}

func TestListForGeocoding_OnlyReturnsUnattempted(t *testing.T) {
	repo := NewRepository()
	e1 := baseEvent()
	stored1, _ := repo.Upsert(t.Context(), e1)

	e2 := baseEvent()
	e2.RideID = "ride-2"
	repo.Upsert(t.Context(), e2)

	repo.MarkGeocoded(t.Context(), stored1.ID, nil, nil)

	results, err := repo.ListForGeocoding(t.Context(), 0)
	require.Nil(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ride-2", results[0].RideID)
}

func TestListByLocation_FiltersByRadius(t *testing.T) {
	repo := NewRepository()
	near := baseEvent()
	near.RideID = "near"
	storedNear, _ := repo.Upsert(t.Context(), near)
	repo.MarkGeocoded(t.Context(), storedNear.ID, ptr(44.8), ptr(-107.0))

	far := baseEvent()
	far.RideID = "far"
	storedFar, _ := repo.Upsert(t.Context(), far)
	repo.MarkGeocoded(t.Context(), storedFar.ID, ptr(40.0), ptr(-74.0))

	results, err := repo.ListByLocation(t.Context(), repository.LocationQuery{
		Lat: 44.7, Lng: -106.9, RadiusMi: 50,
	})
	require.Nil(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "near", results[0].RideID)
}

func TestUpdateDetails_MergesPatchAndSetsCheckedAt(t *testing.T) {
	repo := NewRepository()
	stored, _ := repo.Upsert(t.Context(), baseEvent())

	checkedAt := time.Now()
	err := repo.UpdateDetails(t.Context(), stored.ID, map[string]any{"hazards": "river crossing"}, checkedAt)
	require.Nil(t, err)

	results, _ := repo.ListForGeocoding(t.Context(), 0)
	require.Len(t, results, 1)
	assert.Equal(t, "river crossing", results[0].EventDetails["hazards"])
	require.NotNil(t, results[0].LastWebsiteCheckAt)
}

func TestMarkGeocoded_UnknownIDReturnsNotFound(t *testing.T) {
	repo := NewRepository()
	err := repo.MarkGeocoded(t.Context(), 9999, nil, nil)
	require.NotNil(t, err)
	assert.Equal(t, repository.ErrCauseNotFound, err.(*repository.RepositoryError).Cause)
}

func TestGet_ReturnsStoredEvent(t *testing.T) {
	repo := NewRepository()
	stored, _ := repo.Upsert(t.Context(), baseEvent())

	got, err := repo.Get(t.Context(), stored.ID)
	require.Nil(t, err)
	assert.Equal(t, stored.RideID, got.RideID)

	_, err = repo.Get(t.Context(), 9999)
	require.NotNil(t, err)
	assert.Equal(t, repository.ErrCauseNotFound, err.(*repository.RepositoryError).Cause)
}

func TestSaveRunReport_AccumulatesReports(t *testing.T) {
	repo := NewRepository()
	require.Nil(t, repo.SaveRunReport(t.Context(), model.RunReport{RunID: "run-1"}))
	require.Nil(t, repo.SaveRunReport(t.Context(), model.RunReport{RunID: "run-2"}))

	reports := repo.RunReports()
	require.Len(t, reports, 2)
	assert.Equal(t, "run-1", reports[0].RunID)
	assert.Equal(t, "run-2", reports[1].RunID)
}
