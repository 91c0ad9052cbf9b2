// Package memrepo is an in-memory repository.Repository, used by
// orchestrator/worker tests and as the fallback when no database_url
// is configured.
package memrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aerc-harvest/harvester/internal/model"
	"github.com/aerc-harvest/harvester/internal/repository"
	"github.com/aerc-harvest/harvester/pkg/failure"
	"github.com/aerc-harvest/harvester/pkg/geoutil"
)

type Repository struct {
	mu         sync.Mutex
	events     map[string]*model.Event // keyed by IdentityKey()
	nextID     int64
	byID       map[int64]*model.Event
	runReports []model.RunReport
}

func NewRepository() *Repository {
	return &Repository{
		events: make(map[string]*model.Event),
		byID:   make(map[int64]*model.Event),
	}
}

var _ repository.Repository = (*Repository)(nil)

func (r *Repository) Upsert(ctx context.Context, event model.Event) (model.Event, failure.ClassifiedError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := event.IdentityKey()
	existing, found := r.events[key]

	var merged model.Event
	if found {
		merged = repository.MergeUpsert(*existing, event)
	} else {
		r.nextID++
		merged = event
		merged.ID = r.nextID
		now := time.Now()
		merged.CreatedAt = now
		merged.UpdatedAt = now
	}

	stored := merged
	r.events[key] = &stored
	r.byID[stored.ID] = &stored
	return stored, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (model.Event, failure.ClassifiedError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	event, found := r.byID[id]
	if !found {
		return model.Event{}, &repository.RepositoryError{
			Message:   "no event with this id",
			Retryable: false,
			Cause:     repository.ErrCauseNotFound,
		}
	}
	return *event, nil
}

func (r *Repository) ListForGeocoding(ctx context.Context, limit int) ([]model.Event, failure.ClassifiedError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var results []model.Event
	for _, e := range r.sortedByCreatedAt() {
		if !e.GeocodingAttempted {
			results = append(results, *e)
		}
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (r *Repository) ListForDetailEnrichment(ctx context.Context, now time.Time) ([]model.Event, failure.ClassifiedError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var results []model.Event
	for _, e := range r.sortedByCreatedAt() {
		if repository.EligibleForDetailEnrichment(*e, now) {
			results = append(results, *e)
		}
	}
	return results, nil
}

func (r *Repository) ListByLocation(ctx context.Context, query repository.LocationQuery) ([]model.Event, failure.ClassifiedError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var results []model.Event
	for _, e := range r.sortedByCreatedAt() {
		if e.Latitude == nil || e.Longitude == nil {
			continue
		}
		if geoutil.WithinRadius(query.Lat, query.Lng, *e.Latitude, *e.Longitude, query.RadiusMi) {
			results = append(results, *e)
		}
	}
	return results, nil
}

func (r *Repository) MarkGeocoded(ctx context.Context, id int64, lat *float64, lng *float64) failure.ClassifiedError {
	r.mu.Lock()
	defer r.mu.Unlock()

	event, found := r.byID[id]
	if !found {
		return &repository.RepositoryError{
			Message:   "no event with this id",
			Retryable: false,
			Cause:     repository.ErrCauseNotFound,
		}
	}
	event.GeocodingAttempted = true
	event.Latitude = lat
	event.Longitude = lng
	event.UpdatedAt = time.Now()
	return nil
}

func (r *Repository) UpdateDetails(ctx context.Context, id int64, patch map[string]any, checkedAt time.Time) failure.ClassifiedError {
	r.mu.Lock()
	defer r.mu.Unlock()

	event, found := r.byID[id]
	if !found {
		return &repository.RepositoryError{
			Message:   "no event with this id",
			Retryable: false,
			Cause:     repository.ErrCauseNotFound,
		}
	}
	if event.EventDetails == nil {
		event.EventDetails = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		event.EventDetails[k] = v
	}
	event.LastWebsiteCheckAt = &checkedAt
	event.UpdatedAt = time.Now()
	return nil
}

func (r *Repository) SaveRunReport(ctx context.Context, report model.RunReport) failure.ClassifiedError {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runReports = append(r.runReports, report)
	return nil
}

// RunReports returns a snapshot of every report saved so far.
func (r *Repository) RunReports() []model.RunReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.RunReport, len(r.runReports))
	copy(out, r.runReports)
	return out
}

// sortedByCreatedAt returns a deterministic snapshot ordered by
// created_at, matching the ordering the postgres adapter's ORDER BY
// produces.
func (r *Repository) sortedByCreatedAt() []*model.Event {
	out := make([]*model.Event, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
