// Package repository holds the event store port and the
// merge/distance logic shared by its two adapters: memrepo (an
// in-memory reference implementation) and postgres (pgx-backed).
package repository

import (
	"context"
	"time"

	"github.com/aerc-harvest/harvester/internal/model"
	"github.com/aerc-harvest/harvester/pkg/failure"
)

// LocationQuery filters ListByLocation by a haversine radius around a
// point, in miles.
type LocationQuery struct {
	Lat     float64
	Lng     float64
	RadiusMi float64
}

// Repository persists canonical events. All
// operations are transactional at the single-event granularity;
// concurrent upserts for the same (source, ride_id) identity serialize
// via row-level locking in the postgres adapter, and one
// repository-wide mutex in memrepo.
type Repository interface {
	// Upsert inserts or updates by (source, ride_id) applying the
	// reconciliation rules: scraper-nil-preservation,
	// event_details merged by top-level key with scraped values winning
	// (a nested map replaces the stored one whole; nested keys are not
	// merged), and sticky cancellation. Returns the stored (post-merge)
	// Event.
	Upsert(ctx context.Context, event model.Event) (model.Event, failure.ClassifiedError)

	// Get returns the event with the given primary id.
	Get(ctx context.Context, id int64) (model.Event, failure.ClassifiedError)

	// ListForGeocoding returns events with geocoding_attempted = false,
	// oldest created_at first. limit <= 0 means unbounded.
	ListForGeocoding(ctx context.Context, limit int) ([]model.Event, failure.ClassifiedError)

	// ListForDetailEnrichment returns events eligible for enrichment at
	// now per the tiered re-check cadence.
	ListForDetailEnrichment(ctx context.Context, now time.Time) ([]model.Event, failure.ClassifiedError)

	// ListByLocation returns events within query.RadiusMi miles of
	// (query.Lat, query.Lng), excluding events with no coordinates.
	ListByLocation(ctx context.Context, query LocationQuery) ([]model.Event, failure.ClassifiedError)

	// MarkGeocoded sets geocoding_attempted = true and, when non-nil,
	// the resolved coordinates.
	MarkGeocoded(ctx context.Context, id int64, lat *float64, lng *float64) failure.ClassifiedError

	// UpdateDetails merges patch's top-level keys into event_details
	// (patch wins on key conflict; nested maps are not merged key by
	// key) and sets last_website_check_at = checkedAt.
	UpdateDetails(ctx context.Context, id int64, patch map[string]any, checkedAt time.Time) failure.ClassifiedError

	// SaveRunReport persists one run's report, keyed by run_id.
	SaveRunReport(ctx context.Context, report model.RunReport) failure.ClassifiedError
}
