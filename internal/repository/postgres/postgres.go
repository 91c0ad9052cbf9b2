// Package postgres is the pgx-backed repository.Repository adapter:
// Upsert locks the (source, ride_id) row with SELECT ... FOR UPDATE
// inside a transaction, runs the reconciliation merge, then issues an
// UPDATE or an INSERT (no ON CONFLICT clause); event_details is stored
// as jsonb.
//
// Backup is out of scope here; schema.sql, applied by Migrate, creates
// the events and run_reports tables.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aerc-harvest/harvester/internal/model"
	"github.com/aerc-harvest/harvester/internal/repository"
	"github.com/aerc-harvest/harvester/pkg/failure"
	"github.com/aerc-harvest/harvester/pkg/geoutil"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ repository.Repository = (*Repository)(nil)

func (r *Repository) Upsert(ctx context.Context, event model.Event) (model.Event, failure.ClassifiedError) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Event{}, connectionError(event.IdentityKey(), err)
	}
	defer tx.Rollback(ctx)

	existing, found, err := selectForUpdate(ctx, tx, event.Source, event.RideID)
	if err != nil {
		return model.Event{}, queryError(event.IdentityKey(), err)
	}

	var merged model.Event
	if found {
		merged = repository.MergeUpsert(existing, event)
		if err := updateRow(ctx, tx, merged); err != nil {
			return model.Event{}, queryError(event.IdentityKey(), err)
		}
	} else {
		merged = event
		now := time.Now()
		merged.CreatedAt = now
		merged.UpdatedAt = now
		id, err := insertRow(ctx, tx, merged)
		if err != nil {
			return model.Event{}, queryError(event.IdentityKey(), err)
		}
		merged.ID = id
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Event{}, serializationError(event.IdentityKey(), err)
	}
	return merged, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (model.Event, failure.ClassifiedError) {
	row := r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	event, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Event{}, &repository.RepositoryError{Message: "no event with this id", Retryable: false, Cause: repository.ErrCauseNotFound}
	}
	if err != nil {
		return model.Event{}, queryError("", err)
	}
	return event, nil
}

func (r *Repository) ListForGeocoding(ctx context.Context, limit int) ([]model.Event, failure.ClassifiedError) {
	query := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE geocoding_attempted = false
		ORDER BY created_at ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	return r.queryEvents(ctx, query, args...)
}

func (r *Repository) ListForDetailEnrichment(ctx context.Context, now time.Time) ([]model.Event, failure.ClassifiedError) {
	// The tiered-cadence predicate mixes per-row comparisons
	// against `now` in ways that don't translate cleanly to a single
	// WHERE clause; fetch enrichment-eligible candidates coarsely
	// (not yet expired) and apply the exact cadence rule in Go.
	query := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE date_end + interval '30 days' >= $1`
	events, err := r.queryEvents(ctx, query, now)
	if err != nil {
		return nil, err
	}
	filtered := make([]model.Event, 0, len(events))
	for _, e := range events {
		if repository.EligibleForDetailEnrichment(e, now) {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

func (r *Repository) ListByLocation(ctx context.Context, query repository.LocationQuery) ([]model.Event, failure.ClassifiedError) {
	// Coordinates are plain columns, not PostGIS geography; the
	// haversine filter applies in Go against a coarse bounding-box
	// pre-filter to keep the query index-friendly without a spatial
	// extension.
	const milesPerDegreeLat = 69.0
	latSpan := query.RadiusMi / milesPerDegreeLat
	lngSpan := query.RadiusMi / (milesPerDegreeLat * 0.5)

	sql := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE latitude IS NOT NULL AND longitude IS NOT NULL
		  AND latitude BETWEEN $1 AND $2
		  AND longitude BETWEEN $3 AND $4`
	events, err := r.queryEvents(ctx, sql,
		query.Lat-latSpan, query.Lat+latSpan,
		query.Lng-lngSpan, query.Lng+lngSpan,
	)
	if err != nil {
		return nil, err
	}
	filtered := make([]model.Event, 0, len(events))
	for _, e := range events {
		if e.Latitude == nil || e.Longitude == nil {
			continue
		}
		if geoutil.WithinRadius(query.Lat, query.Lng, *e.Latitude, *e.Longitude, query.RadiusMi) {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

func (r *Repository) MarkGeocoded(ctx context.Context, id int64, lat *float64, lng *float64) failure.ClassifiedError {
	tag, err := r.pool.Exec(ctx, `
		UPDATE events
		SET geocoding_attempted = true, latitude = $2, longitude = $3, updated_at = now()
		WHERE id = $1`, id, lat, lng)
	if err != nil {
		return queryError("", err)
	}
	if tag.RowsAffected() == 0 {
		return &repository.RepositoryError{Message: "no event with this id", Retryable: false, Cause: repository.ErrCauseNotFound}
	}
	return nil
}

func (r *Repository) UpdateDetails(ctx context.Context, id int64, patch map[string]any, checkedAt time.Time) failure.ClassifiedError {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return connectionError("", err)
	}
	defer tx.Rollback(ctx)

	var rawDetails []byte
	scanErr := tx.QueryRow(ctx, `SELECT event_details FROM events WHERE id = $1 FOR UPDATE`, id).Scan(&rawDetails)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return &repository.RepositoryError{Message: "no event with this id", Retryable: false, Cause: repository.ErrCauseNotFound}
	}
	if scanErr != nil {
		return queryError("", scanErr)
	}

	existing := map[string]any{}
	if len(rawDetails) > 0 {
		if err := json.Unmarshal(rawDetails, &existing); err != nil {
			return &repository.RepositoryError{Message: err.Error(), Retryable: false, Cause: repository.ErrCauseConstraintViolation}
		}
	}
	for k, v := range patch {
		existing[k] = v
	}
	merged, err := json.Marshal(existing)
	if err != nil {
		return &repository.RepositoryError{Message: err.Error(), Retryable: false, Cause: repository.ErrCauseConstraintViolation}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE events
		SET event_details = $2, last_website_check_at = $3, updated_at = now()
		WHERE id = $1`, id, merged, checkedAt); err != nil {
		return queryError("", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return serializationError("", err)
	}
	return nil
}

func (r *Repository) SaveRunReport(ctx context.Context, report model.RunReport) failure.ClassifiedError {
	errsJSON, err := json.Marshal(report.Errors)
	if err != nil {
		return &repository.RepositoryError{Message: err.Error(), Retryable: false, Cause: repository.ErrCauseConstraintViolation}
	}
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO run_reports (
			run_id, source, started_at, finished_at,
			pages_fetched, pages_parsed,
			events_inserted, events_updated, events_skipped, events_invalid,
			degraded, errors
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (run_id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			pages_fetched = EXCLUDED.pages_fetched,
			pages_parsed = EXCLUDED.pages_parsed,
			events_inserted = EXCLUDED.events_inserted,
			events_updated = EXCLUDED.events_updated,
			events_skipped = EXCLUDED.events_skipped,
			events_invalid = EXCLUDED.events_invalid,
			degraded = EXCLUDED.degraded,
			errors = EXCLUDED.errors`,
		report.RunID, report.Source, report.StartedAt, report.EndedAt,
		report.Counts.Fetched, report.Counts.Parsed,
		report.Counts.Inserted, report.Counts.Updated, report.Counts.Skipped, report.Counts.Invalid,
		report.Outcome != model.RunOutcomeOK, errsJSON,
	); err != nil {
		return queryError(report.RunID, err)
	}
	return nil
}

func connectionError(identity string, err error) *repository.RepositoryError {
	return &repository.RepositoryError{Message: err.Error(), Retryable: true, Cause: repository.ErrCauseConnectionFailure, Identity: identity}
}

func queryError(identity string, err error) *repository.RepositoryError {
	return &repository.RepositoryError{Message: err.Error(), Retryable: true, Cause: repository.ErrCauseConstraintViolation, Identity: identity}
}

func serializationError(identity string, err error) *repository.RepositoryError {
	return &repository.RepositoryError{Message: err.Error(), Retryable: true, Cause: repository.ErrCauseSerializationFailure, Identity: identity}
}
