package repository

import (
	"reflect"
	"time"

	"github.com/aerc-harvest/harvester/internal/model"
)

// MergeUpsert reconciles a freshly-scraped event against its
// previously-stored counterpart:
//   - scraper-nil-preservation: a non-null stored scalar survives a
//     null/empty incoming value.
//   - event_details merges by top-level key with incoming values
//     winning on key conflict (the opposite of eventnorm's same-run
//     first-write-wins, since here the incoming row is a newer
//     observation); a nested map is replaced whole, not merged.
//   - is_canceled is sticky false→true within a pass; true→false is
//     only allowed when incoming explicitly reports not-canceled.
//
// existing.ID, CreatedAt, and the geocoding/enrichment bookkeeping
// fields are untouched by Upsert; those are owned by MarkGeocoded and
// UpdateDetails respectively.
func MergeUpsert(existing, incoming model.Event) model.Event {
	merged := incoming
	merged.ID = existing.ID
	merged.CreatedAt = existing.CreatedAt

	preserveString(&merged.Name, existing.Name)
	preserveString(&merged.Description, existing.Description)
	preserveString(&merged.Location, existing.Location)
	preserveString(&merged.City, existing.City)
	preserveString(&merged.State, existing.State)
	preserveString(&merged.Country, existing.Country)
	preserveString(&merged.Organization, existing.Organization)
	preserveString(&merged.RideManager, existing.RideManager)
	preserveString(&merged.ManagerEmail, existing.ManagerEmail)
	preserveString(&merged.ManagerPhone, existing.ManagerPhone)
	preserveString(&merged.WebsiteURL, existing.WebsiteURL)
	preserveString(&merged.FlyerURL, existing.FlyerURL)
	preserveString(&merged.MapLink, existing.MapLink)
	preserveString(&merged.Notes, existing.Notes)

	if len(merged.Distances) == 0 {
		merged.Distances = existing.Distances
	}
	if len(merged.ControlJudges) == 0 {
		merged.ControlJudges = existing.ControlJudges
	}

	// Geocoding bookkeeping belongs to MarkGeocoded; Upsert never
	// regresses an attempted flag or clears coordinates a prior
	// geocode resolved.
	merged.GeocodingAttempted = existing.GeocodingAttempted
	merged.Latitude = existing.Latitude
	merged.Longitude = existing.Longitude
	merged.LastWebsiteCheckAt = existing.LastWebsiteCheckAt

	merged.EventDetails = mergeEventDetails(existing.EventDetails, incoming.EventDetails)

	if existing.IsCanceled && !incoming.IsCanceled {
		// true -> false only when this pass explicitly observed the
		// event without a cancellation marker; incoming already
		// reflects that, so no override needed.
		merged.IsCanceled = incoming.IsCanceled
	} else {
		merged.IsCanceled = existing.IsCanceled || incoming.IsCanceled
	}

	if effectiveChange(existing, merged) {
		merged.UpdatedAt = time.Now()
	} else {
		merged.UpdatedAt = existing.UpdatedAt
	}
	return merged
}

// effectiveChange reports whether merged differs from existing in any
// field other than bookkeeping timestamps; only an effective change
// touches updated_at.
func effectiveChange(existing, merged model.Event) bool {
	a, b := existing, merged
	a.UpdatedAt, b.UpdatedAt = time.Time{}, time.Time{}
	return !reflect.DeepEqual(a, b)
}

func preserveString(incoming *string, existingVal string) {
	if *incoming == "" && existingVal != "" {
		*incoming = existingVal
	}
}

// mergeEventDetails merges two maps by top-level key with incoming
// winning on key conflict: a fresh scrape is a newer observation.
// Nested maps are not merged; the incoming value replaces the stored one.
func mergeEventDetails(existing, incoming map[string]any) map[string]any {
	merged := make(map[string]any, len(existing)+len(incoming))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range incoming {
		merged[k] = v
	}
	return merged
}
