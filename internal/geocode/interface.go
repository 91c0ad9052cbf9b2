/*
Responsibilities
- Derive a query string from an Event's location fields
- Cache geocode results per provider+query, long TTL on success, short
  TTL on a confirmed negative result
- Call the Geocoder capability with a bounded deadline, classify its
  outcome, and persist it via Repository.MarkGeocoded
- Retry transient provider failures, leaving geocoding_attempted false
  on exhaustion so the next batch retries

GeocodeWorker never decides retry/backoff itself beyond what
pkg/retry already provides; Geocoder failures are classified exactly
once, at the boundary.
*/
package geocode

import (
	"context"

	"github.com/aerc-harvest/harvester/pkg/failure"
)

// GeocodeResult is the Geocoder capability's output for one query.
// Found = false with a nil error means a confirmed negative (the
// provider successfully searched and found nothing), distinct from a
// transient failure.
type GeocodeResult struct {
	Lat   float64
	Lng   float64
	Found bool
}

// Geocoder is the opaque geocoding provider capability.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (GeocodeResult, failure.ClassifiedError)
}
