package repository

import (
	"time"

	"github.com/aerc-harvest/harvester/internal/model"
)

const (
	enrichmentNearWindow     = 90 * 24 * time.Hour
	enrichmentFarWindow      = 365 * 24 * time.Hour
	enrichmentNearInterval   = 24 * time.Hour
	enrichmentFarInterval    = 7 * 24 * time.Hour
	enrichmentExpiryGrace    = 30 * 24 * time.Hour
)

// EligibleForDetailEnrichment applies the tiered re-check cadence:
//   - date_start within 90d from now: re-check at most every 24h.
//   - date_start between 90d and 1y: re-check at most every 7d.
//   - past date_end + 30d: excluded entirely.
//   - never checked (last_website_check_at == nil): always eligible.
func EligibleForDetailEnrichment(event model.Event, now time.Time) bool {
	if now.After(event.DateEnd.Add(enrichmentExpiryGrace)) {
		return false
	}
	if event.LastWebsiteCheckAt == nil {
		return true
	}

	untilStart := event.DateStart.Sub(now)
	var interval time.Duration
	switch {
	case untilStart <= enrichmentNearWindow:
		interval = enrichmentNearInterval
	case untilStart <= enrichmentFarWindow:
		interval = enrichmentFarInterval
	default:
		interval = enrichmentFarInterval
	}

	return now.Sub(*event.LastWebsiteCheckAt) >= interval
}
