package eventnorm

import (
	"sort"
	"time"

	"github.com/aerc-harvest/harvester/internal/model"
)

// maxContiguousGap is the largest gap between one day's date_end and
// the next day's date_start that still counts as "consecutive".
const maxContiguousGap = 24 * time.Hour

// groupKey partitions RawEvents ahead of merging. Rows with a RideID
// group on (source, ride_id); rows missing one fall back to
// (source, name, location) per the fallback rule documented on
// model.RawEvent.IdentityKey.
func groupKey(r model.RawEvent) string {
	if key := r.IdentityKey(); key != "" {
		return key
	}
	return r.Source + "|" + r.Name + "|" + r.Location
}

// groupRawEvents buckets rows by identity, preserving the original
// (page order, row order) relative ordering within each bucket — the
// sort in mergeGroup is by date, but ties fall back to that original
// order for determinism.
func groupRawEvents(rows []model.RawEvent) map[string][]model.RawEvent {
	groups := make(map[string][]model.RawEvent)
	for _, r := range rows {
		key := groupKey(r)
		groups[key] = append(groups[key], r)
	}
	return groups
}

// mergeGroup sorts one identity group by date_start and splits it into
// contiguous day-runs, each becoming one model.Event.
func mergeGroup(rows []model.RawEvent) []model.Event {
	sorted := make([]model.RawEvent, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DateStart.Before(sorted[j].DateStart)
	})

	var blocks [][]model.RawEvent
	var current []model.RawEvent
	for _, r := range sorted {
		if len(current) == 0 {
			current = append(current, r)
			continue
		}
		last := current[len(current)-1]
		if !last.DateValid || !r.DateValid || r.DateStart.Sub(last.DateEnd) > maxContiguousGap {
			blocks = append(blocks, current)
			current = []model.RawEvent{r}
			continue
		}
		current = append(current, r)
	}
	if len(current) > 0 {
		blocks = append(blocks, current)
	}

	events := make([]model.Event, 0, len(blocks))
	for _, block := range blocks {
		events = append(events, mergeBlock(block))
	}
	return events
}

// mergeBlock reconciles one contiguous day-run into a single Event:
// scalar fields take the first non-null value in day
// order, distances concatenate preserving duplicates, control_judges
// union order-preserving, event_details merges top-level keys
// first-write-wins (nested maps are not merged key by key, and a later
// row's conflicting value is dropped without being logged), and a
// canceled row makes the whole merged event canceled.
func mergeBlock(block []model.RawEvent) model.Event {
	first := block[0]

	event := model.Event{
		Source:    first.Source,
		RideID:    first.RideID,
		RideDays:  len(block),
		DateStart: first.DateStart,
		DateEnd:   first.DateEnd,
	}

	var judgeSeen = make(map[string]bool)
	var detailsSeen = make(map[string]bool)
	event.EventDetails = map[string]any{}

	for _, r := range block {
		if r.DateEnd.After(event.DateEnd) {
			event.DateEnd = r.DateEnd
		}

		firstNonEmptyString(&event.Name, r.Name)
		firstNonEmptyString(&event.Location, r.Location)
		firstNonEmptyString(&event.City, r.City)
		firstNonEmptyString(&event.State, r.State)
		firstNonEmptyString(&event.Country, r.Country)
		firstNonEmptyString(&event.RideManager, r.RideManager)
		firstNonEmptyString(&event.ManagerEmail, r.ManagerEmail)
		firstNonEmptyString(&event.ManagerPhone, r.ManagerPhone)
		firstNonEmptyString(&event.WebsiteURL, r.WebsiteURL)
		firstNonEmptyString(&event.FlyerURL, r.FlyerURL)
		firstNonEmptyString(&event.MapLink, r.MapLink)
		if event.RideID == "" && r.RideID != "" {
			event.RideID = r.RideID
		}

		if event.Latitude == nil && r.Latitude != nil {
			event.Latitude = r.Latitude
		}
		if event.Longitude == nil && r.Longitude != nil {
			event.Longitude = r.Longitude
		}
		if r.GeocodingAttempted {
			event.GeocodingAttempted = true
		}
		if r.HasIntroRide {
			event.HasIntroRide = true
		}
		if r.IsCanceled {
			event.IsCanceled = true
		}

		event.Distances = append(event.Distances, r.Distances...)

		for _, j := range r.ControlJudges {
			sig := j.Role + "|" + j.Name
			if judgeSeen[sig] {
				continue
			}
			judgeSeen[sig] = true
			event.ControlJudges = append(event.ControlJudges, j)
		}

		for k, v := range r.EventDetails {
			if detailsSeen[k] {
				continue
			}
			detailsSeen[k] = true
			event.EventDetails[k] = v
		}
	}

	event.IsMultiDayEvent = event.RideDays >= 2
	event.IsPioneerRide = event.RideDays >= 3

	return event
}

func firstNonEmptyString(dst *string, candidate string) {
	if *dst == "" && candidate != "" {
		*dst = candidate
	}
}
