// Package model holds the entities shared across the scrape and
// enrichment pipeline: Event (the canonical persisted record),
// RawEvent (the parser's pre-merge output), FetchRecord (the cache's
// unit of storage), and RunReport (a scrape run's outcome).
package model

import "time"

// Judge is a single control judge credited on an Event.
type Judge struct {
	Role string
	Name string
}

// Distance is a single offered distance on a ride day.
type Distance struct {
	Label     string
	Date      time.Time
	StartTime string // HH:MM, empty if not published
}

// Event is the canonical, persisted record for one endurance ride.
//
// Identity is the pair (Source, RideID); when a source omits RideID the
// normalizer fills in a deterministic synthetic id (see eventnorm.SyntheticID).
type Event struct {
	ID     int64
	Source string
	RideID string // source-native id; may be the synthesized form

	Name        string
	Description string

	DateStart time.Time
	DateEnd   time.Time

	Location    string
	City        string
	State       string
	Country     string // "USA", "Canada", or "" when unknown

	Organization string
	Distances    []Distance
	RideManager  string
	ManagerEmail string
	ManagerPhone string

	WebsiteURL string
	FlyerURL   string
	MapLink    string

	ControlJudges []Judge

	IsMultiDayEvent bool
	IsPioneerRide   bool
	RideDays        int
	HasIntroRide    bool
	IsCanceled      bool

	Latitude            *float64
	Longitude           *float64
	GeocodingAttempted  bool
	LastWebsiteCheckAt  *time.Time

	EventDetails map[string]any
	Notes        string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IdentityKey returns the natural-language identity used for grouping
// RawEvents and for upsert matching: (source, ride_id).
func (e Event) IdentityKey() string {
	return e.Source + "|" + e.RideID
}

// CheckInvariants validates the Event record's quantified
// invariants. It
// returns the first violated invariant's description, or "" if the
// event is valid.
func (e Event) CheckInvariants() string {
	if e.DateEnd.Before(e.DateStart) {
		return "date_end must be >= date_start"
	}
	if !e.GeocodingAttempted && (e.Latitude != nil || e.Longitude != nil) {
		return "geocoding_attempted=false requires latitude=longitude=null"
	}
	if e.IsPioneerRide && !(e.IsMultiDayEvent && e.RideDays >= 3) {
		return "is_pioneer_ride requires is_multi_day_event and ride_days>=3"
	}
	if hasDuplicateDistanceLabelPerDay(e.Distances) {
		return "distances must not duplicate the same label on the same day"
	}
	return ""
}

func hasDuplicateDistanceLabelPerDay(distances []Distance) bool {
	seen := make(map[string]struct{}, len(distances))
	for _, d := range distances {
		key := d.Label + "|" + d.Date.Format("2006-01-02")
		if _, ok := seen[key]; ok {
			return true
		}
		seen[key] = struct{}{}
	}
	return false
}
