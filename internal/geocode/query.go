package geocode

import "strings"

// deriveQuery builds the geocoder query string for an event's location
// fields: a comma-joined, whitespace-trimmed sequence of whichever of
// Location/City/State/Country are non-empty, most specific first.
// Duplicate-looking fields (Location already containing City/State)
// are not de-duplicated here — providers tolerate redundant tokens far
// better than a missed one.
func deriveQuery(location, city, state, country string) string {
	var parts []string
	for _, p := range []string{location, city, state, country} {
		p = strings.TrimSpace(p)
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
