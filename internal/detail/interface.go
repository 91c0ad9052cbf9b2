// Package detail enriches persisted events out of band: fetch an
// event's website (and flyer, when present), convert
// the page to Markdown, and invoke a DetailExtractor to pull structured
// fields into event_details.
package detail

import (
	"context"

	"github.com/aerc-harvest/harvester/pkg/failure"
)

// Hints carries side-channel context alongside the extracted page text
// that a DetailExtractor may use to ground its answer: the event name
// already on file, and the local path of a fetched flyer asset (when
// one was retrieved for this target).
type Hints struct {
	EventName string
	FlyerPath string
}

// Fields is the structured output of one extraction: a subset of keys
// merge into Event.EventDetails via Repository.UpdateDetails. Omitted
// or nil fields are left out of the patch so UpdateDetails's merge
// never overwrites a previously known value with nothing.
type Fields struct {
	Directions    string
	Amenities     []string
	Hazards       []string
	Veterinarians []string
}

// DetailExtractor is the capability boundary around a provider capable
// of turning ride-website text into structured fields. It stays opaque
// beyond its one concrete adapter, detail/gemini.Client.
type DetailExtractor interface {
	Extract(ctx context.Context, text string, hints Hints) (Fields, failure.ClassifiedError)
}
