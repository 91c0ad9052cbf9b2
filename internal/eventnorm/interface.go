/*
Responsibilities
- Partition RawEvents by identity and merge multi-day rides into one Event
- Reconcile fields across merged rows (first-non-null, ordered concat, union)
- Synthesize a stable ride_id when the source omitted one
- Enforce the Event invariants before anything reaches the repository

This stage is the only place a RawEvent becomes a persistable Event;
everything upstream (HTMLNormalizer, SourceParser) deals in looser,
per-row data.
*/
package eventnorm

import (
	"github.com/aerc-harvest/harvester/internal/model"
	"github.com/aerc-harvest/harvester/pkg/failure"
)

// Normalizer is the EventNormalizer capability.
type Normalizer interface {
	Normalize(rawEvents []model.RawEvent) (Result, failure.ClassifiedError)
}

// Result is the EventNormalizer's output for one batch of RawEvents
// (typically all rows from one run). Invalid events are never silently
// dropped: each failed invariant check is recorded alongside the
// offending merged Event so the orchestrator can count it.
type Result struct {
	Events  []model.Event
	Invalid []InvalidEvent
}

// InvalidEvent pairs a merged-but-rejected Event with the invariant
// violation that disqualified it (the event is skipped, the run is
// otherwise unaffected).
type InvalidEvent struct {
	Event  model.Event
	Reason string
}

var _ Normalizer = (*EventNormalizer)(nil)
