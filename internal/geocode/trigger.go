package geocode

import (
	"context"
	"strconv"
	"time"

	"github.com/aerc-harvest/harvester/internal/metadata"
)

// LocationChangedEvent is the message an outside writer (the read-side
// API, an admin tool) enqueues when it updates an event's location
// fields. Consuming one re-geocodes the event immediately, independent
// of the batch cadence.
type LocationChangedEvent struct {
	EventID int64
}

// Listen consumes location-change messages until ctx is done or ch is
// closed. The channel is an in-process stand-in for whatever queue a
// deployment fronts this with; the worker only sees messages, never
// the producer.
func (w *GeocodeWorker) Listen(ctx context.Context, ch <-chan LocationChangedEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.handleLocationChanged(ctx, msg)
		}
	}
}

func (w *GeocodeWorker) handleLocationChanged(ctx context.Context, msg LocationChangedEvent) {
	event, err := w.repo.Get(ctx, msg.EventID)
	if err != nil {
		w.metadataSink.RecordError(
			time.Now(), "geocode", "handleLocationChanged",
			metadata.CauseRepository, err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrEventID, strconv.FormatInt(msg.EventID, 10)),
			},
		)
		return
	}
	// The stored coordinates describe the old location; GeocodeOne
	// derives a fresh query from the current fields and MarkGeocoded
	// overwrites whatever was there.
	_ = w.GeocodeOne(ctx, event)
}
