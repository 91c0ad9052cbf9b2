package eventnorm

import (
	"errors"
	"time"

	"github.com/aerc-harvest/harvester/internal/metadata"
	"github.com/aerc-harvest/harvester/internal/model"
	"github.com/aerc-harvest/harvester/pkg/failure"
	"github.com/aerc-harvest/harvester/pkg/hashutil"
)

// EventNormalizer merges and validates a whole batch of RawEvents
// into Events: a metadataSink-holding struct with
// one public entry point that records the classified error on the way
// out, and a pure unexported worker underneath.
type EventNormalizer struct {
	metadataSink metadata.MetadataSink
	hashAlgo     hashutil.HashAlgo
}

func NewEventNormalizer(metadataSink metadata.MetadataSink, hashAlgo hashutil.HashAlgo) EventNormalizer {
	return EventNormalizer{metadataSink: metadataSink, hashAlgo: hashAlgo}
}

func (n *EventNormalizer) Normalize(rawEvents []model.RawEvent) (Result, failure.ClassifiedError) {
	result, err := n.normalize(rawEvents)
	if err != nil {
		var normErr *NormalizationError
		errors.As(err, &normErr)
		n.metadataSink.RecordError(
			time.Now(),
			"eventnorm",
			"EventNormalizer.Normalize",
			mapNormalizationErrorToMetadataCause(normErr.Cause),
			err.Error(),
			nil,
		)
		return Result{}, normErr
	}
	return result, nil
}

func (n *EventNormalizer) normalize(rawEvents []model.RawEvent) (Result, *NormalizationError) {
	if len(rawEvents) == 0 {
		return Result{}, &NormalizationError{
			Message:   "no raw events to normalize",
			Retryable: false,
			Cause:     ErrCauseEmptyBatch,
		}
	}

	groups := groupRawEvents(rawEvents)

	var result Result
	for _, group := range groups {
		for _, event := range mergeGroup(group) {
			if event.RideID == "" {
				syntheticID, hashErr := n.syntheticRideID(event)
				if hashErr != nil {
					return Result{}, hashErr
				}
				event.RideID = syntheticID
			}

			now := time.Now()
			event.CreatedAt = now
			event.UpdatedAt = now

			if reason := event.CheckInvariants(); reason != "" {
				result.Invalid = append(result.Invalid, InvalidEvent{Event: event, Reason: reason})
				continue
			}
			result.Events = append(result.Events, event)
		}
	}

	return result, nil
}

// syntheticRideID derives a deterministic identity for rows the
// source published without one, hashing
// source|name|date_start|location. Pure and stable across runs.
func (n *EventNormalizer) syntheticRideID(event model.Event) (string, *NormalizationError) {
	input := event.Source + "|" + event.Name + "|" + event.DateStart.Format(time.RFC3339) + "|" + event.Location
	hash, err := hashutil.HashBytes([]byte(input), n.hashAlgo)
	if err != nil {
		return "", &NormalizationError{
			Message:   "failed to compute synthetic ride_id: " + err.Error(),
			Retryable: false,
			Cause:     ErrCauseHashComputationFailed,
		}
	}
	return string(n.hashAlgo) + ":" + hash, nil
}
