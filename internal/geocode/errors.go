package geocode

import (
	"fmt"

	"github.com/aerc-harvest/harvester/internal/metadata"
	"github.com/aerc-harvest/harvester/pkg/failure"
)

type GeocodeErrorCause string

const (
	ErrCauseEmptyQuery      GeocodeErrorCause = "location yields empty query"
	ErrCauseProviderTimeout GeocodeErrorCause = "provider request timed out"
	ErrCauseProviderNetwork GeocodeErrorCause = "provider transport failure"
	ErrCauseProviderStatus  GeocodeErrorCause = "provider returned unexpected status"
	ErrCauseNotFound        GeocodeErrorCause = "no match for query"
	ErrCauseAmbiguous       GeocodeErrorCause = "multiple equally-ranked matches"
	ErrCauseCacheFailure    GeocodeErrorCause = "geocode cache failure"
	ErrCauseRepositoryWrite GeocodeErrorCause = "failed to persist geocode result"
)

// GeocodeError classifies provider failures: Retryable
// distinguishes transient provider trouble (timeout, transport,
// 5xx) from a confirmed, terminal outcome (NotFound, Ambiguous),
// which GeocodeWorker treats as a successful negative rather than a
// failure to retry.
type GeocodeError struct {
	Message   string
	Retryable bool
	Cause     GeocodeErrorCause
}

func (e *GeocodeError) Error() string {
	return fmt.Sprintf("geocode error: %s: %s", e.Cause, e.Message)
}

func (e *GeocodeError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// IsRetryable satisfies pkg/retry's duck-typed retryability check.
func (e *GeocodeError) IsRetryable() bool {
	return e.Retryable
}

// IsTerminalNegative reports whether err represents a confirmed "no
// match" rather than a transient failure, the case that gets
// MarkGeocoded(id, nil, nil) instead of a retry.
func (e *GeocodeError) IsTerminalNegative() bool {
	return e.Cause == ErrCauseNotFound || e.Cause == ErrCauseAmbiguous
}

func mapGeocodeErrorToMetadataCause(err *GeocodeError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseEmptyQuery:
		return metadata.CauseInvariantViolation
	case ErrCauseProviderTimeout, ErrCauseProviderNetwork, ErrCauseProviderStatus:
		return metadata.CauseProviderFailure
	case ErrCauseNotFound, ErrCauseAmbiguous:
		return metadata.CauseProviderFailure
	case ErrCauseCacheFailure:
		return metadata.CauseStorageFailure
	case ErrCauseRepositoryWrite:
		return metadata.CauseRepository
	default:
		return metadata.CauseUnknown
	}
}
