package detail

import (
	"fmt"

	"github.com/aerc-harvest/harvester/internal/metadata"
	"github.com/aerc-harvest/harvester/pkg/failure"
)

type DetailErrorCause string

const (
	ErrCauseNoWebsite        DetailErrorCause = "event has no website_url"
	ErrCauseFetchFailure     DetailErrorCause = "failed to fetch website"
	ErrCauseConversionFailed DetailErrorCause = "failed to convert page to markdown"
	ErrCauseExtractorFailure DetailErrorCause = "extractor provider failure"
	ErrCauseMalformedOutput  DetailErrorCause = "extractor returned malformed output"
	ErrCauseRepositoryWrite  DetailErrorCause = "failed to persist extracted details"
)

// DetailError classifies detail-enrichment failures. A single
// extraction failure never fails the worker's batch; Retryable only
// governs whether pkg/retry.Retry should try the provider again within
// one target's attempt.
type DetailError struct {
	Message   string
	Retryable bool
	Cause     DetailErrorCause
}

func (e *DetailError) Error() string {
	return fmt.Sprintf("detail error: %s: %s", e.Cause, e.Message)
}

func (e *DetailError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// IsRetryable satisfies pkg/retry's duck-typed retryability check.
func (e *DetailError) IsRetryable() bool {
	return e.Retryable
}

func mapDetailErrorToMetadataCause(err *DetailError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseNoWebsite:
		return metadata.CauseInvariantViolation
	case ErrCauseFetchFailure:
		return metadata.CauseFetchFailure
	case ErrCauseConversionFailed:
		return metadata.CauseStructural
	case ErrCauseExtractorFailure, ErrCauseMalformedOutput:
		return metadata.CauseProviderFailure
	case ErrCauseRepositoryWrite:
		return metadata.CauseRepository
	default:
		return metadata.CauseUnknown
	}
}
