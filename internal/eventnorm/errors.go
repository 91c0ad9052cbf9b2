package eventnorm

import (
	"fmt"

	"github.com/aerc-harvest/harvester/internal/metadata"
	"github.com/aerc-harvest/harvester/pkg/failure"
)

type NormalizationErrorCause string

const (
	// ErrCauseEmptyBatch: Normalize was called with no rows at all. This
	// is a caller-usage problem, not a per-event ValidationError.
	ErrCauseEmptyBatch NormalizationErrorCause = "empty_batch"
	// ErrCauseHashComputationFailed: synthetic id derivation failed.
	ErrCauseHashComputationFailed NormalizationErrorCause = "hash_computation_failed"
)

type NormalizationError struct {
	Message   string
	Retryable bool
	Cause     NormalizationErrorCause
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("event normalization error: %s: %s", e.Cause, e.Message)
}

func (e *NormalizationError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// mapNormalizationErrorToMetadataCause maps eventnorm-local error
// semantics to the canonical metadata.ErrorCause table. Observational
// only; must never be used to derive control-flow decisions.
func mapNormalizationErrorToMetadataCause(cause NormalizationErrorCause) metadata.ErrorCause {
	switch cause {
	case ErrCauseEmptyBatch:
		return metadata.CauseContentInvalid
	case ErrCauseHashComputationFailed:
		return metadata.CauseInvariantViolation
	default:
		return metadata.CauseUnknown
	}
}
