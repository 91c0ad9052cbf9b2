package htmlnorm

import (
	"fmt"

	"github.com/aerc-harvest/harvester/internal/metadata"
	"github.com/aerc-harvest/harvester/pkg/failure"
)

type NormalizationErrorCause string

const (
	ErrCauseEmptyInput     NormalizationErrorCause = "empty_input"
	ErrCauseUnparseableDoc NormalizationErrorCause = "unparseable_document"
)

type NormalizationError struct {
	Message   string
	Retryable bool
	Cause     NormalizationErrorCause
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("html normalization error: %s: %s", e.Cause, e.Message)
}

func (e *NormalizationError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// mapNormalizationErrorToMetadataCause maps htmlnorm-local error semantics
// to the canonical metadata.ErrorCause table. Observational only; must
// never be used to derive control-flow decisions.
func mapNormalizationErrorToMetadataCause(cause NormalizationErrorCause) metadata.ErrorCause {
	switch cause {
	case ErrCauseEmptyInput, ErrCauseUnparseableDoc:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
