package repository

import (
	"fmt"

	"github.com/aerc-harvest/harvester/internal/metadata"
	"github.com/aerc-harvest/harvester/pkg/failure"
)

type RepositoryErrorCause string

const (
	ErrCauseNotFound        RepositoryErrorCause = "event not found"
	ErrCauseConnectionFailure RepositoryErrorCause = "connection failure"
	ErrCauseConstraintViolation RepositoryErrorCause = "constraint violation"
	ErrCauseSerializationFailure RepositoryErrorCause = "serialization failure"
	ErrCauseInvalidQuery    RepositoryErrorCause = "invalid query"
)

type RepositoryError struct {
	Message   string
	Retryable bool
	Cause     RepositoryErrorCause
	Identity  string
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository error: %s: %s", e.Cause, e.Message)
}

func (e *RepositoryError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *RepositoryError) IsRetryable() bool {
	return e.Retryable
}

// MapRepositoryErrorToMetadataCause maps repository-local error
// semantics to the canonical metadata.ErrorCause table. Exported so
// both adapters (memrepo, postgres) can share one mapping.
func MapRepositoryErrorToMetadataCause(err *RepositoryError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseConnectionFailure, ErrCauseSerializationFailure:
		return metadata.CauseRepository
	case ErrCauseConstraintViolation, ErrCauseInvalidQuery:
		return metadata.CauseContentInvalid
	case ErrCauseNotFound:
		return metadata.CausePolicyDisallow
	default:
		return metadata.CauseUnknown
	}
}
