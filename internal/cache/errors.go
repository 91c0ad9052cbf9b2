package cache

import (
	"fmt"

	"github.com/aerc-harvest/harvester/internal/metadata"
	"github.com/aerc-harvest/harvester/pkg/failure"
)

type CacheErrorCause string

const (
	ErrCauseDiskFull              CacheErrorCause = "disk is full"
	ErrCauseWriteFailure          CacheErrorCause = "write failed"
	ErrCauseReadFailure           CacheErrorCause = "read failed"
	ErrCauseHashComputationFailed CacheErrorCause = "hash computation failed"
	ErrCausePathError             CacheErrorCause = "path error"
	ErrCauseCorruptEntry          CacheErrorCause = "corrupt cache entry"
)

type CacheError struct {
	Message   string
	Retryable bool
	Cause     CacheErrorCause
	Key       string
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache error: %s: %s", e.Cause, e.Message)
}

func (e *CacheError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// mapCacheErrorToMetadataCause maps cache-local error semantics to the
// canonical metadata.ErrorCause table. Observational only; must never
// be used to derive control-flow decisions.
func mapCacheErrorToMetadataCause(err *CacheError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseDiskFull, ErrCauseWriteFailure, ErrCauseReadFailure, ErrCausePathError:
		return metadata.CauseStorageFailure
	case ErrCauseHashComputationFailed, ErrCauseCorruptEntry:
		return metadata.CauseInvariantViolation
	default:
		return metadata.CauseUnknown
	}
}
