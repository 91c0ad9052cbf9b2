package fetcher

import (
	"fmt"
	"time"

	"github.com/aerc-harvest/harvester/internal/metadata"
	"github.com/aerc-harvest/harvester/pkg/failure"
)

type FetchErrorCause string

const (
	ErrCauseTimeout               FetchErrorCause = "timeout"
	ErrCauseNetworkFailure        FetchErrorCause = "network issues"
	ErrCauseReadResponseBodyError FetchErrorCause = "failed to read response body"
	ErrCauseContentTypeInvalid    FetchErrorCause = "non-HTML content"
	ErrCauseRedirectLimitExceeded FetchErrorCause = "reached redirect limit"
	ErrCauseRequestPageForbidden  FetchErrorCause = "forbidden"
	ErrCauseRequestTooMany        FetchErrorCause = "too many requests"
	ErrCauseRequest5xx            FetchErrorCause = "5xx"
	ErrCauseRequest4xx            FetchErrorCause = "4xx"
	ErrCauseExceededRetries       FetchErrorCause = "exceeded max retries"
	ErrCauseCacheFailure          FetchErrorCause = "cache read/write failed"
	ErrCauseRateLimiterFailure    FetchErrorCause = "rate limiter wait failed"
)

type FetchError struct {
	Message   string
	Retryable bool
	Cause     FetchErrorCause
	// RetryAfterDuration is set when the response carried a Retry-After
	// header; pkg/retry.Retry honours it over its own computed backoff.
	RetryAfterDuration time.Duration
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetcher error: %s", e.Cause)
}

func (e *FetchError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// IsRetryable returns whether this error is retryable
func (e *FetchError) IsRetryable() bool {
	return e.Retryable
}

// RetryAfter implements pkg/retry's duck-typed server-hint interface.
func (e *FetchError) RetryAfter() (time.Duration, bool) {
	return e.RetryAfterDuration, e.RetryAfterDuration > 0
}

// mapFetchErrorToMetadataCause maps fetcher-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapFetchErrorToMetadataCause(err *FetchError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseTimeout, ErrCauseNetworkFailure, ErrCauseReadResponseBodyError:
		return metadata.CauseNetworkFailure
	case ErrCauseRequestTooMany, ErrCauseRequest4xx, ErrCauseRequest5xx:
		return metadata.CauseFetchFailure
	case ErrCauseRequestPageForbidden:
		return metadata.CausePolicyDisallow
	case ErrCauseContentTypeInvalid, ErrCauseRedirectLimitExceeded:
		return metadata.CauseContentInvalid
	case ErrCauseExceededRetries:
		return metadata.CauseRetryFailure
	case ErrCauseCacheFailure:
		return metadata.CauseStorageFailure
	case ErrCauseRateLimiterFailure:
		return metadata.CausePolicyDisallow
	default:
		return metadata.CauseUnknown
	}
}
