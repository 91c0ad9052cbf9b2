package discovery

import (
	"fmt"

	"github.com/aerc-harvest/harvester/internal/metadata"
	"github.com/aerc-harvest/harvester/pkg/failure"
)

type DiscoveryErrorCause string

const (
	ErrCauseNoSeedSources   DiscoveryErrorCause = "no seed sources configured"
	ErrCauseInvalidTemplate DiscoveryErrorCause = "seed URL template invalid"
	ErrCauseRobotsDisallow  DiscoveryErrorCause = "page disallowed by robots"
	ErrCauseRobotsFailure   DiscoveryErrorCause = "robots check failed"
)

type DiscoveryError struct {
	Message   string
	Retryable bool
	Cause     DiscoveryErrorCause
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery error: %s: %s", e.Cause, e.Message)
}

func (e *DiscoveryError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// mapDiscoveryErrorToMetadataCause maps discovery-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used to derive
// control-flow decisions.
func mapDiscoveryErrorToMetadataCause(err *DiscoveryError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseNoSeedSources:
		return metadata.CauseInvariantViolation
	case ErrCauseInvalidTemplate:
		return metadata.CauseInvariantViolation
	case ErrCauseRobotsDisallow:
		return metadata.CausePolicyDisallow
	case ErrCauseRobotsFailure:
		return metadata.CauseNetworkFailure
	default:
		return metadata.CauseUnknown
	}
}
