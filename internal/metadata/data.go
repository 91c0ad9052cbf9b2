package metadata

import (
	"time"
)

type FetchEvent struct {
	fetchUrl    string
	httpStatus  int
	duration    time.Duration
	contentType string
	retryCount  int
	crawlDepth  int
}

type AssetFetchEvent struct {
	assetUrl   string
	httpStatus int
	duration   time.Duration
	retryCount int
}

/*
CrawlStats
  - Represents a terminal, derived summary of a completed run.
  - Contains only aggregate counts and durations.
  - Is computed by the orchestrator/worker after run termination.
  - Is recorded exactly once.
  - Must not influence scheduling, retries, or run termination.
  - Must be constructed without reading metadata.
*/
type CrawlStats struct {
	TotalPages  int
	TotalErrors int
	TotalAssets int
	DurationMs  int64
}

type ArtifactKind string

const (
	ArtifactMarkdown  ArtifactKind = "markdown"
	ArtifactAsset     ArtifactKind = "asset"
	ArtifactRunReport ArtifactKind = "run_report"
)

type ArtifactRecord struct {
	Kind  ArtifactKind
	Paths string
}

/*
	ErrorCause is a closed, canonical classification used exclusively for
	observability (logging, metrics, reporting).

	Rules:
	 - ErrorCause is for observability only.
	 - It must never be used to derive retry, continuation, or abort decisions.
	 - Any use of metadata.ErrorCause outside logging, metrics, or reporting is a design violation.
	 - ErrorCause MUST NOT influence control flow.
	 - ErrorCause MUST NOT be used for retry, continuation, or abort decisions.
	 - ErrorCause values MUST have stable, package-agnostic semantics.
	 - Pipeline packages MAY map their local errors to ErrorCause,
	   but MUST NOT invent new meanings.
	Non-goals:
	 - ErrorCause does not encode severity.
	 - ErrorCause does not imply retryability.
	 - ErrorCause does not imply run termination.
	 - ErrorCause does not imply correctness of downstream behavior.

If a failure does not clearly match a defined cause, CauseUnknown MUST be used.
*/
type ErrorCause int

/*
Canonical ErrorCause Table

# CauseUnknown

The failure does not map cleanly to any known category. Safe fallback.

# CauseNetworkFailure / CauseFetchFailure

Failure caused by network transport, remote availability, or the
HTTPFetcher's retry policy exhausting (5xx/429 past max_retries).

# CausePolicyDisallow

An explicit policy or rule disallowed the operation (robots.txt
disallow, HTTP 403/401, rate-limit enforcement).

# CauseContentInvalid

Content was fetched but could not be processed meaningfully.

# CauseStructural

A whole-page structural failure: the parser's expected container was
missing (SourceParser StructuralError).

# CauseRowInvalid

A single-row parser extraction failure (RowParseError); the row is
still emitted with the warning recorded, and the page is not aborted.

# CauseValidation

A normalized Event failed one of the invariants in the data model
(ValidationError).

# CauseStorageFailure

Failure while persisting artifacts (disk full, permissions).

# CauseRepository

The EventRepository is unavailable or a transaction could not be
committed (RepositoryError).

# CauseProviderFailure

A Geocoder or DetailExtractor capability call failed (GeocoderError /
DetailExtractorError).

# CauseRetryFailure

The generic retry helper exhausted its attempts; the underlying cause
is attached as a detail string, not reclassified.

# CauseCanceled

A task observed run cancellation and exited cleanly (CancellationError).

# CauseInvariantViolation

A system-level invariant was violated outside the Event model.
*/
const (
	CauseUnknown ErrorCause = iota
	CauseNetworkFailure
	CausePolicyDisallow
	CauseContentInvalid
	CauseStorageFailure
	CauseInvariantViolation
	CauseFetchFailure
	CauseStructural
	CauseRowInvalid
	CauseValidation
	CauseRepository
	CauseProviderFailure
	CauseRetryFailure
	CauseCanceled
)

type ErrorRecord struct {
	packageName string
	action      string
	cause       ErrorCause
	errorString string
	observedAt  time.Time
	attrs       []Attribute
}

type Attribute struct {
	Key   AttributeKey
	Value string
}

func NewAttr(key AttributeKey, val string) Attribute {
	return Attribute{
		Key:   key,
		Value: val,
	}
}

type AttributeKey string

const (
	AttrTime       AttributeKey = "time"
	AttrURL        AttributeKey = "url"
	AttrHost       AttributeKey = "host"
	AttrPath       AttributeKey = "path"
	AttrDepth      AttributeKey = "depth"
	AttrField      AttributeKey = "field"
	AttrHTTPStatus AttributeKey = "http_status"
	AttrAssetURL   AttributeKey = "asset_url"
	AttrWritePath  AttributeKey = "write_path"
	AttrMessage    AttributeKey = "message"
	AttrRunID      AttributeKey = "run_id"
	AttrSource     AttributeKey = "source"
	AttrEventID    AttributeKey = "event_id"
	AttrProvider   AttributeKey = "provider"
)
