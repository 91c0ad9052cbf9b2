package aercparser

import (
	"fmt"

	"github.com/aerc-harvest/harvester/internal/metadata"
	"github.com/aerc-harvest/harvester/pkg/failure"
)

type ParserErrorCause string

const (
	// ErrCauseNoRows: the page has no selectable calendar-row container
	// at all, a whole-page structural failure.
	ErrCauseNoRows ParserErrorCause = "no_rows"
	// ErrCauseUnparseableDoc: the normalized HTML itself could not be
	// parsed by goquery.
	ErrCauseUnparseableDoc ParserErrorCause = "unparseable_document"
)

// StructuralError aborts the whole page; it is never raised for a
// single row's extraction problem (see RowParseError below).
type StructuralError struct {
	Message   string
	Retryable bool
	Cause     ParserErrorCause
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("parser structural error: %s: %s", e.Cause, e.Message)
}

func (e *StructuralError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// RowParseError represents a single-row extraction failure. It is never
// returned from Parse as a failure.ClassifiedError: it is recorded as a
// RowWarning and the row is still emitted, per the parser's per-row
// failure contract.
type RowParseError struct {
	Field   string
	Message string
}

func (e *RowParseError) Error() string {
	return fmt.Sprintf("row parse error in field %q: %s", e.Field, e.Message)
}

// mapParserErrorToMetadataCause maps aercparser-local error semantics to
// the canonical metadata.ErrorCause table. Observational only; must
// never be used to derive control-flow decisions.
func mapParserErrorToMetadataCause(cause ParserErrorCause) metadata.ErrorCause {
	switch cause {
	case ErrCauseNoRows:
		return metadata.CauseStructural
	case ErrCauseUnparseableDoc:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
