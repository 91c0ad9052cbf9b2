/*
Responsibilities
- Walk the normalized calendar HTML row by row
- Extract identity, dates, location, distances, contacts and URLs per row
- Isolate per-row failures so one bad row never aborts a page

Extraction Strategy
- Priority order per field:
    - Stable DOM anchor (attribute or class selector) for the value
    - A bounded set of field-specific parsers (dates, location, map link)
- Removal Rules: none — SourceParser never strips content, it only reads
  what HTMLNormalizer already cleaned.

Only rows that resolve to a selectable calendar-row container are
considered; anything else is a whole-page structural failure.
*/
package aercparser

import (
	"github.com/aerc-harvest/harvester/internal/model"
	"github.com/aerc-harvest/harvester/pkg/failure"
)

// Parser is the SourceParser capability: normalized HTML for one or
// more calendar pages in, an ordered list of RawEvent out. A whole-page
// StructuralError aborts the page; individual RowParseErrors are
// accumulated in Result.Warnings and the row is still emitted.
type Parser interface {
	Parse(pageURL string, normalizedHTML string, pageOrder int) (Result, failure.ClassifiedError)
}

// Result is the SourceParser's per-page output.
type Result struct {
	Events   []model.RawEvent
	Warnings []RowWarning
}

// RowWarning records a single-row extraction problem that did not
// prevent the row from being emitted (RowParseError, non-fatal).
type RowWarning struct {
	RowIndex int
	Field    string
	Message  string
}

var _ Parser = (*AERCParser)(nil)
