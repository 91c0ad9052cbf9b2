/*
Responsibilities
- Strip script/style/comment/tracking chrome from fetched HTML
- Preserve tag structure, text, links, and semantically significant attributes
- Collapse incidental whitespace without destroying meaningful line breaks

This stage ensures downstream parsing sees deterministic, structurally
stable markup regardless of how a source authored its page.
*/
package htmlnorm

import (
	"github.com/aerc-harvest/harvester/pkg/failure"
)

// Normalizer is the HTMLNormalizer capability: bytes in, a normalized
// HTML string out. Implementations must be deterministic for the same
// input and must not perform network I/O.
type Normalizer interface {
	Normalize(rawHTML []byte) (Result, failure.ClassifiedError)
}

// Result is the normalizer's output: the normalized HTML string plus
// the links discovered while walking the document, exactly as authored
// (no resolution against a base URL — that is SourceParser's job).
type Result struct {
	HTML           string
	DiscoveredURLs []string
}

var _ Normalizer = (*HTMLNormalizer)(nil)
