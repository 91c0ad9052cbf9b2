/*
Responsibilities
- Turn a configured set of named AERC calendar entry points into a
  concrete list of target pages for one run
- Expand a year-templated seed into the configured span of season
  windows (e.g. last year / this year / next year's calendar)
- Admit every discovered page through a robots.txt check before it
  reaches the fetch stage

Discovery never fetches page bodies; it only decides which URLs the
run is allowed to hand to the fetcher.
*/
package discovery

import (
	"net/url"

	"github.com/aerc-harvest/harvester/pkg/failure"
)

// SeedSource is one named AERC calendar entry point (seed_sources).
// URLTemplate may contain the literal substring "{year}", expanded
// across the configured years-back/years-forward window around the
// current year; a template
// without that placeholder yields exactly one page.
type SeedSource struct {
	Name        string
	URLTemplate string
}

// TargetPage is one page discovery admitted for this run.
type TargetPage struct {
	URL    url.URL
	Source string
	Year   int // 0 when the seed had no {year} placeholder
}

// Discoverer is the page-discovery capability consumed by
// ScrapeOrchestrator step 2.
type Discoverer interface {
	Discover() ([]TargetPage, failure.ClassifiedError)
}

var _ Discoverer = (*AERCDiscoverer)(nil)
