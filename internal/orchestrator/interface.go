/*
Responsibilities
- Own the crawl lifecycle: discover target pages, fetch, normalize,
  parse, merge, and upsert, once per invocation
- Enforce page-order-then-DOM-order presentation of rows to the
  event normalizer so merging stays deterministic
- Classify each stage's failures fatal-vs-recoverable and never let a
  single bad page abort an otherwise-productive run
- Produce exactly one RunReport per invocation

ScrapeOrchestrator is the sole authority on retry, continuation, and
abort for a scrape run; RunReport accounting is observational only.
*/
package orchestrator

import (
	"context"

	"github.com/aerc-harvest/harvester/internal/model"
)

// ScrapeOrchestrator drives one full scrape pass: run once, produce
// one RunReport.
type ScrapeOrchestrator interface {
	Run(ctx context.Context) (model.RunReport, error)
}

var _ ScrapeOrchestrator = (*Orchestrator)(nil)
