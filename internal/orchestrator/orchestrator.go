package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aerc-harvest/harvester/internal/aercparser"
	"github.com/aerc-harvest/harvester/internal/discovery"
	"github.com/aerc-harvest/harvester/internal/eventnorm"
	"github.com/aerc-harvest/harvester/internal/fetcher"
	"github.com/aerc-harvest/harvester/internal/htmlnorm"
	"github.com/aerc-harvest/harvester/internal/metadata"
	"github.com/aerc-harvest/harvester/internal/model"
	"github.com/aerc-harvest/harvester/internal/repository"
	"github.com/aerc-harvest/harvester/pkg/failure"
	"github.com/aerc-harvest/harvester/pkg/retry"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Orchestrator is the ScrapeOrchestrator adapter: per-stage
// fatal/recoverable discipline with a single admission choke point
// (discoverer.Discover) in front of a batch of independently
// discovered calendar pages.
//
// Page fetch and event
// upsert each run across a bounded worker pool; parsing and event
// normalization stay single-task per run so RawEvent ordering
// (SourcePageOrder, SourceRowOrder) remains deterministic.
type Orchestrator struct {
	metadataSink metadata.MetadataSink
	discoverer   discovery.Discoverer
	htmlFetcher  fetcher.Fetcher
	htmlNorm     htmlnorm.Normalizer
	parser       aercparser.Parser
	eventNorm    eventnorm.Normalizer
	repo         repository.Repository

	sourceLabel   string
	userAgent     string
	fetchTTL      time.Duration
	fetchWorkers  int
	upsertWorkers int
	retryParam    retry.RetryParam

	mu                  sync.Mutex
	consecutiveDegraded int
}

// Config bundles Orchestrator's tunables rather than threading
// eight constructor arguments.
type Config struct {
	SourceLabel   string
	UserAgent     string
	FetchTTL      time.Duration
	FetchWorkers  int
	UpsertWorkers int
	RetryParam    retry.RetryParam
}

func NewOrchestrator(
	metadataSink metadata.MetadataSink,
	discoverer discovery.Discoverer,
	htmlFetcher fetcher.Fetcher,
	htmlNorm htmlnorm.Normalizer,
	parser aercparser.Parser,
	eventNorm eventnorm.Normalizer,
	repo repository.Repository,
	cfg Config,
) *Orchestrator {
	fetchWorkers := cfg.FetchWorkers
	if fetchWorkers <= 0 {
		fetchWorkers = 1
	}
	upsertWorkers := cfg.UpsertWorkers
	if upsertWorkers <= 0 {
		upsertWorkers = 1
	}
	return &Orchestrator{
		metadataSink:  metadataSink,
		discoverer:    discoverer,
		htmlFetcher:   htmlFetcher,
		htmlNorm:      htmlNorm,
		parser:        parser,
		eventNorm:     eventNorm,
		repo:          repo,
		sourceLabel:   cfg.SourceLabel,
		userAgent:     cfg.UserAgent,
		fetchTTL:      cfg.FetchTTL,
		fetchWorkers:  fetchWorkers,
		upsertWorkers: upsertWorkers,
		retryParam:    cfg.RetryParam,
	}
}

const reportSaveTimeout = 10 * time.Second

// pageRows is the raw yield of fetching+parsing one discovered page.
type pageRows struct {
	order  int
	events []model.RawEvent
}

func (o *Orchestrator) Run(ctx context.Context) (model.RunReport, error) {
	runID := uuid.New().String()
	startedAt := time.Now()
	report := model.RunReport{RunID: runID, Source: o.sourceLabel, StartedAt: startedAt}

	pages, derr := o.discoverer.Discover()
	if derr != nil {
		if derr.Severity() == failure.SeverityFatal {
			return o.finish(report, model.RunOutcomeFatal, time.Now(), nil), derr
		}
		report.Errors = append(report.Errors, runError("discovery", derr.Error(), "", time.Now()))
	}

	var (
		mu         sync.Mutex
		counts     model.RunCounts
		rowBatches []pageRows
		runErrors  []model.RunError
	)

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(o.fetchWorkers)

	for i, page := range pages {
		i, page := i, page
		group.Go(func() error {
			rows, stageErr, recoverable := o.fetchAndParsePage(gctx, i, page)

			mu.Lock()
			defer mu.Unlock()
			counts.Fetched++
			if stageErr != nil {
				if !recoverable {
					return stageErr
				}
				runErrors = append(runErrors, runError("page", stageErr.Error(), page.URL.String(), time.Now()))
				return nil
			}
			rowBatches = append(rowBatches, rows)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return o.finish(report, outcomeForAbort(ctx, err), time.Now(), runErrors), err
	}

	// Restore page-then-row ordering before handing rows to the
	// normalizer: pageRows may complete out of order under concurrency.
	sort.Slice(rowBatches, func(i, j int) bool { return rowBatches[i].order < rowBatches[j].order })
	var rawEvents []model.RawEvent
	for _, batch := range rowBatches {
		rawEvents = append(rawEvents, batch.events...)
	}

	normResult, nerr := o.eventNorm.Normalize(rawEvents)
	if nerr != nil {
		if nerr.Severity() == failure.SeverityFatal {
			return o.finish(report, model.RunOutcomeFatal, time.Now(), runErrors), nerr
		}
		runErrors = append(runErrors, runError("normalize", nerr.Error(), "", time.Now()))
	}
	counts.Invalid = len(normResult.Invalid)
	counts.Valid = len(normResult.Events)
	// Parsed counts post-merge canonical events, not raw per-day rows:
	// multi-day rides collapse several rows into one event, and the
	// count bookkeeping must stay closed under that merge.
	counts.Parsed = counts.Valid + counts.Invalid
	for _, inv := range normResult.Invalid {
		runErrors = append(runErrors, runError("validation", inv.Reason, inv.Event.IdentityKey(), time.Now()))
	}

	upsertGroup, uctx := errgroup.WithContext(ctx)
	upsertGroup.SetLimit(o.upsertWorkers)

	for _, event := range normResult.Events {
		event := event
		upsertGroup.Go(func() error {
			stored, uerr := o.repo.Upsert(uctx, event)
			mu.Lock()
			defer mu.Unlock()
			if uerr != nil {
				if uerr.Severity() == failure.SeverityFatal {
					return uerr
				}
				counts.Skipped++
				runErrors = append(runErrors, runError("upsert", uerr.Error(), event.IdentityKey(), time.Now()))
				return nil
			}
			classifyUpsert(stored, startedAt, &counts)
			return nil
		})
	}

	if err := upsertGroup.Wait(); err != nil {
		return o.finish(report, outcomeForAbort(ctx, err), time.Now(), runErrors), err
	}

	report.Counts = counts
	if !counts.CheckInvariant() {
		runErrors = append(runErrors, runError("invariant", "Inserted+Updated+Skipped+Invalid != Parsed", "", time.Now()))
	}

	outcome := model.RunOutcomeOK
	if counts.Valid == 0 {
		outcome = model.RunOutcomeDegraded
	}

	return o.finish(report, outcome, time.Now(), runErrors), nil
}

// outcomeForAbort distinguishes a run canceled by its own deadline
// from a genuine fatal stage failure.
func outcomeForAbort(ctx context.Context, err error) model.RunOutcome {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return model.RunOutcomeTimedOut
	}
	return model.RunOutcomeFatal
}

// classifyUpsert buckets a successfully stored Event into Inserted,
// Updated, or Skipped using only the timestamps repository.Upsert
// already returns: a record whose UpdatedAt was bumped to at or after
// runStart reflects an effective change this run (Inserted if CreatedAt
// was bumped too, Updated otherwise); anything older was a no-op merge.
func classifyUpsert(stored model.Event, runStart time.Time, counts *model.RunCounts) {
	changedThisRun := !stored.UpdatedAt.Before(runStart)
	insertedThisRun := !stored.CreatedAt.Before(runStart)
	switch {
	case insertedThisRun:
		counts.Inserted++
	case changedThisRun:
		counts.Updated++
	default:
		counts.Skipped++
	}
	if stored.IsCanceled {
		counts.Canceled++
	}
}

// fetchAndParsePage runs fetch -> HTML normalize -> parse for one
// discovered page. The returned bool reports whether a non-nil error
// is recoverable (page skipped) vs fatal (run aborted).
func (o *Orchestrator) fetchAndParsePage(ctx context.Context, order int, page discovery.TargetPage) (pageRows, failure.ClassifiedError, bool) {
	fetchParam := fetcher.NewFetchParam(page.URL, o.userAgent, true, false, o.fetchTTL)
	fetchResult, ferr := o.htmlFetcher.Fetch(ctx, 0, fetchParam, o.retryParam)
	if ferr != nil {
		return pageRows{order: order}, ferr, ferr.Severity() != failure.SeverityFatal
	}

	normResult, nerr := o.htmlNorm.Normalize(fetchResult.Body())
	if nerr != nil {
		return pageRows{order: order}, nerr, nerr.Severity() != failure.SeverityFatal
	}

	parseResult, perr := o.parser.Parse(page.URL.String(), normResult.HTML, order)
	if perr != nil {
		return pageRows{order: order}, perr, perr.Severity() != failure.SeverityFatal
	}

	for _, w := range parseResult.Warnings {
		o.metadataSink.RecordError(
			time.Now(), "orchestrator", "Parse",
			metadata.CauseRowInvalid,
			fmt.Sprintf("row %d field %s: %s", w.RowIndex, w.Field, w.Message),
			[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, page.URL.String())},
		)
	}

	return pageRows{order: order, events: parseResult.Events}, nil, true
}

func (o *Orchestrator) finish(report model.RunReport, outcome model.RunOutcome, endedAt time.Time, errs []model.RunError) model.RunReport {
	report.EndedAt = endedAt
	report.Outcome = outcome
	report.Errors = append(report.Errors, errs...)

	o.mu.Lock()
	if outcome == model.RunOutcomeDegraded {
		o.consecutiveDegraded++
		if o.consecutiveDegraded >= 2 {
			o.metadataSink.RecordError(
				endedAt, "orchestrator", "Run",
				metadata.CauseInvariantViolation,
				"two consecutive degraded runs",
				[]metadata.Attribute{metadata.NewAttr(metadata.AttrSource, report.Source)},
			)
		}
	} else {
		o.consecutiveDegraded = 0
	}
	o.mu.Unlock()

	o.metadataSink.RecordRunReport(report.RunID, report.Source, metadata.CrawlStats{
		TotalPages:  report.Counts.Fetched,
		TotalErrors: len(report.Errors),
		TotalAssets: 0,
		DurationMs:  report.EndedAt.Sub(report.StartedAt).Milliseconds(),
	})

	// The run's own context may already be expired (TimedOut); the
	// report is still persisted, on its own bounded deadline.
	saveCtx, cancel := context.WithTimeout(context.Background(), reportSaveTimeout)
	defer cancel()
	if serr := o.repo.SaveRunReport(saveCtx, report); serr != nil {
		o.metadataSink.RecordError(
			endedAt, "orchestrator", "SaveRunReport",
			metadata.CauseRepository, serr.Error(),
			[]metadata.Attribute{metadata.NewAttr(metadata.AttrRunID, report.RunID)},
		)
	}

	return report
}

func runError(kind, message, url string, observedAt time.Time) model.RunError {
	return model.RunError{Kind: kind, Message: message, URL: url, ObservedAt: observedAt}
}
