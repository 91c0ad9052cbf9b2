package detail

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aerc-harvest/harvester/internal/fetcher"
	"github.com/aerc-harvest/harvester/internal/htmlnorm"
	"github.com/aerc-harvest/harvester/internal/mdconvert"
	"github.com/aerc-harvest/harvester/internal/metadata"
	"github.com/aerc-harvest/harvester/internal/model"
	"github.com/aerc-harvest/harvester/internal/repository"
	"github.com/aerc-harvest/harvester/pkg/failure"
	"github.com/aerc-harvest/harvester/pkg/fileutil"
	"github.com/aerc-harvest/harvester/pkg/hashutil"
	"github.com/aerc-harvest/harvester/pkg/retry"
)

// Recognized event_details keys this worker writes. UpdateDetails'
// top-level key merge preserves any other key a different writer
// already stored.
const (
	keyDirections    = "directions"
	keyAmenities     = "amenities"
	keyHazards       = "hazards"
	keyVeterinarians = "veterinarians"
)

// flyerExtensions are the asset kinds worth fetching for extraction
// hints; anything else is skipped rather than downloaded speculatively.
var flyerExtensions = map[string]bool{
	".pdf": true, ".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// Worker enriches persisted events from their websites: fetch, convert
// to Markdown, extract structured fields, merge into event_details.
// Flyer assets are content-hash-deduplicated across calls so the same
// flyer linked from several events is only written once.
type Worker struct {
	metadataSink metadata.MetadataSink
	repo         repository.Repository
	htmlFetcher  fetcher.Fetcher
	htmlNorm     htmlnorm.Normalizer
	converter    mdconvert.Converter
	extractor    DetailExtractor

	userAgent  string
	websiteTTL time.Duration
	flyerDir   string
	hashAlgo   hashutil.HashAlgo
	batchSize  int
	retryParam retry.RetryParam

	mu         sync.Mutex
	flyerPaths map[string]string // contentHash -> local path, dedup across calls
}

func NewWorker(
	metadataSink metadata.MetadataSink,
	repo repository.Repository,
	htmlFetcher fetcher.Fetcher,
	htmlNorm htmlnorm.Normalizer,
	converter mdconvert.Converter,
	extractor DetailExtractor,
	userAgent string,
	websiteTTL time.Duration,
	flyerDir string,
	hashAlgo hashutil.HashAlgo,
	batchSize int,
	retryParam retry.RetryParam,
) *Worker {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Worker{
		metadataSink: metadataSink,
		repo:         repo,
		htmlFetcher:  htmlFetcher,
		htmlNorm:     htmlNorm,
		converter:    converter,
		extractor:    extractor,
		userAgent:    userAgent,
		websiteTTL:   websiteTTL,
		flyerDir:     flyerDir,
		hashAlgo:     hashAlgo,
		batchSize:    batchSize,
		retryParam:   retryParam,
		flyerPaths:   make(map[string]string),
	}
}

// RunBatch selects events eligible under the tiered re-check cadence
// and processes up to limit of them (limit <= 0 means unbounded), in
// batches of batchSize to amortize DetailExtractor calls. A single
// item's failure never fails the batch; per-item errors are recorded
// and counted against processed, not returned.
func (w *Worker) RunBatch(ctx context.Context, limit int) (int, failure.ClassifiedError) {
	events, err := w.repo.ListForDetailEnrichment(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}

	processed := 0
	for start := 0; start < len(events); start += w.batchSize {
		end := start + w.batchSize
		if end > len(events) {
			end = len(events)
		}
		for _, event := range events[start:end] {
			if derr := w.processOne(ctx, event); derr != nil {
				continue
			}
			processed++
		}
	}
	return processed, nil
}

func (w *Worker) processOne(ctx context.Context, event model.Event) failure.ClassifiedError {
	if event.WebsiteURL == "" {
		err := &DetailError{Message: "event has no website_url", Cause: ErrCauseNoWebsite}
		w.record(event, err)
		return err
	}

	text, linkRefs, err := w.fetchAsText(ctx, event.WebsiteURL)
	if err != nil {
		w.record(event, err)
		return err
	}

	hints := Hints{EventName: event.Name}
	if flyerURL := w.flyerCandidate(event, linkRefs); flyerURL != "" {
		if path, ferr := w.maybeFetchFlyer(ctx, flyerURL); ferr == nil {
			hints.FlyerPath = path
		}
		// A flyer fetch failure is not fatal to extraction; the
		// DetailExtractor still gets the website text.
	}

	start := time.Now()
	outcome := retry.Retry(w.retryParam, func() (Fields, failure.ClassifiedError) {
		return w.extractor.Extract(ctx, text, hints)
	})
	w.metadataSink.RecordDetailAttempt("", outcome.IsSuccess(), time.Since(start))

	if outcome.IsFailure() {
		derr, ok := outcome.Err().(*DetailError)
		if !ok {
			derr = &DetailError{Message: outcome.Err().Error(), Retryable: true, Cause: ErrCauseExtractorFailure}
		}
		w.record(event, derr)
		return derr
	}

	patch := fieldsToPatch(outcome.Value())
	if uerr := w.repo.UpdateDetails(ctx, event.ID, patch, time.Now()); uerr != nil {
		derr := &DetailError{Message: uerr.Error(), Retryable: true, Cause: ErrCauseRepositoryWrite}
		w.record(event, derr)
		return derr
	}
	return nil
}

// fetchAsText fetches targetURL through the caching fetcher, normalizes
// it, and converts it to Markdown. Markdown rather than stripped text:
// ride schedules and vet-check tables carry structure the extractor
// grounds on. The page's link references ride along so the caller can
// look for a flyer the calendar listing didn't carry.
func (w *Worker) fetchAsText(ctx context.Context, targetURL string) (string, []mdconvert.LinkRef, *DetailError) {
	parsed, perr := url.Parse(targetURL)
	if perr != nil {
		return "", nil, &DetailError{Message: perr.Error(), Retryable: false, Cause: ErrCauseFetchFailure}
	}

	fetchParam := fetcher.NewFetchParam(*parsed, w.userAgent, true, false, w.websiteTTL)
	result, ferr := w.htmlFetcher.Fetch(ctx, 0, fetchParam, w.retryParam)
	if ferr != nil {
		return "", nil, &DetailError{Message: ferr.Error(), Retryable: ferr.Severity() != failure.SeverityFatal, Cause: ErrCauseFetchFailure}
	}

	normResult, nerr := w.htmlNorm.Normalize(result.Body())
	if nerr != nil {
		return "", nil, &DetailError{Message: nerr.Error(), Retryable: false, Cause: ErrCauseConversionFailed}
	}

	conversion, cerr := w.converter.Convert(normResult.HTML)
	if cerr != nil {
		return "", nil, &DetailError{Message: cerr.Error(), Retryable: false, Cause: ErrCauseConversionFailed}
	}
	return conversion.GetMarkdownContent(), conversion.GetLinkRefs(), nil
}

// flyerCandidate picks the flyer URL to fetch for extraction hints: the
// one already on file wins; otherwise the first link on the page whose
// extension looks like a flyer, resolved against the website URL.
func (w *Worker) flyerCandidate(event model.Event, linkRefs []mdconvert.LinkRef) string {
	if event.FlyerURL != "" {
		return event.FlyerURL
	}
	base, err := url.Parse(event.WebsiteURL)
	if err != nil {
		return ""
	}
	for _, ref := range linkRefs {
		if ref.GetKind() == mdconvert.KindAnchor {
			continue
		}
		candidate, cerr := url.Parse(ref.GetRaw())
		if cerr != nil {
			continue
		}
		resolved := base.ResolveReference(candidate)
		if flyerExtensions[extensionOf(resolved.Path)] {
			return resolved.String()
		}
	}
	return ""
}

func extensionOf(path string) string {
	ext := strings.ToLower(fileutil.GetFileExtension(path))
	if ext == "" {
		return ""
	}
	return "." + ext
}

// maybeFetchFlyer fetches and content-hash-dedupes a flyer asset,
// skipping URLs whose extension isn't a recognized flyer kind.
func (w *Worker) maybeFetchFlyer(ctx context.Context, flyerURL string) (string, failure.ClassifiedError) {
	parsed, perr := url.Parse(flyerURL)
	if perr != nil {
		return "", &DetailError{Message: perr.Error(), Retryable: false, Cause: ErrCauseFetchFailure}
	}
	if !flyerExtensions[extensionOf(parsed.Path)] {
		return "", &DetailError{Message: "unrecognized flyer extension", Retryable: false, Cause: ErrCauseFetchFailure}
	}

	fetchParam := fetcher.NewFetchParam(*parsed, w.userAgent, true, false, w.websiteTTL)
	result, ferr := w.htmlFetcher.Fetch(ctx, 0, fetchParam, w.retryParam)
	if ferr != nil {
		return "", &DetailError{Message: ferr.Error(), Retryable: ferr.Severity() != failure.SeverityFatal, Cause: ErrCauseFetchFailure}
	}

	contentHash, herr := hashutil.HashBytes(result.Body(), w.hashAlgo)
	if herr != nil {
		return "", &DetailError{Message: herr.Error(), Retryable: false, Cause: ErrCauseFetchFailure}
	}

	w.mu.Lock()
	if path, exists := w.flyerPaths[contentHash]; exists {
		w.mu.Unlock()
		return path, nil
	}
	w.mu.Unlock()

	if err := fileutil.EnsureDir(w.flyerDir); err != nil {
		return "", &DetailError{Message: err.Error(), Retryable: false, Cause: ErrCauseFetchFailure}
	}
	path := filepath.Join(w.flyerDir, contentHash+extensionOf(parsed.Path))
	if err := os.WriteFile(path, result.Body(), 0644); err != nil {
		return "", &DetailError{Message: err.Error(), Retryable: false, Cause: ErrCauseFetchFailure}
	}

	w.mu.Lock()
	w.flyerPaths[contentHash] = path
	w.mu.Unlock()

	w.metadataSink.RecordArtifact(metadata.ArtifactAsset, path, []metadata.Attribute{
		metadata.NewAttr(metadata.AttrURL, flyerURL),
	})
	return path, nil
}

// fieldsToPatch omits zero-value fields so UpdateDetails' key merge
// never overwrites a previously known value with nothing, mirroring
// Fields' own "omitted fields are left out" contract.
func fieldsToPatch(f Fields) map[string]any {
	patch := make(map[string]any)
	if f.Directions != "" {
		patch[keyDirections] = f.Directions
	}
	if len(f.Amenities) > 0 {
		patch[keyAmenities] = f.Amenities
	}
	if len(f.Hazards) > 0 {
		patch[keyHazards] = f.Hazards
	}
	if len(f.Veterinarians) > 0 {
		patch[keyVeterinarians] = f.Veterinarians
	}
	return patch
}

func (w *Worker) record(event model.Event, err *DetailError) {
	w.metadataSink.RecordError(
		time.Now(), "detail", "processOne",
		mapDetailErrorToMetadataCause(err), err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrEventID, event.IdentityKey()),
			metadata.NewAttr(metadata.AttrURL, event.WebsiteURL),
		},
	)
}
