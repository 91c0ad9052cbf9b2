package geocode

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aerc-harvest/harvester/internal/cache"
	"github.com/aerc-harvest/harvester/internal/metadata"
	"github.com/aerc-harvest/harvester/internal/model"
	"github.com/aerc-harvest/harvester/internal/repository"
	"github.com/aerc-harvest/harvester/pkg/failure"
	"github.com/aerc-harvest/harvester/pkg/hashutil"
	"github.com/aerc-harvest/harvester/pkg/retry"
)

// cachedResult is the JSON payload stored in a cache.Backend entry,
// keyed by provider+query. Mirrors GeocodeResult plus the bit needed
// to tell a cached "found" from a cached "confirmed not found" apart
// from a cache miss.
type cachedResult struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Found bool    `json:"found"`
}

// GeocodeWorker fills coordinates for persisted events: batch
// (ListForGeocoding) and on-demand invocation over the same per-event
// pipeline, built on the package-local Geocoder capability boundary.
type GeocodeWorker struct {
	metadataSink metadata.MetadataSink
	repo         repository.Repository
	provider     Geocoder
	providerName string
	cacheBackend cache.Backend
	hashAlgo     hashutil.HashAlgo
	successTTL   time.Duration
	negativeTTL  time.Duration
	retryParam   retry.RetryParam
}

func NewGeocodeWorker(
	metadataSink metadata.MetadataSink,
	repo repository.Repository,
	provider Geocoder,
	providerName string,
	cacheBackend cache.Backend,
	hashAlgo hashutil.HashAlgo,
	successTTL, negativeTTL time.Duration,
	retryParam retry.RetryParam,
) *GeocodeWorker {
	return &GeocodeWorker{
		metadataSink: metadataSink,
		repo:         repo,
		provider:     provider,
		providerName: providerName,
		cacheBackend: cacheBackend,
		hashAlgo:     hashAlgo,
		successTTL:   successTTL,
		negativeTTL:  negativeTTL,
		retryParam:   retryParam,
	}
}

// RunBatch geocodes up to limit events with geocoding_attempted =
// false. limit <= 0 means unbounded. Returns the count successfully
// processed (found or confirmed-negative); events left unattempted
// after retry exhaustion are not counted as failures of RunBatch
// itself — they remain eligible for the next batch.
func (w *GeocodeWorker) RunBatch(ctx context.Context, limit int) (int, failure.ClassifiedError) {
	events, err := w.repo.ListForGeocoding(ctx, limit)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, event := range events {
		if gerr := w.GeocodeOne(ctx, event); gerr != nil {
			if gerr.Severity() == failure.SeverityFatal {
				return processed, gerr
			}
			continue
		}
		processed++
	}
	return processed, nil
}

// GeocodeOne resolves and persists coordinates for a single event:
// derive query, consult cache, call the provider with retry, persist
// via MarkGeocoded.
func (w *GeocodeWorker) GeocodeOne(ctx context.Context, event model.Event) failure.ClassifiedError {
	query := deriveQuery(event.Location, event.City, event.State, event.Country)
	if query == "" {
		err := &GeocodeError{Message: "event has no usable location fields", Cause: ErrCauseEmptyQuery}
		w.record(event, err)
		return err
	}

	if result, hit := w.cacheGet(query); hit {
		return w.persist(ctx, event, result)
	}

	start := time.Now()
	outcome := retry.Retry(w.retryParam, func() (GeocodeResult, failure.ClassifiedError) {
		return w.provider.Geocode(ctx, query)
	})
	w.metadataSink.RecordGeocodeAttempt(w.providerName, outcome.IsSuccess(), time.Since(start))

	if outcome.IsFailure() {
		gerr, ok := outcome.Err().(*GeocodeError)
		if !ok {
			w.record(event, &GeocodeError{Message: outcome.Err().Error(), Retryable: true, Cause: ErrCauseProviderNetwork})
			return outcome.Err()
		}
		if !gerr.IsTerminalNegative() {
			w.record(event, gerr)
			return gerr
		}
		// Terminal negative: persist as attempted-but-unresolved and
		// cache the negative result with the shorter TTL.
		w.cachePut(query, GeocodeResult{}, w.negativeTTL)
		return w.persist(ctx, event, GeocodeResult{Found: false})
	}

	result := outcome.Value()
	ttl := w.successTTL
	if !result.Found {
		ttl = w.negativeTTL
	}
	w.cachePut(query, result, ttl)
	return w.persist(ctx, event, result)
}

func (w *GeocodeWorker) persist(ctx context.Context, event model.Event, result GeocodeResult) failure.ClassifiedError {
	if !result.Found {
		if err := w.repo.MarkGeocoded(ctx, event.ID, nil, nil); err != nil {
			w.record(event, &GeocodeError{Message: err.Error(), Retryable: true, Cause: ErrCauseRepositoryWrite})
			return err
		}
		return nil
	}
	lat, lng := result.Lat, result.Lng
	if err := w.repo.MarkGeocoded(ctx, event.ID, &lat, &lng); err != nil {
		w.record(event, &GeocodeError{Message: err.Error(), Retryable: true, Cause: ErrCauseRepositoryWrite})
		return err
	}
	return nil
}

func (w *GeocodeWorker) cacheKey(query string) (string, bool) {
	hash, err := hashutil.HashBytes([]byte(w.providerName+"|"+query), w.hashAlgo)
	if err != nil {
		return "", false
	}
	return hash, true
}

func (w *GeocodeWorker) cacheGet(query string) (GeocodeResult, bool) {
	key, ok := w.cacheKey(query)
	if !ok {
		return GeocodeResult{}, false
	}
	record, found, err := w.cacheBackend.Get(key)
	if err != nil || !found || !record.Fresh(time.Now()) {
		return GeocodeResult{}, false
	}
	var cached cachedResult
	if jsonErr := json.Unmarshal(record.Payload, &cached); jsonErr != nil {
		return GeocodeResult{}, false
	}
	return GeocodeResult{Lat: cached.Lat, Lng: cached.Lng, Found: cached.Found}, true
}

func (w *GeocodeWorker) cachePut(query string, result GeocodeResult, ttl time.Duration) {
	key, ok := w.cacheKey(query)
	if !ok {
		return
	}
	payload, err := json.Marshal(cachedResult{Lat: result.Lat, Lng: result.Lng, Found: result.Found})
	if err != nil {
		return
	}
	now := time.Now()
	_ = w.cacheBackend.Put(key, model.FetchRecord{
		URL:       query,
		FetchedAt: now,
		Expires:   now.Add(ttl),
		Payload:   payload,
	})
}

func (w *GeocodeWorker) record(event model.Event, err *GeocodeError) {
	w.metadataSink.RecordError(
		time.Now(), "geocode", "GeocodeOne",
		mapGeocodeErrorToMetadataCause(err), err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrEventID, event.IdentityKey()),
			metadata.NewAttr(metadata.AttrProvider, w.providerName),
		},
	)
}
