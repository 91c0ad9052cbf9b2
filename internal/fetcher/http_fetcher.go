package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aerc-harvest/harvester/internal/cache"
	"github.com/aerc-harvest/harvester/internal/metadata"
	"github.com/aerc-harvest/harvester/pkg/failure"
	"github.com/aerc-harvest/harvester/pkg/hashutil"
	"github.com/aerc-harvest/harvester/pkg/limiter"
	"github.com/aerc-harvest/harvester/pkg/retry"
)

/*
Responsibilities

- Perform HTTP requests
- Apply headers and timeouts
- Serve from ContentCache when allowed and fresh
- Acquire a RateLimiter token before every network request
- Handle redirects safely
- Classify responses and retry network/5xx/429 with jittered backoff

Fetch Semantics

- Only successful HTML responses are processed
- Non-HTML content is discarded
- Redirect chains are bounded
- All responses are logged with metadata

The fetcher never parses content; it only returns bytes and metadata.
*/

type HTTPFetcher struct {
	metadataSink metadata.MetadataSink
	httpClient   *http.Client
	cache        *cache.ContentCache
	rateLimiter  limiter.RateLimiter
	hashAlgo     hashutil.HashAlgo
}

func NewHTTPFetcher(
	metadataSink metadata.MetadataSink,
	contentCache *cache.ContentCache,
	rateLimiter limiter.RateLimiter,
	hashAlgo hashutil.HashAlgo,
) HTTPFetcher {
	return HTTPFetcher{
		metadataSink: metadataSink,
		httpClient:   &http.Client{},
		cache:        contentCache,
		rateLimiter:  rateLimiter,
		hashAlgo:     hashAlgo,
	}
}

var _ Fetcher = (*HTTPFetcher)(nil)

func (h *HTTPFetcher) Fetch(
	ctx context.Context,
	crawlDepth int,
	fetchParam FetchParam,
	retryParam retry.RetryParam,
) (FetchResult, failure.ClassifiedError) {
	callerMethod := "HTTPFetcher.Fetch"
	startTime := time.Now()

	if fetchParam.allowCached {
		if result, hit, err := h.tryCache(fetchParam); err != nil {
			return FetchResult{}, err
		} else if hit {
			h.metadataSink.RecordFetch(fetchParam.fetchUrl.String(), result.Code(), time.Since(startTime), "", 0, crawlDepth)
			return result, nil
		}
	}

	result, err := h.fetchWithRetry(ctx, fetchParam, retryParam)

	duration := time.Since(startTime)

	var statusCode int
	var contentType string
	var retryCount int

	var fetchErr *FetchError
	if err != nil && errors.As(err, &fetchErr) && fetchErr.Cause == ErrCauseExceededRetries {
		retryCount = retryParam.MaxAttempts
	}
	if err == nil {
		statusCode = result.Code()
		contentType = h.extractContentType(result.Headers())
	}

	h.metadataSink.RecordFetch(
		fetchParam.fetchUrl.String(),
		statusCode,
		duration,
		contentType,
		retryCount,
		crawlDepth,
	)

	if err != nil {
		h.recordFetchError(callerMethod, fetchParam.fetchUrl, err)
		return FetchResult{}, err
	}

	if writeErr := h.writeThrough(fetchParam, result); writeErr != nil {
		h.metadataSink.RecordError(
			time.Now(),
			"fetcher",
			callerMethod,
			metadata.CauseStorageFailure,
			writeErr.Error(),
			[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, fetchParam.fetchUrl.String())},
		)
	}

	return result, nil
}

// tryCache serves fetchParam from the ContentCache when allowed.
// Cache entries only ever hold the body of a successful (200) fetch;
// write-through happens on success only.
func (h *HTTPFetcher) tryCache(fetchParam FetchParam) (FetchResult, bool, failure.ClassifiedError) {
	record, found, err := h.cache.Get(fetchParam.fetchUrl.String(), time.Now(), fetchParam.forceRefresh, nil)
	if err != nil {
		return FetchResult{}, false, &FetchError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseCacheFailure,
		}
	}
	if !found {
		return FetchResult{}, false, nil
	}

	result := FetchResult{
		url:       fetchParam.fetchUrl,
		body:      record.Payload,
		fetchedAt: record.FetchedAt,
		source:    SourceCache,
		meta: ResponseMeta{
			statusCode:      http.StatusOK,
			responseHeaders: map[string]string{"ETag": record.ETag},
		},
	}
	return result, true, nil
}

func (h *HTTPFetcher) writeThrough(fetchParam FetchParam, result FetchResult) failure.ClassifiedError {
	if result.source == SourceCache {
		return nil
	}
	contentHash, err := hashutil.HashBytes(result.body, h.hashAlgo)
	if err != nil {
		return &FetchError{Message: err.Error(), Retryable: false, Cause: ErrCauseCacheFailure}
	}
	return h.cache.Put(
		fetchParam.fetchUrl.String(),
		result.body,
		result.fetchedAt,
		fetchParam.ttl,
		result.meta.responseHeaders["ETag"],
		contentHash,
	)
}

func (h *HTTPFetcher) extractContentType(headers map[string]string) string {
	if ct, ok := headers["Content-Type"]; ok {
		return ct
	}
	return ""
}

func (h *HTTPFetcher) recordFetchError(callerMethod string, fetchUrl url.URL, err failure.ClassifiedError) {
	var fetchError *FetchError
	if errors.As(err, &fetchError) {
		h.metadataSink.RecordError(
			time.Now(),
			"fetcher",
			callerMethod,
			mapFetchErrorToMetadataCause(fetchError),
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, fetchUrl.String()),
			},
		)
	}
}

func (h *HTTPFetcher) fetchWithRetry(ctx context.Context, fetchParam FetchParam, retryParam retry.RetryParam) (FetchResult, failure.ClassifiedError) {
	fetchTask := func() (FetchResult, failure.ClassifiedError) {
		if err := h.rateLimiter.Acquire(ctx, fetchParam.fetchUrl.Hostname()); err != nil {
			return FetchResult{}, &FetchError{
				Message:   fmt.Sprintf("rate limiter wait failed: %v", err),
				Retryable: false,
				Cause:     ErrCauseRateLimiterFailure,
			}
		}
		return h.performFetch(ctx, fetchParam.fetchUrl, fetchParam.userAgent)
	}

	outcome := retry.Retry(retryParam, fetchTask)
	if outcome.IsFailure() {
		retryErr := outcome.Err()
		var fetchErr *FetchError
		if errors.As(retryErr, &fetchErr) {
			return FetchResult{}, fetchErr
		}
		return FetchResult{}, &FetchError{
			Message:   retryErr.Error(),
			Retryable: false,
			Cause:     ErrCauseExceededRetries,
		}
	}

	return outcome.Value(), nil
}

func (h *HTTPFetcher) performFetch(ctx context.Context, fetchUrl url.URL, userAgent string) (FetchResult, failure.ClassifiedError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchUrl.String(), nil)
	if err != nil {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("failed to create request: %v", err),
			Retryable: false,
			Cause:     ErrCauseNetworkFailure,
		}
	}

	headers := requestHeaders(userAgent)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("request failed: %v", err),
			Retryable: true,
			Cause:     ErrCauseNetworkFailure,
		}
	}
	defer resp.Body.Close()

	retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))

	switch {
	case resp.StatusCode >= 500:
		return FetchResult{}, &FetchError{
			Message:            fmt.Sprintf("server error: %d", resp.StatusCode),
			Retryable:          true,
			Cause:              ErrCauseRequest5xx,
			RetryAfterDuration: retryAfter,
		}

	case resp.StatusCode == 429:
		return FetchResult{}, &FetchError{
			Message:            "rate limited (429)",
			Retryable:          true,
			Cause:              ErrCauseRequestTooMany,
			RetryAfterDuration: retryAfter,
		}

	case resp.StatusCode == 403:
		return FetchResult{}, &FetchError{
			Message:   "access forbidden (403)",
			Retryable: false,
			Cause:     ErrCauseRequestPageForbidden,
		}

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("client error: %d", resp.StatusCode),
			Retryable: false,
			Cause:     ErrCauseRequest4xx,
		}

	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("redirect error: %d", resp.StatusCode),
			Retryable: false,
			Cause:     ErrCauseRedirectLimitExceeded,
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if !isHTMLContent(contentType) {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("non-HTML content type: %s", contentType),
			Retryable: false,
			Cause:     ErrCauseContentTypeInvalid,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("failed to read response body: %v", err),
			Retryable: true,
			Cause:     ErrCauseReadResponseBodyError,
		}
	}

	responseHeaders := make(map[string]string)
	for key, values := range resp.Header {
		if len(values) > 0 {
			responseHeaders[key] = values[0]
		}
	}

	result := FetchResult{
		url:       fetchUrl,
		body:      body,
		fetchedAt: time.Now(),
		source:    SourceNetwork,
		meta: ResponseMeta{
			statusCode:      resp.StatusCode,
			responseHeaders: responseHeaders,
		},
	}

	return result, nil
}

// parseRetryAfter supports the delay-seconds form of Retry-After; the
// HTTP-date form is rare for scraped calendar hosts and, if present,
// is simply not honoured (falls back to exponential backoff).
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func isHTMLContent(contentType string) bool {
	contentType = strings.ToLower(contentType)
	return strings.Contains(contentType, "text/html") ||
		strings.Contains(contentType, "application/xhtml")
}

func requestHeaders(userAgent string) map[string]string {
	return map[string]string{
		"User-Agent":      userAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.5",
		"Accept-Encoding": "gzip, deflate, br",
		"DNT":             "1",
		"Connection":      "keep-alive",
	}
}
