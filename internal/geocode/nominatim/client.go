/*
Client is one of the Geocoder capability's two concrete adapters
(googlegeo.Client is the other): a raw
net/http + encoding/json REST client against the public Nominatim
search API. No SDK; every other outbound integration here is a
hand-rolled HTTP client too, and this one is small enough not to be
the exception.
*/
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/aerc-harvest/harvester/internal/geocode"
	"github.com/aerc-harvest/harvester/pkg/failure"
)

const defaultEndpoint = "https://nominatim.openstreetmap.org/search"

// Client implements geocode.Geocoder against the Nominatim search
// endpoint. userAgent is required by Nominatim's usage policy; a
// client built without one is a configuration mistake, not a runtime
// one (validated at construction by the caller, not here).
type Client struct {
	httpClient *http.Client
	endpoint   string
	userAgent  string
}

func NewClient(httpClient *http.Client, userAgent string) *Client {
	return &Client{
		httpClient: httpClient,
		endpoint:   defaultEndpoint,
		userAgent:  userAgent,
	}
}

var _ geocode.Geocoder = (*Client)(nil)

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Importance  float64 `json:"importance"`
	DisplayName string `json:"display_name"`
}

func (c *Client) Geocode(ctx context.Context, query string) (geocode.GeocodeResult, failure.ClassifiedError) {
	reqURL := c.endpoint + "?" + url.Values{
		"q":      {query},
		"format": {"json"},
		"limit":  {"5"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return geocode.GeocodeResult{}, &geocode.GeocodeError{
			Message: err.Error(), Retryable: false, Cause: geocode.ErrCauseProviderNetwork,
		}
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return geocode.GeocodeResult{}, &geocode.GeocodeError{
			Message: fmt.Sprintf("request failed: %v", err), Retryable: true, Cause: geocode.ErrCauseProviderNetwork,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return geocode.GeocodeResult{}, &geocode.GeocodeError{
			Message: fmt.Sprintf("provider status %d", resp.StatusCode), Retryable: true, Cause: geocode.ErrCauseProviderStatus,
		}
	}
	if resp.StatusCode != http.StatusOK {
		return geocode.GeocodeResult{}, &geocode.GeocodeError{
			Message: fmt.Sprintf("provider status %d", resp.StatusCode), Retryable: false, Cause: geocode.ErrCauseProviderStatus,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return geocode.GeocodeResult{}, &geocode.GeocodeError{
			Message: fmt.Sprintf("failed to read response body: %v", err), Retryable: true, Cause: geocode.ErrCauseProviderNetwork,
		}
	}

	var results []searchResult
	if err := json.Unmarshal(body, &results); err != nil {
		return geocode.GeocodeResult{}, &geocode.GeocodeError{
			Message: fmt.Sprintf("malformed response: %v", err), Retryable: false, Cause: geocode.ErrCauseProviderStatus,
		}
	}

	if len(results) == 0 {
		return geocode.GeocodeResult{}, &geocode.GeocodeError{
			Message: "no results", Retryable: false, Cause: geocode.ErrCauseNotFound,
		}
	}

	best := results[0]
	if len(results) > 1 && results[1].Importance == best.Importance {
		return geocode.GeocodeResult{}, &geocode.GeocodeError{
			Message: "multiple equally-ranked results", Retryable: false, Cause: geocode.ErrCauseAmbiguous,
		}
	}

	lat, err := strconv.ParseFloat(best.Lat, 64)
	if err != nil {
		return geocode.GeocodeResult{}, &geocode.GeocodeError{
			Message: fmt.Sprintf("malformed lat: %v", err), Retryable: false, Cause: geocode.ErrCauseProviderStatus,
		}
	}
	lon, err := strconv.ParseFloat(best.Lon, 64)
	if err != nil {
		return geocode.GeocodeResult{}, &geocode.GeocodeError{
			Message: fmt.Sprintf("malformed lon: %v", err), Retryable: false, Cause: geocode.ErrCauseProviderStatus,
		}
	}

	return geocode.GeocodeResult{Lat: lat, Lng: lon, Found: true}, nil
}
