/*
Client is the Geocoder capability's second concrete adapter: a raw
net/http + encoding/json REST client against the Google Geocoding API,
mirroring geocode/nominatim.Client's own no-SDK construction so the
two providers selectable via config.GeocodingProviderGoogle /
GeocodingProviderNominatim share the same calling convention.
*/
package googlegeo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/aerc-harvest/harvester/internal/geocode"
	"github.com/aerc-harvest/harvester/pkg/failure"
)

const defaultEndpoint = "https://maps.googleapis.com/maps/api/geocode/json"

// Client implements geocode.Geocoder against the Google Geocoding API.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

func NewClient(httpClient *http.Client, apiKey string) *Client {
	return &Client{
		httpClient: httpClient,
		endpoint:   defaultEndpoint,
		apiKey:     apiKey,
	}
}

var _ geocode.Geocoder = (*Client)(nil)

type geometry struct {
	Location struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry geometry `json:"geometry"`
	} `json:"results"`
}

func (c *Client) Geocode(ctx context.Context, query string) (geocode.GeocodeResult, failure.ClassifiedError) {
	reqURL := c.endpoint + "?" + url.Values{
		"address": {query},
		"key":     {c.apiKey},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return geocode.GeocodeResult{}, &geocode.GeocodeError{
			Message: err.Error(), Retryable: false, Cause: geocode.ErrCauseProviderNetwork,
		}
	}

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

	var parsed geocodeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return geocode.GeocodeResult{}, &geocode.GeocodeError{
			Message: fmt.Sprintf("malformed response: %v", err), Retryable: false, Cause: geocode.ErrCauseProviderStatus,
		}
	}

	switch parsed.Status {
	case "OK":
		// fall through
	case "ZERO_RESULTS":
		return geocode.GeocodeResult{}, &geocode.GeocodeError{
			Message: "no results", Retryable: false, Cause: geocode.ErrCauseNotFound,
		}
	case "OVER_QUERY_LIMIT", "UNKNOWN_ERROR":
		return geocode.GeocodeResult{}, &geocode.GeocodeError{
			Message: "provider status " + parsed.Status, Retryable: true, Cause: geocode.ErrCauseProviderStatus,
		}
	default:
		return geocode.GeocodeResult{}, &geocode.GeocodeError{
			Message: "provider status " + parsed.Status, Retryable: false, Cause: geocode.ErrCauseProviderStatus,
		}
	}

	if len(parsed.Results) == 0 {
		return geocode.GeocodeResult{}, &geocode.GeocodeError{
			Message: "no results", Retryable: false, Cause: geocode.ErrCauseNotFound,
		}
	}
	if len(parsed.Results) > 1 {
		return geocode.GeocodeResult{}, &geocode.GeocodeError{
			Message: "multiple results", Retryable: false, Cause: geocode.ErrCauseAmbiguous,
		}
	}

	loc := parsed.Results[0].Geometry.Location
	return geocode.GeocodeResult{Lat: loc.Lat, Lng: loc.Lng, Found: true}, nil
}
