/*
Client is the DetailExtractor capability's one concrete adapter: a raw
net/http REST client against the Gemini generateContent endpoint, no
SDK, consistent with the hand-rolled HTTP clients used for every other
outbound integration (internal/fetcher.HTTPFetcher,
geocode/nominatim.Client).
*/
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/aerc-harvest/harvester/internal/detail"
	"github.com/aerc-harvest/harvester/pkg/failure"
)

const defaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash:generateContent"

// Client implements detail.DetailExtractor against Gemini's
// generateContent endpoint, prompting it to return a single JSON
// object matching detail.Fields' shape.
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

var _ detail.DetailExtractor = (*Client)(nil)

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// extractedFields is the JSON shape the prompt asks Gemini to emit;
// Client parses it into detail.Fields after the fact so this package
// stays the only place provider-specific wire shape leaks.
type extractedFields struct {
	Directions    string   `json:"directions"`
	Amenities     []string `json:"amenities"`
	Hazards       []string `json:"hazards"`
	Veterinarians []string `json:"veterinarians"`
}

func (c *Client) Extract(ctx context.Context, text string, hints detail.Hints) (detail.Fields, failure.ClassifiedError) {
	prompt := buildPrompt(text, hints)

	reqBody, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return detail.Fields{}, &detail.DetailError{
			Message: err.Error(), Retryable: false, Cause: detail.ErrCauseExtractorFailure,
		}
	}

	url := fmt.Sprintf("%s?key=%s", c.endpoint, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return detail.Fields{}, &detail.DetailError{
			Message: err.Error(), Retryable: false, Cause: detail.ErrCauseExtractorFailure,
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return detail.Fields{}, &detail.DetailError{
			Message: fmt.Sprintf("request failed: %v", err), Retryable: true, Cause: detail.ErrCauseExtractorFailure,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return detail.Fields{}, &detail.DetailError{
			Message: fmt.Sprintf("provider status %d", resp.StatusCode), Retryable: true, Cause: detail.ErrCauseExtractorFailure,
		}
	}
	if resp.StatusCode != http.StatusOK {
		return detail.Fields{}, &detail.DetailError{
			Message: fmt.Sprintf("provider status %d", resp.StatusCode), Retryable: false, Cause: detail.ErrCauseExtractorFailure,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return detail.Fields{}, &detail.DetailError{
			Message: fmt.Sprintf("failed to read response body: %v", err), Retryable: true, Cause: detail.ErrCauseExtractorFailure,
		}
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return detail.Fields{}, &detail.DetailError{
			Message: fmt.Sprintf("malformed response: %v", err), Retryable: false, Cause: detail.ErrCauseMalformedOutput,
		}
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return detail.Fields{}, &detail.DetailError{
			Message: "no candidates returned", Retryable: false, Cause: detail.ErrCauseMalformedOutput,
		}
	}

	var fields extractedFields
	if err := json.Unmarshal([]byte(parsed.Candidates[0].Content.Parts[0].Text), &fields); err != nil {
		return detail.Fields{}, &detail.DetailError{
			Message: fmt.Sprintf("malformed extraction payload: %v", err), Retryable: false, Cause: detail.ErrCauseMalformedOutput,
		}
	}

	return detail.Fields{
		Directions:    fields.Directions,
		Amenities:     fields.Amenities,
		Hazards:       fields.Hazards,
		Veterinarians: fields.Veterinarians,
	}, nil
}

func buildPrompt(text string, hints detail.Hints) string {
	prompt := "You are extracting structured facts about an endurance horse ride event from its website text. " +
		"Respond with ONLY a JSON object with keys \"directions\", \"amenities\", \"hazards\", \"veterinarians\" " +
		"(the latter three as string arrays). Omit a key you cannot confidently fill.\n\n"
	if hints.EventName != "" {
		prompt += fmt.Sprintf("Event name: %s\n\n", hints.EventName)
	}
	if hints.FlyerPath != "" {
		prompt += fmt.Sprintf("A flyer asset was also retrieved at %s but is not included inline.\n\n", hints.FlyerPath)
	}
	prompt += "Website text:\n" + text
	return prompt
}
