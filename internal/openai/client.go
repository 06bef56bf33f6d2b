// Package openai implements the usage and cost aggregator for the OpenAI
// organization usage and cost APIs.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/victorjmlee/victory-integration/internal/usage"
)

const (
	defaultBaseURL = "https://api.openai.com"

	providerName = "OpenAI"

	adminKeyGuidance = "OpenAI Admin API Key required. " +
		"Regular API keys cannot access usage data. " +
		"Go to Settings > Organization > Admin keys."
)

// Client is a minimal OpenAI organization API client. BaseURL and HTTPClient
// are overridable for tests.
type Client struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a Client authenticated with the given admin API key.
func NewClient(apiKey string) *Client {
	return &Client{
		APIKey:  apiKey,
		BaseURL: defaultBaseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// UsageResult is one per-model token tally inside a usage bucket.
// InputTokens includes cached tokens; InputCachedTokens is the cached subset.
type UsageResult struct {
	InputTokens       int64  `json:"input_tokens"`
	OutputTokens      int64  `json:"output_tokens"`
	InputCachedTokens int64  `json:"input_cached_tokens"`
	Model             string `json:"model"`
}

// UsageBucket is one time bucket from the completions usage report. Bucket
// boundaries are unix seconds.
type UsageBucket struct {
	StartTime int64         `json:"start_time"`
	EndTime   int64         `json:"end_time"`
	Results   []UsageResult `json:"results"`
}

// costValue is a USD amount that decodes from either a JSON number or a
// numeric string; the costs endpoint has served both shapes.
type costValue float64

func (v *costValue) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*v = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parsing cost amount %q: %w", s, err)
	}
	*v = costValue(f)
	return nil
}

// CostResult is one cost line item inside a cost bucket. Amounts are in
// dollars, unlike the usage report's token counts.
type CostResult struct {
	Amount struct {
		Value    costValue `json:"value"`
		Currency string    `json:"currency"`
	} `json:"amount"`
	LineItem string `json:"line_item"`
}

// CostBucket is one day-wide bucket from the cost report.
type CostBucket struct {
	StartTime int64        `json:"start_time"`
	Results   []CostResult `json:"results"`
}

// UsageReport fetches the completions usage report for [start, end) grouped
// by model. bucketWidth is "1d" or "1h".
func (c *Client) UsageReport(ctx context.Context, start, end time.Time, bucketWidth string, limit int) ([]UsageBucket, error) {
	q := url.Values{}
	q.Set("start_time", strconv.FormatInt(start.Unix(), 10))
	q.Set("end_time", strconv.FormatInt(end.Unix(), 10))
	q.Set("bucket_width", bucketWidth)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("group_by", "model")

	var body struct {
		Data []UsageBucket `json:"data"`
	}
	if err := c.get(ctx, "/v1/organization/usage/completions", q, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// CostReport fetches the daily cost report for [start, end) grouped by line
// item.
func (c *Client) CostReport(ctx context.Context, start, end time.Time) ([]CostBucket, error) {
	q := url.Values{}
	q.Set("start_time", strconv.FormatInt(start.Unix(), 10))
	q.Set("end_time", strconv.FormatInt(end.Unix(), 10))
	q.Set("bucket_width", "1d")
	q.Set("limit", "31")
	q.Set("group_by", "line_item")

	var body struct {
		Data []CostBucket `json:"data"`
	}
	if err := c.get(ctx, "/v1/organization/costs", q, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// get issues an authenticated GET and decodes the JSON response into v.
// Non-success statuses become the typed errors of the usage package.
func (c *Client) get(ctx context.Context, path string, q url.Values, v interface{}) error {
	reqURL := c.BaseURL + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("openai: creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("openai: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return &usage.AuthorizationError{Provider: providerName, Guidance: adminKeyGuidance}
		}
		return &usage.UpstreamError{Provider: providerName, StatusCode: resp.StatusCode, Body: string(data)}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("openai: decoding response: %w", err)
	}
	return nil
}
