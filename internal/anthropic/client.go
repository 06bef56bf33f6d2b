// Package anthropic implements the usage and cost aggregator for the
// Anthropic Admin API (organization usage reports, cost reports, and
// workspace listings).
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/victorjmlee/victory-integration/internal/usage"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"

	providerName = "Anthropic"

	adminKeyGuidance = "Anthropic Admin API Key required (sk-ant-admin-...). " +
		"Regular API keys cannot access usage data. " +
		"Generate one at console.anthropic.com > Settings > Admin API keys."
)

// Client is a minimal Anthropic Admin API client. BaseURL and HTTPClient are
// overridable for tests.
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

// UsageResult is one per-model token tally inside a usage report bucket.
type UsageResult struct {
	UncachedInputTokens  int64 `json:"uncached_input_tokens"`
	OutputTokens         int64 `json:"output_tokens"`
	CacheReadInputTokens int64 `json:"cache_read_input_tokens"`
	CacheCreation        struct {
		Ephemeral1hInputTokens int64 `json:"ephemeral_1h_input_tokens"`
		Ephemeral5mInputTokens int64 `json:"ephemeral_5m_input_tokens"`
	} `json:"cache_creation"`
	Model string `json:"model"`
}

// UsageBucket is one time bucket from the usage report (one day or one hour
// wide depending on the query).
type UsageBucket struct {
	StartingAt string        `json:"starting_at"`
	Results    []UsageResult `json:"results"`
}

// CostResult is one cost line item inside a cost report bucket. Amounts are
// decimal strings denominated in cents.
type CostResult struct {
	Amount      string `json:"amount"`
	Model       string `json:"model"`
	Description string `json:"description"`
	WorkspaceID string `json:"workspace_id"`
}

// CostBucket is one day-wide bucket from the cost report.
type CostBucket struct {
	StartingAt string       `json:"starting_at"`
	Results    []CostResult `json:"results"`
}

// Workspace is an organization workspace, used to translate the opaque
// workspace IDs in cost line items into display names.
type Workspace struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UsageReport fetches the messages usage report for [startingAt, endingAt)
// grouped by model. bucketWidth is "1d" or "1h".
func (c *Client) UsageReport(ctx context.Context, startingAt, endingAt time.Time, bucketWidth string, limit int) ([]UsageBucket, error) {
	q := url.Values{}
	q.Set("starting_at", isoTime(startingAt))
	q.Set("ending_at", isoTime(endingAt))
	q.Set("bucket_width", bucketWidth)
	q.Set("limit", strconv.Itoa(limit))
	q.Add("group_by[]", "model")

	var body struct {
		Data []UsageBucket `json:"data"`
	}
	if err := c.get(ctx, "/v1/organizations/usage_report/messages", q, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// CostReport fetches the daily cost report for [startingAt, endingAt)
// grouped by description, and additionally by workspace when byWorkspace
// is set.
func (c *Client) CostReport(ctx context.Context, startingAt, endingAt time.Time, byWorkspace bool) ([]CostBucket, error) {
	q := url.Values{}
	q.Set("starting_at", isoTime(startingAt))
	q.Set("ending_at", isoTime(endingAt))
	q.Set("bucket_width", "1d")
	q.Set("limit", "31")
	q.Add("group_by[]", "description")
	if byWorkspace {
		q.Add("group_by[]", "workspace_id")
	}

	var body struct {
		Data []CostBucket `json:"data"`
	}
	if err := c.get(ctx, "/v1/organizations/cost_report", q, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// ListWorkspaces fetches the organization's workspaces.
func (c *Client) ListWorkspaces(ctx context.Context) ([]Workspace, error) {
	q := url.Values{}
	q.Set("limit", "100")

	var body struct {
		Data []Workspace `json:"data"`
	}
	if err := c.get(ctx, "/v1/organizations/workspaces", q, &body); err != nil {
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
		return fmt.Errorf("anthropic: creating request: %w", err)
	}
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("anthropic: %w", err)
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
		return fmt.Errorf("anthropic: decoding response: %w", err)
	}
	return nil
}

func isoTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
