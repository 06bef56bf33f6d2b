// Package usage defines the provider-agnostic daily usage model shared by
// the AI usage aggregators, along with the cost allocation and response
// normalization logic that turns raw provider report buckets into the
// dashboard's uniform per-day, per-model cost view.
package usage

// ModelCost is one model's share of a day's (or range's) cost.
type ModelCost struct {
	Model string  `json:"model"`
	Cost  float64 `json:"cost"`
}

// WorkspaceCost is one workspace's share of the range's cost.
type WorkspaceCost struct {
	Workspace string  `json:"workspace"`
	Cost      float64 `json:"cost"`
}

// Record is one calendar day of activity for one provider.
type Record struct {
	Date         string      `json:"date"` // YYYY-MM-DD, UTC
	InputTokens  int64       `json:"inputTokens"`
	OutputTokens int64       `json:"outputTokens"`
	TotalTokens  int64       `json:"totalTokens"`
	Cost         float64     `json:"cost"`
	ModelCosts   []ModelCost `json:"modelCosts"`
	// Estimated is true when Cost was derived from the pricing table
	// rather than an authoritative cost report.
	Estimated bool `json:"estimated,omitempty"`
}

// Response is the JSON body returned by every usage endpoint. Errors are
// reported in-band with an HTTP 200 so the UI can render a disconnected or
// empty state instead of an error boundary.
type Response struct {
	DailyUsage      []Record        `json:"dailyUsage"`
	TotalTokens     int64           `json:"totalTokens"`
	TotalCost       float64         `json:"totalCost"`
	CostByModel     []ModelCost     `json:"costByModel,omitempty"`
	CostByWorkspace []WorkspaceCost `json:"costByWorkspace,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// ErrorResponse returns an empty Response carrying an in-band error message.
func ErrorResponse(msg string) Response {
	return Response{DailyUsage: []Record{}, Error: msg}
}

// TokenTally is one usage-report result line: token counts for a single
// model within a bucket, split into the categories the pricing tables rate
// separately. InputTokens holds only fresh (uncached) input.
type TokenTally struct {
	Model            string
	InputTokens      int64
	OutputTokens     int64
	CacheReadTokens  int64
	CacheWriteTokens int64
}

// SumTokens returns the display-level input/output token totals for a set
// of tallies. All input categories (fresh, cache read, cache write) count
// toward input.
func SumTokens(tallies []TokenTally) (input, output int64) {
	for _, t := range tallies {
		input += t.InputTokens + t.CacheReadTokens + t.CacheWriteTokens
		output += t.OutputTokens
	}
	return input, output
}
