package usage

import "sort"

// BuildResponse shapes reconciled daily records into the response body:
// records sorted ascending by date with duplicates dropped (first occurrence
// wins, so native daily records take precedence over gap-filled ones), each
// record's total tokens enforced as input+output, and response-level totals
// computed across all days.
func BuildResponse(records []Record, byModel []ModelCost, byWorkspace []WorkspaceCost) Response {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date < records[j].Date
	})

	daily := make([]Record, 0, len(records))
	var totalTokens int64
	var totalCost float64
	for _, rec := range records {
		if n := len(daily); n > 0 && daily[n-1].Date == rec.Date {
			continue
		}
		rec.TotalTokens = rec.InputTokens + rec.OutputTokens
		daily = append(daily, rec)
		totalTokens += rec.TotalTokens
		totalCost += rec.Cost
	}

	return Response{
		DailyUsage:      daily,
		TotalTokens:     totalTokens,
		TotalCost:       totalCost,
		CostByModel:     byModel,
		CostByWorkspace: byWorkspace,
	}
}
