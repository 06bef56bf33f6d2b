package usage

import (
	"math"
	"testing"
)

func TestBuildResponseSortsAndDeduplicates(t *testing.T) {
	records := []Record{
		{Date: "2026-08-03", InputTokens: 10, OutputTokens: 5, Cost: 1},
		{Date: "2026-08-01", InputTokens: 100, OutputTokens: 50, Cost: 2},
		{Date: "2026-08-03", InputTokens: 999, OutputTokens: 999, Cost: 99}, // duplicate, dropped
		{Date: "2026-08-02", InputTokens: 20, OutputTokens: 10, Cost: 3},
	}

	resp := BuildResponse(records, nil, nil)
	if len(resp.DailyUsage) != 3 {
		t.Fatalf("got %d records, want 3", len(resp.DailyUsage))
	}
	wantDates := []string{"2026-08-01", "2026-08-02", "2026-08-03"}
	for i, d := range wantDates {
		if resp.DailyUsage[i].Date != d {
			t.Errorf("record %d date = %s, want %s", i, resp.DailyUsage[i].Date, d)
		}
	}
	// First occurrence wins for the duplicated date.
	if resp.DailyUsage[2].InputTokens != 10 {
		t.Errorf("duplicate resolution kept the wrong record: %+v", resp.DailyUsage[2])
	}
}

func TestBuildResponseTotals(t *testing.T) {
	records := []Record{
		{Date: "2026-08-01", InputTokens: 100, OutputTokens: 50, Cost: 1.25},
		{Date: "2026-08-02", InputTokens: 200, OutputTokens: 100, Cost: 2.50},
	}

	resp := BuildResponse(records, nil, nil)
	if resp.TotalTokens != 450 {
		t.Errorf("TotalTokens = %d, want 450", resp.TotalTokens)
	}
	if math.Abs(resp.TotalCost-3.75) > 1e-9 {
		t.Errorf("TotalCost = %v, want 3.75", resp.TotalCost)
	}
	for _, rec := range resp.DailyUsage {
		if rec.TotalTokens != rec.InputTokens+rec.OutputTokens {
			t.Errorf("record %s: TotalTokens %d != input %d + output %d",
				rec.Date, rec.TotalTokens, rec.InputTokens, rec.OutputTokens)
		}
	}
}

func TestBuildResponseEmpty(t *testing.T) {
	resp := BuildResponse(nil, nil, nil)
	if resp.DailyUsage == nil {
		t.Error("DailyUsage must be an empty slice, not nil, so it serializes as []")
	}
	if resp.TotalTokens != 0 || resp.TotalCost != 0 {
		t.Errorf("empty response has totals %d / %v", resp.TotalTokens, resp.TotalCost)
	}
}

func TestErrorResponse(t *testing.T) {
	resp := ErrorResponse("boom")
	if resp.Error != "boom" {
		t.Errorf("Error = %q, want %q", resp.Error, "boom")
	}
	if resp.DailyUsage == nil || len(resp.DailyUsage) != 0 {
		t.Errorf("DailyUsage = %v, want empty slice", resp.DailyUsage)
	}
}

func TestSumTokens(t *testing.T) {
	tallies := []TokenTally{
		{InputTokens: 100, OutputTokens: 10, CacheReadTokens: 50, CacheWriteTokens: 25},
		{InputTokens: 200, OutputTokens: 20},
	}
	in, out := SumTokens(tallies)
	if in != 375 {
		t.Errorf("input total = %d, want 375 (cache categories count as input)", in)
	}
	if out != 30 {
		t.Errorf("output total = %d, want 30", out)
	}
}
