package anthropic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/victorjmlee/victory-integration/internal/pricing"
	"github.com/victorjmlee/victory-integration/internal/usage"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient("sk-ant-admin-test")
	client.BaseURL = srv.URL
	return NewService(client, pricing.DefaultAnthropic())
}

func day(offset int) time.Time {
	return midnightUTC(time.Now().UTC().AddDate(0, 0, offset))
}

func iso(t time.Time) string {
	return t.Format("2006-01-02") + "T00:00:00Z"
}

func TestDailyUsageReconciliation(t *testing.T) {
	// A fully past range: the hourly gap-fill window never engages, so the
	// response is daily buckets reconciled against the cost report.
	start, end := day(-10), day(-9)
	d1, d2 := start.Format("2006-01-02"), end.Format("2006-01-02")

	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/organizations/usage_report/messages":
			if r.Header.Get("x-api-key") != "sk-ant-admin-test" {
				t.Errorf("missing x-api-key header")
			}
			if r.Header.Get("anthropic-version") != "2023-06-01" {
				t.Errorf("anthropic-version = %q", r.Header.Get("anthropic-version"))
			}
			if bw := r.URL.Query().Get("bucket_width"); bw != "1d" {
				t.Errorf("unexpected %s usage query for a fully past range", bw)
			}
			fmt.Fprintf(w, `{"data": [
				{"starting_at": %q, "results": [
					{"model": "claude-opus-4-6", "uncached_input_tokens": 1000000, "output_tokens": 0},
					{"model": "claude-sonnet-4-5-20250929", "uncached_input_tokens": 1000000, "output_tokens": 0}
				]},
				{"starting_at": %q, "results": [
					{"model": "claude-sonnet-4-5-20250929", "uncached_input_tokens": 500000, "output_tokens": 100000,
					 "cache_read_input_tokens": 200000, "cache_creation": {"ephemeral_5m_input_tokens": 50000}}
				]}
			]}`, iso(start), iso(end))
		case "/v1/organizations/cost_report":
			fmt.Fprintf(w, `{"data": [
				{"starting_at": %q, "results": [
					{"amount": "750.0", "description": "Claude Opus 4.6 Usage - Input Tokens"},
					{"amount": "150.0", "description": "Claude Sonnet 4.5 Usage - Input Tokens"}
				]},
				{"starting_at": %q, "results": [
					{"amount": "320.5", "description": "Claude Sonnet 4.5 Usage - Input Tokens"}
				]}
			]}`, iso(start), iso(end))
		default:
			t.Errorf("unexpected request to %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	resp, err := svc.DailyUsage(context.Background(), start, end, false)
	if err != nil {
		t.Fatalf("DailyUsage failed: %v", err)
	}
	if len(resp.DailyUsage) != 2 {
		t.Fatalf("got %d records, want 2", len(resp.DailyUsage))
	}

	r1 := resp.DailyUsage[0]
	if r1.Date != d1 {
		t.Errorf("first record date = %s, want %s", r1.Date, d1)
	}
	if r1.InputTokens != 2_000_000 || r1.TotalTokens != 2_000_000 {
		t.Errorf("first record tokens = %d/%d, want 2000000", r1.InputTokens, r1.TotalTokens)
	}
	// Cost report amounts are cent strings: 750 + 150 cents is $9.00.
	if math.Abs(r1.Cost-9.00) > 1e-9 {
		t.Errorf("first record cost = %v, want 9.00", r1.Cost)
	}
	if r1.Estimated {
		t.Error("record with authoritative cost marked estimated")
	}

	// Allocation: opus estimate $15, sonnet $3 per 1M input. Scaled to the
	// $9 total the split is 7.50 / 1.50.
	if len(r1.ModelCosts) != 2 {
		t.Fatalf("first record has %d model costs, want 2", len(r1.ModelCosts))
	}
	split := map[string]float64{}
	for _, mc := range r1.ModelCosts {
		split[mc.Model] = mc.Cost
	}
	if math.Abs(split["Claude Opus 4.6"]-7.50) > 1e-6 {
		t.Errorf("opus share = %v, want 7.50", split["Claude Opus 4.6"])
	}
	if math.Abs(split["Claude Sonnet 4.5"]-1.50) > 1e-6 {
		t.Errorf("sonnet share = %v, want 1.50", split["Claude Sonnet 4.5"])
	}

	r2 := resp.DailyUsage[1]
	if r2.Date != d2 {
		t.Errorf("second record date = %s, want %s", r2.Date, d2)
	}
	// Cache read and write tokens count as input for display totals.
	if r2.InputTokens != 750_000 || r2.OutputTokens != 100_000 {
		t.Errorf("second record tokens = %d in / %d out, want 750000 / 100000", r2.InputTokens, r2.OutputTokens)
	}
	if math.Abs(r2.Cost-3.205) > 1e-9 {
		t.Errorf("second record cost = %v, want 3.205", r2.Cost)
	}

	if math.Abs(resp.TotalCost-12.205) > 1e-9 {
		t.Errorf("TotalCost = %v, want 12.205", resp.TotalCost)
	}
	if resp.TotalTokens != 2_850_000 {
		t.Errorf("TotalTokens = %d, want 2850000", resp.TotalTokens)
	}

	// Range-wide model summary comes from the cost report descriptions.
	byModel := map[string]float64{}
	for _, mc := range resp.CostByModel {
		byModel[mc.Model] = mc.Cost
	}
	if math.Abs(byModel["Claude Opus 4.6"]-7.50) > 1e-9 {
		t.Errorf("costByModel opus = %v, want 7.50", byModel["Claude Opus 4.6"])
	}
	if math.Abs(byModel["Claude Sonnet 4.5"]-4.705) > 1e-9 {
		t.Errorf("costByModel sonnet = %v, want 4.705", byModel["Claude Sonnet 4.5"])
	}
}

func TestDailyUsageGapFillsToday(t *testing.T) {
	// The daily report lags: it has yesterday but not today. Today's usage
	// must be reconstructed from the hourly report and, with no cost line
	// for it yet, carry a pricing-table estimate.
	start, end := day(-1), day(0)
	yesterday, today := start.Format("2006-01-02"), end.Format("2006-01-02")

	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/organizations/usage_report/messages":
			if r.URL.Query().Get("bucket_width") == "1h" {
				fmt.Fprintf(w, `{"data": [
					{"starting_at": "%sT05:00:00Z", "results": [
						{"model": "claude-sonnet-4-5", "uncached_input_tokens": 600000, "output_tokens": 0}
					]},
					{"starting_at": "%sT06:00:00Z", "results": [
						{"model": "claude-sonnet-4-5", "uncached_input_tokens": 400000, "output_tokens": 100000}
					]},
					{"starting_at": "%sT23:00:00Z", "results": [
						{"model": "claude-sonnet-4-5", "uncached_input_tokens": 999999, "output_tokens": 0}
					]}
				]}`, today, today, yesterday)
				return
			}
			fmt.Fprintf(w, `{"data": [
				{"starting_at": %q, "results": [
					{"model": "claude-sonnet-4-5", "uncached_input_tokens": 2000000, "output_tokens": 0}
				]}
			]}`, iso(start))
		case "/v1/organizations/cost_report":
			fmt.Fprintf(w, `{"data": [
				{"starting_at": %q, "results": [
					{"amount": "500", "description": "Claude Sonnet 4.5 Usage - Input Tokens"}
				]}
			]}`, iso(start))
		default:
			t.Errorf("unexpected request to %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	resp, err := svc.DailyUsage(context.Background(), start, end, false)
	if err != nil {
		t.Fatalf("DailyUsage failed: %v", err)
	}
	if len(resp.DailyUsage) != 2 {
		t.Fatalf("got %d records, want 2 (yesterday native + today gap-filled)", len(resp.DailyUsage))
	}

	r1 := resp.DailyUsage[0]
	if r1.Date != yesterday || r1.Estimated {
		t.Errorf("yesterday record = %+v, want native record for %s", r1, yesterday)
	}
	// Hourly buckets for a date the daily report covers are ignored; the
	// native daily figure stands.
	if r1.InputTokens != 2_000_000 {
		t.Errorf("yesterday input tokens = %d, want 2000000 from the daily report", r1.InputTokens)
	}
	if math.Abs(r1.Cost-5.00) > 1e-9 {
		t.Errorf("yesterday cost = %v, want 5.00", r1.Cost)
	}

	r2 := resp.DailyUsage[1]
	if r2.Date != today {
		t.Errorf("gap-fill record date = %s, want %s", r2.Date, today)
	}
	if r2.InputTokens != 1_000_000 || r2.OutputTokens != 100_000 {
		t.Errorf("gap-fill tokens = %d in / %d out, want 1000000 / 100000", r2.InputTokens, r2.OutputTokens)
	}
	if !r2.Estimated {
		t.Error("gap-fill record without a cost line must be marked estimated")
	}
	// Sonnet: 1M input at $3 + 100k output at $15/MTok.
	want := 3.0 + 1.5
	if math.Abs(r2.Cost-want) > 1e-6 {
		t.Errorf("gap-fill estimated cost = %v, want %v", r2.Cost, want)
	}
}

func TestDailyUsageCostReportDegrades(t *testing.T) {
	// A failing cost report must not fail the request: usage renders with
	// zero costs and no estimates.
	start, end := day(-10), day(-9)

	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/organizations/usage_report/messages":
			fmt.Fprintf(w, `{"data": [
				{"starting_at": %q, "results": [
					{"model": "claude-sonnet-4-5", "uncached_input_tokens": 1000000, "output_tokens": 0}
				]},
				{"starting_at": %q, "results": [
					{"model": "claude-sonnet-4-5", "uncached_input_tokens": 2000000, "output_tokens": 0}
				]}
			]}`, iso(start), iso(end))
		case "/v1/organizations/cost_report":
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error": "upstream exploded"}`)
		default:
			t.Errorf("unexpected request to %s", r.URL.Path)
		}
	})

	resp, err := svc.DailyUsage(context.Background(), start, end, false)
	if err != nil {
		t.Fatalf("DailyUsage failed despite degraded cost report: %v", err)
	}
	if len(resp.DailyUsage) != 2 {
		t.Fatalf("got %d records, want 2", len(resp.DailyUsage))
	}
	for _, rec := range resp.DailyUsage {
		if rec.Cost != 0 || rec.Estimated {
			t.Errorf("record %s: cost=%v estimated=%v, want zero cost with no estimate", rec.Date, rec.Cost, rec.Estimated)
		}
		if len(rec.ModelCosts) != 0 {
			t.Errorf("record %s carries model costs without cost data", rec.Date)
		}
	}
	if resp.TotalCost != 0 {
		t.Errorf("TotalCost = %v, want 0", resp.TotalCost)
	}
}

func TestDailyUsageAuthorizationError(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": {"type": "authentication_error"}}`)
	})

	_, err := svc.DailyUsage(context.Background(), day(-10), day(-9), false)
	if err == nil {
		t.Fatal("expected error for unauthorized usage report")
	}
	var authErr *usage.AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("error type = %T, want *usage.AuthorizationError", err)
	}
	if authErr.Provider != "Anthropic" {
		t.Errorf("Provider = %q, want Anthropic", authErr.Provider)
	}
}

func TestDailyUsageWorkspaceBreakdown(t *testing.T) {
	start, end := day(-10), day(-9)

	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/organizations/usage_report/messages":
			fmt.Fprintf(w, `{"data": [
				{"starting_at": %q, "results": [
					{"model": "claude-sonnet-4-5", "uncached_input_tokens": 1000000, "output_tokens": 0}
				]}
			]}`, iso(start))
		case "/v1/organizations/cost_report":
			if got := r.URL.Query()["group_by[]"]; len(got) != 2 {
				t.Errorf("cost report group_by[] = %v, want description and workspace_id", got)
			}
			fmt.Fprintf(w, `{"data": [
				{"starting_at": %q, "results": [
					{"amount": "300", "description": "Claude Sonnet 4.5 Usage - Input Tokens", "workspace_id": "wrkspc_prod"},
					{"amount": "100", "description": "Claude Sonnet 4.5 Usage - Input Tokens", "workspace_id": "wrkspc_unknown"}
				]}
			]}`, iso(start))
		case "/v1/organizations/workspaces":
			fmt.Fprint(w, `{"data": [{"id": "wrkspc_prod", "name": "Production"}]}`)
		default:
			t.Errorf("unexpected request to %s", r.URL.Path)
		}
	})

	resp, err := svc.DailyUsage(context.Background(), start, end, true)
	if err != nil {
		t.Fatalf("DailyUsage failed: %v", err)
	}
	if len(resp.CostByWorkspace) != 2 {
		t.Fatalf("got %d workspace costs, want 2", len(resp.CostByWorkspace))
	}
	byWS := map[string]float64{}
	for _, wc := range resp.CostByWorkspace {
		byWS[wc.Workspace] = wc.Cost
	}
	if math.Abs(byWS["Production"]-3.00) > 1e-9 {
		t.Errorf("Production workspace cost = %v, want 3.00", byWS["Production"])
	}
	// Workspaces missing from the listing fall back to their raw ID.
	if math.Abs(byWS["wrkspc_unknown"]-1.00) > 1e-9 {
		t.Errorf("unknown workspace cost = %v, want 1.00 under its raw ID", byWS["wrkspc_unknown"])
	}
}

func TestDisplayModelName(t *testing.T) {
	cases := map[string]string{
		"claude-opus-4-6":            "Claude Opus 4.6",
		"claude-opus-4-20250514":     "Claude Opus 4",
		"claude-sonnet-4-5-20250929": "Claude Sonnet 4.5",
		"claude-sonnet-4-20250514":   "Claude Sonnet 4",
		"claude-haiku-4-5":           "Claude Haiku 4.5",
		"claude-3-haiku-20240307":    "Claude Haiku 3",
		"claude-3-5-sonnet-20241022": "Claude Sonnet 3.5",
		"":                           "Unknown",
		"claude-next":                "claude-next",
	}
	for in, want := range cases {
		if got := displayModelName(in); got != want {
			t.Errorf("displayModelName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCostLineName(t *testing.T) {
	if got := costLineName("", "Claude Sonnet 4.5 Usage - Input Tokens"); got != "Claude Sonnet 4.5" {
		t.Errorf("costLineName from description = %q, want Claude Sonnet 4.5", got)
	}
	if got := costLineName("claude-opus-4-6", "Some Other Line"); got != "Claude Opus 4.6" {
		t.Errorf("costLineName fallback = %q, want Claude Opus 4.6", got)
	}
}
