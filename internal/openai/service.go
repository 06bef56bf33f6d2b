package openai

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/victorjmlee/victory-integration/internal/pricing"
	"github.com/victorjmlee/victory-integration/internal/usage"
)

// gapFillDays mirrors the Anthropic aggregator: the trailing window
// re-queried at hourly resolution to cover daily reporting lag.
const gapFillDays = 3

// Service aggregates OpenAI usage and cost reports into the dashboard's
// daily usage model.
type Service struct {
	client *Client
	table  *pricing.Table
}

// NewService creates a Service using the given client and pricing table.
func NewService(client *Client, table *pricing.Table) *Service {
	return &Service{client: client, table: table}
}

// DailyUsage fetches, reconciles, and normalizes usage for the inclusive
// date range [start, end]. The daily usage, daily cost, and trailing hourly
// usage queries run concurrently; only a daily usage failure is fatal.
func (s *Service) DailyUsage(ctx context.Context, start, end time.Time) (usage.Response, error) {
	start = midnightUTC(start)
	end = midnightUTC(end)
	// end_time is exclusive upstream; pad by a day to include the end date.
	endExclusive := end.AddDate(0, 0, 1)
	today := midnightUTC(time.Now())

	hourlyStart := today.AddDate(0, 0, -(gapFillDays - 1))
	if hourlyStart.Before(start) {
		hourlyStart = start
	}
	hourlyEnd := end
	if hourlyEnd.After(today) {
		hourlyEnd = today
	}
	needHourly := !hourlyEnd.Before(hourlyStart)

	var (
		dailyBuckets  []UsageBucket
		hourlyBuckets []UsageBucket
		costBuckets   []CostBucket
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dailyBuckets, err = s.client.UsageReport(gctx, start, endExclusive, "1d", 31)
		return err
	})
	g.Go(func() error {
		// Cost is degraded, not fatal: usage still renders with zero costs.
		buckets, err := s.client.CostReport(gctx, start, endExclusive)
		if err != nil {
			log.Printf("openai: cost report unavailable: %v", err)
			return nil
		}
		costBuckets = buckets
		return nil
	})
	if needHourly {
		g.Go(func() error {
			buckets, err := s.client.UsageReport(gctx, hourlyStart, hourlyEnd.AddDate(0, 0, 1), "1h", 24*gapFillDays)
			if err != nil {
				log.Printf("openai: hourly usage unavailable: %v", err)
				return nil
			}
			hourlyBuckets = buckets
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return usage.Response{}, err
	}

	costTotals, byModel := summarizeCosts(costBuckets)

	seen := make(map[string]bool, len(dailyBuckets))
	records := make([]usage.Record, 0, len(dailyBuckets)+gapFillDays)
	for _, b := range dailyBuckets {
		date := unixDate(b.StartTime)
		seen[date] = true
		tallies := resultTallies(b.Results)
		in, out := usage.SumTokens(tallies)
		rec := usage.Record{Date: date, InputTokens: in, OutputTokens: out, ModelCosts: []usage.ModelCost{}}
		if total, ok := costTotals[date]; ok {
			rec.Cost = total
			if total > 0 {
				rec.ModelCosts = displayCosts(usage.AllocateModelCosts(tallies, total, s.table))
			}
		}
		records = append(records, rec)
	}

	gaps := make(map[string][]usage.TokenTally)
	for _, b := range hourlyBuckets {
		date := unixDate(b.StartTime)
		if seen[date] {
			continue
		}
		gaps[date] = append(gaps[date], resultTallies(b.Results)...)
	}
	gapDates := make([]string, 0, len(gaps))
	for date := range gaps {
		gapDates = append(gapDates, date)
	}
	sort.Strings(gapDates)
	for _, date := range gapDates {
		tallies := gaps[date]
		in, out := usage.SumTokens(tallies)
		if in == 0 && out == 0 {
			continue
		}
		rec := usage.Record{Date: date, InputTokens: in, OutputTokens: out, ModelCosts: []usage.ModelCost{}}
		if total, ok := costTotals[date]; ok {
			rec.Cost = total
			if total > 0 {
				rec.ModelCosts = displayCosts(usage.AllocateModelCosts(tallies, total, s.table))
			}
		} else {
			costs := usage.AllocateModelCosts(tallies, 0, s.table)
			rec.Cost = usage.SumModelCosts(costs)
			rec.ModelCosts = displayCosts(costs)
			rec.Estimated = true
		}
		records = append(records, rec)
	}

	return usage.BuildResponse(records, byModel, nil), nil
}

// summarizeCosts ingests cost buckets into a per-date total map plus a
// range-wide by-model summary keyed by display name.
func summarizeCosts(buckets []CostBucket) (map[string]float64, []usage.ModelCost) {
	totals := make(map[string]float64)
	modelTotals := make(map[string]float64)
	var modelOrder []string

	for _, b := range buckets {
		date := unixDate(b.StartTime)
		for _, r := range b.Results {
			usd := float64(r.Amount.Value)
			totals[date] += usd
			name := lineItemName(r.LineItem)
			if _, ok := modelTotals[name]; !ok {
				modelOrder = append(modelOrder, name)
			}
			modelTotals[name] += usd
		}
	}

	byModel := make([]usage.ModelCost, 0, len(modelOrder))
	for _, m := range modelOrder {
		byModel = append(byModel, usage.ModelCost{Model: m, Cost: modelTotals[m]})
	}
	return totals, byModel
}

// resultTallies converts usage results into pricing tallies. The upstream's
// input_tokens figure includes cached tokens, so the cached subset is split
// out to the cache-read tier and the remainder priced as fresh input.
func resultTallies(results []UsageResult) []usage.TokenTally {
	tallies := make([]usage.TokenTally, 0, len(results))
	for _, r := range results {
		fresh := r.InputTokens - r.InputCachedTokens
		if fresh < 0 {
			fresh = 0
		}
		tallies = append(tallies, usage.TokenTally{
			Model:           r.Model,
			InputTokens:     fresh,
			OutputTokens:    r.OutputTokens,
			CacheReadTokens: r.InputCachedTokens,
		})
	}
	return tallies
}

// displayCosts maps raw model IDs in an allocation to display names, merging
// entries that share a name.
func displayCosts(costs []usage.ModelCost) []usage.ModelCost {
	merged := make([]usage.ModelCost, 0, len(costs))
	index := make(map[string]int, len(costs))
	for _, mc := range costs {
		name := displayModelName(mc.Model)
		if i, ok := index[name]; ok {
			merged[i].Cost += mc.Cost
			continue
		}
		index[name] = len(merged)
		merged = append(merged, usage.ModelCost{Model: name, Cost: mc.Cost})
	}
	return merged
}

func displayModelName(model string) string {
	if model == "" {
		return "Unknown"
	}
	switch {
	case strings.Contains(model, "gpt-4o-mini"):
		return "GPT-4o Mini"
	case strings.Contains(model, "gpt-4o"):
		return "GPT-4o"
	case strings.Contains(model, "gpt-4-turbo"):
		return "GPT-4 Turbo"
	case strings.Contains(model, "gpt-4"):
		return "GPT-4"
	case strings.Contains(model, "gpt-5-mini"):
		return "GPT-5 Mini"
	case strings.Contains(model, "gpt-5"):
		return "GPT-5"
	case strings.Contains(model, "o1-mini"):
		return "o1 Mini"
	case strings.Contains(model, "o1"):
		return "o1"
	case strings.Contains(model, "o3-mini"):
		return "o3 Mini"
	case strings.Contains(model, "o3"):
		return "o3"
	case strings.Contains(model, "dall-e"):
		return "DALL-E"
	}
	return model
}

// Cost line items look like "gpt-4o-2024-08-06, input"; the model sits
// before the first comma.
func lineItemName(lineItem string) string {
	if lineItem == "" {
		return "Unknown"
	}
	model := strings.TrimSpace(strings.SplitN(lineItem, ",", 2)[0])
	return displayModelName(model)
}

func unixDate(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02")
}

func midnightUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
