package anthropic

import (
	"context"
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/victorjmlee/victory-integration/internal/pricing"
	"github.com/victorjmlee/victory-integration/internal/usage"
)

// gapFillDays is the trailing window re-queried at hourly resolution.
// Daily cost and usage reporting can lag by up to a day, which would make
// "today" (and sometimes "yesterday") vanish from the chart; three days is
// a safety margin against variable reporting delay.
const gapFillDays = 3

// Service aggregates Anthropic usage and cost reports into the dashboard's
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
// date range [start, end].
//
// Four upstream queries run concurrently: the daily usage report, the daily
// cost report, an hourly usage report over the trailing gap-fill window, and
// (when requested) the workspace listing. Only a daily usage failure is
// fatal; a cost failure degrades to zero costs and the supplementary queries
// degrade to empty.
func (s *Service) DailyUsage(ctx context.Context, start, end time.Time, withWorkspaces bool) (usage.Response, error) {
	start = midnightUTC(start)
	end = midnightUTC(end)
	// The upstream treats ending_at as exclusive; pad by a day so the
	// caller's end date is fully included.
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
		workspaces    []Workspace
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dailyBuckets, err = s.client.UsageReport(gctx, start, endExclusive, "1d", 31)
		return err
	})
	g.Go(func() error {
		// Cost is degraded, not fatal: usage still renders with zero costs.
		buckets, err := s.client.CostReport(gctx, start, endExclusive, withWorkspaces)
		if err != nil {
			log.Printf("anthropic: cost report unavailable: %v", err)
			return nil
		}
		costBuckets = buckets
		return nil
	})
	if needHourly {
		g.Go(func() error {
			buckets, err := s.client.UsageReport(gctx, hourlyStart, hourlyEnd.AddDate(0, 0, 1), "1h", 24*gapFillDays)
			if err != nil {
				log.Printf("anthropic: hourly usage unavailable: %v", err)
				return nil
			}
			hourlyBuckets = buckets
			return nil
		})
	}
	if withWorkspaces {
		g.Go(func() error {
			ws, err := s.client.ListWorkspaces(gctx)
			if err != nil {
				log.Printf("anthropic: workspace listing unavailable: %v", err)
				return nil
			}
			workspaces = ws
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return usage.Response{}, err
	}

	costTotals, byModel, byWorkspace := summarizeCosts(costBuckets, workspaces)

	// Native daily records. Per-day model breakdowns come from the
	// allocator: the cost report totals a day's spend but does not break
	// it down per model at this granularity.
	seen := make(map[string]bool, len(dailyBuckets))
	records := make([]usage.Record, 0, len(dailyBuckets)+gapFillDays)
	for _, b := range dailyBuckets {
		date := bucketDate(b.StartingAt)
		if date == "" {
			continue
		}
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

	// Gap fill: hourly buckets covering dates the daily report has not
	// published yet.
	gaps := make(map[string][]usage.TokenTally)
	for _, b := range hourlyBuckets {
		date := bucketDate(b.StartingAt)
		if date == "" || seen[date] {
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

	return usage.BuildResponse(records, byModel, byWorkspace), nil
}

// summarizeCosts ingests cost report buckets into a per-date total map plus
// range-wide by-model and by-workspace summaries. Amounts arrive as cent
// strings and are converted to dollars here.
func summarizeCosts(buckets []CostBucket, workspaces []Workspace) (map[string]float64, []usage.ModelCost, []usage.WorkspaceCost) {
	names := make(map[string]string, len(workspaces))
	for _, w := range workspaces {
		names[w.ID] = w.Name
	}

	totals := make(map[string]float64)
	modelTotals := make(map[string]float64)
	wsTotals := make(map[string]float64)
	var modelOrder, wsOrder []string

	add := func(order *[]string, sums map[string]float64, key string, amt float64) {
		if _, ok := sums[key]; !ok {
			*order = append(*order, key)
		}
		sums[key] += amt
	}

	for _, b := range buckets {
		date := bucketDate(b.StartingAt)
		if date == "" {
			continue
		}
		for _, r := range b.Results {
			cents, err := strconv.ParseFloat(r.Amount, 64)
			if err != nil {
				continue
			}
			usd := cents / 100
			totals[date] += usd
			add(&modelOrder, modelTotals, costLineName(r.Model, r.Description), usd)
			if r.WorkspaceID != "" {
				name := names[r.WorkspaceID]
				if name == "" {
					name = r.WorkspaceID
				}
				add(&wsOrder, wsTotals, name, usd)
			}
		}
	}

	byModel := make([]usage.ModelCost, 0, len(modelOrder))
	for _, m := range modelOrder {
		byModel = append(byModel, usage.ModelCost{Model: m, Cost: modelTotals[m]})
	}
	byWorkspace := make([]usage.WorkspaceCost, 0, len(wsOrder))
	for _, w := range wsOrder {
		byWorkspace = append(byWorkspace, usage.WorkspaceCost{Workspace: w, Cost: wsTotals[w]})
	}
	return totals, byModel, byWorkspace
}

// resultTallies converts usage report results into pricing tallies. Both
// ephemeral cache tiers count as cache writes.
func resultTallies(results []UsageResult) []usage.TokenTally {
	tallies := make([]usage.TokenTally, 0, len(results))
	for _, r := range results {
		tallies = append(tallies, usage.TokenTally{
			Model:            r.Model,
			InputTokens:      r.UncachedInputTokens,
			OutputTokens:     r.OutputTokens,
			CacheReadTokens:  r.CacheReadInputTokens,
			CacheWriteTokens: r.CacheCreation.Ephemeral1hInputTokens + r.CacheCreation.Ephemeral5mInputTokens,
		})
	}
	return tallies
}

// displayCosts maps raw model IDs in an allocation to marketing names,
// merging entries that share a name.
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
	case strings.Contains(model, "opus-4-6"):
		return "Claude Opus 4.6"
	case strings.Contains(model, "opus-4"):
		return "Claude Opus 4"
	case strings.Contains(model, "sonnet-4-5"):
		return "Claude Sonnet 4.5"
	case strings.Contains(model, "sonnet-4"):
		return "Claude Sonnet 4"
	case strings.Contains(model, "haiku-4-5"):
		return "Claude Haiku 4.5"
	case strings.Contains(model, "3-haiku"):
		return "Claude Haiku 3"
	case strings.Contains(model, "3-5-sonnet"):
		return "Claude Sonnet 3.5"
	}
	return model
}

// Cost report descriptions look like "Claude Sonnet 4.5 Usage - Input Tokens".
var usageDescRe = regexp.MustCompile(`^(Claude .+?) Usage`)

func costLineName(model, description string) string {
	if m := usageDescRe.FindStringSubmatch(description); m != nil {
		return m[1]
	}
	return displayModelName(model)
}

func bucketDate(startingAt string) string {
	if len(startingAt) < 10 {
		return ""
	}
	return startingAt[:10]
}

func midnightUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
