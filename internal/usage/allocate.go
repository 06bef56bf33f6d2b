package usage

import "github.com/victorjmlee/victory-integration/internal/pricing"

// AllocateModelCosts distributes a day's cost across models in proportion to
// each model's pricing-table estimate.
//
// The upstream cost reports expose a day's total cost but not a per-model
// breakdown at matching granularity, so each model's cost is first estimated
// independently from its token counts and the estimates are then scaled so
// the emitted breakdown sums exactly to actualTotal. Relative proportions
// follow token pricing; the aggregate always matches the authoritative
// figure.
//
// When actualTotal is zero the total itself is unknown and the raw estimates
// are returned unscaled; their sum is the day's estimated cost. Tallies
// without a model tag, and models whose estimate is zero, are omitted. If
// every estimate is zero the result is empty.
func AllocateModelCosts(tallies []TokenTally, actualTotal float64, table *pricing.Table) []ModelCost {
	estimates := make(map[string]float64)
	var order []string
	var sum float64

	for _, t := range tallies {
		if t.Model == "" {
			continue
		}
		rate := table.Match(t.Model)
		est := rate.Cost(t.InputTokens, t.OutputTokens, t.CacheReadTokens, t.CacheWriteTokens)
		if est <= 0 {
			continue
		}
		if _, seen := estimates[t.Model]; !seen {
			order = append(order, t.Model)
		}
		estimates[t.Model] += est
		sum += est
	}

	if len(order) == 0 {
		return nil
	}

	scale := 1.0
	if actualTotal > 0 {
		if sum == 0 {
			return nil
		}
		scale = actualTotal / sum
	}

	costs := make([]ModelCost, 0, len(order))
	for _, model := range order {
		costs = append(costs, ModelCost{Model: model, Cost: estimates[model] * scale})
	}
	return costs
}

// SumModelCosts returns the total of a model cost breakdown.
func SumModelCosts(costs []ModelCost) float64 {
	var total float64
	for _, mc := range costs {
		total += mc.Cost
	}
	return total
}
