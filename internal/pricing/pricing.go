// Package pricing defines the static per-model token pricing tables used to
// estimate costs when authoritative cost data is unavailable.
//
// The tables are data, not logic: providers revise pricing periodically, so
// the embedded defaults can be overridden with a YAML file at startup
// (VICTORY_PRICING_FILE) without a rebuild.
package pricing

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rate holds USD prices per 1M tokens for one model tier.
type Rate struct {
	Input      float64 `yaml:"input"`       // fresh (uncached) input tokens
	Output     float64 `yaml:"output"`      // output tokens
	CacheRead  float64 `yaml:"cache_read"`  // cache-hit input tokens
	CacheWrite float64 `yaml:"cache_write"` // cache-creation input tokens
}

// Cost returns the USD cost for the given token counts at this rate.
func (r Rate) Cost(input, output, cacheRead, cacheWrite int64) float64 {
	return (float64(input)*r.Input +
		float64(output)*r.Output +
		float64(cacheRead)*r.CacheRead +
		float64(cacheWrite)*r.CacheWrite) / 1_000_000
}

// Table maps model-identifier substrings to rates. Lookup is by substring
// containment, not exact match, so dated model IDs ("claude-opus-4-20250514")
// resolve through their family key ("claude-opus-4").
type Table struct {
	// Default is the rate applied when no key matches.
	Default Rate

	rates map[string]Rate
	keys  []string // sorted longest first so the most specific key wins
}

// NewTable builds a Table from a default rate and per-model rates.
// Keys are ordered by descending length (ties broken lexicographically) so
// that "claude-sonnet-4-5" is always tried before "claude-sonnet-4";
// iterating the map directly would make the match order nondeterministic.
func NewTable(def Rate, models map[string]Rate) *Table {
	t := &Table{
		Default: def,
		rates:   make(map[string]Rate, len(models)),
		keys:    make([]string, 0, len(models)),
	}
	for k, v := range models {
		t.rates[k] = v
		t.keys = append(t.keys, k)
	}
	sort.Slice(t.keys, func(i, j int) bool {
		if len(t.keys[i]) != len(t.keys[j]) {
			return len(t.keys[i]) > len(t.keys[j])
		}
		return t.keys[i] < t.keys[j]
	})
	return t
}

// Match returns the rate for the most specific key contained in modelID,
// falling back to the default tier when nothing matches.
func (t *Table) Match(modelID string) Rate {
	for _, k := range t.keys {
		if strings.Contains(modelID, k) {
			return t.rates[k]
		}
	}
	return t.Default
}

// Tables bundles the per-provider pricing tables.
type Tables struct {
	Anthropic *Table
	OpenAI    *Table
}

// Defaults returns the embedded pricing tables for all providers.
func Defaults() *Tables {
	return &Tables{
		Anthropic: DefaultAnthropic(),
		OpenAI:    DefaultOpenAI(),
	}
}

// DefaultAnthropic returns the embedded Anthropic pricing table.
func DefaultAnthropic() *Table {
	return NewTable(
		// Unknown Claude models are priced at the Sonnet tier.
		Rate{Input: 3, Output: 15, CacheRead: 0.30, CacheWrite: 3.75},
		map[string]Rate{
			"claude-opus-4-6":   {Input: 15, Output: 75, CacheRead: 1.50, CacheWrite: 18.75},
			"claude-opus-4":     {Input: 15, Output: 75, CacheRead: 1.50, CacheWrite: 18.75},
			"claude-sonnet-4-5": {Input: 3, Output: 15, CacheRead: 0.30, CacheWrite: 3.75},
			"claude-sonnet-4":   {Input: 3, Output: 15, CacheRead: 0.30, CacheWrite: 3.75},
			"claude-haiku-4-5":  {Input: 0.80, Output: 4, CacheRead: 0.08, CacheWrite: 1},
			"claude-3-haiku":    {Input: 0.25, Output: 1.25, CacheRead: 0.03, CacheWrite: 0.30},
		},
	)
}

// DefaultOpenAI returns the embedded OpenAI pricing table.
func DefaultOpenAI() *Table {
	return NewTable(
		// Unknown OpenAI models are priced at the GPT-4o tier.
		Rate{Input: 2.50, Output: 10, CacheRead: 1.25},
		map[string]Rate{
			"gpt-4o-mini": {Input: 0.15, Output: 0.60, CacheRead: 0.075},
			"gpt-4o":      {Input: 2.50, Output: 10, CacheRead: 1.25},
			"gpt-4-turbo": {Input: 10, Output: 30},
			"gpt-5-mini":  {Input: 0.25, Output: 2, CacheRead: 0.025},
			"gpt-5":       {Input: 1.25, Output: 10, CacheRead: 0.125},
			"o1-mini":     {Input: 1.10, Output: 4.40, CacheRead: 0.55},
			"o1":          {Input: 15, Output: 60, CacheRead: 7.50},
			"o3-mini":     {Input: 1.10, Output: 4.40, CacheRead: 0.55},
			"o3":          {Input: 2, Output: 8, CacheRead: 0.50},
		},
	)
}

// fileTable is the YAML shape of one provider's table.
type fileTable struct {
	Default *Rate           `yaml:"default"`
	Models  map[string]Rate `yaml:"models"`
}

// pricingFile is the YAML shape of a pricing override file.
type pricingFile struct {
	Anthropic *fileTable `yaml:"anthropic"`
	OpenAI    *fileTable `yaml:"openai"`
}

// LoadFile reads a YAML pricing file and returns tables for all providers.
// File entries are merged over the embedded defaults: providers or models
// absent from the file keep their embedded rates.
func LoadFile(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pricing: reading %s: %w", path, err)
	}

	var pf pricingFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("pricing: parsing %s: %w", path, err)
	}

	tables := Defaults()
	if pf.Anthropic != nil {
		tables.Anthropic = mergeTable(DefaultAnthropic(), pf.Anthropic)
	}
	if pf.OpenAI != nil {
		tables.OpenAI = mergeTable(DefaultOpenAI(), pf.OpenAI)
	}
	return tables, nil
}

func mergeTable(embedded *Table, ft *fileTable) *Table {
	def := embedded.Default
	if ft.Default != nil {
		def = *ft.Default
	}
	models := make(map[string]Rate, len(embedded.rates)+len(ft.Models))
	for k, v := range embedded.rates {
		models[k] = v
	}
	for k, v := range ft.Models {
		models[k] = v
	}
	return NewTable(def, models)
}
