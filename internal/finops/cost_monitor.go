// Package finops tracks LLM spend. Every completion reports its token usage
// here, and the monitor aggregates cost per model so operators can see what
// the assistant's language features cost.
package finops

import (
	"sort"
	"sync"
	"time"
)

// modelPrice is USD per 1M tokens.
type modelPrice struct {
	Prompt     float64
	Completion float64
}

// prices covers the models we deploy with. Unknown models fall back to the
// default entry so spend is never silently dropped.
var prices = map[string]modelPrice{
	"gpt-4o":      {Prompt: 2.50, Completion: 10.00},
	"gpt-4o-mini": {Prompt: 0.15, Completion: 0.60},
	"default":     {Prompt: 1.00, Completion: 3.00},
}

// UsageRecord is one completed LLM call.
type UsageRecord struct {
	Timestamp        time.Time
	Model            string
	PromptTokens     int
	CompletionTokens int
	Cost             float64
	LatencyMs        int64
}

// ModelStats aggregates usage for one model.
type ModelStats struct {
	Model            string  `json:"model"`
	Calls            int64   `json:"calls"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	Cost             float64 `json:"cost_usd"`
	AvgLatencyMs     float64 `json:"avg_latency_ms"`
}

// CostReport is a point-in-time spend summary.
type CostReport struct {
	Since     time.Time    `json:"since"`
	TotalCost float64      `json:"total_cost_usd"`
	ByModel   []ModelStats `json:"by_model"`
}

// CostMonitor aggregates LLM usage in memory.
type CostMonitor struct {
	mu      sync.Mutex
	since   time.Time
	byModel map[string]*ModelStats
}

func NewCostMonitor() *CostMonitor {
	return &CostMonitor{
		since:   time.Now(),
		byModel: make(map[string]*ModelStats),
	}
}

// RecordUsage accounts one completed call.
func (m *CostMonitor) RecordUsage(model string, promptTokens, completionTokens int, latency time.Duration) {
	cost := EstimateCost(model, promptTokens, completionTokens)

	m.mu.Lock()
	defer m.mu.Unlock()

	stats, ok := m.byModel[model]
	if !ok {
		stats = &ModelStats{Model: model}
		m.byModel[model] = stats
	}
	stats.AvgLatencyMs = (stats.AvgLatencyMs*float64(stats.Calls) + float64(latency.Milliseconds())) / float64(stats.Calls+1)
	stats.Calls++
	stats.PromptTokens += int64(promptTokens)
	stats.CompletionTokens += int64(completionTokens)
	stats.Cost += cost
}

// Report snapshots the aggregated spend, most expensive model first.
func (m *CostMonitor) Report() CostReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := CostReport{Since: m.since}
	for _, stats := range m.byModel {
		report.ByModel = append(report.ByModel, *stats)
		report.TotalCost += stats.Cost
	}
	sort.Slice(report.ByModel, func(i, j int) bool {
		return report.ByModel[i].Cost > report.ByModel[j].Cost
	})
	return report
}

// EstimateCost prices one call in USD.
func EstimateCost(model string, promptTokens, completionTokens int) float64 {
	price, ok := prices[model]
	if !ok {
		price = prices["default"]
	}
	return float64(promptTokens)*price.Prompt/1e6 + float64(completionTokens)*price.Completion/1e6
}

var (
	defaultMonitor     *CostMonitor
	defaultMonitorOnce sync.Once
)

// Default is the process-wide monitor.
func Default() *CostMonitor {
	defaultMonitorOnce.Do(func() {
		defaultMonitor = NewCostMonitor()
	})
	return defaultMonitor
}
