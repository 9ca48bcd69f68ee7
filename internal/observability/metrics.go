package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects and aggregates counters for pipeline operations.
type Metrics struct {
	mu sync.Mutex

	turnTotal   atomic.Int64
	turnFailed  atomic.Int64
	llmCalls    atomic.Int64
	llmFailures atomic.Int64

	// Per intent-category metrics
	intentMetrics map[string]*IntentMetrics

	durations    []time.Duration
	maxDurations int
}

// IntentMetrics represents metrics for a specific intent category.
type IntentMetrics struct {
	count         atomic.Int64
	totalDuration atomic.Int64 // milliseconds
	errorCount    atomic.Int64
}

// NewMetrics creates a new metrics collector keeping the last maxDurations
// turn durations for averaging.
func NewMetrics(maxDurations int) *Metrics {
	if maxDurations <= 0 {
		maxDurations = 1000
	}
	return &Metrics{
		intentMetrics: make(map[string]*IntentMetrics),
		durations:     make([]time.Duration, 0, maxDurations),
		maxDurations:  maxDurations,
	}
}

var globalMetrics = NewMetrics(1000)

// GlobalMetrics returns the global metrics instance.
func GlobalMetrics() *Metrics {
	return globalMetrics
}

// RecordTurn records a handled chat turn.
func (m *Metrics) RecordTurn(intent string) {
	m.turnTotal.Add(1)
	m.getIntentMetrics(intent).count.Add(1)
}

// RecordFailure records a failed chat turn.
func (m *Metrics) RecordFailure(intent string) {
	m.turnFailed.Add(1)
	m.getIntentMetrics(intent).errorCount.Add(1)
}

// RecordDuration records a turn duration.
func (m *Metrics) RecordDuration(intent string, duration time.Duration) {
	m.mu.Lock()
	if len(m.durations) >= m.maxDurations {
		m.durations = m.durations[1:]
	}
	m.durations = append(m.durations, duration)
	m.mu.Unlock()

	m.getIntentMetrics(intent).totalDuration.Add(duration.Milliseconds())
}

// RecordLLMCall records an outbound LLM request, failed or not.
func (m *Metrics) RecordLLMCall(failed bool) {
	m.llmCalls.Add(1)
	if failed {
		m.llmFailures.Add(1)
	}
}

// GetTurnTotal returns the total number of handled turns.
func (m *Metrics) GetTurnTotal() int64 {
	return m.turnTotal.Load()
}

// GetTurnFailed returns the total number of failed turns.
func (m *Metrics) GetTurnFailed() int64 {
	return m.turnFailed.Load()
}

// GetLLMCalls returns (total, failed) outbound LLM requests.
func (m *Metrics) GetLLMCalls() (int64, int64) {
	return m.llmCalls.Load(), m.llmFailures.Load()
}

// AverageDuration returns the mean of the retained turn durations.
func (m *Metrics) AverageDuration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range m.durations {
		total += d
	}
	return total / time.Duration(len(m.durations))
}

func (m *Metrics) getIntentMetrics(intent string) *IntentMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	im, ok := m.intentMetrics[intent]
	if !ok {
		im = &IntentMetrics{}
		m.intentMetrics[intent] = im
	}
	return im
}
