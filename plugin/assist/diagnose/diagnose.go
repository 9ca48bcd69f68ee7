// Package diagnose explains zero-result forecast queries. It distinguishes
// missing report data from filter combinations that exclude every row, and
// for the latter finds which filter is the problem and what values would
// work instead.
package diagnose

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/staffsense/staffsense/plugin/assist/llm"
	"github.com/staffsense/staffsense/plugin/assist/query"
	"github.com/staffsense/staffsense/plugin/forecastapi"
)

// maxConcurrentProbes bounds the drop-one-filter re-queries in flight.
const maxConcurrentProbes = 3

// maxAlternatives caps the working values reported per problematic filter.
const maxAlternatives = 10

// Backend is the forecasting surface the diagnostic probes.
type Backend interface {
	GetForecast(ctx context.Context, params url.Values) (*forecastapi.ForecastResult, error)
	GetFilterOptions(ctx context.Context, month, year string) (*forecastapi.FilterOptions, error)
}

// LLMService writes the user-facing explanation. Failures fall back to the
// deterministic message.
type LLMService interface {
	Enabled() bool
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// ProblematicFilter is one filter whose removal makes rows appear.
type ProblematicFilter struct {
	Filter       string   `json:"filter"`
	Values       []string `json:"values"`
	RowsWithout  int      `json:"rows_without"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// Result is the diagnostic verdict for a zero-result query.
type Result struct {
	// IsDataIssue means no report data exists for the period at all; the
	// filters are not the problem.
	IsDataIssue bool                `json:"is_data_issue"`
	Message     string              `json:"message"`
	Explanation string              `json:"explanation,omitempty"`
	Problematic []ProblematicFilter `json:"problematic_filters,omitempty"`
	// PeriodTotal is the row count for the period with no filters applied.
	PeriodTotal int `json:"period_total"`
}

// Diagnostic runs combination diagnostics against the backend.
type Diagnostic struct {
	backend Backend
	llm     LLMService
}

// New creates a diagnostic. llm may be nil.
func New(backend Backend, llm LLMService) *Diagnostic {
	return &Diagnostic{backend: backend, llm: llm}
}

// Diagnose explains why params returned zero rows. It costs one probe per
// active filter plus two baseline queries.
func (d *Diagnostic) Diagnose(ctx context.Context, params query.ForecastQueryParams) (*Result, error) {
	period := periodLabel(params.Month, params.Year)

	options, err := d.backend.GetFilterOptions(ctx, params.Month, params.Year)
	if err != nil || options == nil || options.IsEmpty() {
		if err != nil {
			slog.Warn("filter options unavailable during diagnosis", slog.Any("error", err))
		}
		return &Result{
			IsDataIssue: true,
			Message:     fmt.Sprintf("No forecast data has been uploaded for %s.", period),
		}, nil
	}

	baseline := params
	for _, name := range params.ActiveFilterNames() {
		baseline = baseline.WithoutFilter(name)
	}
	baseResult, err := d.backend.GetForecast(ctx, baseline.Values())
	if err != nil {
		return nil, err
	}
	if baseResult.Total == 0 {
		return &Result{
			IsDataIssue: true,
			Message:     fmt.Sprintf("No forecast data has been uploaded for %s.", period),
			PeriodTotal: 0,
		}, nil
	}

	result := &Result{PeriodTotal: baseResult.Total}
	activeFilters := params.ActiveFilters()
	names := params.ActiveFilterNames()
	if len(names) == 0 {
		result.IsDataIssue = true
		result.Message = fmt.Sprintf("No forecast data has been uploaded for %s.", period)
		return result, nil
	}

	result.Problematic = d.probeFilters(ctx, params, names, activeFilters)
	result.Message = deterministicMessage(period, activeFilters, result.Problematic)
	result.Explanation = d.explain(ctx, result.Message, result.Problematic)
	return result, nil
}

// probeFilters re-queries with each filter dropped in turn, bounded by a
// semaphore, and collects the working alternatives from the probe rows.
func (d *Diagnostic) probeFilters(ctx context.Context, params query.ForecastQueryParams, names []string, active map[string][]string) []ProblematicFilter {
	sem := semaphore.NewWeighted(maxConcurrentProbes)
	var mu sync.Mutex
	var wg sync.WaitGroup
	problematic := make([]ProblematicFilter, 0)

	for _, name := range names {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(filter string) {
			defer wg.Done()
			defer sem.Release(1)

			probe, err := d.backend.GetForecast(ctx, params.WithoutFilter(filter).Values())
			if err != nil {
				slog.Warn("diagnostic probe failed",
					slog.String("filter", filter),
					slog.Any("error", err))
				return
			}
			if probe.Total == 0 {
				return
			}

			mu.Lock()
			problematic = append(problematic, ProblematicFilter{
				Filter:       filter,
				Values:       active[filter],
				RowsWithout:  probe.Total,
				Alternatives: alternativesFromRows(probe.Rows, filter),
			})
			mu.Unlock()
		}(name)
	}
	wg.Wait()

	sort.Slice(problematic, func(i, j int) bool {
		return problematic[i].Filter < problematic[j].Filter
	})
	return problematic
}

// alternativesFromRows collects the distinct values the filter column takes
// in rows that match everything else.
func alternativesFromRows(rows []forecastapi.ForecastRow, filter string) []string {
	seen := map[string]bool{}
	alternatives := make([]string, 0)
	for _, row := range rows {
		value, ok := row[filter].(string)
		if !ok || value == "" || seen[value] {
			continue
		}
		seen[value] = true
		alternatives = append(alternatives, value)
		if len(alternatives) >= maxAlternatives {
			break
		}
	}
	sort.Strings(alternatives)
	return alternatives
}

func deterministicMessage(period string, active map[string][]string, problematic []ProblematicFilter) string {
	if len(problematic) == 0 {
		filters := make([]string, 0, len(active))
		for name := range active {
			filters = append(filters, name)
		}
		sort.Strings(filters)
		return fmt.Sprintf(
			"No rows match this combination of %s for %s. Each filter is valid on its own; together they exclude every row.",
			strings.Join(filters, ", "), period)
	}

	parts := make([]string, 0, len(problematic))
	for _, p := range problematic {
		part := fmt.Sprintf("%s %s", p.Filter, strings.Join(p.Values, ", "))
		if len(p.Alternatives) > 0 {
			part += fmt.Sprintf(" (try: %s)", strings.Join(p.Alternatives, ", "))
		}
		parts = append(parts, part)
	}
	return fmt.Sprintf(
		"No rows match for %s. Removing %s would return data.",
		period, strings.Join(parts, "; "))
}

const explainPrompt = `You explain, in two plain sentences, why a workforce
forecast query returned no rows and what the user can change. Do not invent
values; only use the ones provided.`

// explain asks the model to phrase the diagnostic for the user. Any failure
// returns the deterministic message.
func (d *Diagnostic) explain(ctx context.Context, message string, problematic []ProblematicFilter) string {
	if d.llm == nil || !d.llm.Enabled() {
		return message
	}

	detail := message
	for _, p := range problematic {
		detail += fmt.Sprintf("\nfilter=%s values=%s alternatives=%s",
			p.Filter, strings.Join(p.Values, ","), strings.Join(p.Alternatives, ","))
	}
	resp, err := d.llm.Complete(ctx, []llm.Message{
		llm.System(explainPrompt),
		llm.User(detail),
	})
	if err != nil || strings.TrimSpace(resp) == "" {
		slog.Debug("llm explanation failed, using deterministic message", slog.Any("error", err))
		return message
	}
	return strings.TrimSpace(resp)
}

func periodLabel(month, year string) string {
	if month == "" && year == "" {
		return "the requested period"
	}
	if month == "" {
		return year
	}
	return fmt.Sprintf("%s/%s", month, year)
}
