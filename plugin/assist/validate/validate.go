// Package validate checks extracted filter values against the valid-option
// universe the backend reports for a report period. Near-misses are
// auto-corrected or surfaced for confirmation depending on how close they
// are; validation never blocks a query when the backend is unreachable.
package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/staffsense/staffsense/plugin/assist/fuzzy"
	"github.com/staffsense/staffsense/plugin/assist/query"
	"github.com/staffsense/staffsense/plugin/forecastapi"
	"github.com/staffsense/staffsense/store/cache"
)

// Confidence tiers.
const (
	TierHigh   = "HIGH"   // >= 0.90: auto-correct silently
	TierMedium = "MEDIUM" // [0.60, 0.90): valid, ask before applying
	TierLow    = "LOW"    // < 0.60: reject with suggestions
)

const (
	autoCorrectThreshold = 0.90
	candidateThreshold   = 0.60
	maxSuggestions       = 5

	optionsCacheTTL = 15 * time.Minute
)

// ValidationResult is the verdict for one filter value.
type ValidationResult struct {
	Filter            string   `json:"filter"`
	Value             string   `json:"value"`
	Valid             bool     `json:"valid"`
	Confidence        float64  `json:"confidence"`
	Corrected         string   `json:"corrected,omitempty"`
	Tier              string   `json:"tier"`
	NeedsConfirmation bool     `json:"needs_confirmation"`
	Suggestions       []string `json:"suggestions,omitempty"`
}

// Summary is the outcome of validating a whole parameter bundle.
type Summary struct {
	// Skipped means the option universe was unavailable and validation was
	// bypassed; the query proceeds with the values as given.
	Skipped bool               `json:"skipped"`
	Results []ValidationResult `json:"results,omitempty"`
	// Params is the bundle with exact canonical casing and HIGH-tier
	// corrections applied.
	Params query.ForecastQueryParams `json:"-"`
}

// AllValid reports whether every value validated (possibly corrected).
func (s *Summary) AllValid() bool {
	if s.Skipped {
		return true
	}
	for _, r := range s.Results {
		if !r.Valid {
			return false
		}
	}
	return true
}

// NeedsConfirmation returns the MEDIUM-tier results awaiting the user.
func (s *Summary) NeedsConfirmation() []ValidationResult {
	out := make([]ValidationResult, 0)
	for _, r := range s.Results {
		if r.NeedsConfirmation {
			out = append(out, r)
		}
	}
	return out
}

// Invalid returns the rejected results.
func (s *Summary) Invalid() []ValidationResult {
	out := make([]ValidationResult, 0)
	for _, r := range s.Results {
		if !r.Valid {
			out = append(out, r)
		}
	}
	return out
}

// OptionsFetcher is the backend surface the validator needs.
type OptionsFetcher interface {
	GetFilterOptions(ctx context.Context, month, year string) (*forecastapi.FilterOptions, error)
}

// Validator validates filter bundles against backend option universes.
type Validator struct {
	backend OptionsFetcher
	cache   cache.CacheService
}

// New creates a validator. cache may be nil to disable option caching.
func New(backend OptionsFetcher, cacheService cache.CacheService) *Validator {
	return &Validator{backend: backend, cache: cacheService}
}

// FuzzyMatch validates a single value against a list of valid options.
// An exact case-insensitive match scores 1.0 and returns canonical casing.
func FuzzyMatch(value string, validOptions []string) ValidationResult {
	result := ValidationResult{Value: value}

	for _, opt := range validOptions {
		if strings.EqualFold(strings.TrimSpace(value), strings.TrimSpace(opt)) {
			result.Valid = true
			result.Confidence = 1.0
			result.Corrected = opt
			result.Tier = TierHigh
			return result
		}
	}

	best, bestScore := "", 0.0
	for _, opt := range validOptions {
		if score := fuzzy.Similarity(value, opt); score > bestScore {
			best, bestScore = opt, score
		}
	}

	result.Confidence = bestScore
	switch {
	case bestScore >= autoCorrectThreshold:
		result.Valid = true
		result.Corrected = best
		result.Tier = TierHigh
	case bestScore >= candidateThreshold:
		result.Valid = true
		result.Corrected = best
		result.Tier = TierMedium
		result.NeedsConfirmation = true
	default:
		result.Tier = TierLow
		for _, m := range fuzzy.ClosestMatches(value, validOptions, 0, maxSuggestions) {
			result.Suggestions = append(result.Suggestions, m.Value)
		}
	}
	return result
}

// ValidateAll validates every active filter value in params. When the
// option universe is unreachable the summary is marked skipped and the
// params pass through untouched.
func (v *Validator) ValidateAll(ctx context.Context, params query.ForecastQueryParams) (*Summary, error) {
	summary := &Summary{Params: params}

	options, err := v.filterOptions(ctx, params.Month, params.Year)
	if err != nil {
		slog.Warn("filter options unavailable, skipping validation",
			slog.String("month", params.Month),
			slog.String("year", params.Year),
			slog.Any("error", err))
		summary.Skipped = true
		return summary, nil
	}

	for _, filter := range params.ActiveFilterNames() {
		values := params.ActiveFilters()[filter]
		valid := options.Options(filter)
		corrected := make([]string, 0, len(values))

		for _, value := range values {
			candidate := value
			if filter == "state" {
				candidate, _ = query.NormalizeState(value)
			}
			result := FuzzyMatch(candidate, valid)
			result.Filter = filter
			result.Value = value
			summary.Results = append(summary.Results, result)

			switch {
			case result.Valid && result.Tier == TierHigh:
				corrected = append(corrected, result.Corrected)
			case result.Valid:
				// MEDIUM stays as typed until the user confirms.
				corrected = append(corrected, candidate)
			}
		}
		summary.Params = setFilter(summary.Params, filter, corrected)
	}
	return summary, nil
}

func setFilter(params query.ForecastQueryParams, name string, values []string) query.ForecastQueryParams {
	if len(values) == 0 {
		values = nil
	}
	switch name {
	case "platform":
		params.Platforms = values
	case "market":
		params.Markets = values
	case "locality":
		params.Localities = values
	case "main_lob":
		params.MainLOBs = values
	case "state":
		params.States = values
	case "case_type":
		params.CaseTypes = values
	case "forecast_month":
		params.ForecastMonths = values
	}
	return params
}

// filterOptions returns the option universe for a period, from cache when
// fresh.
func (v *Validator) filterOptions(ctx context.Context, month, year string) (*forecastapi.FilterOptions, error) {
	key := optionsCacheKey(month, year)
	if v.cache != nil {
		if data, ok := v.cache.Get(ctx, key); ok {
			var options forecastapi.FilterOptions
			if err := json.Unmarshal(data, &options); err == nil {
				return &options, nil
			}
		}
	}

	options, err := v.backend.GetFilterOptions(ctx, month, year)
	if err != nil {
		return nil, err
	}

	if v.cache != nil {
		if data, err := json.Marshal(options); err == nil {
			_ = v.cache.Set(ctx, key, data, optionsCacheTTL)
		}
	}
	return options, nil
}

func optionsCacheKey(month, year string) string {
	return fmt.Sprintf("opts:%s-%s", year, month)
}
