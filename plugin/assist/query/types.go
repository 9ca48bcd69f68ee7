// Package query holds the structured representation of a forecast request:
// the entities extracted from a message, the durable conversation context,
// and the immutable parameter bundle sent to the forecasting backend.
package query

import (
	"net/url"
	"sort"
	"strings"
)

// Entities are the filter values extracted from one message. Month is the
// numeric month as a string ("1".."12"), Year a four-digit year string.
type Entities struct {
	Month          string   `json:"month,omitempty"`
	Year           string   `json:"year,omitempty"`
	Platforms      []string `json:"platforms,omitempty"`
	Markets        []string `json:"markets,omitempty"`
	Localities     []string `json:"localities,omitempty"`
	MainLOBs       []string `json:"main_lobs,omitempty"`
	States         []string `json:"states,omitempty"`
	CaseTypes      []string `json:"case_types,omitempty"`
	ForecastMonths []string `json:"forecast_months,omitempty"`
}

// IsEmpty reports whether no entity was extracted at all.
func (e Entities) IsEmpty() bool {
	return e.Month == "" && e.Year == "" &&
		len(e.Platforms) == 0 && len(e.Markets) == 0 && len(e.Localities) == 0 &&
		len(e.MainLOBs) == 0 && len(e.States) == 0 && len(e.CaseTypes) == 0 &&
		len(e.ForecastMonths) == 0
}

// DisplayPrefs carries how the user wants result rows rendered.
type DisplayPrefs struct {
	Format     string `json:"format,omitempty"` // "table" or "summary"
	MaxRows    int    `json:"max_rows,omitempty"`
	ShowTotals bool   `json:"show_totals,omitempty"`
}

// ConversationContext is the durable per-conversation state carried between
// turns. It marshals to JSON losslessly; the store persists it as the
// context_data column.
type ConversationContext struct {
	Month          string            `json:"month,omitempty"`
	Year           string            `json:"year,omitempty"`
	Platforms      []string          `json:"platforms,omitempty"`
	Markets        []string          `json:"markets,omitempty"`
	Localities     []string          `json:"localities,omitempty"`
	MainLOBs       []string          `json:"main_lobs,omitempty"`
	States         []string          `json:"states,omitempty"`
	CaseTypes      []string          `json:"case_types,omitempty"`
	ForecastMonths []string          `json:"forecast_months,omitempty"`
	SelectedRow    map[string]string `json:"selected_row,omitempty"`
	DisplayPrefs   DisplayPrefs      `json:"display_prefs,omitzero"`
	LastIntent     string            `json:"last_intent,omitempty"`
	UpdatedTs      int64             `json:"updated_ts,omitempty"`
}

// Entities returns the context's filter values as an Entities bundle.
func (c *ConversationContext) Entities() Entities {
	if c == nil {
		return Entities{}
	}
	return Entities{
		Month:          c.Month,
		Year:           c.Year,
		Platforms:      c.Platforms,
		Markets:        c.Markets,
		Localities:     c.Localities,
		MainLOBs:       c.MainLOBs,
		States:         c.States,
		CaseTypes:      c.CaseTypes,
		ForecastMonths: c.ForecastMonths,
	}
}

// ForecastQueryParams is the filter bundle for one backend query. Build it
// with BuildQueryParams and treat it as read-only afterwards.
type ForecastQueryParams struct {
	Month          string
	Year           string
	Platforms      []string
	Markets        []string
	Localities     []string
	MainLOBs       []string
	States         []string
	CaseTypes      []string
	ForecastMonths []string
	Display        DisplayPrefs
}

// ActiveFilters returns the non-empty list filters by name, sorted, for
// diagnostics and logging. Month and year are scope, not filters.
func (p ForecastQueryParams) ActiveFilters() map[string][]string {
	filters := map[string][]string{}
	for name, values := range map[string][]string{
		"platform":       p.Platforms,
		"market":         p.Markets,
		"locality":       p.Localities,
		"main_lob":       p.MainLOBs,
		"state":          p.States,
		"case_type":      p.CaseTypes,
		"forecast_month": p.ForecastMonths,
	} {
		if len(values) > 0 {
			filters[name] = values
		}
	}
	return filters
}

// ActiveFilterNames returns the sorted names of active filters.
func (p ForecastQueryParams) ActiveFilterNames() []string {
	names := make([]string, 0)
	for name := range p.ActiveFilters() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithoutFilter returns a copy of p with the named filter cleared.
func (p ForecastQueryParams) WithoutFilter(name string) ForecastQueryParams {
	out := p
	switch name {
	case "platform":
		out.Platforms = nil
	case "market":
		out.Markets = nil
	case "locality":
		out.Localities = nil
	case "main_lob":
		out.MainLOBs = nil
	case "state":
		out.States = nil
	case "case_type":
		out.CaseTypes = nil
	case "forecast_month":
		out.ForecastMonths = nil
	}
	return out
}

// Values renders the params as backend query values. Multi-value filters use
// the backend's "key[]" convention.
func (p ForecastQueryParams) Values() url.Values {
	values := url.Values{}
	if p.Month != "" {
		values.Set("month", p.Month)
	}
	if p.Year != "" {
		values.Set("year", p.Year)
	}
	for name, list := range p.ActiveFilters() {
		key := name + "[]"
		for _, v := range list {
			values.Add(key, v)
		}
	}
	return values
}

// BuildQueryParams merges the turn's resolved entities with the conversation
// context into a query parameter bundle, and returns the context that should
// be persisted after the turn. A non-empty MainLOBs selection overrides the
// narrower platform, market, and locality filters.
func BuildQueryParams(entities Entities, cc *ConversationContext) (ForecastQueryParams, ConversationContext) {
	params := ForecastQueryParams{
		Month:          entities.Month,
		Year:           entities.Year,
		Platforms:      cloneList(entities.Platforms),
		Markets:        cloneList(entities.Markets),
		Localities:     cloneList(entities.Localities),
		MainLOBs:       cloneList(entities.MainLOBs),
		States:         cloneList(entities.States),
		CaseTypes:      cloneList(entities.CaseTypes),
		ForecastMonths: cloneList(entities.ForecastMonths),
	}
	if cc != nil {
		params.Display = cc.DisplayPrefs
	}

	if len(params.MainLOBs) > 0 {
		params.Platforms = nil
		params.Markets = nil
		params.Localities = nil
	}

	update := ConversationContext{
		Month:          params.Month,
		Year:           params.Year,
		Platforms:      params.Platforms,
		Markets:        params.Markets,
		Localities:     params.Localities,
		MainLOBs:       params.MainLOBs,
		States:         params.States,
		CaseTypes:      params.CaseTypes,
		ForecastMonths: params.ForecastMonths,
	}
	if cc != nil {
		update.SelectedRow = cc.SelectedRow
		update.DisplayPrefs = cc.DisplayPrefs
	}
	return params, update
}

func cloneList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// MergeLists unions b into a, preserving order and case-insensitive
// uniqueness.
func MergeLists(a, b []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			key := strings.ToLower(v)
			if !seen[key] {
				seen[key] = true
				out = append(out, v)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// SubtractList removes b's values from a, case-insensitively.
func SubtractList(a, b []string) []string {
	drop := map[string]bool{}
	for _, v := range b {
		drop[strings.ToLower(v)] = true
	}
	out := make([]string, 0, len(a))
	for _, v := range a {
		if !drop[strings.ToLower(v)] {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
