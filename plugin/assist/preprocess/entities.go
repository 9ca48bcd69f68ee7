package preprocess

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/staffsense/staffsense/plugin/assist/llm"
	"github.com/staffsense/staffsense/plugin/assist/query"
)

var monthNumbers = map[string]string{
	"january": "1", "jan": "1",
	"february": "2", "feb": "2",
	"march": "3", "mar": "3",
	"april": "4", "apr": "4",
	"may": "5",
	"june": "6", "jun": "6",
	"july": "7", "jul": "7",
	"august": "8", "aug": "8",
	"september": "9", "sep": "9", "sept": "9",
	"october": "10", "oct": "10",
	"november": "11", "nov": "11",
	"december": "12", "dec": "12",
}

var monthAbbrevs = map[string]bool{
	"Jan": true, "Feb": true, "Mar": true, "Apr": true, "May": true, "Jun": true,
	"Jul": true, "Aug": true, "Sep": true, "Oct": true, "Nov": true, "Dec": true,
}

var (
	monthNameRe     = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec)\b`)
	yearRe          = regexp.MustCompile(`\b(\d{4})\b`)
	monthSlashRe    = regexp.MustCompile(`\b(0?[1-9]|1[0-2])\s*/\s*(\d{4})\b`)
	forecastMonthRe = regexp.MustCompile(`\b([A-Z][a-z]{2})-(\d{2})\b`)
	stateCodeRe     = regexp.MustCompile(`\b([A-Z]{2})\b`)
)

// extractEntities pulls filter values out of the corrected message text with
// regular expressions and vocabulary lookups.
func extractEntities(text string) query.Entities {
	entities := query.Entities{}
	lower := strings.ToLower(text)

	for _, m := range forecastMonthRe.FindAllStringSubmatch(text, -1) {
		if monthAbbrevs[m[1]] {
			entities.ForecastMonths = append(entities.ForecastMonths, m[0])
		}
	}

	// Forecast-month columns like "Apr-25" would otherwise read as a report
	// month, so period extraction runs on text with them removed.
	periodText := forecastMonthRe.ReplaceAllString(text, " ")

	if m := monthSlashRe.FindStringSubmatch(periodText); m != nil {
		entities.Month = strings.TrimPrefix(m[1], "0")
		entities.Year = m[2]
	}
	if entities.Month == "" {
		if m := monthNameRe.FindStringSubmatch(periodText); m != nil {
			entities.Month = monthNumbers[strings.ToLower(m[1])]
		}
	}
	if entities.Year == "" {
		for _, m := range yearRe.FindAllStringSubmatch(periodText, -1) {
			if validYear(m[1]) {
				entities.Year = m[1]
				break
			}
		}
	}

	entities.Platforms = vocabHits(lower, query.Platforms)
	entities.CaseTypes = vocabHits(lower, query.CaseTypes)
	entities.MainLOBs = vocabHits(lower, query.MainLOBs)

	// Full state names first, then standalone uppercase codes. Codes are
	// only trusted as-typed uppercase so words like "in" or "or" don't match.
	for _, name := range query.StateNames() {
		if containsWord(lower, name) {
			code, _ := query.NormalizeState(name)
			entities.States = append(entities.States, code)
		}
	}
	for _, m := range stateCodeRe.FindAllStringSubmatch(text, -1) {
		if monthAbbrevs[m[1]] {
			continue
		}
		if code, ok := query.NormalizeState(m[1]); ok {
			entities.States = append(entities.States, code)
		}
	}
	entities.States = query.MergeLists(entities.States, nil)

	return entities
}

func vocabHits(lower string, vocab []string) []string {
	hits := make([]string, 0)
	for _, term := range vocab {
		if containsWord(lower, strings.ToLower(term)) {
			hits = append(hits, term)
		}
	}
	if len(hits) == 0 {
		return nil
	}
	return hits
}

// containsWord reports a whole-word (or whole-phrase) match.
func containsWord(haystack, needle string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], needle)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(needle)
		beforeOK := start == 0 || !isWordChar(haystack[start-1])
		afterOK := end == len(haystack) || !isWordChar(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func validYear(s string) bool {
	year, err := strconv.Atoi(s)
	return err == nil && year >= 2020 && year <= 2100
}

func validMonth(s string) bool {
	month, err := strconv.Atoi(s)
	return err == nil && month >= 1 && month <= 12
}

// validateEntities drops out-of-range values and normalizes state codes.
func validateEntities(entities query.Entities) query.Entities {
	if entities.Month != "" && !validMonth(entities.Month) {
		entities.Month = ""
	}
	if entities.Year != "" && !validYear(entities.Year) {
		entities.Year = ""
	}
	states := make([]string, 0, len(entities.States))
	for _, s := range entities.States {
		if code, ok := query.NormalizeState(s); ok {
			states = append(states, code)
		}
	}
	if len(states) == 0 {
		entities.States = nil
	} else {
		entities.States = query.MergeLists(states, nil)
	}
	return entities
}

const extractPrompt = `Extract workforce-forecast filters from the user message.
Tag each value you find, one tag per value, nothing else:
<month>3</month> (numeric 1-12)
<year>2025</year>
<platform>Amisys</platform>
<market>North</market>
<locality>Onshore</locality>
<main_lob>Medicaid</main_lob>
<state>TX</state> (2-letter code)
<case_type>Claims</case_type>
<forecast_month>Apr-25</forecast_month>
If a category is absent, omit its tag.`

var llmTagRes = map[string]*regexp.Regexp{
	"month":          regexp.MustCompile(`<month>\s*([^<]+?)\s*</month>`),
	"year":           regexp.MustCompile(`<year>\s*([^<]+?)\s*</year>`),
	"platform":       regexp.MustCompile(`<platform>\s*([^<]+?)\s*</platform>`),
	"market":         regexp.MustCompile(`<market>\s*([^<]+?)\s*</market>`),
	"locality":       regexp.MustCompile(`<locality>\s*([^<]+?)\s*</locality>`),
	"main_lob":       regexp.MustCompile(`<main_lob>\s*([^<]+?)\s*</main_lob>`),
	"state":          regexp.MustCompile(`<state>\s*([^<]+?)\s*</state>`),
	"case_type":      regexp.MustCompile(`<case_type>\s*([^<]+?)\s*</case_type>`),
	"forecast_month": regexp.MustCompile(`<forecast_month>\s*([^<]+?)\s*</forecast_month>`),
}

// extractWithLLM asks the model for tagged entities and merges them over the
// regex result: LLM scalars win when present, LLM lists replace non-empty.
// Any failure keeps the regex result.
func extractWithLLM(ctx context.Context, svc LLMService, message string, regexEntities query.Entities) query.Entities {
	if svc == nil || !svc.Enabled() {
		return regexEntities
	}

	resp, err := svc.Complete(ctx, []llm.Message{
		llm.System(extractPrompt),
		llm.User(message),
	})
	if err != nil {
		slog.Debug("llm entity extraction failed, keeping regex result", slog.Any("error", err))
		return regexEntities
	}

	tagged := parseTaggedEntities(resp)
	return mergeEntities(regexEntities, tagged)
}

func parseTaggedEntities(resp string) query.Entities {
	values := func(tag string) []string {
		out := make([]string, 0)
		for _, m := range llmTagRes[tag].FindAllStringSubmatch(resp, -1) {
			out = append(out, m[1])
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	first := func(tag string) string {
		if v := values(tag); len(v) > 0 {
			return v[0]
		}
		return ""
	}

	return query.Entities{
		Month:          first("month"),
		Year:           first("year"),
		Platforms:      values("platform"),
		Markets:        values("market"),
		Localities:     values("locality"),
		MainLOBs:       values("main_lob"),
		States:         values("state"),
		CaseTypes:      values("case_type"),
		ForecastMonths: values("forecast_month"),
	}
}

// mergeEntities overlays llm onto base with LLM priority.
func mergeEntities(base, llm query.Entities) query.Entities {
	out := base
	if llm.Month != "" {
		out.Month = llm.Month
	}
	if llm.Year != "" {
		out.Year = llm.Year
	}
	if len(llm.Platforms) > 0 {
		out.Platforms = llm.Platforms
	}
	if len(llm.Markets) > 0 {
		out.Markets = llm.Markets
	}
	if len(llm.Localities) > 0 {
		out.Localities = llm.Localities
	}
	if len(llm.MainLOBs) > 0 {
		out.MainLOBs = llm.MainLOBs
	}
	if len(llm.States) > 0 {
		out.States = llm.States
	}
	if len(llm.CaseTypes) > 0 {
		out.CaseTypes = llm.CaseTypes
	}
	if len(llm.ForecastMonths) > 0 {
		out.ForecastMonths = llm.ForecastMonths
	}
	return out
}
