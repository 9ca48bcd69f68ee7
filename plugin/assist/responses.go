package assist

import (
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/staffsense/staffsense/internal/errors"
	"github.com/staffsense/staffsense/plugin/assist/diagnose"
	"github.com/staffsense/staffsense/plugin/assist/genui"
	"github.com/staffsense/staffsense/plugin/assist/query"
	"github.com/staffsense/staffsense/plugin/assist/validate"
	"github.com/staffsense/staffsense/plugin/forecastapi"
)

func textResponse(text string) *genui.Response {
	return &genui.Response{
		Text:       text,
		HTML:       genui.RenderMarkdown(text),
		Components: []genui.UIComponent{*genui.NewText(text)},
	}
}

// userFacingMessage maps error codes to messages safe to show.
func userFacingMessage(err error) string {
	switch apperrors.GetCodeFromError(err, apperrors.ErrCodeInvalidArgument) {
	case apperrors.ErrCodeBackendUnavailable:
		return "The forecasting service is not reachable right now. Please try again in a moment."
	case apperrors.ErrCodeBackendRejected:
		return "The forecasting service rejected the request. Check your filters and try again."
	case apperrors.ErrCodeLLMUnavailable:
		return "The assistant's language model is unavailable, so I answered with reduced smarts. Please retry if something looks off."
	case apperrors.ErrCodeRateLimitExceeded:
		return "You are sending messages too quickly. Give it a few seconds."
	case apperrors.ErrCodeTimeout:
		return "That took too long and was cancelled. Try a narrower query."
	default:
		return "Something went wrong handling that request. Please try again."
	}
}

func errorResponse(err error) *genui.Response {
	return &genui.Response{
		Components: []genui.UIComponent{*genui.NewErrorAlert(userFacingMessage(err))},
	}
}

// clarificationResponse asks the user to confirm a low-confidence category
// guess.
func clarificationResponse(category Category) *genui.Response {
	label := map[Category]string{
		CategoryForecastData: "look up forecast data",
		CategoryListReports:  "list the available report periods",
		CategoryFTEDetails:   "show FTE details",
		CategoryModifyCPH:    "update a CPH bench allocation",
	}[category]
	if label == "" {
		label = "look up forecast data"
	}

	message := fmt.Sprintf("I think you want me to %s, but I'm not sure.", label)
	return &genui.Response{
		Text: message,
		Components: []genui.UIComponent{*genui.NewConfirmDialog(
			"Did I get that right?",
			message,
			map[string]string{"category": string(category)},
		)},
	}
}

// invalidFilterResponse rejects a query whose values matched nothing.
func invalidFilterResponse(invalid []validate.ValidationResult) *genui.Response {
	components := make([]genui.UIComponent, 0, len(invalid)*2)
	var lines []string
	for _, r := range invalid {
		line := fmt.Sprintf("%q is not a valid %s.", r.Value, strings.ReplaceAll(r.Filter, "_", " "))
		lines = append(lines, line)
		components = append(components, *genui.NewErrorAlert(line))
		if len(r.Suggestions) > 0 {
			components = append(components, *genui.NewSuggestions("Did you mean one of these?", r.Suggestions))
		}
	}
	return &genui.Response{
		Text:       strings.Join(lines, " "),
		Components: components,
	}
}

// correctionConfirmResponse surfaces MEDIUM-tier corrections for approval.
func correctionConfirmResponse(pending []validate.ValidationResult) *genui.Response {
	components := make([]genui.UIComponent, 0, len(pending))
	var lines []string
	for _, r := range pending {
		line := fmt.Sprintf("Did you mean %q instead of %q for %s?",
			r.Corrected, r.Value, strings.ReplaceAll(r.Filter, "_", " "))
		lines = append(lines, line)
		components = append(components, *genui.NewConfirmDialog(
			"Confirm correction",
			line,
			map[string]string{"filter": r.Filter, "value": r.Value, "corrected": r.Corrected},
		))
	}
	return &genui.Response{
		Text:       strings.Join(lines, " "),
		Components: components,
	}
}

// diagnosticResponse renders a zero-result explanation with suggestions.
func diagnosticResponse(result *diagnose.Result) *genui.Response {
	message := result.Explanation
	if message == "" {
		message = result.Message
	}

	components := []genui.UIComponent{*genui.NewText(message)}
	for _, p := range result.Problematic {
		if len(p.Alternatives) > 0 {
			title := fmt.Sprintf("Values that would work for %s", strings.ReplaceAll(p.Filter, "_", " "))
			components = append(components, *genui.NewSuggestions(title, p.Alternatives))
		}
	}
	return &genui.Response{
		Text:       message,
		HTML:       genui.RenderMarkdown(message),
		Components: components,
	}
}

// forecastResponse renders query rows as a table with a summary line.
func forecastResponse(result *forecastapi.ForecastResult, params query.ForecastQueryParams, detailed bool) *genui.Response {
	summary := fmt.Sprintf("Found %d row(s) for %s/%s", result.Total, params.Month, params.Year)
	if filters := describeFilters(params); filters != "" {
		summary += " with " + filters
	}
	summary += "."
	if detailed {
		summary = "FTE details: " + summary
	}

	return &genui.Response{
		Text: summary,
		HTML: genui.RenderMarkdown(summary),
		Components: []genui.UIComponent{
			*genui.NewText(summary),
			*genui.NewForecastTable(result),
		},
	}
}

func describeFilters(params query.ForecastQueryParams) string {
	active := params.ActiveFilters()
	if len(active) == 0 {
		return ""
	}
	names := make([]string, 0, len(active))
	for name := range active {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s %s",
			strings.ReplaceAll(name, "_", " "), strings.Join(active[name], ", ")))
	}
	return strings.Join(parts, ", ")
}
