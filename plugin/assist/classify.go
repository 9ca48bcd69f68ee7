package assist

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/staffsense/staffsense/plugin/assist/llm"
)

// Category is the tool the assistant should use for a turn.
type Category string

const (
	CategoryForecastData Category = "get_forecast_data"
	CategoryListReports  Category = "list_available_reports"
	CategoryFTEDetails   Category = "get_fte_details"
	CategoryModifyCPH    Category = "modify_cph"
	CategoryUnknown      Category = "unknown"
)

// categoryConfidenceThreshold gates execution: below it the assistant asks
// the user to confirm the guessed category instead of acting.
const categoryConfidenceThreshold = 0.7

var validCategories = map[Category]bool{
	CategoryForecastData: true,
	CategoryListReports:  true,
	CategoryFTEDetails:   true,
	CategoryModifyCPH:    true,
}

const classifyPrompt = `You route workforce-forecast chat messages to a tool.
Given the recent conversation and the newest user message, answer with a JSON
object and nothing else:
{"category": "<one of get_forecast_data, list_available_reports, get_fte_details, modify_cph>", "confidence": <0.0-1.0>}

get_forecast_data: the user wants forecast rows for some filters
list_available_reports: the user asks which report periods exist
get_fte_details: the user wants the FTE breakdown of a specific row
modify_cph: the user wants to change a CPH (cases per hour) bench allocation`

type categoryVerdict struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// classifyCategory decides the tool for a turn using the model over the last
// few exchanges, with a keyword heuristic standing in when the model is
// unavailable or answers garbage.
func classifyCategory(ctx context.Context, svc LLMService, message string, history []string) (Category, float64) {
	heuristicCategory, heuristicConfidence := heuristicCategorize(message)

	if svc == nil || !svc.Enabled() {
		return heuristicCategory, heuristicConfidence
	}

	prompt := message
	if len(history) > 0 {
		prompt = "Conversation so far:\n" + strings.Join(history, "\n") + "\n\nNewest message: " + message
	}
	resp, err := svc.CompleteJSON(ctx, []llm.Message{
		llm.System(classifyPrompt),
		llm.User(prompt),
	})
	if err != nil {
		slog.Debug("category classification failed, using heuristic", slog.Any("error", err))
		return heuristicCategory, heuristicConfidence
	}

	var verdict categoryVerdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp)), &verdict); err != nil {
		return heuristicCategory, heuristicConfidence
	}
	category := Category(strings.TrimSpace(verdict.Category))
	if !validCategories[category] || verdict.Confidence <= 0 || verdict.Confidence > 1 {
		return heuristicCategory, heuristicConfidence
	}
	return category, verdict.Confidence
}

// heuristicCategorize is the zero-latency fallback classifier.
func heuristicCategorize(message string) (Category, float64) {
	lower := strings.ToLower(message)

	switch {
	case strings.Contains(lower, "cph") || strings.Contains(lower, "cases per hour"):
		return CategoryModifyCPH, 0.9
	case strings.Contains(lower, "available report") || strings.Contains(lower, "which reports") ||
		strings.Contains(lower, "what reports") || strings.Contains(lower, "list reports"):
		return CategoryListReports, 0.85
	case strings.Contains(lower, "fte") && (strings.Contains(lower, "detail") || strings.Contains(lower, "breakdown")):
		return CategoryFTEDetails, 0.8
	case strings.Contains(lower, "forecast") || strings.Contains(lower, "show") ||
		strings.Contains(lower, "data") || strings.Contains(lower, "fte"):
		return CategoryForecastData, 0.8
	default:
		return CategoryForecastData, 0.5
	}
}
