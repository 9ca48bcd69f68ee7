package preprocess

import (
	"context"
	"log/slog"
	"strings"

	"github.com/staffsense/staffsense/plugin/assist/llm"
)

// intentMatcher is the rule layer of intent detection. It handles the bulk
// of traffic with zero latency; the LLM only sees what the rules cannot.
type intentMatcher struct {
	resetKeywords      map[string]int
	removeKeywords     map[string]int
	extendKeywords     map[string]int
	replaceKeywords    map[string]int
	useContextKeywords map[string]int
	queryKeywords      map[string]int
}

func newIntentMatcher() *intentMatcher {
	return &intentMatcher{
		resetKeywords: map[string]int{
			"reset": 3, "start over": 3, "start fresh": 3,
			"clear filters": 3, "clear all": 3, "new search": 2,
		},
		removeKeywords: map[string]int{
			"remove": 3, "drop": 2, "exclude": 3, "without": 2,
			"take out": 3, "get rid of": 3, "except": 2,
		},
		extendKeywords: map[string]int{
			"also include": 3, "also add": 3, "add": 2, "include": 2,
			"as well": 2, "in addition": 3, "and also": 2, "plus": 1,
		},
		replaceKeywords: map[string]int{
			"instead": 3, "change to": 3, "switch to": 3,
			"replace": 3, "change it to": 3, "make it": 2,
		},
		useContextKeywords: map[string]int{
			"same": 2, "that again": 3, "those": 1, "previous": 2,
			"last time": 2, "again": 1, "like before": 3,
		},
		queryKeywords: map[string]int{
			"show": 2, "display": 2, "get": 1, "give me": 2,
			"what is": 2, "what are": 2, "how many": 2,
			"forecast": 2, "fte": 2, "data": 1, "report": 1,
			"list": 2, "available": 1, "cph": 2,
		},
	}
}

// match scores the message against each intent's keywords. It reports
// matched=false when nothing scores high enough for a confident call.
func (m *intentMatcher) match(input string) (Intent, float64, bool) {
	lower := strings.ToLower(input)

	scores := []struct {
		intent Intent
		score  int
		norm   int
	}{
		{IntentReset, keywordScore(lower, m.resetKeywords), 3},
		{IntentRemove, keywordScore(lower, m.removeKeywords), 3},
		{IntentReplace, keywordScore(lower, m.replaceKeywords), 3},
		{IntentExtend, keywordScore(lower, m.extendKeywords), 3},
		{IntentUseContext, keywordScore(lower, m.useContextKeywords), 3},
	}

	// Modifier intents win over a plain query when both appear: "also show
	// Texas" is an extend, not a fresh query.
	best := struct {
		intent Intent
		score  int
		norm   int
	}{IntentUnknown, 0, 1}
	for _, s := range scores {
		if s.score > best.score {
			best = s
		}
	}
	if best.score >= 2 {
		return best.intent, normalizeConfidence(best.score, best.norm), true
	}

	if queryScore := keywordScore(lower, m.queryKeywords); queryScore >= 2 {
		return IntentQueryData, normalizeConfidence(queryScore, 4), true
	}

	return IntentUnknown, 0, false
}

func keywordScore(input string, keywords map[string]int) int {
	score := 0
	for keyword, weight := range keywords {
		if strings.Contains(input, keyword) {
			score += weight
		}
	}
	return score
}

// normalizeConfidence maps a raw score to [0.5, 0.95].
func normalizeConfidence(score, maxScore int) float64 {
	confidence := 0.5 + float64(score)/float64(maxScore)*0.45
	if confidence > 0.95 {
		confidence = 0.95
	}
	return confidence
}

const intentClassifyPrompt = `You classify workforce-forecast chat messages.
Reply with exactly one word from this list:
extend, remove, replace, reset, use_context, query_data, unknown.

extend: add filters to the current ones
remove: take filters away from the current ones
replace: use only the new filters
reset: clear everything and start over
use_context: rerun using the previous filters
query_data: a plain request for forecast data
unknown: none of the above`

var validIntents = map[Intent]bool{
	IntentExtend: true, IntentRemove: true, IntentReplace: true,
	IntentReset: true, IntentUseContext: true, IntentQueryData: true,
	IntentUnknown: true,
}

// classifyWithLLM asks the model for an intent. Any failure returns the
// rule-layer result unchanged.
func classifyWithLLM(ctx context.Context, svc LLMService, message string, ruleIntent Intent, ruleConfidence float64) (Intent, float64) {
	if svc == nil || !svc.Enabled() {
		return ruleIntent, ruleConfidence
	}

	resp, err := svc.Complete(ctx, []llm.Message{
		llm.System(intentClassifyPrompt),
		llm.User(message),
	})
	if err != nil {
		slog.Debug("llm intent classification failed, keeping rule result",
			slog.String("rule_intent", string(ruleIntent)),
			slog.Any("error", err))
		return ruleIntent, ruleConfidence
	}

	candidate := Intent(strings.ToLower(strings.TrimSpace(resp)))
	if !validIntents[candidate] || candidate == IntentUnknown {
		return ruleIntent, ruleConfidence
	}
	return candidate, 0.8
}
