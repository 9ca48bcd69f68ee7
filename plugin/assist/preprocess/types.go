// Package preprocess turns a raw chat message into a structured,
// context-resolved request: normalization, domain spell correction, intent
// detection (rules first, LLM fallback), entity extraction, and merging with
// the stored conversation context.
package preprocess

import (
	"context"

	"github.com/staffsense/staffsense/plugin/assist/llm"
	"github.com/staffsense/staffsense/plugin/assist/query"
)

// Intent is what the user wants done with the active filter set.
type Intent string

const (
	// IntentExtend adds the message's filters to the context's.
	IntentExtend Intent = "extend"
	// IntentRemove subtracts the message's filters from the context's.
	IntentRemove Intent = "remove"
	// IntentReplace discards the context and uses the message's filters only.
	IntentReplace Intent = "replace"
	// IntentReset clears all filters.
	IntentReset Intent = "reset"
	// IntentUseContext re-runs with the stored context, message values first.
	IntentUseContext Intent = "use_context"
	// IntentQueryData is a plain data request.
	IntentQueryData Intent = "query_data"
	// IntentUnknown means no rule or model could tell.
	IntentUnknown Intent = "unknown"
)

// Correction records one spell correction applied to the message.
type Correction struct {
	Original  string  `json:"original"`
	Corrected string  `json:"corrected"`
	Score     float64 `json:"score"`
}

// PreprocessedMessage is the result of the per-turn pipeline.
type PreprocessedMessage struct {
	Original         string
	Normalized       string
	Corrected        string
	Intent           Intent
	IntentConfidence float64
	Entities         query.Entities
	Resolved         query.Entities
	Corrections      []Correction
	UseContext       bool
	Confidence       float64
}

// LLMService is the completion surface the preprocessor falls back to for
// intent classification and entity extraction. All LLM failures degrade to
// the rule-based result.
type LLMService interface {
	Enabled() bool
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}
