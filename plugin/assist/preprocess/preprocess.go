package preprocess

import (
	"context"
	"strings"

	"github.com/staffsense/staffsense/plugin/assist/fuzzy"
	"github.com/staffsense/staffsense/plugin/assist/query"
)

// spellCorrectionCutoff is the minimum similarity before a token is rewritten
// to a vocabulary term.
const spellCorrectionCutoff = 0.85

// contextReferenceWords signal the user means the previously used filters.
var contextReferenceWords = []string{"same", "that", "those", "also", "previous", "again"}

// preserveWords are query-language words that must never be "corrected"
// toward vocabulary terms ("market" is not a typo of "Marketplace").
var preserveWords = map[string]bool{
	"market": true, "markets": true, "state": true, "states": true,
	"platform": true, "platforms": true, "locality": true, "localities": true,
	"case": true, "cases": true, "type": true, "types": true,
	"month": true, "months": true, "year": true, "years": true,
	"data": true, "forecast": true, "report": true, "reports": true,
	"show": true, "display": true, "list": true, "available": true,
}

// Preprocessor runs the per-turn message pipeline.
type Preprocessor struct {
	matcher *intentMatcher
	llm     LLMService
	vocab   []string
}

// New creates a preprocessor. llm may be nil; the rule layer then stands
// alone.
func New(llm LLMService) *Preprocessor {
	return &Preprocessor{
		matcher: newIntentMatcher(),
		llm:     llm,
		vocab:   buildCorrectionVocab(),
	}
}

// buildCorrectionVocab collects single-word domain terms worth correcting
// toward. Multi-word terms are matched whole by the extractor instead.
func buildCorrectionVocab() []string {
	vocab := make([]string, 0, 128)
	add := func(terms ...string) {
		for _, term := range terms {
			for _, word := range strings.Fields(term) {
				if len(word) >= 4 {
					vocab = append(vocab, word)
				}
			}
		}
	}
	add(query.Platforms...)
	add(query.CaseTypes...)
	add(query.MainLOBs...)
	add(query.StateNames()...)
	for name := range monthNumbers {
		if len(name) >= 4 {
			vocab = append(vocab, name)
		}
	}
	return vocab
}

// Process runs the full pipeline for one message against the stored
// conversation context (nil for a fresh conversation).
func (p *Preprocessor) Process(ctx context.Context, text string, cc *query.ConversationContext) *PreprocessedMessage {
	msg := &PreprocessedMessage{Original: text}

	msg.Normalized = normalize(text)
	msg.Corrected, msg.Corrections = p.spellCorrect(msg.Normalized)

	intent, confidence, matched := p.matcher.match(msg.Corrected)
	if !matched {
		intent, confidence = classifyWithLLM(ctx, p.llm, msg.Corrected, intent, confidence)
	}
	msg.Intent = intent
	msg.IntentConfidence = confidence

	entities := extractEntities(msg.Corrected)
	entities = extractWithLLM(ctx, p.llm, msg.Corrected, entities)
	msg.Entities = validateEntities(entities)

	msg.UseContext = detectImplicitContext(msg.Corrected, msg.Intent)
	if msg.UseContext && msg.Intent == IntentUnknown {
		msg.Intent = IntentUseContext
	}

	msg.Resolved = resolveWithContext(msg.Intent, msg.Entities, cc)
	msg.Confidence = confidenceScore(msg.Resolved)
	return msg
}

// normalize collapses runs of whitespace and trims the message.
func normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// spellCorrect rewrites tokens that are near-misses of domain vocabulary.
func (p *Preprocessor) spellCorrect(text string) (string, []Correction) {
	tokens := strings.Fields(text)
	corrections := make([]Correction, 0)

	for i, token := range tokens {
		word := strings.Trim(token, ".,;:!?\"'()")
		if len(word) < 4 || !isAlphabetic(word) || preserveWords[strings.ToLower(word)] {
			continue
		}
		best, score := p.closestVocabTerm(word)
		if best == "" || score < spellCorrectionCutoff {
			continue
		}
		if strings.EqualFold(word, best) {
			continue
		}
		tokens[i] = strings.Replace(token, word, matchCase(word, best), 1)
		corrections = append(corrections, Correction{Original: word, Corrected: best, Score: score})
	}
	if len(corrections) == 0 {
		return text, nil
	}
	return strings.Join(tokens, " "), corrections
}

func (p *Preprocessor) closestVocabTerm(word string) (string, float64) {
	best, bestScore := "", 0.0
	for _, term := range p.vocab {
		if score := fuzzy.Similarity(word, term); score > bestScore {
			best, bestScore = term, score
		}
	}
	return best, bestScore
}

// matchCase keeps the original token's leading capitalization.
func matchCase(original, corrected string) string {
	if original == "" || corrected == "" {
		return corrected
	}
	if original[0] >= 'A' && original[0] <= 'Z' {
		return strings.ToUpper(corrected[:1]) + corrected[1:]
	}
	return corrected
}

func isAlphabetic(word string) bool {
	for _, r := range word {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// detectImplicitContext reports whether the message leans on earlier turns.
func detectImplicitContext(text string, intent Intent) bool {
	if intent == IntentExtend || intent == IntentRemove || intent == IntentUseContext {
		return true
	}
	lower := strings.ToLower(text)
	for _, word := range contextReferenceWords {
		if containsWord(lower, word) {
			return true
		}
	}
	return false
}

// resolveWithContext merges the message's entities with the stored context
// according to the detected intent.
func resolveWithContext(intent Intent, entities query.Entities, cc *query.ConversationContext) query.Entities {
	ctxEntities := cc.Entities()

	switch intent {
	case IntentExtend:
		return query.Entities{
			Month:          firstNonEmpty(entities.Month, ctxEntities.Month),
			Year:           firstNonEmpty(entities.Year, ctxEntities.Year),
			Platforms:      query.MergeLists(ctxEntities.Platforms, entities.Platforms),
			Markets:        query.MergeLists(ctxEntities.Markets, entities.Markets),
			Localities:     query.MergeLists(ctxEntities.Localities, entities.Localities),
			MainLOBs:       query.MergeLists(ctxEntities.MainLOBs, entities.MainLOBs),
			States:         query.MergeLists(ctxEntities.States, entities.States),
			CaseTypes:      query.MergeLists(ctxEntities.CaseTypes, entities.CaseTypes),
			ForecastMonths: query.MergeLists(ctxEntities.ForecastMonths, entities.ForecastMonths),
		}
	case IntentRemove:
		return query.Entities{
			Month:          ctxEntities.Month,
			Year:           ctxEntities.Year,
			Platforms:      query.SubtractList(ctxEntities.Platforms, entities.Platforms),
			Markets:        query.SubtractList(ctxEntities.Markets, entities.Markets),
			Localities:     query.SubtractList(ctxEntities.Localities, entities.Localities),
			MainLOBs:       query.SubtractList(ctxEntities.MainLOBs, entities.MainLOBs),
			States:         query.SubtractList(ctxEntities.States, entities.States),
			CaseTypes:      query.SubtractList(ctxEntities.CaseTypes, entities.CaseTypes),
			ForecastMonths: query.SubtractList(ctxEntities.ForecastMonths, entities.ForecastMonths),
		}
	case IntentReset:
		return query.Entities{}
	case IntentQueryData, IntentUseContext:
		return query.Entities{
			Month:          firstNonEmpty(entities.Month, ctxEntities.Month),
			Year:           firstNonEmpty(entities.Year, ctxEntities.Year),
			Platforms:      firstNonEmptyList(entities.Platforms, ctxEntities.Platforms),
			Markets:        firstNonEmptyList(entities.Markets, ctxEntities.Markets),
			Localities:     firstNonEmptyList(entities.Localities, ctxEntities.Localities),
			MainLOBs:       firstNonEmptyList(entities.MainLOBs, ctxEntities.MainLOBs),
			States:         firstNonEmptyList(entities.States, ctxEntities.States),
			CaseTypes:      firstNonEmptyList(entities.CaseTypes, ctxEntities.CaseTypes),
			ForecastMonths: firstNonEmptyList(entities.ForecastMonths, ctxEntities.ForecastMonths),
		}
	default: // replace, unknown
		return entities
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func firstNonEmptyList(a, b []string) []string {
	if len(a) > 0 {
		return a
	}
	return b
}

// confidenceScore grades how complete the resolved request is.
func confidenceScore(resolved query.Entities) float64 {
	hasFilter := len(resolved.Platforms) > 0 || len(resolved.Markets) > 0 ||
		len(resolved.Localities) > 0 || len(resolved.MainLOBs) > 0 ||
		len(resolved.States) > 0 || len(resolved.CaseTypes) > 0 ||
		len(resolved.ForecastMonths) > 0

	switch {
	case resolved.Month != "" && resolved.Year != "" && hasFilter:
		return 0.95
	case resolved.Month != "" && resolved.Year != "":
		return 0.85
	case !resolved.IsEmpty():
		return 0.70
	default:
		return 0.40
	}
}
