// Package sanitize cleans raw chat input before it reaches the pipeline or
// an LLM prompt. Suspicious fragments are neutralized rather than rejected:
// the user still gets an answer, the threat categories travel in metadata
// for logging.
package sanitize

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxInputLength bounds a single chat message in runes.
const MaxInputLength = 2000

// Threat categories recorded in Metadata.Threats.
const (
	ThreatPromptInjection = "prompt_injection"
	ThreatSQLInjection    = "sql_injection"
	ThreatHTMLInjection   = "html_script_injection"
)

// Metadata describes what Sanitize did to the input.
type Metadata struct {
	Truncated bool     `json:"truncated"`
	Threats   []string `json:"threats,omitempty"`
}

type threatFamily struct {
	category string
	patterns []*regexp.Regexp
}

var threatFamilies = []threatFamily{
	{
		category: ThreatPromptInjection,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?)`),
			regexp.MustCompile(`(?i)disregard\s+(all\s+|prior\s+|previous\s+)?(instructions?|prompts?)`),
			regexp.MustCompile(`(?i)you\s+are\s+now\s+`),
			regexp.MustCompile(`(?i)system\s+prompt`),
			regexp.MustCompile(`(?i)forget\s+(everything|all)\s+(above|before)`),
		},
	},
	{
		category: ThreatSQLInjection,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)'\s*or\s+\d+\s*=\s*\d+`),
			regexp.MustCompile(`(?i);\s*drop\s+table`),
			regexp.MustCompile(`(?i)union\s+select`),
			regexp.MustCompile(`(?i);\s*delete\s+from`),
			regexp.MustCompile(`--\s*$`),
		},
	},
	{
		category: ThreatHTMLInjection,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)<\s*script[^>]*>`),
			regexp.MustCompile(`(?i)</\s*script\s*>`),
			regexp.MustCompile(`(?i)<\s*iframe[^>]*>`),
			regexp.MustCompile(`(?i)javascript\s*:`),
			regexp.MustCompile(`(?i)\bon\w+\s*=`),
		},
	},
}

// Sanitize cleans text and reports what was removed. Sanitizing already
// clean text is a no-op, so running it twice yields identical output.
func Sanitize(text string) (string, Metadata) {
	meta := Metadata{}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", meta
	}

	if runes := []rune(text); len(runes) > MaxInputLength {
		text = string(runes[:MaxInputLength])
		meta.Truncated = true
	}

	text = stripControlChars(text)

	for _, family := range threatFamilies {
		hit := false
		for _, pattern := range family.patterns {
			if pattern.MatchString(text) {
				text = pattern.ReplaceAllString(text, " ")
				hit = true
			}
		}
		if hit {
			meta.Threats = append(meta.Threats, family.category)
		}
	}

	// Neutralization can leave runs of spaces behind.
	text = strings.Join(strings.Fields(text), " ")
	return text, meta
}

// stripControlChars removes ASCII control characters except newline and tab.
func stripControlChars(text string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, text)
}

// FormatForLLM builds the prompt block handed to the model. The context line
// is omitted when there is no conversation context to carry.
func FormatForLLM(text, context string) string {
	if strings.TrimSpace(context) == "" {
		return fmt.Sprintf("User query: %s", text)
	}
	return fmt.Sprintf("Context: %s\nUser query: %s", context, text)
}
