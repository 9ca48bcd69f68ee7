package preprocess

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staffsense/staffsense/plugin/assist/llm"
	"github.com/staffsense/staffsense/plugin/assist/query"
)

// mockLLM returns a canned response or error.
type mockLLM struct {
	response string
	err      error
	enabled  bool
	calls    int
}

func (m *mockLLM) Enabled() bool { return m.enabled }

func (m *mockLLM) Complete(_ context.Context, _ []llm.Message) (string, error) {
	m.calls++
	return m.response, m.err
}

func TestProcessForecastQuery(t *testing.T) {
	p := New(nil)
	msg := p.Process(context.Background(), "Show me forecast data for March 2025", nil)

	assert.Equal(t, IntentQueryData, msg.Intent)
	assert.Equal(t, "3", msg.Resolved.Month)
	assert.Equal(t, "2025", msg.Resolved.Year)
	assert.GreaterOrEqual(t, msg.Confidence, 0.85)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "show me data", normalize("  show \t me\n\n data  "))
}

func TestSpellCorrection(t *testing.T) {
	p := New(nil)
	msg := p.Process(context.Background(), "Show Amysis forecast for March 2025", nil)

	require.NotEmpty(t, msg.Corrections)
	assert.Equal(t, "Amysis", msg.Corrections[0].Original)
	assert.Equal(t, "Amisys", msg.Corrections[0].Corrected)
	assert.GreaterOrEqual(t, msg.Corrections[0].Score, 0.85)
	assert.Contains(t, msg.Corrected, "Amisys")
	assert.Equal(t, []string{"Amisys"}, msg.Resolved.Platforms)
}

func TestSpellCorrectionPreservesQueryWords(t *testing.T) {
	p := New(nil)
	msg := p.Process(context.Background(), "show market data for March 2025", nil)
	assert.Empty(t, msg.Corrections)
	assert.Empty(t, msg.Resolved.MainLOBs)
}

func TestIntentRules(t *testing.T) {
	p := New(nil)
	tests := []struct {
		message string
		want    Intent
	}{
		{"Show me forecast data for March 2025", IntentQueryData},
		{"also include Texas", IntentExtend},
		{"remove Facets from the filters", IntentRemove},
		{"reset and start over", IntentReset},
		{"switch to Medicare instead", IntentReplace},
	}
	for _, tt := range tests {
		msg := p.Process(context.Background(), tt.message, nil)
		assert.Equal(t, tt.want, msg.Intent, tt.message)
	}
}

func TestIntentLLMFallback(t *testing.T) {
	t.Run("llm fills in when rules miss", func(t *testing.T) {
		svc := &mockLLM{enabled: true, response: "query_data"}
		p := New(svc)
		msg := p.Process(context.Background(), "hmm Colorado numbers maybe", nil)
		assert.Equal(t, IntentQueryData, msg.Intent)
	})

	t.Run("llm error keeps rule result", func(t *testing.T) {
		svc := &mockLLM{enabled: true, err: errors.New("boom")}
		p := New(svc)
		msg := p.Process(context.Background(), "hmm Colorado numbers maybe", nil)
		assert.Equal(t, IntentUnknown, msg.Intent)
	})

	t.Run("llm garbage keeps rule result", func(t *testing.T) {
		svc := &mockLLM{enabled: true, response: "banana"}
		p := New(svc)
		msg := p.Process(context.Background(), "hmm Colorado numbers maybe", nil)
		assert.Equal(t, IntentUnknown, msg.Intent)
	})
}

func TestExtractEntities(t *testing.T) {
	tests := []struct {
		name string
		text string
		want query.Entities
	}{
		{
			"month name and year",
			"forecast for March 2025",
			query.Entities{Month: "3", Year: "2025"},
		},
		{
			"slash form",
			"forecast for 3/2025",
			query.Entities{Month: "3", Year: "2025"},
		},
		{
			"platform and case type",
			"Amisys claims for April 2026",
			query.Entities{Month: "4", Year: "2026", Platforms: []string{"Amisys"}, CaseTypes: []string{"Claims"}},
		},
		{
			"state full name",
			"Texas forecast May 2025",
			query.Entities{Month: "5", Year: "2025", States: []string{"TX"}},
		},
		{
			"state code uppercase only",
			"data for TX in June 2025",
			query.Entities{Month: "6", Year: "2025", States: []string{"TX"}},
		},
		{
			"forecast month column",
			"Apr-25 column for March 2025",
			query.Entities{Month: "3", Year: "2025", ForecastMonths: []string{"Apr-25"}},
		},
		{
			"main lob",
			"Medicaid forecast for March 2025",
			query.Entities{Month: "3", Year: "2025", MainLOBs: []string{"Medicaid"}},
		},
		{
			"out of range year ignored",
			"data for March 1999",
			query.Entities{Month: "3"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := validateEntities(extractEntities(tt.text))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLowercaseWordsNotStates(t *testing.T) {
	// "in" and "or" must not become Indiana and Oregon.
	got := validateEntities(extractEntities("show data in March or April 2025"))
	assert.Empty(t, got.States)
}

func TestLLMEntityMergePriority(t *testing.T) {
	svc := &mockLLM{enabled: true, response: "<month>4</month><platform>Facets</platform>"}
	merged := extractWithLLM(context.Background(), svc,
		"msg", query.Entities{Month: "3", Year: "2025", Platforms: []string{"Amisys"}})
	assert.Equal(t, "4", merged.Month)
	assert.Equal(t, "2025", merged.Year, "regex value kept when llm silent")
	assert.Equal(t, []string{"Facets"}, merged.Platforms)
}

func TestResolveWithContext(t *testing.T) {
	cc := &query.ConversationContext{
		Month:     "3",
		Year:      "2025",
		Platforms: []string{"Amisys"},
		States:    []string{"TX"},
	}

	t.Run("extend unions", func(t *testing.T) {
		resolved := resolveWithContext(IntentExtend, query.Entities{States: []string{"CA"}}, cc)
		assert.Equal(t, "3", resolved.Month)
		assert.Equal(t, []string{"TX", "CA"}, resolved.States)
		assert.Equal(t, []string{"Amisys"}, resolved.Platforms)
	})

	t.Run("remove subtracts", func(t *testing.T) {
		resolved := resolveWithContext(IntentRemove, query.Entities{Platforms: []string{"Amisys"}}, cc)
		assert.Empty(t, resolved.Platforms)
		assert.Equal(t, []string{"TX"}, resolved.States)
	})

	t.Run("reset clears", func(t *testing.T) {
		resolved := resolveWithContext(IntentReset, query.Entities{States: []string{"CA"}}, cc)
		assert.True(t, resolved.IsEmpty())
	})

	t.Run("replace is message only", func(t *testing.T) {
		resolved := resolveWithContext(IntentReplace, query.Entities{Platforms: []string{"Facets"}}, cc)
		assert.Equal(t, []string{"Facets"}, resolved.Platforms)
		assert.Empty(t, resolved.States)
	})

	t.Run("query prefers message, falls back to context", func(t *testing.T) {
		resolved := resolveWithContext(IntentQueryData, query.Entities{Month: "4", Year: "2025"}, cc)
		assert.Equal(t, "4", resolved.Month)
		assert.Equal(t, []string{"Amisys"}, resolved.Platforms)
	})

	t.Run("nil context", func(t *testing.T) {
		resolved := resolveWithContext(IntentQueryData, query.Entities{Month: "4"}, nil)
		assert.Equal(t, "4", resolved.Month)
	})
}

func TestConfidenceScore(t *testing.T) {
	assert.InDelta(t, 0.95, confidenceScore(query.Entities{Month: "3", Year: "2025", States: []string{"TX"}}), 0.001)
	assert.InDelta(t, 0.85, confidenceScore(query.Entities{Month: "3", Year: "2025"}), 0.001)
	assert.InDelta(t, 0.70, confidenceScore(query.Entities{States: []string{"TX"}}), 0.001)
	assert.InDelta(t, 0.40, confidenceScore(query.Entities{}), 0.001)
}

func TestDetectImplicitContext(t *testing.T) {
	assert.True(t, detectImplicitContext("show the same filters", IntentQueryData))
	assert.True(t, detectImplicitContext("whatever", IntentExtend))
	assert.False(t, detectImplicitContext("show Texas claims", IntentQueryData))
}
