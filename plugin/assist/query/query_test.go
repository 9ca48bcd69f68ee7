package query

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildQueryParams(t *testing.T) {
	t.Run("entities carry over", func(t *testing.T) {
		params, update := BuildQueryParams(Entities{
			Month:     "3",
			Year:      "2025",
			Platforms: []string{"Amisys"},
			States:    []string{"TX"},
		}, nil)

		assert.Equal(t, "3", params.Month)
		assert.Equal(t, "2025", params.Year)
		assert.Equal(t, []string{"Amisys"}, params.Platforms)
		assert.Equal(t, []string{"TX"}, params.States)
		assert.Equal(t, "3", update.Month)
		assert.Equal(t, []string{"Amisys"}, update.Platforms)
	})

	t.Run("main lob override clears narrower filters", func(t *testing.T) {
		params, update := BuildQueryParams(Entities{
			Month:      "3",
			Year:       "2025",
			Platforms:  []string{"Amisys"},
			Markets:    []string{"North"},
			Localities: []string{"Onshore"},
			MainLOBs:   []string{"Medicaid"},
		}, nil)

		assert.Equal(t, []string{"Medicaid"}, params.MainLOBs)
		assert.Empty(t, params.Platforms)
		assert.Empty(t, params.Markets)
		assert.Empty(t, params.Localities)
		assert.Empty(t, update.Platforms)
	})

	t.Run("display prefs carried from context", func(t *testing.T) {
		cc := &ConversationContext{DisplayPrefs: DisplayPrefs{Format: "summary", MaxRows: 10}}
		params, update := BuildQueryParams(Entities{Month: "3", Year: "2025"}, cc)
		assert.Equal(t, "summary", params.Display.Format)
		assert.Equal(t, "summary", update.DisplayPrefs.Format)
	})
}

func TestForecastQueryParamsValues(t *testing.T) {
	params := ForecastQueryParams{
		Month:     "3",
		Year:      "2025",
		Platforms: []string{"Amisys", "Facets"},
		States:    []string{"TX"},
	}
	values := params.Values()
	assert.Equal(t, "3", values.Get("month"))
	assert.Equal(t, "2025", values.Get("year"))
	assert.Equal(t, []string{"Amisys", "Facets"}, values["platform[]"])
	assert.Equal(t, []string{"TX"}, values["state[]"])
}

func TestActiveFilters(t *testing.T) {
	params := ForecastQueryParams{
		Month:     "3",
		Year:      "2025",
		Platforms: []string{"Amisys"},
		CaseTypes: []string{"Claims"},
	}
	assert.Equal(t, []string{"case_type", "platform"}, params.ActiveFilterNames())

	without := params.WithoutFilter("platform")
	assert.Empty(t, without.Platforms)
	assert.Equal(t, []string{"Amisys"}, params.Platforms, "original untouched")
}

func TestConversationContextRoundTrip(t *testing.T) {
	original := ConversationContext{
		Month:          "3",
		Year:           "2025",
		Platforms:      []string{"Amisys", "Facets"},
		States:         []string{"TX", "CA"},
		ForecastMonths: []string{"Apr-25"},
		SelectedRow:    map[string]string{"platform": "Amisys", "state": "TX"},
		DisplayPrefs:   DisplayPrefs{Format: "table", MaxRows: 25, ShowTotals: true},
		LastIntent:     "query_data",
		UpdatedTs:      1748000000,
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded ConversationContext
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original, decoded)
}

func TestNormalizeState(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Texas", "TX", true},
		{"texas", "TX", true},
		{"tx", "TX", true},
		{"New York", "NY", true},
		{"District of Columbia", "DC", true},
		{"Atlantis", "Atlantis", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeState(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}

func TestMergeAndSubtractLists(t *testing.T) {
	merged := MergeLists([]string{"Amisys", "Facets"}, []string{"facets", "QNXT"})
	assert.Equal(t, []string{"Amisys", "Facets", "QNXT"}, merged)

	remaining := SubtractList([]string{"Amisys", "Facets", "QNXT"}, []string{"facets"})
	assert.Equal(t, []string{"Amisys", "QNXT"}, remaining)

	assert.Nil(t, SubtractList([]string{"Amisys"}, []string{"amisys"}))
}

func TestValidateBenchAllocationUpdate(t *testing.T) {
	t.Run("complete months pass", func(t *testing.T) {
		err := ValidateBenchAllocationUpdate(BenchAllocationUpdate{
			Platform: "Amisys",
			Months:   map[string]float64{"month1": 4.2, "month2": 4.5, "month3": 4.1},
		})
		assert.NoError(t, err)
	})

	t.Run("missing month3 named in error", func(t *testing.T) {
		err := ValidateBenchAllocationUpdate(BenchAllocationUpdate{
			Months: map[string]float64{"month1": 4.2, "month2": 4.5},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "month3")
	})

	t.Run("nil months map", func(t *testing.T) {
		err := ValidateBenchAllocationUpdate(BenchAllocationUpdate{})
		assert.Error(t, err)
	})
}
