package genui

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staffsense/staffsense/plugin/forecastapi"
)

func TestNewText(t *testing.T) {
	c := NewText("**March 2025** forecast")
	assert.Equal(t, ComponentText, c.Type)
	assert.NotEmpty(t, c.ID)

	data := c.Data.(map[string]string)
	assert.Contains(t, data["html"], "<strong>March 2025</strong>")
}

func TestNewForecastTable(t *testing.T) {
	result := &forecastapi.ForecastResult{
		Columns: []string{"platform", "state", "fte"},
		Rows: []forecastapi.ForecastRow{
			{"platform": "Amisys", "state": "TX", "fte": 12.5},
			{"platform": "Facets", "state": "CA", "fte": 8.0},
		},
		Total: 2,
	}

	c := NewForecastTable(result)
	assert.Equal(t, ComponentForecastTable, c.Type)

	data := c.Data.(ForecastTableData)
	assert.False(t, data.Truncated)
	assert.Contains(t, data.HTML, "<table")
	assert.Contains(t, data.HTML, "<th>platform</th>")
	assert.Contains(t, data.HTML, "<td>Amisys</td>")
	assert.Contains(t, data.HTML, "<td>12.50</td>")
	assert.Contains(t, data.HTML, "<td>8</td>", "whole floats render without decimals")
}

func TestForecastTableTruncation(t *testing.T) {
	rows := make([]forecastapi.ForecastRow, 40)
	for i := range rows {
		rows[i] = forecastapi.ForecastRow{"platform": "Amisys"}
	}
	c := NewForecastTable(&forecastapi.ForecastResult{Rows: rows, Total: 40})

	data := c.Data.(ForecastTableData)
	assert.True(t, data.Truncated)
	assert.Len(t, data.Rows, maxPreviewRows)
	assert.Equal(t, 40, data.Total)
}

func TestForecastTableEscapesHTML(t *testing.T) {
	c := NewForecastTable(&forecastapi.ForecastResult{
		Columns: []string{"platform"},
		Rows:    []forecastapi.ForecastRow{{"platform": "<script>alert(1)</script>"}},
		Total:   1,
	})
	data := c.Data.(ForecastTableData)
	assert.NotContains(t, data.HTML, "<script>")
	assert.Contains(t, data.HTML, "&lt;script&gt;")
}

func TestNewConfirmDialog(t *testing.T) {
	payload := map[string]string{"filter": "platform", "corrected": "Amisys"}
	c := NewConfirmDialog("Did you mean Amisys?", "platform Amysis is close to Amisys", payload)

	assert.Equal(t, ComponentConfirmDialog, c.Type)
	require.Len(t, c.Actions, 2)
	assert.Equal(t, "confirm", c.Actions[0].ID)
	assert.Equal(t, payload, c.Actions[0].Payload)
}

func TestComponentsSerializeWithStableTypeTags(t *testing.T) {
	components := []*UIComponent{
		NewText("hi"),
		NewErrorAlert("boom"),
		NewSuggestions("Did you mean", []string{"Amisys", "Facets"}),
		NewSuccessBanner("updated"),
	}
	wantTypes := []string{"text", "error_alert", "suggestions", "success_banner"}

	for i, c := range components {
		data, err := json.Marshal(c)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, wantTypes[i], decoded["type"])
		assert.NotEmpty(t, decoded["id"])
	}
}
