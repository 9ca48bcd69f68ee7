package genui

import (
	"bytes"
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/staffsense/staffsense/plugin/forecastapi"
)

// maxPreviewRows caps how many result rows a table component carries.
const maxPreviewRows = 25

var markdown = goldmark.New()

// RenderMarkdown converts assistant markdown to an HTML fragment. On parse
// failure the text is returned escaped.
func RenderMarkdown(text string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return "<p>" + html.EscapeString(text) + "</p>"
	}
	return buf.String()
}

// NewText creates a text component with rendered HTML.
func NewText(text string) *UIComponent {
	return &UIComponent{
		Type: ComponentText,
		ID:   newComponentID(),
		Data: map[string]string{
			"text": text,
			"html": RenderMarkdown(text),
		},
	}
}

// ForecastTableData is the payload of a forecast_table component.
type ForecastTableData struct {
	Columns   []string                  `json:"columns"`
	Rows      []forecastapi.ForecastRow `json:"rows"`
	Total     int                       `json:"total"`
	Truncated bool                      `json:"truncated"`
	HTML      string                    `json:"html"`
}

// NewForecastTable creates a table component from query results, capped to a
// preview of the first rows.
func NewForecastTable(result *forecastapi.ForecastResult) *UIComponent {
	rows := result.Rows
	truncated := false
	if len(rows) > maxPreviewRows {
		rows = rows[:maxPreviewRows]
		truncated = true
	}

	columns := result.Columns
	if len(columns) == 0 {
		columns = inferColumns(rows)
	}

	return &UIComponent{
		Type: ComponentForecastTable,
		ID:   newComponentID(),
		Data: ForecastTableData{
			Columns:   columns,
			Rows:      rows,
			Total:     result.Total,
			Truncated: truncated,
			HTML:      renderTableHTML(columns, rows),
		},
	}
}

func inferColumns(rows []forecastapi.ForecastRow) []string {
	seen := map[string]bool{}
	columns := make([]string, 0)
	for _, row := range rows {
		for key := range row {
			if !seen[key] {
				seen[key] = true
				columns = append(columns, key)
			}
		}
	}
	sort.Strings(columns)
	return columns
}

func renderTableHTML(columns []string, rows []forecastapi.ForecastRow) string {
	var b strings.Builder
	b.WriteString(`<table class="forecast-table"><thead><tr>`)
	for _, col := range columns {
		b.WriteString("<th>")
		b.WriteString(html.EscapeString(col))
		b.WriteString("</th>")
	}
	b.WriteString("</tr></thead><tbody>")
	for _, row := range rows {
		b.WriteString("<tr>")
		for _, col := range columns {
			b.WriteString("<td>")
			b.WriteString(html.EscapeString(cellString(row[col])))
			b.WriteString("</td>")
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</tbody></table>")
	return b.String()
}

func cellString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%.2f", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ConfirmDialogData is the payload of a confirm_dialog component.
type ConfirmDialogData struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Payload any    `json:"payload,omitempty"`
}

// NewConfirmDialog creates a confirmation dialog with confirm/cancel actions.
// payload is echoed back by the client on confirm.
func NewConfirmDialog(title, message string, payload any) *UIComponent {
	return &UIComponent{
		Type: ComponentConfirmDialog,
		ID:   newComponentID(),
		Data: ConfirmDialogData{Title: title, Message: message, Payload: payload},
		Actions: []UIAction{
			{ID: "confirm", Type: "submit", Label: "Confirm", Style: "primary", Payload: payload},
			{ID: "cancel", Type: "button", Label: "Cancel", Style: "secondary"},
		},
	}
}

// NewErrorAlert creates an error alert component.
func NewErrorAlert(message string) *UIComponent {
	return &UIComponent{
		Type: ComponentErrorAlert,
		ID:   newComponentID(),
		Data: map[string]string{"message": message},
	}
}

// NewSuggestions creates a suggestion-list component, e.g. the closest valid
// options for a rejected filter value.
func NewSuggestions(title string, suggestions []string) *UIComponent {
	return &UIComponent{
		Type: ComponentSuggestions,
		ID:   newComponentID(),
		Data: map[string]any{
			"title":       title,
			"suggestions": suggestions,
		},
	}
}

// NewSuccessBanner creates a success banner component.
func NewSuccessBanner(message string) *UIComponent {
	return &UIComponent{
		Type: ComponentSuccessBanner,
		ID:   newComponentID(),
		Data: map[string]string{"message": message},
	}
}
