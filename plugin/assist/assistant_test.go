package assist

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staffsense/staffsense/internal/observability"
	"github.com/staffsense/staffsense/plugin/assist/genui"
	"github.com/staffsense/staffsense/plugin/assist/llm"
	"github.com/staffsense/staffsense/plugin/forecastapi"
)

// fakeBackend serves canned payloads.
type fakeBackend struct {
	forecast    *forecastapi.ForecastResult
	forecastErr error
	options     *forecastapi.FilterOptions
	reports     []forecastapi.AvailableReport
	cphResult   *forecastapi.CPHUpdateResult
	cphErr      error
	cphRequests []forecastapi.CPHUpdateRequest
}

func (f *fakeBackend) GetForecast(_ context.Context, _ url.Values) (*forecastapi.ForecastResult, error) {
	if f.forecastErr != nil {
		return nil, f.forecastErr
	}
	if f.forecast == nil {
		return &forecastapi.ForecastResult{}, nil
	}
	return f.forecast, nil
}

func (f *fakeBackend) GetFilterOptions(_ context.Context, _, _ string) (*forecastapi.FilterOptions, error) {
	if f.options == nil {
		return &forecastapi.FilterOptions{}, nil
	}
	return f.options, nil
}

func (f *fakeBackend) GetAvailableReports(_ context.Context) ([]forecastapi.AvailableReport, error) {
	return f.reports, nil
}

func (f *fakeBackend) UpdateCPH(_ context.Context, req forecastapi.CPHUpdateRequest) (*forecastapi.CPHUpdateResult, error) {
	f.cphRequests = append(f.cphRequests, req)
	if f.cphErr != nil {
		return nil, f.cphErr
	}
	return f.cphResult, nil
}

func defaultOptions() *forecastapi.FilterOptions {
	return &forecastapi.FilterOptions{
		Platforms: []string{"Amisys", "Facets"},
		States:    []string{"TX", "CA"},
		CaseTypes: []string{"Claims"},
	}
}

func testRC() *observability.RequestContext {
	return observability.NewRequestContext(slog.Default(), 1)
}

func newTestAssistant(backend Backend) *Assistant {
	return New(nil, backend, nil, nil)
}

func componentTypes(r *genui.Response) []genui.ComponentType {
	types := make([]genui.ComponentType, 0, len(r.Components))
	for _, c := range r.Components {
		types = append(types, c.Type)
	}
	return types
}

func TestProcessMessageForecastHappyPath(t *testing.T) {
	backend := &fakeBackend{
		options: defaultOptions(),
		forecast: &forecastapi.ForecastResult{
			Rows:  []forecastapi.ForecastRow{{"platform": "Amisys", "fte": 12.0}},
			Total: 1,
		},
	}
	a := newTestAssistant(backend)

	result := a.ProcessMessage(context.Background(), testRC(), TurnInput{
		UserID:  1,
		Message: "Show me Amisys forecast data for March 2025",
	})

	assert.Equal(t, CategoryForecastData, result.Category)
	require.NotNil(t, result.Response)
	assert.Contains(t, componentTypes(result.Response), genui.ComponentForecastTable)
	assert.Contains(t, result.Response.Text, "1 row(s)")
	assert.Nil(t, result.Pending)
}

func TestProcessMessageMissingPeriod(t *testing.T) {
	a := newTestAssistant(&fakeBackend{options: defaultOptions()})
	result := a.ProcessMessage(context.Background(), testRC(), TurnInput{
		UserID:  1,
		Message: "Show me Amisys forecast data",
	})
	assert.Contains(t, result.Response.Text, "month and year")
}

func TestProcessMessageZeroRowsDiagnosed(t *testing.T) {
	backend := &fakeBackend{
		options:  defaultOptions(),
		forecast: &forecastapi.ForecastResult{Total: 0},
	}
	a := newTestAssistant(backend)

	result := a.ProcessMessage(context.Background(), testRC(), TurnInput{
		UserID:  1,
		Message: "Show me Amisys forecast data for March 2025",
	})

	require.NotNil(t, result.Diagnostic)
	assert.True(t, result.Diagnostic.IsDataIssue)
	assert.NotEmpty(t, result.Response.Text)
}

func TestProcessMessageBackendDownNeverPanics(t *testing.T) {
	backend := &fakeBackend{
		options:     defaultOptions(),
		forecastErr: errors.New("connection refused"),
	}
	a := newTestAssistant(backend)

	result := a.ProcessMessage(context.Background(), testRC(), TurnInput{
		UserID:  1,
		Message: "Show me Amisys forecast data for March 2025",
	})

	require.NotNil(t, result.Response)
	assert.Contains(t, componentTypes(result.Response), genui.ComponentErrorAlert)
}

func TestProcessMessageEmptyInput(t *testing.T) {
	a := newTestAssistant(&fakeBackend{})
	result := a.ProcessMessage(context.Background(), testRC(), TurnInput{UserID: 1, Message: "   "})
	assert.Contains(t, result.Response.Text, "forecast data")
}

func TestProcessMessageLowConfidenceAsksForConfirmation(t *testing.T) {
	a := newTestAssistant(&fakeBackend{options: defaultOptions()})
	result := a.ProcessMessage(context.Background(), testRC(), TurnInput{
		UserID:  1,
		Message: "hello there friend",
	})

	require.NotNil(t, result.Pending)
	assert.Equal(t, PendingCategory, result.Pending.Kind)
	assert.Contains(t, componentTypes(result.Response), genui.ComponentConfirmDialog)
}

func TestExecuteCategoryAfterConfirmation(t *testing.T) {
	backend := &fakeBackend{reports: []forecastapi.AvailableReport{{Month: "3", Year: "2025", Label: "Mar 2025"}}}
	a := newTestAssistant(backend)

	result := a.ExecuteCategory(context.Background(), testRC(), TurnInput{
		UserID:  1,
		Message: "hello there friend",
	}, CategoryListReports)

	assert.Equal(t, CategoryListReports, result.Category)
	assert.Contains(t, result.Response.Text, "Mar 2025")
}

func TestListReports(t *testing.T) {
	backend := &fakeBackend{reports: []forecastapi.AvailableReport{
		{Month: "3", Year: "2025", Label: "Mar 2025"},
		{Month: "4", Year: "2025"},
	}}
	a := newTestAssistant(backend)

	result := a.ProcessMessage(context.Background(), testRC(), TurnInput{
		UserID:  1,
		Message: "What reports are available?",
	})

	assert.Equal(t, CategoryListReports, result.Category)
	assert.Contains(t, result.Response.Text, "Mar 2025")
	assert.Contains(t, result.Response.Text, "4/2025")
}

func TestModifyCPHRequiresConfirmation(t *testing.T) {
	a := newTestAssistant(&fakeBackend{})
	result := a.ProcessMessage(context.Background(), testRC(), TurnInput{
		UserID:  1,
		Message: "Set Amisys Claims CPH to 4.2 4.5 4.1",
	})

	assert.Equal(t, CategoryModifyCPH, result.Category)
	require.NotNil(t, result.Pending)
	assert.Equal(t, PendingCPHUpdate, result.Pending.Kind)
	require.NotNil(t, result.Pending.CPH)
	assert.Equal(t, "Amisys", result.Pending.CPH.Platform)
	assert.InDelta(t, 4.5, result.Pending.CPH.Months["month2"], 0.001)
	assert.Contains(t, componentTypes(result.Response), genui.ComponentConfirmDialog)
}

func TestModifyCPHMissingMonthValues(t *testing.T) {
	a := newTestAssistant(&fakeBackend{})
	result := a.ProcessMessage(context.Background(), testRC(), TurnInput{
		UserID:  1,
		Message: "Set Amisys CPH to 4.2",
	})

	assert.Nil(t, result.Pending)
	require.Contains(t, componentTypes(result.Response), genui.ComponentErrorAlert)
	data := result.Response.Components[0].Data.(map[string]string)
	assert.Contains(t, data["message"], "month")
}

func TestConfirmCPHUpdate(t *testing.T) {
	backend := &fakeBackend{cphResult: &forecastapi.CPHUpdateResult{Updated: 3}}
	a := newTestAssistant(backend)

	req := forecastapi.CPHUpdateRequest{
		Platform: "Amisys",
		Months:   map[string]float64{"month1": 4.2, "month2": 4.5, "month3": 4.1},
	}
	response := a.ConfirmCPHUpdate(context.Background(), testRC(), req)

	require.Len(t, backend.cphRequests, 1)
	assert.Contains(t, componentTypes(response), genui.ComponentSuccessBanner)

	t.Run("incomplete request rejected before backend call", func(t *testing.T) {
		response := a.ConfirmCPHUpdate(context.Background(), testRC(), forecastapi.CPHUpdateRequest{
			Platform: "Amisys",
			Months:   map[string]float64{"month1": 4.2},
		})
		assert.Contains(t, componentTypes(response), genui.ComponentErrorAlert)
		assert.Len(t, backend.cphRequests, 1, "backend not called again")
	})
}

// llmStub drives the classifier from tests.
type llmStub struct {
	jsonResponse string
	err          error
}

func (l *llmStub) Enabled() bool { return true }
func (l *llmStub) Complete(_ context.Context, _ []llm.Message) (string, error) {
	return "", errors.New("not used")
}
func (l *llmStub) CompleteJSON(_ context.Context, _ []llm.Message) (string, error) {
	return l.jsonResponse, l.err
}

func TestClassifyCategory(t *testing.T) {
	t.Run("llm verdict wins", func(t *testing.T) {
		category, confidence := classifyCategory(context.Background(),
			&llmStub{jsonResponse: `{"category":"get_fte_details","confidence":0.92}`},
			"breakdown please", nil)
		assert.Equal(t, CategoryFTEDetails, category)
		assert.InDelta(t, 0.92, confidence, 0.001)
	})

	t.Run("llm error falls back to heuristic", func(t *testing.T) {
		category, _ := classifyCategory(context.Background(),
			&llmStub{err: errors.New("down")},
			"show forecast data", nil)
		assert.Equal(t, CategoryForecastData, category)
	})

	t.Run("invalid llm category falls back", func(t *testing.T) {
		category, _ := classifyCategory(context.Background(),
			&llmStub{jsonResponse: `{"category":"banana","confidence":0.99}`},
			"update the cph please", nil)
		assert.Equal(t, CategoryModifyCPH, category)
	})

	t.Run("nil service uses heuristic", func(t *testing.T) {
		category, confidence := classifyCategory(context.Background(), nil, "what reports are available", nil)
		assert.Equal(t, CategoryListReports, category)
		assert.GreaterOrEqual(t, confidence, 0.7)
	})
}
