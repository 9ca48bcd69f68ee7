package forecastapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetForecast(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/llm/forecast", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("month"))
		assert.Equal(t, []string{"Amisys", "Facets"}, r.URL.Query()["platform[]"])

		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"rows":  []map[string]any{{"platform": "Amisys", "fte": 12.5}},
				"total": 1,
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client())
	result, err := client.GetForecast(context.Background(), map[string][]string{
		"month":      {"3"},
		"year":       {"2025"},
		"platform[]": {"Amisys", "Facets"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "Amisys", result.Rows[0]["platform"])
}

func TestGetFilterOptions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/llm/forecast/filter-options", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"platforms": []string{"Amisys", "Facets"},
				"states":    []string{"TX", "CA"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client())
	options, err := client.GetFilterOptions(context.Background(), "3", "2025")
	require.NoError(t, err)
	assert.Equal(t, []string{"Amisys", "Facets"}, options.Platforms)
	assert.False(t, options.IsEmpty())
	assert.Equal(t, []string{"TX", "CA"}, options.Options("state"))
}

func TestBackendRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   "invalid month",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client())
	_, err := client.GetForecast(context.Background(), nil)
	require.Error(t, err)

	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, "invalid month", backendErr.Message)
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    []map[string]any{{"month": "3", "year": "2025", "label": "Mar 2025"}},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client())
	reports, err := client.GetAvailableReports(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "Mar 2025", reports[0].Label)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNoRetryOnEnvelopeError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "nope"})
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client())
	_, err := client.GetAvailableReports(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUpdateCPH(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/edit-view/cph", r.URL.Path)

		var req CPHUpdateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Amisys", req.Platform)
		assert.InDelta(t, 4.2, req.Months["month1"], 0.001)

		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"updated": 3, "message": "ok"},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client())
	result, err := client.UpdateCPH(context.Background(), CPHUpdateRequest{
		Platform: "Amisys",
		Market:   "North",
		CaseType: "Claims",
		Months:   map[string]float64{"month1": 4.2, "month2": 4.5, "month3": 4.1},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Updated)
}

func TestContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(server.URL, server.Client())
	_, err := client.GetAvailableReports(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
