// Package forecastapi is the client for the forecasting backend's REST API.
// Responses arrive in {success, data|error} envelopes; multi-value filters
// use the backend's "key[]" query convention.
package forecastapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	forecastPath         = "/api/llm/forecast"
	filterOptionsPath    = "/api/llm/forecast/filter-options"
	availableReportsPath = "/api/llm/forecast/available-reports"
	cphUpdatePath        = "/api/edit-view/cph"

	defaultTimeout = 30 * time.Second
	maxAttempts    = 3
)

// BackendError is a success=false response from the backend, carrying the
// backend's own message.
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend rejected request (status %d): %s", e.StatusCode, e.Message)
}

// envelope is the backend's uniform response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// ForecastRow is one row of forecast results. Column values arrive keyed by
// backend column name; numeric cells come through as float64.
type ForecastRow map[string]any

// ForecastResult is the payload of a forecast query.
type ForecastResult struct {
	Rows    []ForecastRow `json:"rows"`
	Total   int           `json:"total"`
	Columns []string      `json:"columns,omitempty"`
}

// FilterOptions is the valid-option universe for a report period.
type FilterOptions struct {
	Platforms      []string `json:"platforms"`
	Markets        []string `json:"markets"`
	Localities     []string `json:"localities"`
	MainLOBs       []string `json:"main_lobs"`
	States         []string `json:"states"`
	CaseTypes      []string `json:"case_types"`
	ForecastMonths []string `json:"forecast_months"`
}

// IsEmpty reports whether the backend had no options at all for the period,
// which means no report was uploaded for it.
func (o FilterOptions) IsEmpty() bool {
	return len(o.Platforms) == 0 && len(o.Markets) == 0 && len(o.Localities) == 0 &&
		len(o.MainLOBs) == 0 && len(o.States) == 0 && len(o.CaseTypes) == 0 &&
		len(o.ForecastMonths) == 0
}

// Options returns the option list for a filter name used in query params.
func (o FilterOptions) Options(filter string) []string {
	switch filter {
	case "platform":
		return o.Platforms
	case "market":
		return o.Markets
	case "locality":
		return o.Localities
	case "main_lob":
		return o.MainLOBs
	case "state":
		return o.States
	case "case_type":
		return o.CaseTypes
	case "forecast_month":
		return o.ForecastMonths
	}
	return nil
}

// AvailableReport is one uploaded report period.
type AvailableReport struct {
	Month      string `json:"month"`
	Year       string `json:"year"`
	Label      string `json:"label"`
	UploadedAt string `json:"uploaded_at,omitempty"`
}

// CPHUpdateRequest is the body for a bench-allocation CPH edit.
type CPHUpdateRequest struct {
	Platform string             `json:"platform"`
	Market   string             `json:"market"`
	CaseType string             `json:"case_type"`
	Months   map[string]float64 `json:"months"`
}

// CPHUpdateResult is the backend's acknowledgement of a CPH edit.
type CPHUpdateResult struct {
	Updated int    `json:"updated"`
	Message string `json:"message,omitempty"`
}

// Client talks to the forecasting backend. Construct one per process and
// inject it where needed; there is no package-level instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the backend at baseURL. A nil httpClient
// gets a default with a 30 second timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// GetForecast runs a forecast query with the given filter values.
func (c *Client) GetForecast(ctx context.Context, params url.Values) (*ForecastResult, error) {
	var result ForecastResult
	if err := c.getJSON(ctx, forecastPath, params, &result); err != nil {
		return nil, err
	}
	if result.Total == 0 {
		result.Total = len(result.Rows)
	}
	return &result, nil
}

// GetFilterOptions fetches the valid filter values for a report period.
func (c *Client) GetFilterOptions(ctx context.Context, month, year string) (*FilterOptions, error) {
	params := url.Values{}
	if month != "" {
		params.Set("month", month)
	}
	if year != "" {
		params.Set("year", year)
	}
	var options FilterOptions
	if err := c.getJSON(ctx, filterOptionsPath, params, &options); err != nil {
		return nil, err
	}
	return &options, nil
}

// GetAvailableReports lists the report periods uploaded to the backend.
func (c *Client) GetAvailableReports(ctx context.Context) ([]AvailableReport, error) {
	var reports []AvailableReport
	if err := c.getJSON(ctx, availableReportsPath, nil, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

// UpdateCPH applies a bench-allocation CPH edit.
func (c *Client) UpdateCPH(ctx context.Context, req CPHUpdateRequest) (*CPHUpdateResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode cph update")
	}
	var result CPHUpdateResult
	if err := c.do(ctx, http.MethodPost, cphUpdatePath, nil, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, params, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body []byte, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			waitTime := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			slog.Debug("backend request failed, retrying",
				slog.String("path", path),
				slog.Int("attempt", attempt+1),
				slog.Duration("wait_time", waitTime))
			select {
			case <-time.After(waitTime):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		retryable, err := c.doOnce(ctx, method, endpoint, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}
	return errors.Wrapf(lastErr, "backend request failed after %d attempts", maxAttempts)
}

// doOnce performs one request. It reports whether a failure is worth
// retrying: transport errors and 429/5xx are, envelope rejections are not.
func (c *Client) doOnce(ctx context.Context, method, endpoint string, body []byte, out any) (bool, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return false, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if isRetryableStatus(resp.StatusCode) {
		return true, fmt.Errorf("backend returned status %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, errors.Wrap(err, "failed to read response")
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return false, errors.Wrapf(err, "invalid response from backend (status %d)", resp.StatusCode)
	}
	if !env.Success {
		return false, &BackendError{StatusCode: resp.StatusCode, Message: env.Error}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return false, errors.Wrap(err, "failed to decode response data")
		}
	}
	return false, nil
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
