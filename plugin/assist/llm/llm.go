// Package llm wraps the OpenAI-compatible chat completion API used by the
// assistant for intent classification, entity extraction, and explanation
// writing. Calls are rate limited and retried with exponential backoff.
package llm

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/staffsense/staffsense/internal/finops"
	"github.com/staffsense/staffsense/internal/observability"
	"github.com/staffsense/staffsense/internal/profile"
)

// Config holds the LLM provider configuration.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	MaxRetries  int
	Timeout     time.Duration
	// InsecureSkipVerify disables TLS verification for self-signed corporate
	// proxy certificates. Never enable outside such a proxy.
	InsecureSkipVerify bool
	// RequestsPerMinute caps outbound completion calls. Zero means no cap.
	RequestsPerMinute int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:           "https://api.openai.com/v1",
		Model:             "gpt-4o-mini",
		MaxTokens:         2048,
		Temperature:       0.2,
		MaxRetries:        3,
		Timeout:           30 * time.Second,
		RequestsPerMinute: 60,
	}
}

// ConfigFromProfile builds the provider config from the service profile.
func ConfigFromProfile(p *profile.Profile) *Config {
	cfg := DefaultConfig()
	cfg.APIKey = p.LLMAPIKey
	if p.LLMBaseURL != "" {
		cfg.BaseURL = p.LLMBaseURL
	}
	if p.LLMModel != "" {
		cfg.Model = p.LLMModel
	}
	if p.LLMMaxTokens > 0 {
		cfg.MaxTokens = p.LLMMaxTokens
	}
	if p.LLMTemperature > 0 {
		cfg.Temperature = p.LLMTemperature
	}
	cfg.InsecureSkipVerify = p.LLMInsecureSkipVerify
	return cfg
}

// Message is one chat message sent to the model.
type Message struct {
	Role    string
	Content string
}

// System and user message constructors keep call sites short.
func System(content string) Message { return Message{Role: openai.ChatMessageRoleSystem, Content: content} }
func User(content string) Message   { return Message{Role: openai.ChatMessageRoleUser, Content: content} }

// Provider performs chat completions against an OpenAI-compatible endpoint.
type Provider struct {
	client  *openai.Client
	config  *Config
	limiter *rate.Limiter
}

// NewProvider creates a provider. An empty API key yields a disabled
// provider whose calls fail fast; callers check Enabled() and fall back.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.InsecureSkipVerify {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
		slog.Warn("TLS verification disabled for LLM endpoint", slog.String("base_url", cfg.BaseURL))
	}
	clientConfig.HTTPClient = httpClient

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute)
	}

	return &Provider{
		client:  openai.NewClientWithConfig(clientConfig),
		config:  cfg,
		limiter: limiter,
	}, nil
}

// Enabled reports whether the provider has credentials to make calls.
func (p *Provider) Enabled() bool {
	return p != nil && p.config.APIKey != ""
}

// Complete performs a chat completion and returns the assistant text.
func (p *Provider) Complete(ctx context.Context, messages []Message) (string, error) {
	return p.complete(ctx, messages, nil)
}

// CompleteJSON performs a chat completion constrained to a JSON object
// response, used for structured classification.
func (p *Provider) CompleteJSON(ctx context.Context, messages []Message) (string, error) {
	return p.complete(ctx, messages, &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONObject,
	})
}

func (p *Provider) complete(ctx context.Context, messages []Message, format *openai.ChatCompletionResponseFormat) (string, error) {
	if !p.Enabled() {
		return "", fmt.Errorf("llm provider is not configured")
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	llmMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		llmMessages[i] = openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content}
	}

	var result string
	err := p.doWithRetry(ctx, func() error {
		req := openai.ChatCompletionRequest{
			Model:       p.config.Model,
			Messages:    llmMessages,
			MaxTokens:   p.config.MaxTokens,
			Temperature: p.config.Temperature,
		}
		if format != nil {
			req.ResponseFormat = format
		}

		start := time.Now()
		resp, err := p.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		finops.Default().RecordUsage(p.config.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, time.Since(start))
		if len(resp.Choices) == 0 {
			return fmt.Errorf("empty chat response")
		}
		result = resp.Choices[0].Message.Content
		return nil
	})
	observability.GlobalMetrics().RecordLLMCall(err != nil)
	if err != nil {
		return "", fmt.Errorf("failed to complete chat: %w", err)
	}
	return result, nil
}

// doWithRetry executes a function with exponential backoff retry.
func (p *Provider) doWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.config.MaxRetries; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			if attempt < p.config.MaxRetries-1 {
				waitTime := time.Duration(math.Pow(2, float64(attempt))) * time.Second
				slog.Debug("llm request failed, retrying",
					slog.Int("attempt", attempt+1),
					slog.Duration("wait_time", waitTime),
					slog.Any("error", err))
				select {
				case <-time.After(waitTime):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
	return lastErr
}
