// Package assist orchestrates a chat turn: sanitize, preprocess, classify,
// validate, query, diagnose, and render. No error escapes this package; every
// failure becomes an error fragment the frontend can show.
package assist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"

	apperrors "github.com/staffsense/staffsense/internal/errors"
	"github.com/staffsense/staffsense/internal/observability"
	"github.com/staffsense/staffsense/plugin/assist/diagnose"
	"github.com/staffsense/staffsense/plugin/assist/genui"
	"github.com/staffsense/staffsense/plugin/assist/llm"
	"github.com/staffsense/staffsense/plugin/assist/preprocess"
	"github.com/staffsense/staffsense/plugin/assist/query"
	"github.com/staffsense/staffsense/plugin/assist/sanitize"
	"github.com/staffsense/staffsense/plugin/assist/validate"
	"github.com/staffsense/staffsense/plugin/forecastapi"
	"github.com/staffsense/staffsense/store"
	"github.com/staffsense/staffsense/store/cache"
)

// historyTurns is how many prior messages feed category classification.
const historyTurns = 5

// Backend is the forecasting surface the assistant drives. The concrete
// implementation is *forecastapi.Client.
type Backend interface {
	GetForecast(ctx context.Context, params url.Values) (*forecastapi.ForecastResult, error)
	GetFilterOptions(ctx context.Context, month, year string) (*forecastapi.FilterOptions, error)
	GetAvailableReports(ctx context.Context) ([]forecastapi.AvailableReport, error)
	UpdateCPH(ctx context.Context, req forecastapi.CPHUpdateRequest) (*forecastapi.CPHUpdateResult, error)
}

// LLMService is the completion surface the assistant and its stages share.
type LLMService interface {
	Enabled() bool
	Complete(ctx context.Context, messages []llm.Message) (string, error)
	CompleteJSON(ctx context.Context, messages []llm.Message) (string, error)
}

// TurnInput identifies one incoming user message.
type TurnInput struct {
	UserID         int32
	ConversationID int32
	Message        string
}

// PendingKind tags what a Pending action is waiting for.
type PendingKind string

const (
	PendingCategory  PendingKind = "category"
	PendingCPHUpdate PendingKind = "cph_update"
)

// Pending is an action awaiting explicit user confirmation.
type Pending struct {
	Kind     PendingKind                   `json:"kind"`
	Category Category                      `json:"category,omitempty"`
	CPH      *forecastapi.CPHUpdateRequest `json:"cph,omitempty"`
}

// TurnResult is everything the transport needs to answer one turn.
type TurnResult struct {
	Response           *genui.Response
	Category           Category
	CategoryConfidence float64
	Intent             preprocess.Intent
	SanitizeMeta       sanitize.Metadata
	Validation         *validate.Summary
	Diagnostic         *diagnose.Result
	Pending            *Pending
}

// Assistant runs the conversational pipeline.
type Assistant struct {
	store      *store.Store
	backend    Backend
	llm        LLMService
	pre        *preprocess.Preprocessor
	validator  *validate.Validator
	diagnostic *diagnose.Diagnostic
	metrics    *observability.Metrics
}

// New creates an assistant. store and llmService may be nil (no persistence,
// rule-only pipeline); backend is required.
func New(st *store.Store, backend Backend, llmService LLMService, cacheService cache.CacheService) *Assistant {
	var preLLM preprocess.LLMService
	var diagLLM diagnose.LLMService
	if llmService != nil {
		preLLM = llmService
		diagLLM = llmService
	}
	return &Assistant{
		store:      st,
		backend:    backend,
		llm:        llmService,
		pre:        preprocess.New(preLLM),
		validator:  validate.New(backend, cacheService),
		diagnostic: diagnose.New(backend, diagLLM),
		metrics:    observability.GlobalMetrics(),
	}
}

// ProcessMessage handles one user message end to end. It never returns an
// error; failures surface as error components in the response.
func (a *Assistant) ProcessMessage(ctx context.Context, rc *observability.RequestContext, in TurnInput) (result *TurnResult) {
	start := time.Now()
	defer func() {
		intent := ""
		if result != nil {
			intent = string(result.Category)
		}
		if r := recover(); r != nil {
			rc.Error("panic during turn", fmt.Errorf("%v", r))
			a.metrics.RecordFailure(intent)
			result = &TurnResult{Response: errorResponse(apperrors.Wrap(nil, apperrors.ErrCodeInvalidArgument, "internal error"))}
		}
		a.metrics.RecordDuration(intent, time.Since(start))
	}()

	clean, meta := sanitize.Sanitize(in.Message)
	result = &TurnResult{SanitizeMeta: meta}
	if len(meta.Threats) > 0 {
		rc.Warn("input threats neutralized", slog.Any("threats", meta.Threats))
	}
	if clean == "" {
		result.Response = textResponse("Tell me what forecast data you need, for example: \"Show me forecast data for March 2025\".")
		return result
	}

	cc := a.loadContext(ctx, in)
	msg := a.pre.Process(ctx, clean, cc)
	result.Intent = msg.Intent

	category, confidence := classifyCategory(ctx, a.llm, msg.Corrected, a.recentHistory(ctx, in.ConversationID))
	result.Category = category
	result.CategoryConfidence = confidence
	a.metrics.RecordTurn(string(category))
	rc.Info("turn classified",
		slog.String(observability.LogFieldIntent, string(category)),
		slog.Float64("confidence", confidence),
		slog.Int(observability.LogFieldMessageLen, len(clean)))

	if confidence < categoryConfidenceThreshold {
		result.Pending = &Pending{Kind: PendingCategory, Category: category}
		result.Response = clarificationResponse(category)
		a.persistTurn(ctx, in, clean, result.Response)
		return result
	}

	a.execute(ctx, rc, in, category, msg, cc, result)
	a.persistTurn(ctx, in, clean, result.Response)
	return result
}

// ExecuteCategory runs a turn with the category fixed, used after the user
// confirms a low-confidence classification.
func (a *Assistant) ExecuteCategory(ctx context.Context, rc *observability.RequestContext, in TurnInput, category Category) (result *TurnResult) {
	defer func() {
		if r := recover(); r != nil {
			rc.Error("panic during confirmed turn", fmt.Errorf("%v", r))
			result = &TurnResult{Response: errorResponse(apperrors.Wrap(nil, apperrors.ErrCodeInvalidArgument, "internal error"))}
		}
	}()

	clean, meta := sanitize.Sanitize(in.Message)
	result = &TurnResult{SanitizeMeta: meta, Category: category, CategoryConfidence: 1.0}
	if clean == "" {
		result.Response = textResponse("I lost the original request, please send it again.")
		return result
	}

	cc := a.loadContext(ctx, in)
	msg := a.pre.Process(ctx, clean, cc)
	result.Intent = msg.Intent
	a.execute(ctx, rc, in, category, msg, cc, result)
	a.persistTurn(ctx, in, clean, result.Response)
	return result
}

func (a *Assistant) execute(ctx context.Context, rc *observability.RequestContext, in TurnInput, category Category, msg *preprocess.PreprocessedMessage, cc *query.ConversationContext, result *TurnResult) {
	switch category {
	case CategoryListReports:
		result.Response = a.handleListReports(ctx, rc)
	case CategoryModifyCPH:
		a.handleModifyCPH(msg, result)
	case CategoryFTEDetails:
		a.handleForecast(ctx, rc, in, msg, cc, true, result)
	default:
		a.handleForecast(ctx, rc, in, msg, cc, false, result)
	}
}

// handleForecast is the main data path: validate, correct, query, and when
// nothing comes back, diagnose.
func (a *Assistant) handleForecast(ctx context.Context, rc *observability.RequestContext, in TurnInput, msg *preprocess.PreprocessedMessage, cc *query.ConversationContext, detailed bool, result *TurnResult) {
	params, update := query.BuildQueryParams(msg.Resolved, cc)
	if params.Month == "" || params.Year == "" {
		result.Response = textResponse("Which report month and year should I use? For example: \"March 2025\".")
		return
	}

	summary, err := a.validator.ValidateAll(ctx, params)
	if err != nil {
		result.Response = errorResponse(err)
		return
	}
	result.Validation = summary

	if invalid := summary.Invalid(); len(invalid) > 0 {
		result.Response = invalidFilterResponse(invalid)
		return
	}
	if pending := summary.NeedsConfirmation(); len(pending) > 0 {
		result.Response = correctionConfirmResponse(pending)
		return
	}

	forecast, err := a.backend.GetForecast(ctx, summary.Params.Values())
	if err != nil {
		a.metrics.RecordFailure(string(result.Category))
		result.Response = errorResponse(apperrors.BackendUnavailable("forecast query failed", err))
		return
	}

	if forecast.Total == 0 {
		diagnostic, err := a.diagnostic.Diagnose(ctx, summary.Params)
		if err != nil {
			rc.Warn("diagnosis failed", slog.Any("error", err))
			result.Response = textResponse("No rows matched your filters, and I could not determine why. Try removing a filter.")
			return
		}
		result.Diagnostic = diagnostic
		result.Response = diagnosticResponse(diagnostic)
		return
	}

	a.saveContext(ctx, in, update, msg)
	result.Response = forecastResponse(forecast, summary.Params, detailed)
}

func (a *Assistant) handleListReports(ctx context.Context, rc *observability.RequestContext) *genui.Response {
	reports, err := a.backend.GetAvailableReports(ctx)
	if err != nil {
		rc.Warn("available reports fetch failed", slog.Any("error", err))
		return errorResponse(apperrors.BackendUnavailable("could not list reports", err))
	}
	if len(reports) == 0 {
		return textResponse("No forecast reports have been uploaded yet.")
	}

	var b strings.Builder
	b.WriteString("These report periods are available:\n\n")
	for _, r := range reports {
		label := r.Label
		if label == "" {
			label = fmt.Sprintf("%s/%s", r.Month, r.Year)
		}
		b.WriteString("- " + label + "\n")
	}
	return textResponse(b.String())
}

func (a *Assistant) handleModifyCPH(msg *preprocess.PreprocessedMessage, result *TurnResult) {
	update, err := parseCPHUpdate(msg)
	if err != nil {
		result.Response = &genui.Response{
			Components: []genui.UIComponent{*genui.NewErrorAlert(err.Error())},
		}
		return
	}

	req := &forecastapi.CPHUpdateRequest{
		Platform: update.Platform,
		Market:   update.Market,
		CaseType: update.CaseType,
		Months:   update.Months,
	}
	result.Pending = &Pending{Kind: PendingCPHUpdate, CPH: req}
	result.Response = &genui.Response{
		Text: "Please confirm this CPH update.",
		Components: []genui.UIComponent{*genui.NewConfirmDialog(
			"Apply CPH update?",
			cphSummary(*req),
			req,
		)},
	}
}

// ConfirmCPHUpdate applies a previously confirmed CPH edit.
func (a *Assistant) ConfirmCPHUpdate(ctx context.Context, rc *observability.RequestContext, req forecastapi.CPHUpdateRequest) *genui.Response {
	if err := query.ValidateBenchAllocationUpdate(query.BenchAllocationUpdate{
		Platform: req.Platform,
		Market:   req.Market,
		CaseType: req.CaseType,
		Months:   req.Months,
	}); err != nil {
		return &genui.Response{Components: []genui.UIComponent{*genui.NewErrorAlert(err.Error())}}
	}

	updated, err := a.backend.UpdateCPH(ctx, req)
	if err != nil {
		rc.Warn("cph update failed", slog.Any("error", err))
		return errorResponse(apperrors.BackendUnavailable("CPH update failed", err))
	}

	message := updated.Message
	if message == "" {
		message = fmt.Sprintf("CPH updated for %d row(s).", updated.Updated)
	}
	return &genui.Response{Components: []genui.UIComponent{*genui.NewSuccessBanner(message)}}
}

// loadContext fetches and decodes the stored conversation context.
func (a *Assistant) loadContext(ctx context.Context, in TurnInput) *query.ConversationContext {
	if a.store == nil || in.ConversationID == 0 {
		return nil
	}
	row, err := a.store.GetConversationContext(ctx, &store.FindConversationContext{
		ConversationID: &in.ConversationID,
	})
	if err != nil || row == nil {
		return nil
	}
	var cc query.ConversationContext
	if err := json.Unmarshal([]byte(row.ContextData), &cc); err != nil {
		slog.Warn("stored conversation context is corrupt, starting fresh",
			slog.Int("conversation_id", int(in.ConversationID)),
			slog.Any("error", err))
		return nil
	}
	return &cc
}

// saveContext persists the post-turn context. Last write wins when the same
// user runs two tabs.
func (a *Assistant) saveContext(ctx context.Context, in TurnInput, update query.ConversationContext, msg *preprocess.PreprocessedMessage) {
	if a.store == nil || in.ConversationID == 0 {
		return
	}
	update.LastIntent = string(msg.Intent)
	update.UpdatedTs = time.Now().Unix()
	data, err := json.Marshal(update)
	if err != nil {
		return
	}
	if _, err := a.store.UpsertConversationContext(ctx, &store.ConversationContextRow{
		ConversationID: in.ConversationID,
		UserID:         in.UserID,
		ContextData:    string(data),
	}); err != nil {
		slog.Warn("failed to persist conversation context", slog.Any("error", err))
	}
}

// recentHistory returns the last few messages, oldest first, as "ROLE: text"
// lines for the classifier prompt.
func (a *Assistant) recentHistory(ctx context.Context, conversationID int32) []string {
	if a.store == nil || conversationID == 0 {
		return nil
	}
	limit := historyTurns
	messages, err := a.store.ListChatMessages(ctx, &store.FindChatMessage{
		ConversationID: &conversationID,
		Limit:          &limit,
	})
	if err != nil {
		return nil
	}
	history := make([]string, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		history = append(history, fmt.Sprintf("%s: %s", messages[i].Role, messages[i].Content))
	}
	return history
}

// persistTurn stores the user message and the assistant's reply.
func (a *Assistant) persistTurn(ctx context.Context, in TurnInput, userText string, response *genui.Response) {
	if a.store == nil || in.ConversationID == 0 || response == nil {
		return
	}
	now := time.Now().Unix()
	if _, err := a.store.CreateChatMessage(ctx, &store.ChatMessage{
		UID:            shortuuid.New(),
		ConversationID: in.ConversationID,
		Role:           store.ChatMessageRoleUser,
		Content:        userText,
		Metadata:       "{}",
		CreatedTs:      now,
	}); err != nil {
		slog.Warn("failed to persist user message", slog.Any("error", err))
		return
	}

	metadata := "{}"
	if data, err := json.Marshal(response.Components); err == nil {
		metadata = fmt.Sprintf(`{"components":%s}`, data)
	}
	if _, err := a.store.CreateChatMessage(ctx, &store.ChatMessage{
		UID:            shortuuid.New(),
		ConversationID: in.ConversationID,
		Role:           store.ChatMessageRoleAssistant,
		Content:        response.Text,
		Metadata:       metadata,
		CreatedTs:      now,
	}); err != nil {
		slog.Warn("failed to persist assistant message", slog.Any("error", err))
	}
}
