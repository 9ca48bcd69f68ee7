// Package chatws is the WebSocket transport for the assistant. Each
// connection authenticates with a JWT at upgrade time, then exchanges JSON
// frames. Frames on one connection are processed serially, so a user's
// messages are answered in order.
package chatws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v4"
	"golang.org/x/time/rate"

	"github.com/staffsense/staffsense/internal/observability"
	"github.com/staffsense/staffsense/plugin/assist"
	"github.com/staffsense/staffsense/plugin/assist/genui"
	"github.com/staffsense/staffsense/plugin/forecastapi"
	"github.com/staffsense/staffsense/server/auth"
	"github.com/staffsense/staffsense/server/middleware"
	"github.com/staffsense/staffsense/store"
)

// Client frame types.
const (
	FrameUserMessage      = "user_message"
	FrameConfirmCategory  = "confirm_category"
	FrameRejectCategory   = "reject_category"
	FrameNewConversation  = "new_conversation"
	FrameConfirmCPHUpdate = "confirm_cph_update"
)

// Server frame types.
const (
	FrameSystem            = "system"
	FrameTyping            = "typing"
	FrameAssistantResponse = "assistant_response"
	FrameToolResult        = "tool_result"
	FrameError             = "error"
	FrameCPHUpdateResult   = "cph_update_result"
)

// messagesPerSecond and messageBurst bound how fast one user can send chat
// frames across all their connections.
const (
	messagesPerSecond = 1
	messageBurst      = 5
)

// ClientFrame is one inbound frame.
type ClientFrame struct {
	Type    string          `json:"type"`
	Text    string          `json:"text,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerFrame is one outbound frame. Timestamp is RFC3339.
type ServerFrame struct {
	Type           string              `json:"type"`
	Timestamp      string              `json:"timestamp"`
	Text           string              `json:"text,omitempty"`
	HTML           string              `json:"html,omitempty"`
	Components     []genui.UIComponent `json:"components,omitempty"`
	Category       string              `json:"category,omitempty"`
	ConversationID int32               `json:"conversation_id,omitempty"`
	Data           any                 `json:"data,omitempty"`
	Error          *FrameErrorBody     `json:"error,omitempty"`
	Pending        *assist.Pending     `json:"pending,omitempty"`
}

// FrameErrorBody is the payload of an error frame.
type FrameErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Auth happens via the signed token, not the Origin header.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server handles chat WebSocket connections.
type Server struct {
	store     *store.Store
	assistant *assist.Assistant
	secret    []byte
	limiter   *middleware.RateLimiter
}

// New creates the WebSocket chat server.
func New(st *store.Store, assistant *assist.Assistant, secret string) *Server {
	return &Server{
		store:     st,
		assistant: assistant,
		secret:    []byte(secret),
		limiter:   middleware.NewRateLimiter(rate.Limit(messagesPerSecond), messageBurst),
	}
}

// conn is the per-connection state. The read loop is the only goroutine that
// touches it, so no locking is needed.
type conn struct {
	ws             *websocket.Conn
	user           *store.User
	conversationID int32
	pending        *assist.Pending
	// lastMessage is replayed when the user confirms a low-confidence
	// category guess.
	lastMessage string
}

// Handle upgrades an authenticated HTTP request and runs the frame loop.
func (s *Server) Handle(c echo.Context) error {
	ctx := c.Request().Context()

	user, err := auth.Authenticate(ctx, s.store, auth.TokenFromRequest(c.Request()), s.secret)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error("websocket upgrade failed", slog.Any("error", err))
		return nil
	}
	defer ws.Close()

	cn := &conn{ws: ws, user: user}
	if active, err := s.store.GetActiveChatConversation(ctx, user.ID); err == nil && active != nil {
		cn.conversationID = active.ID
	}

	cn.send(ServerFrame{
		Type:           FrameSystem,
		Text:           "Connected. Ask me about workforce forecast data.",
		ConversationID: cn.conversationID,
	})

	s.readLoop(cn)
	return nil
}

// readLoop processes frames serially until the client goes away. A dropped
// connection only stops future sends; the turn in flight still completes
// against the store.
func (s *Server) readLoop(cn *conn) {
	for {
		var frame ClientFrame
		if err := cn.ws.ReadJSON(&frame); err != nil {
			slog.Debug("websocket client disconnected",
				slog.Int("user_id", int(cn.user.ID)),
				slog.Any("error", err))
			return
		}

		if !s.limiter.AllowUser(cn.user.ID) {
			cn.sendError("RATE_LIMITED", "You're sending messages too quickly. Give me a moment.")
			continue
		}

		ctx := context.Background()
		switch frame.Type {
		case FrameUserMessage:
			s.handleUserMessage(ctx, cn, frame.Text)
		case FrameConfirmCategory:
			s.handleConfirmCategory(ctx, cn, frame.Payload)
		case FrameRejectCategory:
			cn.pending = nil
			cn.lastMessage = ""
			cn.send(ServerFrame{Type: FrameSystem, Text: "Okay. Tell me again what you need, with a bit more detail."})
		case FrameNewConversation:
			s.handleNewConversation(ctx, cn)
		case FrameConfirmCPHUpdate:
			s.handleConfirmCPH(ctx, cn, frame.Payload)
		default:
			cn.sendError("UNKNOWN_FRAME", fmt.Sprintf("unknown frame type %q", frame.Type))
		}
	}
}

func (s *Server) handleUserMessage(ctx context.Context, cn *conn, text string) {
	cn.send(ServerFrame{Type: FrameTyping})

	if err := s.ensureConversation(ctx, cn); err != nil {
		cn.sendError("STORE_UNAVAILABLE", "Could not open a conversation. Try again.")
		return
	}

	rc := observability.NewRequestContext(slog.Default(), cn.user.ID)
	result := s.assistant.ProcessMessage(ctx, rc, assist.TurnInput{
		UserID:         cn.user.ID,
		ConversationID: cn.conversationID,
		Message:        text,
	})

	cn.pending = result.Pending
	if result.Pending != nil && result.Pending.Kind == assist.PendingCategory {
		cn.lastMessage = text
	}

	s.sendTurn(cn, result)
}

func (s *Server) handleConfirmCategory(ctx context.Context, cn *conn, payload json.RawMessage) {
	if cn.pending == nil || cn.pending.Kind != assist.PendingCategory || cn.lastMessage == "" {
		cn.sendError("NOTHING_PENDING", "There is nothing waiting for confirmation.")
		return
	}

	category := cn.pending.Category
	if len(payload) > 0 {
		var body struct {
			Category string `json:"category"`
		}
		if err := json.Unmarshal(payload, &body); err == nil && body.Category != "" {
			category = assist.Category(body.Category)
		}
	}

	message := cn.lastMessage
	cn.pending = nil
	cn.lastMessage = ""

	cn.send(ServerFrame{Type: FrameTyping})
	rc := observability.NewRequestContext(slog.Default(), cn.user.ID)
	result := s.assistant.ExecuteCategory(ctx, rc, assist.TurnInput{
		UserID:         cn.user.ID,
		ConversationID: cn.conversationID,
		Message:        message,
	}, category)

	cn.pending = result.Pending
	s.sendTurn(cn, result)
}

// handleNewConversation archives the user's active conversation and starts a
// fresh one, dropping any carried context.
func (s *Server) handleNewConversation(ctx context.Context, cn *conn) {
	if cn.conversationID != 0 {
		archived := store.Archived
		now := time.Now().Unix()
		if _, err := s.store.UpdateChatConversation(ctx, &store.UpdateChatConversation{
			ID:        cn.conversationID,
			RowStatus: &archived,
			UpdatedTs: &now,
		}); err != nil {
			slog.Warn("failed to archive conversation",
				slog.Int("conversation_id", int(cn.conversationID)),
				slog.Any("error", err))
		}
	}

	cn.conversationID = 0
	cn.pending = nil
	cn.lastMessage = ""
	if err := s.ensureConversation(ctx, cn); err != nil {
		cn.sendError("STORE_UNAVAILABLE", "Could not start a new conversation. Try again.")
		return
	}
	cn.send(ServerFrame{
		Type:           FrameSystem,
		Text:           "Started a new conversation.",
		ConversationID: cn.conversationID,
	})
}

func (s *Server) handleConfirmCPH(ctx context.Context, cn *conn, payload json.RawMessage) {
	var req forecastapi.CPHUpdateRequest
	switch {
	case len(payload) > 0:
		if err := json.Unmarshal(payload, &req); err != nil {
			cn.sendError("BAD_PAYLOAD", "The CPH confirmation payload is malformed.")
			return
		}
	case cn.pending != nil && cn.pending.Kind == assist.PendingCPHUpdate && cn.pending.CPH != nil:
		req = *cn.pending.CPH
	default:
		cn.sendError("NOTHING_PENDING", "There is no CPH update waiting for confirmation.")
		return
	}
	cn.pending = nil

	rc := observability.NewRequestContext(slog.Default(), cn.user.ID)
	response := s.assistant.ConfirmCPHUpdate(ctx, rc, req)
	cn.send(ServerFrame{
		Type:       FrameCPHUpdateResult,
		Text:       response.Text,
		HTML:       response.HTML,
		Components: response.Components,
	})
}

// sendTurn renders one TurnResult: a tool_result frame first when the turn
// produced structured pipeline output, then the assistant's response.
func (s *Server) sendTurn(cn *conn, result *assist.TurnResult) {
	if result.Validation != nil || result.Diagnostic != nil {
		cn.send(ServerFrame{
			Type: FrameToolResult,
			Data: map[string]any{
				"validation": result.Validation,
				"diagnostic": result.Diagnostic,
			},
		})
	}

	frame := ServerFrame{
		Type:           FrameAssistantResponse,
		Category:       string(result.Category),
		ConversationID: cn.conversationID,
		Pending:        result.Pending,
	}
	if result.Response != nil {
		frame.Text = result.Response.Text
		frame.HTML = result.Response.HTML
		frame.Components = result.Response.Components
	}
	cn.send(frame)
}

// ensureConversation lazily creates the user's conversation row.
func (s *Server) ensureConversation(ctx context.Context, cn *conn) error {
	if cn.conversationID != 0 {
		return nil
	}
	now := time.Now().Unix()
	conversation, err := s.store.CreateChatConversation(ctx, &store.ChatConversation{
		UID:       shortuuid.New(),
		CreatorID: cn.user.ID,
		Title:     "Forecast chat",
		CreatedTs: now,
		UpdatedTs: now,
		RowStatus: store.Normal,
	})
	if err != nil {
		return err
	}
	cn.conversationID = conversation.ID
	return nil
}

func (cn *conn) send(frame ServerFrame) {
	frame.Timestamp = time.Now().UTC().Format(time.RFC3339)
	if err := cn.ws.WriteJSON(frame); err != nil {
		slog.Debug("websocket write failed", slog.Any("error", err))
	}
}

func (cn *conn) sendError(code, message string) {
	cn.send(ServerFrame{Type: FrameError, Error: &FrameErrorBody{Code: code, Message: message}})
}
