// Package apiv1 is the REST surface: health, sign-in, and conversation
// history. The conversational work itself happens over the WebSocket.
package apiv1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v4"

	"github.com/staffsense/staffsense/internal/finops"
	"github.com/staffsense/staffsense/internal/profile"
	"github.com/staffsense/staffsense/server/auth"
	"github.com/staffsense/staffsense/store"
)

type APIV1Service struct {
	Secret  string
	Profile *profile.Profile
	Store   *store.Store
}

func NewAPIV1Service(secret string, profile *profile.Profile, st *store.Store) *APIV1Service {
	return &APIV1Service{
		Secret:  secret,
		Profile: profile,
		Store:   st,
	}
}

// RegisterRoutes mounts the REST routes on e.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", s.health)
	e.POST("/api/v1/auth/signin", s.signIn)

	g := e.Group("/api/v1", s.authMiddleware)
	g.GET("/conversations", s.listConversations)
	g.POST("/conversations", s.createConversation)
	g.GET("/conversations/:id/messages", s.listMessages)
	g.GET("/llm/usage", s.llmUsage)
}

// llmUsage reports aggregated LLM spend. Admin only.
func (s *APIV1Service) llmUsage(c echo.Context) error {
	if user := currentUser(c); user.Role != store.RoleAdmin {
		return echo.NewHTTPError(http.StatusForbidden, "admin role required")
	}
	return c.JSON(http.StatusOK, finops.Default().Report())
}

func (s *APIV1Service) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type signInRequest struct {
	Username string `json:"username"`
}

type signInResponse struct {
	Token    string `json:"token"`
	UserID   int32  `json:"user_id"`
	Username string `json:"username"`
}

// signIn issues an access token, creating the user on first sign-in. Upstream
// identity (SSO, reverse-proxy auth) is expected to gate this route in prod.
func (s *APIV1Service) signIn(c echo.Context) error {
	ctx := c.Request().Context()

	var req signInRequest
	if err := c.Bind(&req); err != nil || req.Username == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username is required")
	}

	user, err := s.Store.GetUser(ctx, &store.FindUser{Username: &req.Username})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to look up user")
	}
	if user == nil {
		now := time.Now().Unix()
		user, err = s.Store.CreateUser(ctx, &store.User{
			Username:  req.Username,
			Nickname:  req.Username,
			Role:      store.RoleUser,
			CreatedTs: now,
			UpdatedTs: now,
			RowStatus: store.Normal,
		})
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to create user")
		}
	}
	if user.RowStatus == store.Archived {
		return echo.NewHTTPError(http.StatusForbidden, "user is archived")
	}

	token, err := auth.GenerateAccessToken(user.Username, user.ID, time.Now().Add(auth.AccessTokenDuration), []byte(s.Secret))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to sign token")
	}
	return c.JSON(http.StatusOK, signInResponse{Token: token, UserID: user.ID, Username: user.Username})
}

// authMiddleware resolves the bearer token to a user and stashes it on the
// echo context.
func (s *APIV1Service) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := auth.Authenticate(c.Request().Context(), s.Store, auth.TokenFromRequest(c.Request()), []byte(s.Secret))
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		c.Set("user", user)
		return next(c)
	}
}

func currentUser(c echo.Context) *store.User {
	user, _ := c.Get("user").(*store.User)
	return user
}

type conversationResponse struct {
	ID        int32  `json:"id"`
	UID       string `json:"uid"`
	Title     string `json:"title"`
	RowStatus string `json:"row_status"`
	CreatedTs int64  `json:"created_ts"`
	UpdatedTs int64  `json:"updated_ts"`
}

func (s *APIV1Service) listConversations(c echo.Context) error {
	user := currentUser(c)
	conversations, err := s.Store.ListChatConversations(c.Request().Context(), &store.FindChatConversation{
		CreatorID: &user.ID,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list conversations")
	}

	response := make([]conversationResponse, 0, len(conversations))
	for _, cv := range conversations {
		response = append(response, convertConversation(cv))
	}
	return c.JSON(http.StatusOK, response)
}

// createConversation archives the caller's active conversation and starts a
// fresh one, which also resets the carried filter context.
func (s *APIV1Service) createConversation(c echo.Context) error {
	ctx := c.Request().Context()
	user := currentUser(c)

	if active, err := s.Store.GetActiveChatConversation(ctx, user.ID); err == nil && active != nil {
		archived := store.Archived
		now := time.Now().Unix()
		if _, err := s.Store.UpdateChatConversation(ctx, &store.UpdateChatConversation{
			ID:        active.ID,
			RowStatus: &archived,
			UpdatedTs: &now,
		}); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to archive conversation")
		}
	}

	now := time.Now().Unix()
	conversation, err := s.Store.CreateChatConversation(ctx, &store.ChatConversation{
		UID:       shortuuid.New(),
		CreatorID: user.ID,
		Title:     "Forecast chat",
		CreatedTs: now,
		UpdatedTs: now,
		RowStatus: store.Normal,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create conversation")
	}
	return c.JSON(http.StatusOK, convertConversation(conversation))
}

type messageResponse struct {
	ID        int32  `json:"id"`
	UID       string `json:"uid"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Metadata  string `json:"metadata"`
	CreatedTs int64  `json:"created_ts"`
}

func (s *APIV1Service) listMessages(c echo.Context) error {
	ctx := c.Request().Context()
	user := currentUser(c)

	id, err := atoi32(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed conversation id")
	}

	conversation, err := s.Store.ListChatConversations(ctx, &store.FindChatConversation{
		ID:        &id,
		CreatorID: &user.ID,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to look up conversation")
	}
	if len(conversation) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}

	messages, err := s.Store.ListChatMessages(ctx, &store.FindChatMessage{ConversationID: &id})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list messages")
	}

	response := make([]messageResponse, 0, len(messages))
	// Store order is newest first; history reads oldest first.
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		response = append(response, messageResponse{
			ID:        m.ID,
			UID:       m.UID,
			Role:      string(m.Role),
			Content:   m.Content,
			Metadata:  m.Metadata,
			CreatedTs: m.CreatedTs,
		})
	}
	return c.JSON(http.StatusOK, response)
}

func convertConversation(cv *store.ChatConversation) conversationResponse {
	return conversationResponse{
		ID:        cv.ID,
		UID:       cv.UID,
		Title:     cv.Title,
		RowStatus: string(cv.RowStatus),
		CreatedTs: cv.CreatedTs,
		UpdatedTs: cv.UpdatedTs,
	}
}
