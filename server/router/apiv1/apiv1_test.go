package apiv1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staffsense/staffsense/internal/profile"
	"github.com/staffsense/staffsense/store"
	storetest "github.com/staffsense/staffsense/store/test"
)

func newTestServer(t *testing.T) (*echo.Echo, *store.Store) {
	st := storetest.NewTestingStore(context.Background(), t)
	e := echo.New()
	NewAPIV1Service("test-secret", &profile.Profile{Mode: "dev"}, st).RegisterRoutes(e)
	return e, st
}

func doJSON(e *echo.Echo, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func signIn(t *testing.T, e *echo.Echo, username string) string {
	rec := doJSON(e, http.MethodPost, "/api/v1/auth/signin", "", `{"username":"`+username+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body signInResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Token)
	return body.Token
}

func TestHealthz(t *testing.T) {
	e, _ := newTestServer(t)
	rec := doJSON(e, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSignInCreatesUserOnce(t *testing.T) {
	e, st := newTestServer(t)

	signIn(t, e, "planner")
	signIn(t, e, "planner")

	users, err := st.ListUsers(context.Background(), &store.FindUser{})
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestConversationRoutesRequireAuth(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodGet, "/api/v1/conversations", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/v1/conversations", "not-a-token", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConversationLifecycle(t *testing.T) {
	e, _ := newTestServer(t)
	token := signIn(t, e, "planner")

	rec := doJSON(e, http.MethodPost, "/api/v1/conversations", token, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var first conversationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.Equal(t, "NORMAL", first.RowStatus)

	// Starting another conversation archives the first.
	rec = doJSON(e, http.MethodPost, "/api/v1/conversations", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/v1/conversations", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var conversations []conversationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conversations))
	require.Len(t, conversations, 2)

	statuses := map[string]int{}
	for _, cv := range conversations {
		statuses[cv.RowStatus]++
	}
	assert.Equal(t, 1, statuses["NORMAL"])
	assert.Equal(t, 1, statuses["ARCHIVED"])
}

func TestListMessagesScopedToOwner(t *testing.T) {
	e, st := newTestServer(t)
	ownerToken := signIn(t, e, "owner")
	otherToken := signIn(t, e, "other")

	rec := doJSON(e, http.MethodPost, "/api/v1/conversations", ownerToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var conversation conversationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conversation))

	_, err := st.CreateChatMessage(context.Background(), &store.ChatMessage{
		UID:            "msg-1",
		ConversationID: conversation.ID,
		Role:           store.ChatMessageRoleUser,
		Content:        "show forecast for March 2025",
		Metadata:       "{}",
		CreatedTs:      1,
	})
	require.NoError(t, err)

	path := "/api/v1/conversations/" + itoa(conversation.ID) + "/messages"
	rec = doJSON(e, http.MethodGet, path, ownerToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var messages []messageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, "USER", messages[0].Role)

	// Another user cannot read it.
	rec = doJSON(e, http.MethodGet, path, otherToken, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLLMUsageAdminOnly(t *testing.T) {
	e, _ := newTestServer(t)
	token := signIn(t, e, "planner")

	rec := doJSON(e, http.MethodGet, "/api/v1/llm/usage", token, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
