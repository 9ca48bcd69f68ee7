package test

import (
	"context"
	"testing"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staffsense/staffsense/store"
)

func createConversation(ctx context.Context, t *testing.T, st *store.Store, creatorID int32) *store.ChatConversation {
	now := time.Now().Unix()
	conversation, err := st.CreateChatConversation(ctx, &store.ChatConversation{
		UID:       shortuuid.New(),
		CreatorID: creatorID,
		Title:     "Forecast chat",
		CreatedTs: now,
		UpdatedTs: now,
		RowStatus: store.Normal,
	})
	require.NoError(t, err)
	return conversation
}

func TestChatConversationLifecycle(t *testing.T) {
	ctx := context.Background()
	st := NewTestingStore(ctx, t)
	user := CreateTestingUser(ctx, t, st, "planner")

	conversation := createConversation(ctx, t, st, user.ID)
	require.NotZero(t, conversation.ID)

	active, err := st.GetActiveChatConversation(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, conversation.ID, active.ID)

	// Archiving removes it from the active lookup.
	archived := store.Archived
	now := time.Now().Unix()
	_, err = st.UpdateChatConversation(ctx, &store.UpdateChatConversation{
		ID:        conversation.ID,
		RowStatus: &archived,
		UpdatedTs: &now,
	})
	require.NoError(t, err)

	active, err = st.GetActiveChatConversation(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, active)

	// The archived row is still listable.
	conversations, err := st.ListChatConversations(ctx, &store.FindChatConversation{CreatorID: &user.ID})
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	assert.Equal(t, store.Archived, conversations[0].RowStatus)
}

func TestChatMessagesNewestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	st := NewTestingStore(ctx, t)
	user := CreateTestingUser(ctx, t, st, "planner")
	conversation := createConversation(ctx, t, st, user.ID)

	for i, content := range []string{"first", "second", "third"} {
		_, err := st.CreateChatMessage(ctx, &store.ChatMessage{
			UID:            shortuuid.New(),
			ConversationID: conversation.ID,
			Role:           store.ChatMessageRoleUser,
			Content:        content,
			Metadata:       "{}",
			CreatedTs:      time.Now().Unix() + int64(i),
		})
		require.NoError(t, err)
	}

	limit := 2
	messages, err := st.ListChatMessages(ctx, &store.FindChatMessage{
		ConversationID: &conversation.ID,
		Limit:          &limit,
	})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "third", messages[0].Content)
	assert.Equal(t, "second", messages[1].Content)
}

func TestConversationContextUpsert(t *testing.T) {
	ctx := context.Background()
	st := NewTestingStore(ctx, t)
	user := CreateTestingUser(ctx, t, st, "planner")
	conversation := createConversation(ctx, t, st, user.ID)

	first, err := st.UpsertConversationContext(ctx, &store.ConversationContextRow{
		ConversationID: conversation.ID,
		UserID:         user.ID,
		ContextData:    `{"month":"3","year":"2025"}`,
	})
	require.NoError(t, err)
	require.NotNil(t, first)

	// Second upsert for the same conversation replaces, not duplicates.
	_, err = st.UpsertConversationContext(ctx, &store.ConversationContextRow{
		ConversationID: conversation.ID,
		UserID:         user.ID,
		ContextData:    `{"month":"4","year":"2025"}`,
	})
	require.NoError(t, err)

	row, err := st.GetConversationContext(ctx, &store.FindConversationContext{
		ConversationID: &conversation.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.JSONEq(t, `{"month":"4","year":"2025"}`, row.ContextData)
}

func TestDeleteConversationCascades(t *testing.T) {
	ctx := context.Background()
	st := NewTestingStore(ctx, t)
	user := CreateTestingUser(ctx, t, st, "planner")
	conversation := createConversation(ctx, t, st, user.ID)

	_, err := st.CreateChatMessage(ctx, &store.ChatMessage{
		UID:            shortuuid.New(),
		ConversationID: conversation.ID,
		Role:           store.ChatMessageRoleUser,
		Content:        "show forecast",
		Metadata:       "{}",
		CreatedTs:      time.Now().Unix(),
	})
	require.NoError(t, err)
	_, err = st.UpsertConversationContext(ctx, &store.ConversationContextRow{
		ConversationID: conversation.ID,
		UserID:         user.ID,
		ContextData:    "{}",
	})
	require.NoError(t, err)

	require.NoError(t, st.DeleteChatConversation(ctx, &store.DeleteChatConversation{ID: conversation.ID}))

	messages, err := st.ListChatMessages(ctx, &store.FindChatMessage{ConversationID: &conversation.ID})
	require.NoError(t, err)
	assert.Empty(t, messages)

	row, err := st.GetConversationContext(ctx, &store.FindConversationContext{ConversationID: &conversation.ID})
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestGetUserByUsername(t *testing.T) {
	ctx := context.Background()
	st := NewTestingStore(ctx, t)
	created := CreateTestingUser(ctx, t, st, "planner")

	username := "planner"
	user, err := st.GetUser(ctx, &store.FindUser{Username: &username})
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, created.ID, user.ID)
	assert.Equal(t, store.RoleUser, user.Role)
}
