package store

// ChatConversation is a durable conversation row. A user has at most one
// conversation with RowStatus NORMAL; starting a new conversation archives
// the previous one.
type ChatConversation struct {
	ID        int32
	UID       string
	CreatorID int32
	Title     string
	CreatedTs int64
	UpdatedTs int64
	RowStatus RowStatus
}

type FindChatConversation struct {
	ID        *int32
	UID       *string
	CreatorID *int32
	RowStatus *RowStatus
}

type UpdateChatConversation struct {
	ID        int32
	Title     *string
	RowStatus *RowStatus
	UpdatedTs *int64
}

type DeleteChatConversation struct {
	ID int32
}

// ChatMessageRole is the author role of a chat message.
type ChatMessageRole string

const (
	ChatMessageRoleUser      ChatMessageRole = "USER"
	ChatMessageRoleAssistant ChatMessageRole = "ASSISTANT"
	ChatMessageRoleSystem    ChatMessageRole = "SYSTEM"
)

// ChatMessage is a durable message row. Metadata carries the structured
// response payload (components, validation summaries) as JSON.
type ChatMessage struct {
	ID             int32
	UID            string
	ConversationID int32
	Role           ChatMessageRole
	Content        string
	Metadata       string // JSON string
	CreatedTs      int64
}

type FindChatMessage struct {
	ID             *int32
	UID            *string
	ConversationID *int32
	Limit          *int
}

type DeleteChatMessage struct {
	ID             *int32
	ConversationID *int32
}

// ConversationContextRow persists the resolved conversation context for a
// conversation. ContextData is the JSON serialization of the pipeline's
// typed context (filters, report period, selected row, display prefs).
type ConversationContextRow struct {
	ConversationID int32
	UserID         int32
	ContextData    string // JSON string
	CreatedTs      int64
	UpdatedTs      int64
}

type FindConversationContext struct {
	ConversationID *int32
	UserID         *int32
}

type DeleteConversationContext struct {
	ConversationID int32
}
