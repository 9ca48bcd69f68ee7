package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// User model related methods.
	CreateUser(ctx context.Context, create *User) (*User, error)
	ListUsers(ctx context.Context, find *FindUser) ([]*User, error)
	UpdateUser(ctx context.Context, update *UpdateUser) (*User, error)
	DeleteUser(ctx context.Context, delete *DeleteUser) error

	// ChatConversation model related methods.
	CreateChatConversation(ctx context.Context, create *ChatConversation) (*ChatConversation, error)
	ListChatConversations(ctx context.Context, find *FindChatConversation) ([]*ChatConversation, error)
	UpdateChatConversation(ctx context.Context, update *UpdateChatConversation) (*ChatConversation, error)
	DeleteChatConversation(ctx context.Context, delete *DeleteChatConversation) error

	// ChatMessage model related methods.
	CreateChatMessage(ctx context.Context, create *ChatMessage) (*ChatMessage, error)
	ListChatMessages(ctx context.Context, find *FindChatMessage) ([]*ChatMessage, error)
	DeleteChatMessage(ctx context.Context, delete *DeleteChatMessage) error

	// ConversationContext model related methods.
	UpsertConversationContext(ctx context.Context, upsert *ConversationContextRow) (*ConversationContextRow, error)
	GetConversationContext(ctx context.Context, find *FindConversationContext) (*ConversationContextRow, error)
	DeleteConversationContext(ctx context.Context, delete *DeleteConversationContext) error

	// System setting methods used by the migrator.
	GetSchemaVersion(ctx context.Context) (string, error)
	UpsertSchemaVersion(ctx context.Context, version string) error
}
