// Package store provides database access to all raw objects.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/staffsense/staffsense/internal/profile"
	"github.com/staffsense/staffsense/store/cache"
)

const (
	userCacheKeyPrefix    = "user:"
	contextCacheKeyPrefix = "convctx:"
	contextCacheTTL       = 30 * time.Minute
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	userCache    *cache.Service
	contextCache *cache.Service
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	cacheConfig := cache.Config{
		DefaultTTL:      10 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		Capacity:        1000,
	}

	return &Store{
		driver:       driver,
		profile:      profile,
		userCache:    cache.NewService(cacheConfig),
		contextCache: cache.NewService(cacheConfig),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	s.userCache.Close()
	s.contextCache.Close()
	return s.driver.Close()
}

// User methods.

func (s *Store) CreateUser(ctx context.Context, create *User) (*User, error) {
	return s.driver.CreateUser(ctx, create)
}

func (s *Store) GetUser(ctx context.Context, find *FindUser) (*User, error) {
	if find.ID != nil {
		if cached, ok := s.userCache.Get(ctx, userCacheKey(*find.ID)); ok {
			user := &User{}
			if err := json.Unmarshal(cached, user); err == nil {
				return user, nil
			}
		}
	}

	users, err := s.driver.ListUsers(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}

	user := users[0]
	if data, err := json.Marshal(user); err == nil {
		_ = s.userCache.Set(ctx, userCacheKey(user.ID), data, 0)
	}
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context, find *FindUser) ([]*User, error) {
	return s.driver.ListUsers(ctx, find)
}

func (s *Store) UpdateUser(ctx context.Context, update *UpdateUser) (*User, error) {
	user, err := s.driver.UpdateUser(ctx, update)
	if err != nil {
		return nil, err
	}
	_ = s.userCache.Invalidate(ctx, userCacheKey(update.ID))
	return user, nil
}

// ChatConversation methods.

func (s *Store) CreateChatConversation(ctx context.Context, create *ChatConversation) (*ChatConversation, error) {
	return s.driver.CreateChatConversation(ctx, create)
}

func (s *Store) ListChatConversations(ctx context.Context, find *FindChatConversation) ([]*ChatConversation, error) {
	return s.driver.ListChatConversations(ctx, find)
}

// GetActiveChatConversation returns the user's single NORMAL conversation,
// or nil when they have none.
func (s *Store) GetActiveChatConversation(ctx context.Context, creatorID int32) (*ChatConversation, error) {
	normal := Normal
	conversations, err := s.driver.ListChatConversations(ctx, &FindChatConversation{
		CreatorID: &creatorID,
		RowStatus: &normal,
	})
	if err != nil {
		return nil, err
	}
	if len(conversations) == 0 {
		return nil, nil
	}
	return conversations[0], nil
}

func (s *Store) UpdateChatConversation(ctx context.Context, update *UpdateChatConversation) (*ChatConversation, error) {
	return s.driver.UpdateChatConversation(ctx, update)
}

func (s *Store) DeleteChatConversation(ctx context.Context, delete *DeleteChatConversation) error {
	if err := s.driver.DeleteChatConversation(ctx, delete); err != nil {
		return err
	}
	_ = s.contextCache.Invalidate(ctx, contextCacheKey(delete.ID))
	return nil
}

// ChatMessage methods.

func (s *Store) CreateChatMessage(ctx context.Context, create *ChatMessage) (*ChatMessage, error) {
	return s.driver.CreateChatMessage(ctx, create)
}

func (s *Store) ListChatMessages(ctx context.Context, find *FindChatMessage) ([]*ChatMessage, error) {
	return s.driver.ListChatMessages(ctx, find)
}

// ConversationContext methods. The row is cached because it is read on
// every chat turn.

func (s *Store) UpsertConversationContext(ctx context.Context, upsert *ConversationContextRow) (*ConversationContextRow, error) {
	now := time.Now().Unix()
	if upsert.CreatedTs == 0 {
		upsert.CreatedTs = now
	}
	upsert.UpdatedTs = now

	row, err := s.driver.UpsertConversationContext(ctx, upsert)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(row); err == nil {
		_ = s.contextCache.Set(ctx, contextCacheKey(row.ConversationID), data, contextCacheTTL)
	}
	return row, nil
}

func (s *Store) GetConversationContext(ctx context.Context, find *FindConversationContext) (*ConversationContextRow, error) {
	if find.ConversationID != nil {
		if cached, ok := s.contextCache.Get(ctx, contextCacheKey(*find.ConversationID)); ok {
			row := &ConversationContextRow{}
			if err := json.Unmarshal(cached, row); err == nil {
				return row, nil
			}
		}
	}

	row, err := s.driver.GetConversationContext(ctx, find)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}

	if data, err := json.Marshal(row); err == nil {
		_ = s.contextCache.Set(ctx, contextCacheKey(row.ConversationID), data, contextCacheTTL)
	}
	return row, nil
}

func (s *Store) DeleteConversationContext(ctx context.Context, delete *DeleteConversationContext) error {
	if err := s.driver.DeleteConversationContext(ctx, delete); err != nil {
		return err
	}
	return s.contextCache.Invalidate(ctx, contextCacheKey(delete.ConversationID))
}

func userCacheKey(id int32) string {
	return fmt.Sprintf("%s%d", userCacheKeyPrefix, id)
}

func contextCacheKey(conversationID int32) string {
	return fmt.Sprintf("%s%d", contextCacheKeyPrefix, conversationID)
}
