package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/staffsense/staffsense/store"
)

func (d *DB) CreateChatConversation(ctx context.Context, create *store.ChatConversation) (*store.ChatConversation, error) {
	fields := []string{"uid", "creator_id", "title", "created_ts", "updated_ts", "row_status"}
	args := []any{create.UID, create.CreatorID, create.Title, create.CreatedTs, create.UpdatedTs, create.RowStatus}

	stmt := `INSERT INTO chat_conversation (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create chat conversation: %w", err)
	}
	return create, nil
}

func (d *DB) ListChatConversations(ctx context.Context, find *store.FindChatConversation) ([]*store.ChatConversation, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = ?"), append(args, *find.UID)
	}
	if find.CreatorID != nil {
		where, args = append(where, "creator_id = ?"), append(args, *find.CreatorID)
	}
	if find.RowStatus != nil {
		where, args = append(where, "row_status = ?"), append(args, *find.RowStatus)
	}

	query := `SELECT id, uid, creator_id, title, created_ts, updated_ts, row_status FROM chat_conversation
		WHERE ` + strings.Join(where, " AND ") + ` ORDER BY updated_ts DESC, id DESC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat conversations: %w", err)
	}
	defer rows.Close()

	list := make([]*store.ChatConversation, 0)
	for rows.Next() {
		c := &store.ChatConversation{}
		if err := rows.Scan(&c.ID, &c.UID, &c.CreatorID, &c.Title, &c.CreatedTs, &c.UpdatedTs, &c.RowStatus); err != nil {
			return nil, fmt.Errorf("failed to scan chat conversation: %w", err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat conversations: %w", err)
	}
	return list, nil
}

func (d *DB) UpdateChatConversation(ctx context.Context, update *store.UpdateChatConversation) (*store.ChatConversation, error) {
	set, args := []string{}, []any{}

	if update.Title != nil {
		set, args = append(set, "title = ?"), append(args, *update.Title)
	}
	if update.RowStatus != nil {
		set, args = append(set, "row_status = ?"), append(args, *update.RowStatus)
	}
	if update.UpdatedTs != nil {
		set, args = append(set, "updated_ts = ?"), append(args, *update.UpdatedTs)
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}

	args = append(args, update.ID)
	stmt := `UPDATE chat_conversation SET ` + strings.Join(set, ", ") + ` WHERE id = ?
		RETURNING id, uid, creator_id, title, created_ts, updated_ts, row_status`
	c := &store.ChatConversation{}
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(
		&c.ID, &c.UID, &c.CreatorID, &c.Title, &c.CreatedTs, &c.UpdatedTs, &c.RowStatus,
	); err != nil {
		return nil, fmt.Errorf("failed to update chat conversation: %w", err)
	}
	return c, nil
}

func (d *DB) DeleteChatConversation(ctx context.Context, delete *store.DeleteChatConversation) error {
	// Messages and context go with the conversation.
	if _, err := d.db.ExecContext(ctx, `DELETE FROM chat_message WHERE conversation_id = ?`, delete.ID); err != nil {
		return fmt.Errorf("failed to delete chat messages: %w", err)
	}
	if _, err := d.db.ExecContext(ctx, `DELETE FROM conversation_context WHERE conversation_id = ?`, delete.ID); err != nil {
		return fmt.Errorf("failed to delete conversation context: %w", err)
	}
	if _, err := d.db.ExecContext(ctx, `DELETE FROM chat_conversation WHERE id = ?`, delete.ID); err != nil {
		return fmt.Errorf("failed to delete chat conversation: %w", err)
	}
	return nil
}

func (d *DB) CreateChatMessage(ctx context.Context, create *store.ChatMessage) (*store.ChatMessage, error) {
	fields := []string{"uid", "conversation_id", "role", "content", "metadata", "created_ts"}
	args := []any{create.UID, create.ConversationID, create.Role, create.Content, create.Metadata, create.CreatedTs}

	stmt := `INSERT INTO chat_message (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create chat message: %w", err)
	}
	return create, nil
}

func (d *DB) ListChatMessages(ctx context.Context, find *store.FindChatMessage) ([]*store.ChatMessage, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = ?"), append(args, *find.UID)
	}
	if find.ConversationID != nil {
		where, args = append(where, "conversation_id = ?"), append(args, *find.ConversationID)
	}

	query := `SELECT id, uid, conversation_id, role, content, metadata, created_ts FROM chat_message
		WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_ts DESC, id DESC`
	if find.Limit != nil {
		query += fmt.Sprintf(" LIMIT %d", *find.Limit)
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer rows.Close()

	list := make([]*store.ChatMessage, 0)
	for rows.Next() {
		m := &store.ChatMessage{}
		if err := rows.Scan(&m.ID, &m.UID, &m.ConversationID, &m.Role, &m.Content, &m.Metadata, &m.CreatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat messages: %w", err)
	}
	return list, nil
}

func (d *DB) DeleteChatMessage(ctx context.Context, delete *store.DeleteChatMessage) error {
	where, args := []string{}, []any{}

	if delete.ID != nil {
		where, args = append(where, "id = ?"), append(args, *delete.ID)
	}
	if delete.ConversationID != nil {
		where, args = append(where, "conversation_id = ?"), append(args, *delete.ConversationID)
	}
	if len(where) == 0 {
		return fmt.Errorf("no delete condition")
	}

	stmt := `DELETE FROM chat_message WHERE ` + strings.Join(where, " AND ")
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to delete chat message: %w", err)
	}
	return nil
}
