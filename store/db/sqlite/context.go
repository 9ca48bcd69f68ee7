package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/staffsense/staffsense/store"
)

func (d *DB) UpsertConversationContext(ctx context.Context, upsert *store.ConversationContextRow) (*store.ConversationContextRow, error) {
	stmt := `INSERT INTO conversation_context (conversation_id, user_id, context_data, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			user_id = excluded.user_id,
			context_data = excluded.context_data,
			updated_ts = excluded.updated_ts`
	if _, err := d.db.ExecContext(ctx, stmt,
		upsert.ConversationID, upsert.UserID, upsert.ContextData, upsert.CreatedTs, upsert.UpdatedTs,
	); err != nil {
		return nil, fmt.Errorf("failed to upsert conversation context: %w", err)
	}
	return upsert, nil
}

func (d *DB) GetConversationContext(ctx context.Context, find *store.FindConversationContext) (*store.ConversationContextRow, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ConversationID != nil {
		where, args = append(where, "conversation_id = ?"), append(args, *find.ConversationID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *find.UserID)
	}

	query := `SELECT conversation_id, user_id, context_data, created_ts, updated_ts FROM conversation_context
		WHERE ` + strings.Join(where, " AND ")
	row := &store.ConversationContextRow{}
	err := d.db.QueryRowContext(ctx, query, args...).Scan(
		&row.ConversationID, &row.UserID, &row.ContextData, &row.CreatedTs, &row.UpdatedTs,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation context: %w", err)
	}
	return row, nil
}

func (d *DB) DeleteConversationContext(ctx context.Context, delete *store.DeleteConversationContext) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM conversation_context WHERE conversation_id = ?`, delete.ConversationID); err != nil {
		return fmt.Errorf("failed to delete conversation context: %w", err)
	}
	return nil
}
