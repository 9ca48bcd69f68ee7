package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/staffsense/staffsense/store"
)

func (d *DB) CreateUser(ctx context.Context, create *store.User) (*store.User, error) {
	fields := []string{"username", "nickname", "role", "created_ts", "updated_ts", "row_status"}
	args := []any{create.Username, create.Nickname, create.Role, create.CreatedTs, create.UpdatedTs, create.RowStatus}

	stmt := `INSERT INTO user (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return create, nil
}

func (d *DB) ListUsers(ctx context.Context, find *store.FindUser) ([]*store.User, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.Username != nil {
		where, args = append(where, "username = ?"), append(args, *find.Username)
	}
	if find.Role != nil {
		where, args = append(where, "role = ?"), append(args, *find.Role)
	}
	if find.RowStatus != nil {
		where, args = append(where, "row_status = ?"), append(args, *find.RowStatus)
	}

	query := `SELECT id, username, nickname, role, created_ts, updated_ts, row_status FROM user
		WHERE ` + strings.Join(where, " AND ") + ` ORDER BY id`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	list := make([]*store.User, 0)
	for rows.Next() {
		u := &store.User{}
		if err := rows.Scan(&u.ID, &u.Username, &u.Nickname, &u.Role, &u.CreatedTs, &u.UpdatedTs, &u.RowStatus); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		list = append(list, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return list, nil
}

func (d *DB) UpdateUser(ctx context.Context, update *store.UpdateUser) (*store.User, error) {
	set, args := []string{}, []any{}

	if update.Nickname != nil {
		set, args = append(set, "nickname = ?"), append(args, *update.Nickname)
	}
	if update.Role != nil {
		set, args = append(set, "role = ?"), append(args, *update.Role)
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
	stmt := `UPDATE user SET ` + strings.Join(set, ", ") + ` WHERE id = ?
		RETURNING id, username, nickname, role, created_ts, updated_ts, row_status`
	u := &store.User{}
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(
		&u.ID, &u.Username, &u.Nickname, &u.Role, &u.CreatedTs, &u.UpdatedTs, &u.RowStatus,
	); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return u, nil
}

func (d *DB) DeleteUser(ctx context.Context, delete *store.DeleteUser) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM user WHERE id = ?`, delete.ID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}
