package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersionSettingName = "schema_version"

func (d *DB) GetSchemaVersion(ctx context.Context) (string, error) {
	var value string
	err := d.db.QueryRowContext(ctx,
		`SELECT value FROM system_setting WHERE name = $1`, schemaVersionSettingName,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get schema version: %w", err)
	}
	return value, nil
}

func (d *DB) UpsertSchemaVersion(ctx context.Context, version string) error {
	stmt := `INSERT INTO system_setting (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`
	if _, err := d.db.ExecContext(ctx, stmt, schemaVersionSettingName, version); err != nil {
		return fmt.Errorf("failed to upsert schema version: %w", err)
	}
	return nil
}
