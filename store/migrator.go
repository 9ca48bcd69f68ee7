package store

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/staffsense/staffsense/internal/version"
)

// Migration flow:
//  1. preMigrate: if the DB is uninitialized, apply LATEST.sql and stamp the
//     current schema version.
//  2. prod mode: apply incremental migrations between the stored schema
//     version and the target version, in lexicographic file order.
//
// Migration files live under store/migration/{driver}/{version}/NN__description.sql.
// LATEST.sql holds the full schema for fresh installations.

//go:embed migration
var migrationFS embed.FS

const (
	// MigrateFileNameSplit is the split character between the patch number
	// and the description in a migration file name, e.g. "1__create_table.sql".
	MigrateFileNameSplit = "__"
	// LatestSchemaFileName is the full schema applied to fresh installations.
	LatestSchemaFileName = "LATEST.sql"
)

func validateMigrationFileName(filename string) error {
	if !strings.Contains(filename, MigrateFileNameSplit) {
		return errors.Errorf("invalid migration filename format (missing %s): %s", MigrateFileNameSplit, filename)
	}
	parts := strings.Split(filename, MigrateFileNameSplit)
	if len(parts) < 2 {
		return errors.Errorf("invalid migration filename format: %s", filename)
	}
	if _, err := strconv.Atoi(parts[0]); err != nil {
		return errors.Errorf("migration filename must start with a number: %s", filename)
	}
	return nil
}

// Migrate brings the database schema up to the current version.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.preMigrate(ctx); err != nil {
		return errors.Wrap(err, "failed to pre-migrate")
	}

	if s.profile.Mode != "prod" {
		return nil
	}

	currentVersion := version.GetCurrentVersion(s.profile.Mode)
	schemaVersion, err := s.driver.GetSchemaVersion(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get schema version")
	}

	files, err := s.collectMigrationFiles(schemaVersion, currentVersion)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}

	slog.Info("applying migrations",
		slog.String("from", schemaVersion),
		slog.String("to", currentVersion),
		slog.Int("files", len(files)))

	for _, file := range files {
		if err := s.executeMigrationFile(ctx, file); err != nil {
			return errors.Wrapf(err, "failed to apply migration %s", file)
		}
	}

	if err := s.driver.UpsertSchemaVersion(ctx, version.GetSchemaVersion(currentVersion)); err != nil {
		return errors.Wrap(err, "failed to record schema version")
	}
	return nil
}

func (s *Store) preMigrate(ctx context.Context) error {
	initialized, err := s.driver.IsInitialized(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to check database initialization")
	}
	if initialized {
		return nil
	}

	latest := filepath.Join("migration", s.profile.Driver, LatestSchemaFileName)
	buf, err := migrationFS.ReadFile(latest)
	if err != nil {
		return errors.Wrapf(err, "failed to read latest schema file %s", latest)
	}

	if _, err := s.driver.GetDB().ExecContext(ctx, string(buf)); err != nil {
		return errors.Wrap(err, "failed to apply latest schema")
	}

	currentVersion := version.GetCurrentVersion(s.profile.Mode)
	if err := s.driver.UpsertSchemaVersion(ctx, version.GetSchemaVersion(currentVersion)); err != nil {
		return errors.Wrap(err, "failed to stamp schema version")
	}

	slog.Info("database initialized", slog.String("schema_version", version.GetSchemaVersion(currentVersion)))
	return nil
}

// collectMigrationFiles returns all migration files with a version greater
// than the stored schema version and no greater than the target version,
// sorted by (version, filename).
func (s *Store) collectMigrationFiles(schemaVersion, targetVersion string) ([]string, error) {
	root := filepath.Join("migration", s.profile.Driver)

	var files []string
	err := fs.WalkDir(migrationFS, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() == LatestSchemaFileName {
			return nil
		}
		if err := validateMigrationFileName(d.Name()); err != nil {
			return err
		}

		fileVersion := filepath.Base(filepath.Dir(path))
		if version.IsVersionGreaterThan(fileVersion, schemaVersion) &&
			version.IsVersionGreaterOrEqualThan(targetVersion, fileVersion) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to walk migration files")
	}

	sort.Strings(files)
	return files, nil
}

func (s *Store) executeMigrationFile(ctx context.Context, path string) error {
	buf, err := migrationFS.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read migration file %s", path)
	}

	stmt := strings.TrimSpace(string(buf))
	if stmt == "" {
		return fmt.Errorf("empty migration file: %s", path)
	}

	if _, err := s.driver.GetDB().ExecContext(ctx, stmt); err != nil {
		return err
	}
	slog.Info("applied migration", slog.String("file", path))
	return nil
}
