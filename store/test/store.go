// Package test provides store fixtures for package-level tests. By default
// tests run against a throwaway sqlite file; set STAFFSENSE_TEST_DRIVER and
// STAFFSENSE_TEST_DSN to run them against postgres instead.
package test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/staffsense/staffsense/internal/profile"
	"github.com/staffsense/staffsense/store"
	"github.com/staffsense/staffsense/store/db"
)

func getDriverFromEnv() string {
	if driver := os.Getenv("STAFFSENSE_TEST_DRIVER"); driver != "" {
		return driver
	}
	return "sqlite"
}

// NewTestingStore creates a migrated store backed by a fresh database.
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	driver := getDriverFromEnv()
	testProfile := &profile.Profile{
		Mode:    "dev",
		Driver:  driver,
		Version: "0.3.0",
	}
	switch driver {
	case "sqlite":
		testProfile.DSN = filepath.Join(t.TempDir(), "staffsense_test.db")
	case "postgres":
		testProfile.DSN = os.Getenv("STAFFSENSE_TEST_DSN")
		if testProfile.DSN == "" {
			t.Skip("postgres tests need STAFFSENSE_TEST_DSN")
		}
	default:
		t.Fatalf("unknown test driver %q", driver)
	}

	dbDriver, err := db.NewDBDriver(testProfile)
	if err != nil {
		t.Fatalf("failed to create db driver: %v", err)
	}

	st := store.New(dbDriver, testProfile)
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Logf("failed to close store: %v", err)
		}
	})
	return st
}

// CreateTestingUser inserts a user for fixtures.
func CreateTestingUser(ctx context.Context, t *testing.T, st *store.Store, username string) *store.User {
	now := time.Now().Unix()
	user, err := st.CreateUser(ctx, &store.User{
		Username:  username,
		Nickname:  username,
		Role:      store.RoleUser,
		CreatedTs: now,
		UpdatedTs: now,
		RowStatus: store.Normal,
	})
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}
