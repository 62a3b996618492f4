//go:build integration

package repository_test

import (
	"context"
	"database/sql"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/evms/internal/database"
	"github.com/iliyamo/evms/internal/model"
	"github.com/iliyamo/evms/internal/repository"
)

var testDB *sql.DB

// child tables first so deletes and drops never hit a foreign key
var tables = []string{
	"migration_logs", "refunds", "payments", "invoice_items", "invoices",
	"documents", "registrations", "events", "venues", "refresh_tokens",
	"users", "colleges",
}

func TestMain(m *testing.M) {
	var err error
	testDB, err = database.Open(
		getEnv("TEST_DB_USER", "root"),
		getEnv("TEST_DB_PASSWORD", ""),
		getEnv("TEST_DB_HOST", "localhost"),
		getEnv("TEST_DB_PORT", "3307"),
		getEnv("TEST_DB_NAME", "evms_test"),
	)
	if err != nil {
		log.Fatalf("failed to connect to test database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	dropTables(ctx)
	if err := database.Migrate(ctx, testDB); err != nil {
		log.Fatalf("failed to migrate test database: %v", err)
	}
	cancel()

	code := m.Run()

	dropTables(context.Background())
	_ = testDB.Close()
	os.Exit(code)
}

func dropTables(ctx context.Context) {
	for _, t := range tables {
		_, _ = testDB.ExecContext(ctx, "DROP TABLE IF EXISTS "+t)
	}
}

func cleanTables(t *testing.T) {
	t.Helper()
	for _, name := range tables {
		_, err := testDB.ExecContext(t.Context(), "DELETE FROM "+name)
		require.NoError(t, err)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func createUser(t *testing.T, email, role string) *model.User {
	t.Helper()
	u := &model.User{Email: email, PasswordHash: "x", Name: "Test " + role, Role: role}
	require.NoError(t, repository.NewUserRepo(testDB).Create(t.Context(), u))
	return u
}

func createEvent(t *testing.T, requester uint64, status string, capacity *int) *model.Event {
	t.Helper()
	start, end := "09:30", "11:00"
	e := &model.Event{
		Title:       "Orientation",
		Date:        "2026-09-01",
		StartTime:   &start,
		EndTime:     &end,
		MaxCapacity: capacity,
		Status:      status,
		RequesterID: requester,
	}
	require.NoError(t, repository.NewEventRepo(testDB).Create(t.Context(), e))
	return e
}
