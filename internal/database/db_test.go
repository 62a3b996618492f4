package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "root@tcp(localhost:3306)/evms?charset=utf8mb4&parseTime=true&loc=UTC",
		DSN("root", "", "localhost", "3306", "evms"))
	assert.Equal(t, "root:secret@tcp(db:3306)/evms?charset=utf8mb4&parseTime=true&loc=UTC",
		DSN("root", "secret", "db", "3306", "evms"))
}

func TestStatements(t *testing.T) {
	stmts := Statements()
	require.Len(t, stmts, 12)
	for _, s := range stmts {
		assert.True(t, strings.HasPrefix(s, "CREATE TABLE IF NOT EXISTS"), s)
	}
	// referenced tables must be created first
	idx := func(table string) int {
		for i, s := range stmts {
			if strings.HasPrefix(s, "CREATE TABLE IF NOT EXISTS "+table+" ") {
				return i
			}
		}
		t.Fatalf("table %s missing", table)
		return -1
	}
	assert.Less(t, idx("colleges"), idx("users"))
	assert.Less(t, idx("users"), idx("events"))
	assert.Less(t, idx("venues"), idx("events"))
	assert.Less(t, idx("events"), idx("registrations"))
	assert.Less(t, idx("invoices"), idx("payments"))
}
