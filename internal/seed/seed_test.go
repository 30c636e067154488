package seed

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/Kabret0/douanesim/internal/db"
	"github.com/Kabret0/douanesim/internal/migrations"
)

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "seed-test.db")
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	defer database.Close()

	if err := migrations.Up(database, "../../migrations"); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	cfg := Config{
		AdminEmail:    "admin@douanesim.test",
		AdminPassword: "12345",
	}

	// 1 admin + 1 criteria singleton + the reference tariff rows.
	expectedFirstRun := 2 + len(defaultRows)

	for i := 0; i < 10; i++ {
		stats, err := Run(database, cfg)
		if err != nil {
			t.Fatalf("run seed (iteration=%d): %v", i, err)
		}
		if i == 0 {
			if stats.Inserts != expectedFirstRun {
				t.Fatalf("expected %d inserts in first run, got %d", expectedFirstRun, stats.Inserts)
			}
			continue
		}
		if stats.Inserts != 0 {
			t.Fatalf("expected 0 inserts in iteration %d, got %d", i, stats.Inserts)
		}
	}

	assertCount(t, database, `SELECT COUNT(*) FROM users WHERE email = ?`, "admin@douanesim.test", 1)
	assertCount(t, database, `SELECT COUNT(*) FROM decision_criteria WHERE id = 1`, nil, 1)
	assertCount(t, database, `SELECT COUNT(*) FROM tariff_rows`, nil, len(defaultRows))

	var hash string
	if err := database.QueryRow(`SELECT password_hash FROM users WHERE email = ?`, "admin@douanesim.test").Scan(&hash); err != nil {
		t.Fatalf("query admin hash: %v", err)
	}
	if hash != hashPassword("12345") {
		t.Fatalf("expected admin hash to match password")
	}
}

func TestDefaultRowsAreValid(t *testing.T) {
	t.Parallel()

	for _, row := range defaultRows {
		if err := row.Validate(); err != nil {
			t.Fatalf("default tariff row %q is invalid: %v", row.Code, err)
		}
	}
}

func assertCount(t *testing.T, database *sql.DB, query string, args any, expected int) {
	t.Helper()

	var count int
	var err error
	switch v := args.(type) {
	case nil:
		err = database.QueryRow(query).Scan(&count)
	case []any:
		err = database.QueryRow(query, v...).Scan(&count)
	default:
		err = database.QueryRow(query, v).Scan(&count)
	}
	if err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != expected {
		t.Fatalf("expected count %d, got %d", expected, count)
	}
}
