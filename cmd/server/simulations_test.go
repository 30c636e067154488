package main

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func TestListSimulationsOrdersByDateDescAndReadsTotal(t *testing.T) {
	db := newSimulationsTestDB(t)
	srv := &server{db: db}

	seedSimulation(t, db, "2025-01-01 10:00:00", "Première", "note un", `{"total_cost": 100.50}`)
	seedSimulation(t, db, "2025-01-03 12:00:00", "Troisième", "note trois", `{"total_cost": 300.00}`)
	seedSimulation(t, db, "2025-01-02 11:00:00", "Deuxième", "note deux", `{"total_cost": 200.25}`)

	simulations, err := srv.listSimulations("")
	if err != nil {
		t.Fatalf("listSimulations returned error: %v", err)
	}

	if len(simulations) != 3 {
		t.Fatalf("expected 3 simulations, got %d", len(simulations))
	}

	if simulations[0].Title != "Troisième" || simulations[1].Title != "Deuxième" || simulations[2].Title != "Première" {
		t.Fatalf("simulations are not sorted desc by created_at: %+v", simulations)
	}

	if simulations[0].TotalCost != 300.00 || simulations[1].TotalCost != 200.25 || simulations[2].TotalCost != 100.50 {
		t.Fatalf("unexpected total costs: %+v", simulations)
	}
}

func TestListSimulationsFilterByTitleAndNotes(t *testing.T) {
	db := newSimulationsTestDB(t)
	srv := &server{db: db}

	seedSimulation(t, db, "2025-01-01 10:00:00", "Riz conteneur", "arrivage mars", `{"total_cost": 80}`)
	seedSimulation(t, db, "2025-01-02 10:00:00", "Ciment", "client prioritaire", `{"total_cost": 120}`)
	seedSimulation(t, db, "2025-01-03 10:00:00", "Sucre", "urgent pour le riz", `{"total_cost": 160}`)

	byTitle, err := srv.listSimulations("Ciment")
	if err != nil {
		t.Fatalf("listSimulations title filter returned error: %v", err)
	}
	if len(byTitle) != 1 || byTitle[0].Title != "Ciment" {
		t.Fatalf("expected 1 simulation filtered by title, got %+v", byTitle)
	}

	byNotes, err := srv.listSimulations("riz")
	if err != nil {
		t.Fatalf("listSimulations notes filter returned error: %v", err)
	}
	if len(byNotes) != 2 {
		t.Fatalf("expected 2 simulations filtered by notes/title, got %+v", byNotes)
	}
}

func TestExtractTotalCostFromJSON(t *testing.T) {
	if got := extractTotalCostFromJSON(`{"total_cost": 42.5}`); got != 42.5 {
		t.Fatalf("expected 42.5, got %v", got)
	}
	if got := extractTotalCostFromJSON(`not json`); got != 0 {
		t.Fatalf("expected 0 for invalid json, got %v", got)
	}
	if got := extractTotalCostFromJSON(`{"other": 7}`); got != 0 {
		t.Fatalf("expected 0 for missing key, got %v", got)
	}
}

func newSimulationsTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite db: %v", err)
	}

	_, err = db.Exec(`
		CREATE TABLE simulations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at DATETIME NOT NULL,
			title TEXT,
			notes TEXT,
			totals_json TEXT NOT NULL
		);
	`)
	if err != nil {
		t.Fatalf("failed creating simulations table: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func seedSimulation(t *testing.T, db *sql.DB, createdAt, title, notes, totalsJSON string) {
	t.Helper()

	_, err := db.Exec(`
		INSERT INTO simulations (created_at, title, notes, totals_json)
		VALUES (?, ?, ?, ?)
	`, createdAt, title, notes, totalsJSON)
	if err != nil {
		t.Fatalf("failed to seed simulation: %v", err)
	}
}
