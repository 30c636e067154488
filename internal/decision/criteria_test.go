package decision

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func newCriteriaTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite db: %v", err)
	}

	_, err = db.Exec(`
		CREATE TABLE decision_criteria (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			licence_admission_floor NUMERIC NOT NULL,
			licence_control_arrival_floor NUMERIC NOT NULL,
			fob_inspection_exemption_ceiling NUMERIC NOT NULL,
			voc_admission_floor NUMERIC NOT NULL,
			insurance_minimum NUMERIC NOT NULL,
			insurance_rate_floor_pct NUMERIC NOT NULL,
			duty_coefficient_ceiling NUMERIC NOT NULL,
			cash_payment_ceiling NUMERIC NOT NULL,
			trade_bloc_members TEXT
		);
	`)
	if err != nil {
		t.Fatalf("failed creating decision_criteria table: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedCriteria(t *testing.T, db *sql.DB, admissionFloor float64) {
	t.Helper()

	_, err := db.Exec(`
		INSERT INTO decision_criteria (id, licence_admission_floor, licence_control_arrival_floor, fob_inspection_exemption_ceiling, voc_admission_floor, insurance_minimum, insurance_rate_floor_pct, duty_coefficient_ceiling, cash_payment_ceiling, trade_bloc_members)
		VALUES (1, ?, 70000, 1000000, 3000000, 50000, 0.3, 1.6, 5000000, 'Mali, Sénégal')
		ON CONFLICT(id) DO UPDATE SET licence_admission_floor = excluded.licence_admission_floor
	`, admissionFloor)
	if err != nil {
		t.Fatalf("failed to seed criteria: %v", err)
	}
}

func TestStoreProvider_LoadsStoredCriteria(t *testing.T) {
	db := newCriteriaTestDB(t)
	seedCriteria(t, db, 120_000)

	provider := NewStoreProvider(db, time.Minute)
	criteria, err := provider.Criteria(context.Background())
	if err != nil {
		t.Fatalf("Criteria returned error: %v", err)
	}

	if criteria.LicenceAdmissionFloor != 120_000 {
		t.Fatalf("admission floor = %v, want 120000", criteria.LicenceAdmissionFloor)
	}
	if len(criteria.TradeBlocMembers) != 2 || criteria.TradeBlocMembers[1] != "Sénégal" {
		t.Fatalf("unexpected trade bloc members: %+v", criteria.TradeBlocMembers)
	}
}

func TestStoreProvider_CachesWithinStalenessWindow(t *testing.T) {
	db := newCriteriaTestDB(t)
	seedCriteria(t, db, 100_000)

	provider := NewStoreProvider(db, time.Hour)
	first, err := provider.Criteria(context.Background())
	if err != nil {
		t.Fatalf("Criteria returned error: %v", err)
	}

	seedCriteria(t, db, 999_999)

	second, err := provider.Criteria(context.Background())
	if err != nil {
		t.Fatalf("Criteria returned error: %v", err)
	}
	if second.LicenceAdmissionFloor != first.LicenceAdmissionFloor {
		t.Fatalf("expected cached value %v, got %v", first.LicenceAdmissionFloor, second.LicenceAdmissionFloor)
	}
}

func TestStoreProvider_ZeroTTLAlwaysReloads(t *testing.T) {
	db := newCriteriaTestDB(t)
	seedCriteria(t, db, 100_000)

	provider := NewStoreProvider(db, 0)
	if _, err := provider.Criteria(context.Background()); err != nil {
		t.Fatalf("Criteria returned error: %v", err)
	}

	seedCriteria(t, db, 250_000)

	criteria, err := provider.Criteria(context.Background())
	if err != nil {
		t.Fatalf("Criteria returned error: %v", err)
	}
	if criteria.LicenceAdmissionFloor != 250_000 {
		t.Fatalf("expected reloaded value 250000, got %v", criteria.LicenceAdmissionFloor)
	}
}

func TestStoreProvider_MissingSingletonIsAnError(t *testing.T) {
	db := newCriteriaTestDB(t)

	provider := NewStoreProvider(db, time.Minute)
	if _, err := provider.Criteria(context.Background()); err == nil {
		t.Fatalf("expected error for missing criteria row")
	}
}

func TestStatic_ReturnsFixedValue(t *testing.T) {
	want := Defaults()
	provider := Static{Value: want}

	got, err := provider.Criteria(context.Background())
	if err != nil {
		t.Fatalf("Criteria returned error: %v", err)
	}
	if got.LicenceAdmissionFloor != want.LicenceAdmissionFloor {
		t.Fatalf("unexpected criteria: %+v", got)
	}
}

func TestInTradeBloc_IsCaseInsensitive(t *testing.T) {
	criteria := Defaults()

	if !criteria.InTradeBloc("sénégal") {
		t.Fatalf("expected lower-case member match")
	}
	if criteria.InTradeBloc("Nigéria") {
		t.Fatalf("unexpected match for non-member")
	}
}
