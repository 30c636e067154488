package seed

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/Kabret0/douanesim/internal/decision"
	"github.com/Kabret0/douanesim/internal/tariff"
)

// Config contains the values required by startup seed.
type Config struct {
	AdminEmail    string
	AdminPassword string
}

// Stats contains seed operation counters.
type Stats struct {
	Inserts int
}

// defaultRows are the reference tariff positions loaded on first start.
// Rates follow the common external tariff bands; the admin screens can
// amend them afterwards.
var defaultRows = []tariff.Row{
	{Code: "1006.30", Designation: "Riz semi-blanchi ou blanchi", DutyRate: 10, StatisticalLevy: 1, CommunitySolidarityLevy: 1, AccompanimentLevy: 0.5, VATRate: 18, CumulativeWithVAT: 32.5, CumulativeWithoutVAT: 12.5},
	{Code: "1701.99", Designation: "Sucre raffiné", DutyRate: 20, StatisticalLevy: 1, CommunitySolidarityLevy: 1, AccompanimentLevy: 0.5, CompetitivenessLevy: 2.5, PriceControlFee: 0.75, VATRate: 18, CumulativeWithVAT: 43, CumulativeWithoutVAT: 25},
	{Code: "2203.00", Designation: "Bières de malt", DutyRate: 20, StatisticalLevy: 1, CommunitySolidarityLevy: 1, AccompanimentLevy: 0.5, VATRate: 18, SpecialBeverageTax: 25, CumulativeWithVAT: 65.5, CumulativeWithoutVAT: 47.5},
	{Code: "2523.29", Designation: "Ciment Portland", DutyRate: 10, StatisticalLevy: 1, CommunitySolidarityLevy: 1, AccompanimentLevy: 0.5, RegularizationFee: 0.5, VATRate: 18, CumulativeWithVAT: 31, CumulativeWithoutVAT: 13},
	{Code: "5208.52", Designation: "Tissus de coton imprimés", DutyRate: 20, StatisticalLevy: 1, CommunitySolidarityLevy: 1, AccompanimentLevy: 0.5, CompetitivenessLevy: 2.5, VATRate: 18, CumulativeWithVAT: 43, CumulativeWithoutVAT: 25},
	{Code: "8703.23", Designation: "Véhicules de tourisme 1500-3000 cm3", DutyRate: 20, StatisticalLevy: 1, CommunitySolidarityLevy: 1, AccompanimentLevy: 0.5, VATRate: 18, CumulativeWithVAT: 40.5, CumulativeWithoutVAT: 22.5},
}

// Run executes the startup seed in an idempotent way: the admin user,
// the decision-criteria singleton and the reference tariff rows are
// inserted only when absent, inside a single transaction.
func Run(db *sql.DB, cfg Config) (Stats, error) {
	tx, err := db.Begin()
	if err != nil {
		return Stats{}, fmt.Errorf("begin seed transaction: %w", err)
	}

	stats := Stats{}

	if err := seedAdmin(tx, cfg.AdminEmail, cfg.AdminPassword, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}
	if err := ensureCriteria(tx, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}
	if err := ensureTariffRows(tx, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("commit seed transaction: %w", err)
	}

	return stats, nil
}

func seedAdmin(tx *sql.Tx, email, password string, stats *Stats) error {
	if email == "" || password == "" {
		return nil
	}

	var exists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM users WHERE email = ? LIMIT 1)`, email).Scan(&exists); err != nil {
		return fmt.Errorf("check admin user existence: %w", err)
	}
	if exists {
		return nil
	}

	if _, err := tx.Exec(`INSERT INTO users (email, password_hash) VALUES (?, ?)`, email, hashPassword(password)); err != nil {
		return fmt.Errorf("insert admin user: %w", err)
	}
	stats.Inserts++
	return nil
}

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func ensureCriteria(tx *sql.Tx, stats *Stats) error {
	var exists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM decision_criteria WHERE id = 1)`).Scan(&exists); err != nil {
		return fmt.Errorf("check decision criteria existence: %w", err)
	}
	if exists {
		return nil
	}

	defaults := decision.Defaults()
	if _, err := tx.Exec(`
		INSERT INTO decision_criteria (
			id,
			licence_admission_floor,
			licence_control_arrival_floor,
			fob_inspection_exemption_ceiling,
			voc_admission_floor,
			insurance_minimum,
			insurance_rate_floor_pct,
			duty_coefficient_ceiling,
			cash_payment_ceiling,
			trade_bloc_members
		)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		defaults.LicenceAdmissionFloor,
		defaults.LicenceControlArrivalFloor,
		defaults.FOBInspectionExemptionCeiling,
		defaults.VOCAdmissionFloor,
		defaults.InsuranceMinimum,
		defaults.InsuranceRateFloorPct,
		defaults.DutyCoefficientCeiling,
		defaults.CashPaymentCeiling,
		strings.Join(defaults.TradeBlocMembers, ","),
	); err != nil {
		return fmt.Errorf("insert decision criteria singleton: %w", err)
	}
	stats.Inserts++
	return nil
}

func ensureTariffRows(tx *sql.Tx, stats *Stats) error {
	for _, row := range defaultRows {
		var exists bool
		if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM tariff_rows WHERE code = ? LIMIT 1)`, row.Code).Scan(&exists); err != nil {
			return fmt.Errorf("check tariff row existence: %w", err)
		}
		if exists {
			continue
		}

		if _, err := tx.Exec(`
			INSERT INTO tariff_rows (code, designation, dd, rsta, pcs, pua, pcc, rrr, rcp, tva, tsb, tab, cumul_ttc, cumul_ht, active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, TRUE)
		`,
			row.Code,
			row.Designation,
			row.DutyRate,
			row.StatisticalLevy,
			row.CommunitySolidarityLevy,
			row.AccompanimentLevy,
			row.CompetitivenessLevy,
			row.RegularizationFee,
			row.PriceControlFee,
			row.VATRate,
			row.SpecialBeverageTax,
			row.SlaughterTax,
			row.CumulativeWithVAT,
			row.CumulativeWithoutVAT,
		); err != nil {
			return fmt.Errorf("insert tariff row %q: %w", row.Code, err)
		}
		stats.Inserts++
	}
	return nil
}
