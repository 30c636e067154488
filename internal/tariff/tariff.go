package tariff

import (
	"database/sql"
	"fmt"
)

// Row holds the tax rates applicable to one commodity classification
// code. Every rate is a percentage in [0, 100]. The cumulative rates are
// precomputed over declared plus landed value and, when present, take
// precedence over the plain duty rate.
type Row struct {
	Code        string
	Designation string

	DutyRate                float64 // DD
	StatisticalLevy         float64 // RSTA
	CommunitySolidarityLevy float64 // PCS
	AccompanimentLevy       float64 // PUA
	CompetitivenessLevy     float64 // PCC
	RegularizationFee       float64 // RRR
	PriceControlFee         float64 // RCP
	VATRate                 float64 // TVA
	SpecialBeverageTax      float64 // TSB
	SlaughterTax            float64 // TAB

	CumulativeWithVAT    float64
	CumulativeWithoutVAT float64
}

// EffectiveDutyRate selects the duty base rate: the cumulative rate with
// VAT when present, else the cumulative rate without VAT, else the plain
// duty rate. A stored zero counts as absent.
func (r Row) EffectiveDutyRate() float64 {
	if r.CumulativeWithVAT > 0 {
		return r.CumulativeWithVAT
	}
	if r.CumulativeWithoutVAT > 0 {
		return r.CumulativeWithoutVAT
	}
	return r.DutyRate
}

// Validate checks the row invariants: a non-empty code, every rate in
// [0, 100], and cumulative-with-VAT at least cumulative-without-VAT when
// both are present.
func (r Row) Validate() error {
	if r.Code == "" {
		return fmt.Errorf("code est requis")
	}
	rates := []struct {
		name  string
		value float64
	}{
		{"dd", r.DutyRate},
		{"rsta", r.StatisticalLevy},
		{"pcs", r.CommunitySolidarityLevy},
		{"pua", r.AccompanimentLevy},
		{"pcc", r.CompetitivenessLevy},
		{"rrr", r.RegularizationFee},
		{"rcp", r.PriceControlFee},
		{"tva", r.VATRate},
		{"tsb", r.SpecialBeverageTax},
		{"tab", r.SlaughterTax},
		{"cumul_ttc", r.CumulativeWithVAT},
		{"cumul_ht", r.CumulativeWithoutVAT},
	}
	for _, rate := range rates {
		if rate.value < 0 || rate.value > 100 {
			return fmt.Errorf("%s doit être entre 0 et 100", rate.name)
		}
	}
	if r.CumulativeWithVAT > 0 && r.CumulativeWithoutVAT > 0 && r.CumulativeWithVAT < r.CumulativeWithoutVAT {
		return fmt.Errorf("cumul_ttc doit être supérieur ou égal à cumul_ht")
	}
	return nil
}

// Schedule is a read-only lookup table of tariff rows keyed by
// classification code. It is loaded once and never mutated afterwards.
type Schedule struct {
	rows map[string]Row
}

// NewSchedule builds a schedule from rows, rejecting invalid rates and
// duplicate codes.
func NewSchedule(rows []Row) (*Schedule, error) {
	byCode := make(map[string]Row, len(rows))
	for _, row := range rows {
		if err := row.Validate(); err != nil {
			return nil, fmt.Errorf("ligne tarifaire %q: %w", row.Code, err)
		}
		if _, exists := byCode[row.Code]; exists {
			return nil, fmt.Errorf("ligne tarifaire %q: code dupliqué", row.Code)
		}
		byCode[row.Code] = row
	}
	return &Schedule{rows: byCode}, nil
}

// Lookup returns the row for a classification code.
func (s *Schedule) Lookup(code string) (Row, bool) {
	row, ok := s.rows[code]
	return row, ok
}

// Len reports the number of rows in the schedule.
func (s *Schedule) Len() int {
	return len(s.rows)
}

// LoadSchedule reads the active tariff reference rows from the database.
func LoadSchedule(db *sql.DB) (*Schedule, error) {
	rows, err := db.Query(`
		SELECT code, COALESCE(designation, ''), dd, rsta, pcs, pua, pcc, rrr, rcp, tva, tsb, tab, cumul_ttc, cumul_ht
		FROM tariff_rows
		WHERE active
	`)
	if err != nil {
		return nil, fmt.Errorf("query tariff rows: %w", err)
	}
	defer rows.Close()

	loaded := make([]Row, 0)
	for rows.Next() {
		var r Row
		if err := rows.Scan(
			&r.Code,
			&r.Designation,
			&r.DutyRate,
			&r.StatisticalLevy,
			&r.CommunitySolidarityLevy,
			&r.AccompanimentLevy,
			&r.CompetitivenessLevy,
			&r.RegularizationFee,
			&r.PriceControlFee,
			&r.VATRate,
			&r.SpecialBeverageTax,
			&r.SlaughterTax,
			&r.CumulativeWithVAT,
			&r.CumulativeWithoutVAT,
		); err != nil {
			return nil, fmt.Errorf("scan tariff row: %w", err)
		}
		loaded = append(loaded, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tariff rows: %w", err)
	}

	return NewSchedule(loaded)
}
