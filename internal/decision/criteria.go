package decision

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Criteria holds the regulatory thresholds the decision rules compare
// against. The engine only reads it; loading and refreshing belong to a
// Provider composed by the caller.
type Criteria struct {
	LicenceAdmissionFloor         float64
	LicenceControlArrivalFloor    float64
	FOBInspectionExemptionCeiling float64
	VOCAdmissionFloor             float64
	InsuranceMinimum              float64
	InsuranceRateFloorPct         float64
	DutyCoefficientCeiling        float64
	CashPaymentCeiling            float64
	TradeBlocMembers              []string
}

// Defaults returns the hard-coded fallback thresholds used when no
// configuration store is reachable.
func Defaults() Criteria {
	return Criteria{
		LicenceAdmissionFloor:         100_000,
		LicenceControlArrivalFloor:    70_000,
		FOBInspectionExemptionCeiling: 1_000_000,
		VOCAdmissionFloor:             3_000_000,
		InsuranceMinimum:              50_000,
		InsuranceRateFloorPct:         0.3,
		DutyCoefficientCeiling:        1.6,
		CashPaymentCeiling:            5_000_000,
		TradeBlocMembers: []string{
			"Bénin", "Burkina Faso", "Côte d'Ivoire", "Guinée-Bissau",
			"Mali", "Niger", "Sénégal", "Togo",
		},
	}
}

// InTradeBloc reports whether country is a member of the configured
// trade bloc. Comparison is case-insensitive.
func (c Criteria) InTradeBloc(country string) bool {
	for _, member := range c.TradeBlocMembers {
		if strings.EqualFold(member, country) {
			return true
		}
	}
	return false
}

// Provider resolves the criteria applicable at evaluation time. The
// engine itself never loads configuration; callers compose providers
// and fall back to Defaults when none succeeds.
type Provider interface {
	Criteria(ctx context.Context) (Criteria, error)
}

// Static is a Provider returning a fixed criteria value.
type Static struct {
	Value Criteria
}

func (s Static) Criteria(context.Context) (Criteria, error) {
	return s.Value, nil
}

// StoreProvider reads the criteria singleton from the database and
// caches it for a bounded staleness window.
type StoreProvider struct {
	db  *sql.DB
	ttl time.Duration

	mu       sync.Mutex
	cached   Criteria
	loadedAt time.Time
}

// NewStoreProvider builds a StoreProvider with the given cache window.
// A non-positive ttl disables caching.
func NewStoreProvider(db *sql.DB, ttl time.Duration) *StoreProvider {
	return &StoreProvider{db: db, ttl: ttl}
}

// Criteria returns the stored thresholds, re-reading the database only
// when the cached copy is older than the staleness window.
func (p *StoreProvider) Criteria(ctx context.Context) (Criteria, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ttl > 0 && !p.loadedAt.IsZero() && time.Since(p.loadedAt) < p.ttl {
		return p.cached, nil
	}

	loaded, err := loadCriteria(ctx, p.db)
	if err != nil {
		return Criteria{}, err
	}

	p.cached = loaded
	p.loadedAt = time.Now()
	return loaded, nil
}

func loadCriteria(ctx context.Context, db *sql.DB) (Criteria, error) {
	var c Criteria
	var members string
	err := db.QueryRowContext(ctx, `
		SELECT
			licence_admission_floor,
			licence_control_arrival_floor,
			fob_inspection_exemption_ceiling,
			voc_admission_floor,
			insurance_minimum,
			insurance_rate_floor_pct,
			duty_coefficient_ceiling,
			cash_payment_ceiling,
			COALESCE(trade_bloc_members, '')
		FROM decision_criteria
		WHERE id = 1
	`).Scan(
		&c.LicenceAdmissionFloor,
		&c.LicenceControlArrivalFloor,
		&c.FOBInspectionExemptionCeiling,
		&c.VOCAdmissionFloor,
		&c.InsuranceMinimum,
		&c.InsuranceRateFloorPct,
		&c.DutyCoefficientCeiling,
		&c.CashPaymentCeiling,
		&members,
	)
	if err != nil {
		return Criteria{}, fmt.Errorf("query decision criteria: %w", err)
	}

	for _, member := range strings.Split(members, ",") {
		member = strings.TrimSpace(member)
		if member != "" {
			c.TradeBlocMembers = append(c.TradeBlocMembers, member)
		}
	}

	return c, nil
}
