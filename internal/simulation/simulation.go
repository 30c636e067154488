package simulation

import (
	"fmt"

	"github.com/Kabret0/douanesim/internal/costing"
	"github.com/Kabret0/douanesim/internal/decision"
	"github.com/Kabret0/douanesim/internal/tariff"
)

// Input gathers everything one simulation run needs. The tariff
// schedule and the decision criteria are passed in already resolved;
// the run itself performs no I/O.
type Input struct {
	Shipment costing.Shipment
	Items    []costing.LineItem

	DesiredMarginPct   float64
	CompanyCoefficient float64
	VATRatePct         float64

	// Optional regulatory attributes. Nil skips the dependent rules.
	Licence *float64
	FOBVOC  *float64

	Route             string
	OriginCountry     string
	PaymentInstrument string
	Incoterm          string
}

// Line pairs one declared good with its allocated costs and resolved
// taxes.
type Line struct {
	Item       costing.LineItem   `json:"item"`
	Allocation costing.Allocation `json:"allocation"`
	Taxes      tariff.Breakdown   `json:"taxes"`
}

// Totals are the aggregate figures of a run. TotalCost is the landed
// value plus duties plus flat fees, i.e. the projected coût de revient.
type Totals struct {
	FOBTotal       float64 `json:"fob_total"`
	FreightTotal   float64 `json:"freight_total"`
	InsuranceTotal float64 `json:"insurance_total"`
	LandedTotal    float64 `json:"landed_total"`
	TaxTotal       float64 `json:"tax_total"`
	FeeTotal       float64 `json:"fee_total"`
	TotalCost      float64 `json:"total_cost"`
}

// Result is the complete output of one simulation run.
type Result struct {
	Lines     []Line              `json:"lines"`
	Totals    Totals              `json:"totals"`
	Pricing   costing.Pricing     `json:"pricing"`
	Decisions []decision.Decision `json:"decisions"`
	Warnings  []string            `json:"warnings,omitempty"`
}

// Run validates the input, allocates shipment costs across lines,
// resolves per-line taxes against the schedule, then derives the
// pricing advisory and the regulatory decisions from the aggregates.
// Unmapped classification codes become warnings on the result, never
// errors.
func Run(in Input, schedule *tariff.Schedule, criteria decision.Criteria) (Result, error) {
	allocations, err := costing.Allocate(in.Shipment, in.Items)
	if err != nil {
		return Result{}, err
	}

	result := Result{Lines: make([]Line, 0, len(in.Items))}
	totals := Totals{
		FOBTotal:       in.Shipment.FOBTotal,
		FreightTotal:   in.Shipment.FreightTotal,
		InsuranceTotal: in.Shipment.InsuranceTotal,
		FeeTotal:       in.Shipment.Fees(),
	}

	totalUnits := 0
	priceControlApplies := false
	regularizationApplies := false
	for i, item := range in.Items {
		totalUnits += item.Quantity

		var rowRef *tariff.Row
		if row, ok := schedule.Lookup(item.ClassificationCode); ok {
			rowRef = &row
			if row.PriceControlFee > 0 {
				priceControlApplies = true
			}
			if row.RegularizationFee > 0 {
				regularizationApplies = true
			}
		} else {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("position tarifaire %q introuvable : ligne %d calculée sans taxes", item.ClassificationCode, i+1))
		}

		taxes := tariff.Resolve(item.Quantity, item.ExtendedDeclaredValue(), allocations[i].LandedValue, rowRef)
		totals.LandedTotal += allocations[i].LandedValue
		totals.TaxTotal += taxes.Total()

		result.Lines = append(result.Lines, Line{Item: item, Allocation: allocations[i], Taxes: taxes})
	}

	totals.TotalCost = totals.LandedTotal + totals.TaxTotal + totals.FeeTotal
	result.Totals = totals

	result.Pricing = costing.Advise(costing.PricingInput{
		FOBTotal:           totals.FOBTotal,
		TotalCost:          totals.TotalCost,
		TotalUnits:         totalUnits,
		LineCount:          len(in.Items),
		DesiredMarginPct:   in.DesiredMarginPct,
		CompanyCoefficient: in.CompanyCoefficient,
		VATRatePct:         in.VATRatePct,
	})

	attrs := decision.Attributes{
		Licence:               in.Licence,
		FOBVOC:                in.FOBVOC,
		Route:                 in.Route,
		OriginCountry:         in.OriginCountry,
		PaymentInstrument:     in.PaymentInstrument,
		Incoterm:              in.Incoterm,
		PriceControlApplies:   priceControlApplies,
		RegularizationApplies: regularizationApplies,
	}
	fob := totals.FOBTotal
	attrs.FOBTotal = &fob
	insurance := totals.InsuranceTotal
	attrs.InsuranceTotal = &insurance
	if len(in.Items) > 0 {
		landed := totals.LandedTotal
		attrs.LandedTotal = &landed
	}
	if !result.Pricing.UndefinedRatio {
		coefficient := result.Pricing.DutyCoefficient
		attrs.DutyCoefficient = &coefficient
	}

	result.Decisions = decision.Evaluate(attrs, criteria)

	return result, nil
}
