package simulation

import (
	"math"
	"strings"
	"testing"

	"github.com/Kabret0/douanesim/internal/costing"
	"github.com/Kabret0/douanesim/internal/decision"
	"github.com/Kabret0/douanesim/internal/tariff"
)

func nearlyEqual(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-6 {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}

func testSchedule(t *testing.T) *tariff.Schedule {
	t.Helper()

	schedule, err := tariff.NewSchedule([]tariff.Row{
		{Code: "1006.30", DutyRate: 10, StatisticalLevy: 1, VATRate: 18},
		{Code: "1701.99", DutyRate: 20, StatisticalLevy: 1, VATRate: 18, PriceControlFee: 0.75},
	})
	if err != nil {
		t.Fatalf("NewSchedule returned error: %v", err)
	}
	return schedule
}

func TestRun_EndToEndEqualLines(t *testing.T) {
	in := Input{
		Shipment: costing.Shipment{FOBTotal: 1_000_000, FreightTotal: 150_000, InsuranceTotal: 10_000},
		Items: []costing.LineItem{
			{ClassificationCode: "1006.30", Designation: "Riz", Quantity: 100, UnitWeight: 25, UnitDeclaredValue: 5_000},
			{ClassificationCode: "1701.99", Designation: "Sucre", Quantity: 50, UnitWeight: 50, UnitDeclaredValue: 10_000},
		},
		DesiredMarginPct:   30,
		CompanyCoefficient: 1,
		VATRatePct:         18,
	}

	result, err := Run(in, testSchedule(t), decision.Defaults())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(result.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(result.Lines))
	}
	for _, line := range result.Lines {
		nearlyEqual(t, "proratedFreight", line.Allocation.ProratedFreight, 75_000)
		nearlyEqual(t, "proratedInsurance", line.Allocation.ProratedInsurance, 5_000)
		nearlyEqual(t, "landedValue", line.Allocation.LandedValue, 500_000+75_000+5_000)
	}

	nearlyEqual(t, "landedTotal", result.Totals.LandedTotal, 1_160_000)
	nearlyEqual(t, "totalCost", result.Totals.TotalCost, result.Totals.LandedTotal+result.Totals.TaxTotal+result.Totals.FeeTotal)

	if result.Pricing.DutyCoefficient <= 1 {
		t.Fatalf("expected duty coefficient above 1, got %v", result.Pricing.DutyCoefficient)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %+v", result.Warnings)
	}
	if len(result.Decisions) == 0 {
		t.Fatalf("expected decisions, got none")
	}
}

func TestRun_FlatFeesIncludedInTotalCost(t *testing.T) {
	in := Input{
		Shipment: costing.Shipment{
			FOBTotal:          100_000,
			RegistrationFee:   1_000,
			ForwardingFee:     2_500,
			SecurityFee:       500,
			AdvanceOfFundsFee: 750,
		},
		Items:              []costing.LineItem{{ClassificationCode: "1006.30", Quantity: 10, UnitDeclaredValue: 10_000}},
		CompanyCoefficient: 1,
	}

	result, err := Run(in, testSchedule(t), decision.Defaults())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	nearlyEqual(t, "feeTotal", result.Totals.FeeTotal, 4_750)
	nearlyEqual(t, "totalCost", result.Totals.TotalCost, result.Totals.LandedTotal+result.Totals.TaxTotal+4_750)
}

func TestRun_UnmappedCodeWarnsAndKeepsLine(t *testing.T) {
	in := Input{
		Shipment: costing.Shipment{FOBTotal: 50_000, FreightTotal: 5_000},
		Items: []costing.LineItem{
			{ClassificationCode: "1006.30", Quantity: 5, UnitWeight: 1, UnitDeclaredValue: 5_000},
			{ClassificationCode: "9999.99", Quantity: 5, UnitWeight: 1, UnitDeclaredValue: 5_000},
		},
		CompanyCoefficient: 1,
	}

	result, err := Run(in, testSchedule(t), decision.Defaults())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(result.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(result.Lines))
	}
	if !result.Lines[1].Taxes.Unmapped {
		t.Fatalf("expected second line to be unmapped")
	}
	nearlyEqual(t, "unmapped taxes", result.Lines[1].Taxes.Total(), 0)
	if result.Lines[1].Allocation.LandedValue <= 0 {
		t.Fatalf("unmapped line must keep its allocation, got %+v", result.Lines[1].Allocation)
	}

	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "9999.99") {
		t.Fatalf("expected a warning naming the code, got %+v", result.Warnings)
	}
}

func TestRun_ValidationErrorStopsComputation(t *testing.T) {
	in := Input{
		Shipment:           costing.Shipment{FOBTotal: 10_000},
		Items:              []costing.LineItem{{ClassificationCode: "1006.30", Quantity: -1}},
		CompanyCoefficient: 1,
	}

	if _, err := Run(in, testSchedule(t), decision.Defaults()); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestRun_PriceControlNoticeDerivedFromTariffRows(t *testing.T) {
	in := Input{
		Shipment:           costing.Shipment{FOBTotal: 500_000},
		Items:              []costing.LineItem{{ClassificationCode: "1701.99", Quantity: 10, UnitDeclaredValue: 50_000}},
		CompanyCoefficient: 1,
	}

	result, err := Run(in, testSchedule(t), decision.Defaults())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	found := false
	for _, d := range result.Decisions {
		if d.Category == "RCP" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected RCP notice for a price-controlled row, got %+v", result.Decisions)
	}
}

func TestRun_VOCAdmissionWithRouteA(t *testing.T) {
	criteria := decision.Defaults()
	voc := criteria.VOCAdmissionFloor

	in := Input{
		Shipment:           costing.Shipment{FOBTotal: 5_000_000},
		Items:              []costing.LineItem{{ClassificationCode: "1006.30", Quantity: 100, UnitWeight: 20, UnitDeclaredValue: 50_000}},
		CompanyCoefficient: 1,
		FOBVOC:             &voc,
		Route:              "A",
	}

	result, err := Run(in, testSchedule(t), criteria)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	vocIndex, routeIndex := -1, -1
	for i, d := range result.Decisions {
		switch d.Category {
		case "VOC":
			vocIndex = i
		case "Route":
			routeIndex = i
		}
	}
	if vocIndex == -1 || routeIndex == -1 || routeIndex < vocIndex {
		t.Fatalf("expected VOC admission followed by route decision, got %+v", result.Decisions)
	}
}

func TestRun_EmptyItemsYieldsEmptyLines(t *testing.T) {
	in := Input{Shipment: costing.Shipment{FOBTotal: 0}, CompanyCoefficient: 1}

	result, err := Run(in, testSchedule(t), decision.Defaults())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(result.Lines) != 0 {
		t.Fatalf("expected no lines, got %d", len(result.Lines))
	}
	if !result.Pricing.UndefinedRatio {
		t.Fatalf("expected undefined-ratio pricing for empty simulation")
	}
}
