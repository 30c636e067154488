package costing

// PricingInput gathers the aggregate figures the selling-price advisory
// works from. TotalCost is the fully landed cost after duties and fees.
type PricingInput struct {
	FOBTotal           float64
	TotalCost          float64
	TotalUnits         int
	LineCount          int
	DesiredMarginPct   float64
	CompanyCoefficient float64
	VATRatePct         float64
}

// Pricing is the advisory output. UndefinedRatio marks results where a
// zero denominator forced a coefficient to degrade to zero; the figures
// still render, they are just not meaningful.
type Pricing struct {
	DutyCoefficient     float64 `json:"duty_coefficient"`
	NetOfVATCoefficient float64 `json:"net_of_vat_coefficient"`
	UnitDeclaredValue   float64 `json:"unit_declared_value"`
	UnitNetCost         float64 `json:"unit_net_cost"`
	UnitSellingPrice    float64 `json:"unit_selling_price"`
	TotalRevenue        float64 `json:"total_revenue"`
	TotalProfit         float64 `json:"total_profit"`
	UndefinedRatio      bool    `json:"undefined_ratio,omitempty"`
}

// Advise computes the duty coefficient and a suggested selling price.
// Every division is guarded: zero denominators degrade to zero and set
// UndefinedRatio instead of failing, so incomplete simulations still
// produce a printable advisory.
func Advise(in PricingInput) Pricing {
	p := Pricing{}

	if in.FOBTotal > 0 {
		p.DutyCoefficient = in.TotalCost / in.FOBTotal
	} else {
		p.UndefinedRatio = true
	}

	p.NetOfVATCoefficient = p.DutyCoefficient / (1 + in.VATRatePct/100)

	units := in.TotalUnits
	if units == 0 {
		units = in.LineCount
	}
	if units > 0 {
		p.UnitDeclaredValue = in.FOBTotal / float64(units)
	} else {
		p.UndefinedRatio = true
	}

	p.UnitNetCost = p.UnitDeclaredValue * p.NetOfVATCoefficient
	p.UnitSellingPrice = p.UnitNetCost * (1 + in.DesiredMarginPct/100) * in.CompanyCoefficient * (1 + in.VATRatePct/100)
	p.TotalRevenue = p.UnitSellingPrice * float64(units)
	p.TotalProfit = p.TotalRevenue - in.TotalCost

	return p
}
