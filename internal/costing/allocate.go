package costing

import "fmt"

// Shipment holds the aggregate amounts declared for one simulation run.
// All amounts are in the declaration currency (FCFA); the engine never
// converts or formats them.
type Shipment struct {
	FOBTotal       float64
	FreightTotal   float64
	InsuranceTotal float64

	// Flat fees added on top of duties when computing the landed cost.
	RegistrationFee    float64
	FinancialFee       float64
	ForwardingFee      float64
	SecurityFee        float64
	MiscellaneousFee   float64
	AdvanceOfFundsFee  float64
	ClearanceCreditFee float64
}

// Fees returns the sum of the flat fee components.
func (s Shipment) Fees() float64 {
	return s.RegistrationFee + s.FinancialFee + s.ForwardingFee +
		s.SecurityFee + s.MiscellaneousFee + s.AdvanceOfFundsFee + s.ClearanceCreditFee
}

// LineItem is one declared good.
type LineItem struct {
	ClassificationCode string
	Designation        string
	Quantity           int
	UnitWeight         float64
	UnitDeclaredValue  float64
}

// ExtendedDeclaredValue is the FOB value for the full line quantity.
func (l LineItem) ExtendedDeclaredValue() float64 {
	return l.UnitDeclaredValue * float64(l.Quantity)
}

// ExtendedWeight is the weight for the full line quantity.
func (l LineItem) ExtendedWeight() float64 {
	return l.UnitWeight * float64(l.Quantity)
}

// Allocation holds the share of shipment-level costs assigned to one line.
// Extended figures cover the full line quantity; unit figures divide by it.
type Allocation struct {
	ProratedFreight   float64 `json:"prorated_freight"`
	ProratedInsurance float64 `json:"prorated_insurance"`
	LandedValue       float64 `json:"landed_value"`
	UnitFreight       float64 `json:"unit_freight"`
	UnitInsurance     float64 `json:"unit_insurance"`
	UnitLandedValue   float64 `json:"unit_landed_value"`
}

// ValidationError reports a malformed input field. The computation that
// raised it produced no partial results.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Allocate distributes the shipment's freight and insurance across the
// line items: freight by weight share, insurance by declared-value share.
// When the shipment total for a basis is zero the cost is split in equal
// shares by line count.
//
// An empty item list yields an empty result. Negative amounts and
// non-positive quantities are rejected; values are never clamped.
func Allocate(shipment Shipment, items []LineItem) ([]Allocation, error) {
	if err := validateShipment(shipment); err != nil {
		return nil, err
	}
	for i, item := range items {
		if err := validateItem(i, item); err != nil {
			return nil, err
		}
	}
	if len(items) == 0 {
		return []Allocation{}, nil
	}

	var totalWeight, totalDeclared float64
	for _, item := range items {
		totalWeight += item.ExtendedWeight()
		totalDeclared += item.ExtendedDeclaredValue()
	}

	equalShare := 1.0 / float64(len(items))
	allocations := make([]Allocation, 0, len(items))
	for _, item := range items {
		freightShare := equalShare
		if totalWeight > 0 {
			freightShare = item.ExtendedWeight() / totalWeight
		}
		insuranceShare := equalShare
		if totalDeclared > 0 {
			insuranceShare = item.ExtendedDeclaredValue() / totalDeclared
		}

		a := Allocation{
			ProratedFreight:   shipment.FreightTotal * freightShare,
			ProratedInsurance: shipment.InsuranceTotal * insuranceShare,
		}
		a.LandedValue = item.ExtendedDeclaredValue() + a.ProratedFreight + a.ProratedInsurance

		qty := float64(item.Quantity)
		a.UnitFreight = a.ProratedFreight / qty
		a.UnitInsurance = a.ProratedInsurance / qty
		a.UnitLandedValue = a.LandedValue / qty

		allocations = append(allocations, a)
	}

	return allocations, nil
}

func validateShipment(s Shipment) error {
	fields := []struct {
		name  string
		value float64
	}{
		{"fob_total", s.FOBTotal},
		{"freight_total", s.FreightTotal},
		{"insurance_total", s.InsuranceTotal},
		{"registration_fee", s.RegistrationFee},
		{"financial_fee", s.FinancialFee},
		{"forwarding_fee", s.ForwardingFee},
		{"security_fee", s.SecurityFee},
		{"miscellaneous_fee", s.MiscellaneousFee},
		{"advance_of_funds_fee", s.AdvanceOfFundsFee},
		{"clearance_credit_fee", s.ClearanceCreditFee},
	}
	for _, f := range fields {
		if f.value < 0 {
			return &ValidationError{Field: f.name, Reason: "doit être supérieur ou égal à 0"}
		}
	}
	return nil
}

func validateItem(index int, item LineItem) error {
	prefix := fmt.Sprintf("items[%d].", index)
	if item.Quantity <= 0 {
		return &ValidationError{Field: prefix + "quantity", Reason: "doit être supérieur à 0"}
	}
	if item.UnitWeight < 0 {
		return &ValidationError{Field: prefix + "unit_weight", Reason: "doit être supérieur ou égal à 0"}
	}
	if item.UnitDeclaredValue < 0 {
		return &ValidationError{Field: prefix + "unit_declared_value", Reason: "doit être supérieur ou égal à 0"}
	}
	return nil
}
