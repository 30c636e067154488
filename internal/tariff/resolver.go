package tariff

// Amount is one tax component, extended over the full line quantity and
// per unit.
type Amount struct {
	Unit     float64 `json:"unit"`
	Extended float64 `json:"extended"`
}

// Breakdown holds the resolved tax components for one line item.
// Unmapped marks a line whose classification code is absent from the
// schedule: every component is zero and the line must still be reported.
type Breakdown struct {
	Duty                    Amount `json:"duty"`
	StatisticalLevy         Amount `json:"statistical_levy"`
	CommunitySolidarityLevy Amount `json:"community_solidarity_levy"`
	AccompanimentLevy       Amount `json:"accompaniment_levy"`
	CompetitivenessLevy     Amount `json:"competitiveness_levy"`
	RegularizationFee       Amount `json:"regularization_fee"`
	PriceControlFee         Amount `json:"price_control_fee"`
	VAT                     Amount `json:"vat"`
	SpecialBeverageTax      Amount `json:"special_beverage_tax"`
	SlaughterTax            Amount `json:"slaughter_tax"`
	Unmapped                bool   `json:"unmapped,omitempty"`
}

// Total returns the sum of the extended component amounts.
func (b Breakdown) Total() float64 {
	return b.Duty.Extended +
		b.StatisticalLevy.Extended +
		b.CommunitySolidarityLevy.Extended +
		b.AccompanimentLevy.Extended +
		b.CompetitivenessLevy.Extended +
		b.RegularizationFee.Extended +
		b.PriceControlFee.Extended +
		b.VAT.Extended +
		b.SpecialBeverageTax.Extended +
		b.SlaughterTax.Extended
}

// Resolve computes the tax breakdown for one line. The basis per
// component is fixed: RSTA, PCS, PUA and PCC apply to the extended
// declared value; the duty and the remaining components apply to the
// landed value (CAF). A nil row resolves everything to zero and marks
// the breakdown Unmapped instead of failing the simulation.
func Resolve(quantity int, declaredValue, landedValue float64, row *Row) Breakdown {
	if row == nil {
		return Breakdown{Unmapped: true}
	}

	return Breakdown{
		Duty:                    amount(landedValue, row.EffectiveDutyRate(), quantity),
		StatisticalLevy:         amount(declaredValue, row.StatisticalLevy, quantity),
		CommunitySolidarityLevy: amount(declaredValue, row.CommunitySolidarityLevy, quantity),
		AccompanimentLevy:       amount(declaredValue, row.AccompanimentLevy, quantity),
		CompetitivenessLevy:     amount(declaredValue, row.CompetitivenessLevy, quantity),
		RegularizationFee:       amount(landedValue, row.RegularizationFee, quantity),
		PriceControlFee:         amount(landedValue, row.PriceControlFee, quantity),
		VAT:                     amount(landedValue, row.VATRate, quantity),
		SpecialBeverageTax:      amount(landedValue, row.SpecialBeverageTax, quantity),
		SlaughterTax:            amount(landedValue, row.SlaughterTax, quantity),
	}
}

func amount(base, rate float64, quantity int) Amount {
	extended := base * rate / 100
	return Amount{
		Extended: extended,
		Unit:     extended / float64(quantity),
	}
}
