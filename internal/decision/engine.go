package decision

import (
	"fmt"
	"strings"
)

// Severity grades a decision for display.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Decision is one piece of regulatory guidance produced by an
// evaluation. Decisions have no identity: each evaluation generates a
// fresh list.
type Decision struct {
	Category    string   `json:"category"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// Attributes is the flattened shipment record the rules evaluate.
// Pointer fields are optional: a nil value skips every rule that
// depends on it, it is never an error.
type Attributes struct {
	Licence         *float64
	FOBTotal        *float64
	FOBVOC          *float64
	Route           string
	InsuranceTotal  *float64
	LandedTotal     *float64
	DutyCoefficient *float64

	OriginCountry     string
	PaymentInstrument string
	Incoterm          string

	// Set when at least one line's tariff row carries the matching rate.
	PriceControlApplies   bool
	RegularizationApplies bool
}

// rule is one independent predicate over attributes and criteria. Rules
// are declared in presentation order; none reads another's output, with
// the single exception of the Route sub-rule which is nested inside the
// VOC rule because it only applies once VOC admission is established.
type rule struct {
	name string
	eval func(a Attributes, c Criteria) []Decision
}

var rules = []rule{
	{"licence", evalLicence},
	{"fob-exemption", evalFOBExemption},
	{"voc-admission", evalVOC},
	{"insurance-presence", evalInsurancePresence},
	{"insurance-coverage", evalInsuranceCoverage},
	{"trade-bloc-origin", evalTradeBloc},
	{"payment-instrument", evalPayment},
	{"incoterm", evalIncoterm},
	{"duty-coefficient", evalDutyCoefficient},
	{"security-fee", evalSecurityFee},
	{"price-control", evalPriceControl},
}

// Evaluate runs every rule in declaration order and returns the
// collected decisions, de-duplicated by category so unconditional
// notices like the cargo-tracking fee can only appear once.
func Evaluate(attrs Attributes, criteria Criteria) []Decision {
	decisions := make([]Decision, 0, len(rules))
	for _, r := range rules {
		decisions = append(decisions, r.eval(attrs, criteria)...)
	}
	return dedupeByCategory(decisions)
}

func dedupeByCategory(decisions []Decision) []Decision {
	seen := make(map[string]bool, len(decisions))
	out := decisions[:0]
	for _, d := range decisions {
		if seen[d.Category] {
			continue
		}
		seen[d.Category] = true
		out = append(out, d)
	}
	return out
}

// The licence floors are distinct regulatory triggers: the exact
// control-on-arrival value is its own branch, not the lower end of a
// range.
func evalLicence(a Attributes, c Criteria) []Decision {
	if a.Licence == nil {
		return nil
	}
	switch {
	case *a.Licence == c.LicenceControlArrivalFloor:
		return []Decision{{
			Category:    "Licence",
			Title:       "Contrôle à l'arrivée",
			Description: fmt.Sprintf("La valeur sous licence atteint exactement le seuil de %.0f : la marchandise est soumise au contrôle documentaire à l'arrivée.", c.LicenceControlArrivalFloor),
			Severity:    SeverityWarning,
		}}
	case *a.Licence >= c.LicenceAdmissionFloor:
		return []Decision{{
			Category:    "Licence",
			Title:       "Licence admissible",
			Description: fmt.Sprintf("La valeur sous licence est supérieure ou égale au plancher d'admission de %.0f : la demande de licence d'importation est recevable.", c.LicenceAdmissionFloor),
			Severity:    SeveritySuccess,
		}}
	}
	return nil
}

func evalFOBExemption(a Attributes, c Criteria) []Decision {
	if a.FOBTotal == nil {
		return nil
	}
	if *a.FOBTotal < c.FOBInspectionExemptionCeiling {
		return []Decision{{
			Category:    "Inspection",
			Title:       "Exemption d'inspection",
			Description: fmt.Sprintf("La valeur FOB est inférieure au plafond d'exemption de %.0f : l'expédition n'est pas soumise au programme d'inspection avant embarquement.", c.FOBInspectionExemptionCeiling),
			Severity:    SeveritySuccess,
		}}
	}
	return []Decision{{
		Category:    "Inspection",
		Title:       "Inspection obligatoire",
		Description: fmt.Sprintf("La valeur FOB atteint le plafond d'exemption de %.0f : l'expédition est soumise au programme d'inspection avant embarquement.", c.FOBInspectionExemptionCeiling),
		Severity:    SeverityInfo,
	}}
}

// The Route sub-rule is intentionally nested: physical inspection on
// route A only applies once the shipment is admitted to the VOC
// program.
func evalVOC(a Attributes, c Criteria) []Decision {
	if a.FOBVOC == nil || *a.FOBVOC < c.VOCAdmissionFloor {
		return nil
	}
	decisions := []Decision{{
		Category:    "VOC",
		Title:       "Admission au programme VOC",
		Description: fmt.Sprintf("La valeur FOB VOC est supérieure ou égale au plancher de %.0f : une attestation de vérification de conformité (RFCV) est exigée au dédouanement.", c.VOCAdmissionFloor),
		Severity:    SeverityInfo,
	}}
	if strings.EqualFold(a.Route, "A") {
		decisions = append(decisions, Decision{
			Category:    "Route",
			Title:       "Inspection physique (circuit A)",
			Description: "L'expédition est orientée en circuit A : une inspection physique des marchandises est programmée avant enlèvement.",
			Severity:    SeverityWarning,
		})
	}
	return decisions
}

func evalInsurancePresence(a Attributes, c Criteria) []Decision {
	if a.InsuranceTotal == nil {
		return nil
	}
	switch {
	case *a.InsuranceTotal == 0:
		return []Decision{{
			Category:    "Assurance",
			Title:       "Assurance locale requise",
			Description: "Aucune prime d'assurance n'est déclarée : la souscription d'une police auprès d'un assureur agréé localement est obligatoire avant embarquement.",
			Severity:    SeverityWarning,
		}}
	case *a.InsuranceTotal < c.InsuranceMinimum:
		return []Decision{{
			Category:    "Assurance",
			Title:       "Prime inférieure au minimum",
			Description: fmt.Sprintf("La prime d'assurance déclarée est inférieure au minimum réglementaire de %.0f.", c.InsuranceMinimum),
			Severity:    SeverityWarning,
		}}
	}
	return []Decision{{
		Category:    "Assurance",
		Title:       "Assurance déclarée",
		Description: "Une prime d'assurance conforme au minimum réglementaire est déclarée.",
		Severity:    SeveritySuccess,
	}}
}

func evalInsuranceCoverage(a Attributes, c Criteria) []Decision {
	if a.InsuranceTotal == nil || a.LandedTotal == nil {
		return nil
	}
	if *a.InsuranceTotal == 0 || *a.LandedTotal <= 0 {
		return nil
	}
	floor := *a.LandedTotal * c.InsuranceRateFloorPct / 100
	if *a.InsuranceTotal < floor {
		return []Decision{{
			Category:    "Couverture",
			Title:       "Couverture insuffisante",
			Description: fmt.Sprintf("La prime d'assurance couvre moins de %.2f%% de la valeur CAF : la couverture est jugée insuffisante par rapport à la valeur transportée.", c.InsuranceRateFloorPct),
			Severity:    SeverityWarning,
		}}
	}
	return []Decision{{
		Category:    "Couverture",
		Title:       "Couverture suffisante",
		Description: "La prime d'assurance est proportionnée à la valeur CAF de l'expédition.",
		Severity:    SeveritySuccess,
	}}
}

func evalTradeBloc(a Attributes, c Criteria) []Decision {
	if a.OriginCountry == "" {
		return nil
	}
	if !c.InTradeBloc(a.OriginCountry) {
		return nil
	}
	return []Decision{{
		Category:    "Origine",
		Title:       "Origine communautaire",
		Description: fmt.Sprintf("Les marchandises originaires de %s bénéficient du régime préférentiel communautaire sur présentation du certificat d'origine.", a.OriginCountry),
		Severity:    SeveritySuccess,
	}}
}

func evalPayment(a Attributes, c Criteria) []Decision {
	instrument := strings.ToLower(strings.TrimSpace(a.PaymentInstrument))
	if instrument == "" {
		return nil
	}
	switch instrument {
	case "virement", "credoc":
		return []Decision{{
			Category:    "Paiement",
			Title:       "Instrument de paiement sécurisé",
			Description: "Le règlement par voie bancaire offre une traçabilité conforme à la réglementation des changes.",
			Severity:    SeveritySuccess,
		}}
	case "cheque", "chèque":
		return []Decision{{
			Category:    "Paiement",
			Title:       "Règlement par chèque",
			Description: "Le règlement par chèque reste admis mais un virement documenté est recommandé pour la domiciliation bancaire.",
			Severity:    SeverityInfo,
		}}
	case "especes", "espèces":
		if a.FOBTotal != nil && *a.FOBTotal > c.CashPaymentCeiling {
			return []Decision{{
				Category:    "Paiement",
				Title:       "Paiement en espèces au-delà du plafond",
				Description: fmt.Sprintf("Le règlement en espèces dépasse le plafond autorisé de %.0f : l'opération doit être domiciliée auprès d'une banque.", c.CashPaymentCeiling),
				Severity:    SeverityError,
			}}
		}
		return []Decision{{
			Category:    "Paiement",
			Title:       "Paiement en espèces",
			Description: "Le règlement en espèces expose l'importateur à un risque de non-traçabilité ; un instrument bancaire est préférable.",
			Severity:    SeverityWarning,
		}}
	}
	return nil
}

func evalIncoterm(a Attributes, _ Criteria) []Decision {
	incoterm := strings.ToUpper(strings.TrimSpace(a.Incoterm))
	if incoterm == "" {
		return nil
	}
	switch incoterm {
	case "EXW", "DDP":
		return []Decision{{
			Category:    "Incoterm",
			Title:       fmt.Sprintf("Incoterm %s à risque", incoterm),
			Description: fmt.Sprintf("L'incoterm %s fait porter à l'importateur des obligations difficiles à maîtriser depuis le pays de destination ; préférer FOB ou CFR.", incoterm),
			Severity:    SeverityWarning,
		}}
	case "FOB", "FCA":
		return []Decision{{
			Category:    "Incoterm",
			Title:       fmt.Sprintf("Incoterm %s recommandé", incoterm),
			Description: fmt.Sprintf("L'incoterm %s laisse à l'importateur la maîtrise du fret et de l'assurance.", incoterm),
			Severity:    SeveritySuccess,
		}}
	}
	return []Decision{{
		Category:    "Incoterm",
		Title:       fmt.Sprintf("Incoterm %s", incoterm),
		Description: fmt.Sprintf("Vérifier la répartition des coûts et des risques prévue par l'incoterm %s.", incoterm),
		Severity:    SeverityInfo,
	}}
}

func evalDutyCoefficient(a Attributes, c Criteria) []Decision {
	if a.DutyCoefficient == nil {
		return nil
	}
	if *a.DutyCoefficient <= c.DutyCoefficientCeiling {
		return []Decision{{
			Category:    "Coefficient",
			Title:       "Coefficient de revient satisfaisant",
			Description: fmt.Sprintf("Le coefficient de revient (%.2f) reste sous le plafond de %.2f.", *a.DutyCoefficient, c.DutyCoefficientCeiling),
			Severity:    SeveritySuccess,
		}}
	}
	return []Decision{{
		Category:    "Coefficient",
		Title:       "Coefficient de revient élevé",
		Description: fmt.Sprintf("Le coefficient de revient (%.2f) dépasse le plafond de %.2f : la marge commerciale sera difficile à préserver.", *a.DutyCoefficient, c.DutyCoefficientCeiling),
		Severity:    SeverityWarning,
	}}
}

// Unconditional: the cargo-tracking note applies to every import. The
// final de-duplication by category keeps it single even if another path
// ever appends the same notice.
func evalSecurityFee(_ Attributes, _ Criteria) []Decision {
	return []Decision{{
		Category:    "BSC",
		Title:       "Bordereau de suivi des cargaisons",
		Description: "Le bordereau de suivi des cargaisons (BSC) est exigible pour toute importation, quel que soit le mode de transport.",
		Severity:    SeverityInfo,
	}}
}

func evalPriceControl(a Attributes, _ Criteria) []Decision {
	var decisions []Decision
	if a.PriceControlApplies {
		decisions = append(decisions, Decision{
			Category:    "RCP",
			Title:       "Contrôle des prix applicable",
			Description: "Au moins une position tarifaire de l'expédition est soumise à la redevance de contrôle des prix (RCP).",
			Severity:    SeverityInfo,
		})
	}
	if a.RegularizationApplies {
		decisions = append(decisions, Decision{
			Category:    "RRR",
			Title:       "Régularisation applicable",
			Description: "Au moins une position tarifaire de l'expédition est soumise à la redevance de régularisation (RRR).",
			Severity:    SeverityInfo,
		})
	}
	return decisions
}
