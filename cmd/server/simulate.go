package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Kabret0/douanesim/internal/costing"
	"github.com/Kabret0/douanesim/internal/decision"
	"github.com/Kabret0/douanesim/internal/simulation"
	"github.com/Kabret0/douanesim/internal/tariff"
)

// maxFormLines bounds the number of line-item rows the form renders.
const maxFormLines = 10

type simulationForm struct {
	Title string
	Notes string
	Input simulation.Input
}

type simulateViewData struct {
	baseViewData
	TariffRows []tariff.Row
	LineSlots  []int
	Form       simulationForm
}

type simulationDetail struct {
	ID                 int64
	CreatedAt          string
	Title              string
	Notes              string
	MarginPercent      float64
	CompanyCoefficient float64
	VATPercent         float64
	Input              simulation.Input
	Totals             simulation.Totals
	Pricing            costing.Pricing
	Decisions          []decision.Decision
	Warnings           []string
	Lines              []simulation.Line
}

type simulationDetailViewData struct {
	baseViewData
	Detail simulationDetail
}

func (s *server) handleSimulateForm(w http.ResponseWriter, r *http.Request) {
	rows, err := s.listTariffRows()
	if err != nil {
		http.Error(w, "failed to load tariff rows", http.StatusInternalServerError)
		return
	}

	s.renderTemplate(w, "simulate.html", simulateViewData{
		TariffRows: rows,
		LineSlots:  lineSlots(),
		Form:       simulationForm{Input: simulation.Input{CompanyCoefficient: 1, VATRatePct: 18}},
	})
}

func (s *server) handleSimulateSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	form, err := parseSimulationForm(r)
	if err != nil {
		s.renderSimulateError(w, form, err)
		return
	}

	schedule, err := tariff.LoadSchedule(s.db)
	if err != nil {
		http.Error(w, "failed to load tariff schedule", http.StatusInternalServerError)
		return
	}

	criteria, err := s.resolveCriteria(r)
	if err != nil {
		http.Error(w, "failed to load decision criteria", http.StatusInternalServerError)
		return
	}

	result, err := simulation.Run(form.Input, schedule, criteria)
	if err != nil {
		var validationErr *costing.ValidationError
		if errors.As(err, &validationErr) {
			s.renderSimulateError(w, form, validationErr)
			return
		}
		http.Error(w, "simulation failed", http.StatusInternalServerError)
		return
	}

	id, err := s.storeSimulation(form, result)
	if err != nil {
		http.Error(w, "failed to store simulation", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, fmt.Sprintf("/simulations/%d", id), http.StatusSeeOther)
}

func (s *server) renderSimulateError(w http.ResponseWriter, form simulationForm, cause error) {
	rows, err := s.listTariffRows()
	if err != nil {
		http.Error(w, "failed to load tariff rows", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusBadRequest)
	s.renderTemplate(w, "simulate.html", simulateViewData{
		baseViewData: baseViewData{ErrorMessage: cause.Error()},
		TariffRows:   rows,
		LineSlots:    lineSlots(),
		Form:         form,
	})
}

func parseSimulationForm(r *http.Request) (simulationForm, error) {
	form := simulationForm{
		Title: strings.TrimSpace(r.FormValue("title")),
		Notes: strings.TrimSpace(r.FormValue("notes")),
	}
	in := &form.Input

	var err error
	shipmentFields := []struct {
		name   string
		target *float64
	}{
		{"fob_total", &in.Shipment.FOBTotal},
		{"freight_total", &in.Shipment.FreightTotal},
		{"insurance_total", &in.Shipment.InsuranceTotal},
		{"registration_fee", &in.Shipment.RegistrationFee},
		{"financial_fee", &in.Shipment.FinancialFee},
		{"forwarding_fee", &in.Shipment.ForwardingFee},
		{"security_fee", &in.Shipment.SecurityFee},
		{"miscellaneous_fee", &in.Shipment.MiscellaneousFee},
		{"advance_of_funds_fee", &in.Shipment.AdvanceOfFundsFee},
		{"clearance_credit_fee", &in.Shipment.ClearanceCreditFee},
	}
	for _, f := range shipmentFields {
		raw := strings.TrimSpace(r.FormValue(f.name))
		if raw == "" {
			continue
		}
		if *f.target, err = parseNonNegativeFloat(raw, f.name); err != nil {
			return form, err
		}
	}

	if in.DesiredMarginPct, err = parseNonNegativeFloat(r.FormValue("margin_percent"), "margin_percent"); err != nil {
		return form, err
	}
	if in.CompanyCoefficient, err = parseNonNegativeFloat(r.FormValue("company_coefficient"), "company_coefficient"); err != nil {
		return form, err
	}
	if in.VATRatePct, err = parsePercent(r.FormValue("vat_percent"), "vat_percent"); err != nil {
		return form, err
	}

	if raw := strings.TrimSpace(r.FormValue("licence")); raw != "" {
		licence, err := parseNonNegativeFloat(raw, "licence")
		if err != nil {
			return form, err
		}
		in.Licence = &licence
	}
	if raw := strings.TrimSpace(r.FormValue("fob_voc")); raw != "" {
		voc, err := parseNonNegativeFloat(raw, "fob_voc")
		if err != nil {
			return form, err
		}
		in.FOBVOC = &voc
	}

	in.Route = strings.TrimSpace(r.FormValue("route"))
	in.OriginCountry = strings.TrimSpace(r.FormValue("origin_country"))
	in.PaymentInstrument = strings.TrimSpace(r.FormValue("payment_instrument"))
	in.Incoterm = strings.TrimSpace(r.FormValue("incoterm"))

	for i := 1; i <= maxFormLines; i++ {
		code := strings.TrimSpace(r.FormValue(fmt.Sprintf("code_%d", i)))
		quantityRaw := strings.TrimSpace(r.FormValue(fmt.Sprintf("quantity_%d", i)))
		if code == "" && quantityRaw == "" {
			continue
		}
		if code == "" {
			return form, fmt.Errorf("code_%d est requis", i)
		}

		item := costing.LineItem{
			ClassificationCode: code,
			Designation:        strings.TrimSpace(r.FormValue(fmt.Sprintf("designation_%d", i))),
		}
		if item.Quantity, err = parsePositiveInt(quantityRaw, fmt.Sprintf("quantity_%d", i)); err != nil {
			return form, err
		}
		if item.UnitWeight, err = parseNonNegativeFloat(r.FormValue(fmt.Sprintf("unit_weight_%d", i)), fmt.Sprintf("unit_weight_%d", i)); err != nil {
			return form, err
		}
		if item.UnitDeclaredValue, err = parseNonNegativeFloat(r.FormValue(fmt.Sprintf("unit_fob_%d", i)), fmt.Sprintf("unit_fob_%d", i)); err != nil {
			return form, err
		}

		in.Items = append(in.Items, item)
	}

	if len(in.Items) == 0 {
		return form, fmt.Errorf("au moins une ligne de marchandise est requise")
	}

	return form, nil
}

func lineSlots() []int {
	slots := make([]int, maxFormLines)
	for i := range slots {
		slots[i] = i + 1
	}
	return slots
}

// storeSimulation persists the run as JSON snapshots so the detail view
// can re-render it without recalculating.
func (s *server) storeSimulation(form simulationForm, result simulation.Result) (int64, error) {
	inputJSON, err := json.Marshal(form.Input)
	if err != nil {
		return 0, fmt.Errorf("marshal input: %w", err)
	}
	totalsJSON, err := json.Marshal(result.Totals)
	if err != nil {
		return 0, fmt.Errorf("marshal totals: %w", err)
	}
	pricingJSON, err := json.Marshal(result.Pricing)
	if err != nil {
		return 0, fmt.Errorf("marshal pricing: %w", err)
	}
	decisionsJSON, err := json.Marshal(result.Decisions)
	if err != nil {
		return 0, fmt.Errorf("marshal decisions: %w", err)
	}
	warnings := result.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return 0, fmt.Errorf("marshal warnings: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin simulation transaction: %w", err)
	}

	res, err := tx.Exec(`
		INSERT INTO simulations (title, notes, margin_percent, company_coefficient, vat_percent, input_json, totals_json, pricing_json, decisions_json, warnings_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		form.Title, form.Notes,
		form.Input.DesiredMarginPct, form.Input.CompanyCoefficient, form.Input.VATRatePct,
		string(inputJSON), string(totalsJSON), string(pricingJSON), string(decisionsJSON), string(warningsJSON),
	)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("insert simulation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("simulation id: %w", err)
	}

	for _, line := range result.Lines {
		allocationJSON, err := json.Marshal(line.Allocation)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("marshal allocation: %w", err)
		}
		taxesJSON, err := json.Marshal(line.Taxes)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("marshal taxes: %w", err)
		}

		if _, err := tx.Exec(`
			INSERT INTO simulation_lines (simulation_id, code, designation, quantity, unit_weight, unit_fob, allocation_json, taxes_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			id, line.Item.ClassificationCode, line.Item.Designation, line.Item.Quantity,
			line.Item.UnitWeight, line.Item.UnitDeclaredValue, string(allocationJSON), string(taxesJSON),
		); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("insert simulation line: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit simulation transaction: %w", err)
	}

	return id, nil
}

func (s *server) handleSimulationDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid simulation id", http.StatusBadRequest)
		return
	}

	detail, err := s.getSimulationDetail(id)
	if errors.Is(err, errNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, "failed to load simulation", http.StatusInternalServerError)
		return
	}

	s.renderTemplate(w, "simulation_detail.html", simulationDetailViewData{Detail: detail})
}

// getSimulationDetail reads the stored snapshots as-is; the engine is
// never re-run for past simulations.
func (s *server) getSimulationDetail(id int64) (simulationDetail, error) {
	var detail simulationDetail
	var inputJSON, totalsJSON, pricingJSON, decisionsJSON, warningsJSON string

	err := s.db.QueryRow(`
		SELECT id, created_at, COALESCE(title, ''), COALESCE(notes, ''), margin_percent, company_coefficient, vat_percent,
			input_json, totals_json, pricing_json, decisions_json, warnings_json
		FROM simulations
		WHERE id = ?
	`, id).Scan(
		&detail.ID, &detail.CreatedAt, &detail.Title, &detail.Notes,
		&detail.MarginPercent, &detail.CompanyCoefficient, &detail.VATPercent,
		&inputJSON, &totalsJSON, &pricingJSON, &decisionsJSON, &warningsJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return detail, errNotFound
	}
	if err != nil {
		return detail, fmt.Errorf("query simulation: %w", err)
	}

	if err := json.Unmarshal([]byte(inputJSON), &detail.Input); err != nil {
		return detail, fmt.Errorf("unmarshal input snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(totalsJSON), &detail.Totals); err != nil {
		return detail, fmt.Errorf("unmarshal totals snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(pricingJSON), &detail.Pricing); err != nil {
		return detail, fmt.Errorf("unmarshal pricing snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(decisionsJSON), &detail.Decisions); err != nil {
		return detail, fmt.Errorf("unmarshal decisions snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(warningsJSON), &detail.Warnings); err != nil {
		return detail, fmt.Errorf("unmarshal warnings snapshot: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT code, COALESCE(designation, ''), quantity, unit_weight, unit_fob, allocation_json, taxes_json
		FROM simulation_lines
		WHERE simulation_id = ?
		ORDER BY id
	`, id)
	if err != nil {
		return detail, fmt.Errorf("query simulation lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line simulation.Line
		var allocationJSON, taxesJSON string
		if err := rows.Scan(
			&line.Item.ClassificationCode, &line.Item.Designation, &line.Item.Quantity,
			&line.Item.UnitWeight, &line.Item.UnitDeclaredValue, &allocationJSON, &taxesJSON,
		); err != nil {
			return detail, fmt.Errorf("scan simulation line: %w", err)
		}
		if err := json.Unmarshal([]byte(allocationJSON), &line.Allocation); err != nil {
			return detail, fmt.Errorf("unmarshal allocation snapshot: %w", err)
		}
		if err := json.Unmarshal([]byte(taxesJSON), &line.Taxes); err != nil {
			return detail, fmt.Errorf("unmarshal taxes snapshot: %w", err)
		}
		detail.Lines = append(detail.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return detail, fmt.Errorf("iterate simulation lines: %w", err)
	}

	return detail, nil
}

func (s *server) handleSimulationText(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid simulation id", http.StatusBadRequest)
		return
	}

	detail, err := s.getSimulationDetail(id)
	if errors.Is(err, errNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, "failed to load simulation", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(formatSimulationText(detail)))
}

func formatSimulationText(d simulationDetail) string {
	var b strings.Builder

	title := d.Title
	if title == "" {
		title = fmt.Sprintf("Simulation #%d", d.ID)
	}
	fmt.Fprintf(&b, "%s\n", title)
	fmt.Fprintf(&b, "Date: %s\n\n", d.CreatedAt)

	fmt.Fprintf(&b, "Coût de revient total: %.2f FCFA\n", d.Totals.TotalCost)
	fmt.Fprintf(&b, "Valeur FOB: %.2f\n", d.Totals.FOBTotal)
	fmt.Fprintf(&b, "Valeur CAF: %.2f\n", d.Totals.LandedTotal)
	fmt.Fprintf(&b, "Droits et taxes: %.2f\n", d.Totals.TaxTotal)
	fmt.Fprintf(&b, "Frais annexes: %.2f\n\n", d.Totals.FeeTotal)

	fmt.Fprintf(&b, "Coefficient de revient: %.4f\n", d.Pricing.DutyCoefficient)
	fmt.Fprintf(&b, "Prix de vente unitaire conseillé: %.2f\n\n", d.Pricing.UnitSellingPrice)

	fmt.Fprintf(&b, "Marchandises:\n")
	for _, line := range d.Lines {
		fmt.Fprintf(&b, "- %s (%s) x%d : CAF %.2f, taxes %.2f\n",
			line.Item.Designation, line.Item.ClassificationCode, line.Item.Quantity,
			line.Allocation.LandedValue, line.Taxes.Total())
	}

	if len(d.Decisions) > 0 {
		fmt.Fprintf(&b, "\nAvis réglementaires:\n")
		for _, dec := range d.Decisions {
			fmt.Fprintf(&b, "- [%s] %s : %s\n", dec.Severity, dec.Title, dec.Description)
		}
	}

	if len(d.Warnings) > 0 {
		fmt.Fprintf(&b, "\nAvertissements:\n")
		for _, warning := range d.Warnings {
			fmt.Fprintf(&b, "- %s\n", warning)
		}
	}

	return b.String()
}
