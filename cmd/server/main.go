package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Kabret0/douanesim/internal/config"
	"github.com/Kabret0/douanesim/internal/db"
	"github.com/Kabret0/douanesim/internal/decision"
	"github.com/Kabret0/douanesim/internal/migrations"
	"github.com/Kabret0/douanesim/internal/seed"
	"github.com/Kabret0/douanesim/internal/tariff"
)

type server struct {
	auth     *authService
	db       *sql.DB
	criteria decision.Provider
}

type baseViewData struct {
	ErrorMessage   string
	SuccessMessage string
}

type loginViewData struct {
	baseViewData
}

type criteriaViewData struct {
	baseViewData
	Criteria         decision.Criteria
	TradeBlocMembers string
}

type tariffsViewData struct {
	baseViewData
	Rows []tariff.Row
}

type simulationListItem struct {
	ID        int64
	CreatedAt string
	Title     string
	TotalCost float64
}

type simulationsViewData struct {
	baseViewData
	Query       string
	Simulations []simulationListItem
}

func main() {
	cfg := config.Load()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	if cfg.IsDev() {
		if err := migrations.Up(database, "migrations"); err != nil {
			log.Fatalf("failed to run database migrations: %v", err)
		}
	}

	stats, err := seed.Run(database, seed.Config{AdminEmail: cfg.AdminEmail, AdminPassword: cfg.AdminPassword})
	if err != nil {
		log.Fatalf("failed to run startup seed: %v", err)
	}
	if stats.Inserts > 0 {
		log.Printf("seed: %d rows inserted", stats.Inserts)
	}

	auth := newAuthService(database, cfg.SessionSecret)
	if err := auth.ensureAdminUser(cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Fatalf("failed to ensure admin user: %v", err)
	}

	srv := &server{
		auth:     auth,
		db:       database,
		criteria: decision.NewStoreProvider(database, cfg.CriteriaTTL),
	}

	r := chi.NewRouter()
	r.Use(srv.authMiddleware)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir("web/static"))))
	r.Get("/", srv.handleHome)
	r.Get("/login", srv.handleLoginForm)
	r.Post("/login", srv.handleLoginSubmit)
	r.Post("/logout", srv.handleLogout)
	r.Get("/simulate", srv.handleSimulateForm)
	r.Post("/simulate", srv.handleSimulateSubmit)
	r.Get("/simulations", srv.handleSimulationsList)
	r.Get("/simulations/{id}", srv.handleSimulationDetail)
	r.Get("/simulations/{id}/text", srv.handleSimulationText)
	r.Get("/admin/criteria", srv.handleAdminCriteriaForm)
	r.Post("/admin/criteria", srv.handleAdminCriteriaSubmit)
	r.Get("/admin/tariffs", srv.handleAdminTariffsForm)
	r.Post("/admin/tariffs", srv.handleAdminTariffsCreate)
	r.Post("/admin/tariffs/{code}", srv.handleAdminTariffsUpdate)

	addr := ":" + cfg.Port
	log.Printf("listening on %s", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

func (s *server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.renderTemplate(w, "home.html", nil)
}

func (s *server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	if isAuthenticated(r, s.auth) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.renderTemplate(w, "login.html", loginViewData{})
}

func (s *server) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	email := r.FormValue("email")
	password := r.FormValue("password")
	valid, err := s.auth.validateCredentials(email, password)
	if err != nil {
		http.Error(w, "authentication error", http.StatusInternalServerError)
		return
	}
	if !valid {
		w.WriteHeader(http.StatusUnauthorized)
		s.renderTemplate(w, "login.html", loginViewData{baseViewData: baseViewData{ErrorMessage: "Identifiants invalides. Veuillez réessayer."}})
		return
	}

	s.auth.setSessionCookie(w, email)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.auth.clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *server) handleAdminCriteriaForm(w http.ResponseWriter, r *http.Request) {
	criteria, err := s.resolveCriteria(r)
	if err != nil {
		http.Error(w, "failed to load decision criteria", http.StatusInternalServerError)
		return
	}

	s.renderTemplate(w, "admin_criteria.html", criteriaViewData{
		baseViewData: baseViewData{
			ErrorMessage:   r.URL.Query().Get("error"),
			SuccessMessage: r.URL.Query().Get("success"),
		},
		Criteria:         criteria,
		TradeBlocMembers: strings.Join(criteria.TradeBlocMembers, ", "),
	})
}

func (s *server) handleAdminCriteriaSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	criteria, validationErr := parseCriteriaForm(r)
	if validationErr != nil {
		w.WriteHeader(http.StatusBadRequest)
		s.renderTemplate(w, "admin_criteria.html", criteriaViewData{
			baseViewData:     baseViewData{ErrorMessage: validationErr.Error()},
			Criteria:         criteria,
			TradeBlocMembers: strings.Join(criteria.TradeBlocMembers, ", "),
		})
		return
	}

	if err := s.updateCriteria(criteria); err != nil {
		http.Error(w, "failed to save decision criteria", http.StatusInternalServerError)
		return
	}

	s.renderTemplate(w, "admin_criteria.html", criteriaViewData{
		baseViewData:     baseViewData{SuccessMessage: "Critères enregistrés avec succès."},
		Criteria:         criteria,
		TradeBlocMembers: strings.Join(criteria.TradeBlocMembers, ", "),
	})
}

func (s *server) handleAdminTariffsForm(w http.ResponseWriter, r *http.Request) {
	rows, err := s.listTariffRows()
	if err != nil {
		http.Error(w, "failed to load tariff rows", http.StatusInternalServerError)
		return
	}

	s.renderTemplate(w, "admin_tariffs.html", tariffsViewData{
		baseViewData: baseViewData{
			ErrorMessage:   r.URL.Query().Get("error"),
			SuccessMessage: r.URL.Query().Get("success"),
		},
		Rows: rows,
	})
}

func (s *server) handleAdminTariffsCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	row, err := parseTariffRowForm(r)
	if err != nil {
		http.Redirect(w, r, "/admin/tariffs?error="+url.QueryEscape(err.Error()), http.StatusSeeOther)
		return
	}

	_, err = s.db.Exec(`
		INSERT INTO tariff_rows (code, designation, dd, rsta, pcs, pua, pcc, rrr, rcp, tva, tsb, tab, cumul_ttc, cumul_ht, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, TRUE)
	`,
		row.Code, row.Designation, row.DutyRate, row.StatisticalLevy, row.CommunitySolidarityLevy,
		row.AccompanimentLevy, row.CompetitivenessLevy, row.RegularizationFee, row.PriceControlFee,
		row.VATRate, row.SpecialBeverageTax, row.SlaughterTax, row.CumulativeWithVAT, row.CumulativeWithoutVAT,
	)
	if err != nil {
		http.Error(w, "failed to create tariff row", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/admin/tariffs?success=Position+tarifaire+cr%C3%A9%C3%A9e", http.StatusSeeOther)
}

func (s *server) handleAdminTariffsUpdate(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		http.Error(w, "invalid tariff code", http.StatusBadRequest)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	row, err := parseTariffRowForm(r)
	if err != nil {
		http.Redirect(w, r, "/admin/tariffs?error="+url.QueryEscape(err.Error()), http.StatusSeeOther)
		return
	}

	active := r.FormValue("active") == "1"

	result, err := s.db.Exec(`
		UPDATE tariff_rows
		SET
			designation = ?,
			dd = ?, rsta = ?, pcs = ?, pua = ?, pcc = ?,
			rrr = ?, rcp = ?, tva = ?, tsb = ?, tab = ?,
			cumul_ttc = ?, cumul_ht = ?,
			active = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE code = ?
	`,
		row.Designation, row.DutyRate, row.StatisticalLevy, row.CommunitySolidarityLevy,
		row.AccompanimentLevy, row.CompetitivenessLevy, row.RegularizationFee, row.PriceControlFee,
		row.VATRate, row.SpecialBeverageTax, row.SlaughterTax, row.CumulativeWithVAT, row.CumulativeWithoutVAT,
		active, code,
	)
	if err != nil {
		http.Error(w, "failed to update tariff row", http.StatusInternalServerError)
		return
	}

	affected, err := result.RowsAffected()
	if err != nil {
		http.Error(w, "failed to update tariff row", http.StatusInternalServerError)
		return
	}
	if affected == 0 {
		http.NotFound(w, r)
		return
	}

	http.Redirect(w, r, "/admin/tariffs?success=Position+tarifaire+mise+%C3%A0+jour", http.StatusSeeOther)
}

func (s *server) handleSimulationsList(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	simulations, err := s.listSimulations(query)
	if err != nil {
		http.Error(w, "failed to load simulations", http.StatusInternalServerError)
		return
	}

	s.renderTemplate(w, "simulations.html", simulationsViewData{
		Query:       query,
		Simulations: simulations,
	})
}

func (s *server) listSimulations(query string) ([]simulationListItem, error) {
	search := "%" + query + "%"
	rows, err := s.db.Query(`
		SELECT
			id,
			created_at,
			COALESCE(title, ''),
			totals_json
		FROM simulations
		WHERE (? = '' OR COALESCE(title, '') LIKE ? OR COALESCE(notes, '') LIKE ?)
		ORDER BY datetime(created_at) DESC, id DESC
	`, query, search, search)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	simulations := make([]simulationListItem, 0)
	for rows.Next() {
		var item simulationListItem
		var totalsJSON string
		if err := rows.Scan(&item.ID, &item.CreatedAt, &item.Title, &totalsJSON); err != nil {
			return nil, err
		}
		item.TotalCost = extractTotalCostFromJSON(totalsJSON)
		simulations = append(simulations, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return simulations, nil
}

func extractTotalCostFromJSON(totalsJSON string) float64 {
	var values map[string]float64
	if err := json.Unmarshal([]byte(totalsJSON), &values); err != nil {
		return 0
	}

	for _, key := range []string{"total_cost", "cout_de_revient"} {
		if total, ok := values[key]; ok {
			return total
		}
	}

	return 0
}

func (s *server) listTariffRows() ([]tariff.Row, error) {
	rows, err := s.db.Query(`
		SELECT code, COALESCE(designation, ''), dd, rsta, pcs, pua, pcc, rrr, rcp, tva, tsb, tab, cumul_ttc, cumul_ht
		FROM tariff_rows
		ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("query tariff rows: %w", err)
	}
	defer rows.Close()

	tariffRows := make([]tariff.Row, 0)
	for rows.Next() {
		var t tariff.Row
		if err := rows.Scan(
			&t.Code, &t.Designation, &t.DutyRate, &t.StatisticalLevy, &t.CommunitySolidarityLevy,
			&t.AccompanimentLevy, &t.CompetitivenessLevy, &t.RegularizationFee, &t.PriceControlFee,
			&t.VATRate, &t.SpecialBeverageTax, &t.SlaughterTax, &t.CumulativeWithVAT, &t.CumulativeWithoutVAT,
		); err != nil {
			return nil, fmt.Errorf("scan tariff row: %w", err)
		}
		tariffRows = append(tariffRows, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tariff rows: %w", err)
	}

	return tariffRows, nil
}

// resolveCriteria loads the stored thresholds, falling back to the
// hard-coded defaults when the store is unavailable. The fallback
// composition lives here, not in the engine.
func (s *server) resolveCriteria(r *http.Request) (decision.Criteria, error) {
	criteria, err := s.criteria.Criteria(r.Context())
	if err != nil {
		log.Printf("warning: decision criteria unavailable, using defaults: %v", err)
		return decision.Defaults(), nil
	}
	return criteria, nil
}

func (s *server) updateCriteria(c decision.Criteria) error {
	_, err := s.db.Exec(`
		UPDATE decision_criteria
		SET
			licence_admission_floor = ?,
			licence_control_arrival_floor = ?,
			fob_inspection_exemption_ceiling = ?,
			voc_admission_floor = ?,
			insurance_minimum = ?,
			insurance_rate_floor_pct = ?,
			duty_coefficient_ceiling = ?,
			cash_payment_ceiling = ?,
			trade_bloc_members = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
	`,
		c.LicenceAdmissionFloor,
		c.LicenceControlArrivalFloor,
		c.FOBInspectionExemptionCeiling,
		c.VOCAdmissionFloor,
		c.InsuranceMinimum,
		c.InsuranceRateFloorPct,
		c.DutyCoefficientCeiling,
		c.CashPaymentCeiling,
		strings.Join(c.TradeBlocMembers, ","),
	)
	if err != nil {
		return fmt.Errorf("update decision criteria: %w", err)
	}

	return nil
}

func parseCriteriaForm(r *http.Request) (decision.Criteria, error) {
	var c decision.Criteria

	var err error
	if c.LicenceAdmissionFloor, err = parseNonNegativeFloat(r.FormValue("licence_admission_floor"), "licence_admission_floor"); err != nil {
		return c, err
	}
	if c.LicenceControlArrivalFloor, err = parseNonNegativeFloat(r.FormValue("licence_control_arrival_floor"), "licence_control_arrival_floor"); err != nil {
		return c, err
	}
	if c.FOBInspectionExemptionCeiling, err = parseNonNegativeFloat(r.FormValue("fob_inspection_exemption_ceiling"), "fob_inspection_exemption_ceiling"); err != nil {
		return c, err
	}
	if c.VOCAdmissionFloor, err = parseNonNegativeFloat(r.FormValue("voc_admission_floor"), "voc_admission_floor"); err != nil {
		return c, err
	}
	if c.InsuranceMinimum, err = parseNonNegativeFloat(r.FormValue("insurance_minimum"), "insurance_minimum"); err != nil {
		return c, err
	}
	if c.InsuranceRateFloorPct, err = parsePercent(r.FormValue("insurance_rate_floor_pct"), "insurance_rate_floor_pct"); err != nil {
		return c, err
	}
	if c.DutyCoefficientCeiling, err = parseNonNegativeFloat(r.FormValue("duty_coefficient_ceiling"), "duty_coefficient_ceiling"); err != nil {
		return c, err
	}
	if c.CashPaymentCeiling, err = parseNonNegativeFloat(r.FormValue("cash_payment_ceiling"), "cash_payment_ceiling"); err != nil {
		return c, err
	}

	for _, member := range strings.Split(r.FormValue("trade_bloc_members"), ",") {
		member = strings.TrimSpace(member)
		if member != "" {
			c.TradeBlocMembers = append(c.TradeBlocMembers, member)
		}
	}

	return c, nil
}

func parseTariffRowForm(r *http.Request) (tariff.Row, error) {
	row := tariff.Row{
		Code:        strings.TrimSpace(r.FormValue("code")),
		Designation: strings.TrimSpace(r.FormValue("designation")),
	}

	fields := []struct {
		name   string
		target *float64
	}{
		{"dd", &row.DutyRate},
		{"rsta", &row.StatisticalLevy},
		{"pcs", &row.CommunitySolidarityLevy},
		{"pua", &row.AccompanimentLevy},
		{"pcc", &row.CompetitivenessLevy},
		{"rrr", &row.RegularizationFee},
		{"rcp", &row.PriceControlFee},
		{"tva", &row.VATRate},
		{"tsb", &row.SpecialBeverageTax},
		{"tab", &row.SlaughterTax},
		{"cumul_ttc", &row.CumulativeWithVAT},
		{"cumul_ht", &row.CumulativeWithoutVAT},
	}
	for _, f := range fields {
		value, err := parsePercent(r.FormValue(f.name), f.name)
		if err != nil {
			return row, err
		}
		*f.target = value
	}

	if err := row.Validate(); err != nil {
		return row, err
	}

	return row, nil
}

func parseNonNegativeFloat(raw, field string) (float64, error) {
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s doit être numérique", field)
	}
	if value < 0 {
		return 0, fmt.Errorf("%s doit être supérieur ou égal à 0", field)
	}
	return value, nil
}

func parsePercent(raw, field string) (float64, error) {
	value, err := parseNonNegativeFloat(raw, field)
	if err != nil {
		return 0, err
	}
	if value > 100 {
		return 0, fmt.Errorf("%s doit être entre 0 et 100", field)
	}
	return value, nil
}

func parsePositiveInt(raw, field string) (int, error) {
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s doit être un entier", field)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%s doit être supérieur à 0", field)
	}
	return value, nil
}

func (s *server) renderTemplate(w http.ResponseWriter, page string, data any) {
	templates, err := template.ParseFiles(
		"web/templates/layout.html",
		"web/templates/"+page,
	)
	if err != nil {
		http.Error(w, "failed to parse template", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.ExecuteTemplate(w, "layout.html", data); err != nil {
		http.Error(w, "failed to render template", http.StatusInternalServerError)
		return
	}
}

func (s *server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" || r.URL.Path == "/static" || strings.HasPrefix(r.URL.Path, "/static/") {
			next.ServeHTTP(w, r)
			return
		}

		if !isAuthenticated(r, s.auth) {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isAuthenticated(r *http.Request, auth *authService) bool {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return false
	}

	_, ok := auth.verifySessionValue(cookie.Value)
	return ok
}

var errNotFound = errors.New("not found")
