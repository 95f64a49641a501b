package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"skarbnik/internal/core"
	"skarbnik/internal/report"
)

// Rules is the report-shaping data supplied by the organization: category
// rules (ordered, first match wins), account display labels, report
// corrections and the recurring reservation schedule.
type Rules struct {
	CategoryRules []report.CategoryRule
	AccountLabels map[string]string
	Corrections   report.Corrections
	Reservations  []report.Reservation
}

type rulesFile struct {
	CategoryRules []struct {
		Pattern string `json:"pattern"`
		Label   string `json:"label"`
	} `json:"category_rules"`
	AccountLabels map[string]string `json:"account_labels"`
	Corrections   struct {
		ByAccountLabel  map[string]core.Money            `json:"by_account_label"`
		MonthlyIncome   map[string]map[string]core.Money `json:"monthly_income"`
		MonthlyExpenses map[string]map[string]core.Money `json:"monthly_expenses"`
	} `json:"corrections"`
	Reservations []struct {
		Label     string     `json:"label"`
		StartDate string     `json:"start_date"` // YYYY-MM-DD, organization-local
		Amount    core.Money `json:"amount"`
	} `json:"reservations"`
}

// LoadRules reads and compiles the rules file. Reservation start dates are
// interpreted in the given location.
func LoadRules(path string, loc *time.Location) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var raw rulesFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	pairs := make([][2]string, 0, len(raw.CategoryRules))
	for _, r := range raw.CategoryRules {
		pairs = append(pairs, [2]string{r.Pattern, r.Label})
	}
	compiled, err := report.CompileRules(pairs)
	if err != nil {
		return nil, fmt.Errorf("compile category rules: %w", err)
	}

	reservations := make([]report.Reservation, 0, len(raw.Reservations))
	for _, r := range raw.Reservations {
		start, err := time.ParseInLocation("2006-01-02", r.StartDate, loc)
		if err != nil {
			return nil, fmt.Errorf("parse reservation %q start date: %w", r.Label, err)
		}
		reservations = append(reservations, report.Reservation{
			Label:     r.Label,
			StartDate: start,
			Amount:    r.Amount,
		})
	}

	return &Rules{
		CategoryRules: compiled,
		AccountLabels: raw.AccountLabels,
		Corrections: report.Corrections{
			ByAccountLabel:  raw.Corrections.ByAccountLabel,
			MonthlyIncome:   raw.Corrections.MonthlyIncome,
			MonthlyExpenses: raw.Corrections.MonthlyExpenses,
		},
		Reservations: reservations,
	}, nil
}
