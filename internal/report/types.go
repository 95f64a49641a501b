package report

import (
	"regexp"
	"time"

	"skarbnik/internal/core"
)

const (
	// DefaultCategory is assigned to an expense no rule matches.
	DefaultCategory = "Pozostałe"

	// UnknownSender groups inbound transfers whose sender account does not
	// resolve to a known contact.
	UnknownSender = "nieznany"

	// IncomeLabel is the label income is summed under in the monthly
	// sections. Kept for compatibility with the published report format.
	IncomeLabel = "Suma"
)

type (
	// CategoryRule maps a description pattern to a category label.
	// Rules are ordered: the first matching rule wins.
	CategoryRule struct {
		Pattern *regexp.Regexp
		Label   string
	}

	// Reservation is a recurring fixed monthly set-aside, accrued each
	// month from StartDate on.
	Reservation struct {
		Label     string
		StartDate time.Time
		Amount    core.Money
	}

	// Corrections patch the report for events the bank never notified
	// about (self-transfers, notification outages). Keys of the monthly
	// maps are period identifiers like "2020-08".
	Corrections struct {
		ByAccountLabel  map[string]core.Money
		MonthlyIncome   map[string]map[string]core.Money
		MonthlyExpenses map[string]map[string]core.Money
	}

	// PeriodBalance aggregates one period. Expenses carry their magnitude,
	// so Net = Income - Expenses.
	PeriodBalance struct {
		Income   core.Money
		Expenses core.Money
		Net      core.Money
	}

	// PeriodicReport is the standalone per-period summary shape.
	PeriodicReport struct {
		Period   string     `json:"period"`
		Income   core.Money `json:"income"`
		Expenses core.Money `json:"expenses"`
		Net      core.Money `json:"net"`
	}

	// MonthlySection holds the per-month breakdown of the current report.
	// The JSON keys are the ones the publication channel has always used.
	MonthlySection struct {
		Expenses     map[string]map[string]core.Money `json:"Wydatki"`
		Income       map[string]map[string]core.Money `json:"Przychody"`
		Balance      map[string]map[string]core.Money `json:"Bilans"`
		FinalBalance map[string]map[string]core.Money `json:"Saldo"`
	}

	// CurrentReport is the point-in-time snapshot of the organization's
	// finances, shaped for the publication collaborator.
	CurrentReport struct {
		DuesTotalLastMonth       core.Money            `json:"dues_total_lastmonth"`
		DuesLastUpdated          string                `json:"dues_last_updated"`
		DuesNumSubscribers       int                   `json:"dues_num_subscribers"`
		ExtraMonthlyReservations core.Money            `json:"extra_monthly_reservations"`
		BalanceSoFar             core.Money            `json:"balance_so_far"`
		BalancesByAccountLabel   map[string]core.Money `json:"balances_by_account_labels"`
		Monthly                  MonthlySection        `json:"monthly"`
	}

	// CurrentReportInput bundles everything CurrentReport is computed
	// from. All inputs are snapshots: the builder reads, never writes.
	CurrentReportInput struct {
		AsOf          time.Time
		Expenses      []core.Entry
		Transfers     []core.Entry
		Subscribers   []core.Subscriber
		Rules         []CategoryRule
		AccountLabels map[string]string // org-side account -> display label
		Corrections   Corrections
		Reservations  []Reservation
	}
)

// CompileRules builds ordered category rules from (pattern, label) pairs.
// Order is preserved; an invalid pattern fails the whole set.
func CompileRules(pairs [][2]string) ([]CategoryRule, error) {
	rules := make([]CategoryRule, 0, len(pairs))
	for _, p := range pairs {
		re, err := regexp.Compile(p[0])
		if err != nil {
			return nil, err
		}
		rules = append(rules, CategoryRule{Pattern: re, Label: p[1]})
	}
	return rules, nil
}
