// Package report turns ledger snapshots into the organization's financial
// reports: a current snapshot and sparse periodic summaries.
//
// Everything here is pure computation. The same inputs always produce the
// same report, which is what makes the output trustworthy to an auditor.
// Missing data never fails a report: absent categories, periods or
// subscribers degrade to empty sections.
package report

import (
	"sort"
	"time"

	"skarbnik/internal/core"
)

// duesWindow is how far back a payment still counts towards the dues
// metrics of the current report.
const duesWindow = 31 * 24 * time.Hour

// DetermineCategory classifies an expense description against ordered
// rules. The first matching rule wins; when none match, DefaultCategory is
// returned.
func DetermineCategory(description string, rules []CategoryRule) string {
	for _, rule := range rules {
		if rule.Pattern.MatchString(description) {
			return rule.Label
		}
	}
	return DefaultCategory
}

// ApplyExpenses folds expense entries into per-category totals, in the
// order given. Totals carry the expense magnitude, not the signed amount.
func ApplyExpenses(entries []core.Entry, rules []CategoryRule) map[string]core.Money {
	totals := make(map[string]core.Money)
	for _, e := range entries {
		category := DetermineCategory(e.Description, rules)
		totals[category] = totals[category].Add(e.Amount.Abs())
	}
	return totals
}

// ApplyPositiveTransfers folds inbound entries into totals per resolved
// sender identity. Senders absent from contacts are grouped under
// UnknownSender.
func ApplyPositiveTransfers(entries []core.Entry, contacts map[string]string) map[string]core.Money {
	totals := make(map[string]core.Money)
	for _, e := range entries {
		identity, ok := contacts[e.SenderAccount]
		if !ok {
			identity = UnknownSender
		}
		totals[identity] = totals[identity].Add(e.Amount)
	}
	return totals
}

// PeriodicBalance groups entries of both kinds into per-period aggregates.
// Periods with no entries are absent from the result.
func (b *Builder) PeriodicBalance(entries []core.Entry, g Granularity) map[string]PeriodBalance {
	balances := make(map[string]PeriodBalance)
	for _, e := range entries {
		period := b.Period(e.Timestamp, g)
		balance := balances[period]
		if e.Amount.Cents < 0 {
			balance.Expenses = balance.Expenses.Add(e.Amount.Abs())
		} else {
			balance.Income = balance.Income.Add(e.Amount)
		}
		balance.Net = balance.Income.Add(balance.Expenses.Neg())
		balances[period] = balance
	}
	return balances
}

// PeriodicFinalBalance produces the running closing balance across periods
// in chronological order: each period's closing balance is the previous
// one plus that period's net. The second return value is the overall final
// balance.
func PeriodicFinalBalance(balances map[string]PeriodBalance) (map[string]core.Money, core.Money) {
	periods := sortedPeriods(balances)
	closing := make(map[string]core.Money, len(periods))
	var soFar core.Money
	for _, period := range periods {
		soFar = soFar.Add(balances[period].Net)
		closing[period] = soFar
	}
	return closing, soFar
}

// PeriodicReports flattens PeriodicBalance into chronologically sorted
// standalone summaries.
func (b *Builder) PeriodicReports(entries []core.Entry, g Granularity) []PeriodicReport {
	balances := b.PeriodicBalance(entries, g)
	reports := make([]PeriodicReport, 0, len(balances))
	for _, period := range sortedPeriods(balances) {
		balance := balances[period]
		reports = append(reports, PeriodicReport{
			Period:   period,
			Income:   balance.Income,
			Expenses: balance.Expenses,
			Net:      balance.Net,
		})
	}
	return reports
}

// CurrentReport computes the full point-in-time snapshot: balances per
// account label, categorized monthly sections, dues metrics over the
// trailing payment window, and accrued reservations.
func (b *Builder) CurrentReport(in CurrentReportInput) CurrentReport {
	balancesByLabel := make(map[string]core.Money)
	monthlyExpenses := make(map[string]map[string]core.Money)
	monthlyIncome := make(map[string]map[string]core.Money)

	for _, e := range in.Expenses {
		label := b.accountLabel(in.AccountLabels, e.SenderAccount)
		balancesByLabel[label] = balancesByLabel[label].Add(e.Amount)
		month := b.Period(e.Timestamp, Monthly)
		category := DetermineCategory(e.Description, in.Rules)
		addInto(monthlyExpenses, month, category, e.Amount.Abs())
	}

	contacts := make(map[string]string, len(in.Subscribers))
	for _, sub := range in.Subscribers {
		contacts[sub.Account] = sub.Contact
	}

	var (
		duesTotal      core.Money
		lastUpdated    time.Time
		seenAccounts   = map[string]bool{}
		seenContacts   = map[string]bool{}
		numSubscribers int
		windowStart    = in.AsOf.Add(-duesWindow)
		latestTransfer time.Time
	)
	for _, e := range in.Transfers {
		label := b.accountLabel(in.AccountLabels, e.RecipientAccount)
		balancesByLabel[label] = balancesByLabel[label].Add(e.Amount)
		month := b.Period(e.Timestamp, Monthly)
		addInto(monthlyIncome, month, IncomeLabel, e.Amount)

		if e.Timestamp.After(latestTransfer) {
			latestTransfer = e.Timestamp
		}
		if e.Timestamp.Before(windowStart) {
			continue
		}
		if e.Timestamp.After(lastUpdated) {
			lastUpdated = e.Timestamp
		}
		duesTotal = duesTotal.Add(e.Amount)
		contact := contacts[e.SenderAccount]
		if !seenAccounts[e.SenderAccount] && (contact == "" || !seenContacts[contact]) {
			numSubscribers++
			seenAccounts[e.SenderAccount] = true
			if contact != "" {
				seenContacts[contact] = true
			}
		}
	}
	if lastUpdated.IsZero() {
		lastUpdated = latestTransfer
	}

	applyCorrections(in.Corrections, balancesByLabel, monthlyIncome, monthlyExpenses)

	monthlyBalance := make(map[string]map[string]core.Money)
	netByMonth := make(map[string]PeriodBalance)
	for _, month := range unionMonths(monthlyIncome, monthlyExpenses) {
		income := sumValues(monthlyIncome[month])
		expenses := sumValues(monthlyExpenses[month])
		net := income.Add(expenses.Neg())
		monthlyBalance[month] = map[string]core.Money{IncomeLabel: net}
		netByMonth[month] = PeriodBalance{Income: income, Expenses: expenses, Net: net}
	}
	closing, balanceSoFar := PeriodicFinalBalance(netByMonth)
	monthlyFinal := make(map[string]map[string]core.Money, len(closing))
	for month, balance := range closing {
		monthlyFinal[month] = map[string]core.Money{IncomeLabel: balance}
	}

	var lastUpdatedStr string
	if !lastUpdated.IsZero() {
		lastUpdatedStr = lastUpdated.In(b.loc).Format("02-01-2006")
	}

	return CurrentReport{
		DuesTotalLastMonth:       duesTotal,
		DuesLastUpdated:          lastUpdatedStr,
		DuesNumSubscribers:       numSubscribers,
		ExtraMonthlyReservations: b.ExtraMonthlyReservations(in.Reservations, in.AsOf),
		BalanceSoFar:             balanceSoFar,
		BalancesByAccountLabel:   balancesByLabel,
		Monthly: MonthlySection{
			Expenses:     monthlyExpenses,
			Income:       monthlyIncome,
			Balance:      monthlyBalance,
			FinalBalance: monthlyFinal,
		},
	}
}

// applyCorrections patches balances and monthly sections with the
// configured adjustments. Labels unknown to the report are created rather
// than rejected: an incomplete report is still useful.
func applyCorrections(c Corrections, balances map[string]core.Money, income, expenses map[string]map[string]core.Money) {
	for label, amount := range c.ByAccountLabel {
		balances[label] = balances[label].Add(amount)
	}
	for month, byLabel := range c.MonthlyIncome {
		for label, amount := range byLabel {
			addInto(income, month, label, amount)
		}
	}
	for month, byLabel := range c.MonthlyExpenses {
		for label, amount := range byLabel {
			addInto(expenses, month, label, amount)
		}
	}
}

// accountLabel falls back to the raw account identifier when no label is
// configured for it.
func (b *Builder) accountLabel(labels map[string]string, account string) string {
	if label, ok := labels[account]; ok {
		return label
	}
	return account
}

func addInto(m map[string]map[string]core.Money, month, label string, amount core.Money) {
	if m[month] == nil {
		m[month] = make(map[string]core.Money)
	}
	m[month][label] = m[month][label].Add(amount)
}

func sumValues(byLabel map[string]core.Money) core.Money {
	var total core.Money
	for _, amount := range byLabel {
		total = total.Add(amount)
	}
	return total
}

func sortedPeriods(balances map[string]PeriodBalance) []string {
	periods := make([]string, 0, len(balances))
	for period := range balances {
		periods = append(periods, period)
	}
	sort.Strings(periods)
	return periods
}

func unionMonths(income, expenses map[string]map[string]core.Money) []string {
	seen := make(map[string]bool)
	for month := range income {
		seen[month] = true
	}
	for month := range expenses {
		seen[month] = true
	}
	months := make([]string, 0, len(seen))
	for month := range seen {
		months = append(months, month)
	}
	sort.Strings(months)
	return months
}
