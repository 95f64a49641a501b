package report

import (
	"testing"
	"time"

	"skarbnik/internal/core"
)

func mustRules(t *testing.T, pairs [][2]string) []CategoryRule {
	t.Helper()
	rules, err := CompileRules(pairs)
	if err != nil {
		t.Fatalf("CompileRules: %v", err)
	}
	return rules
}

func expense(ts time.Time, cents int64, desc string) core.Entry {
	return core.Entry{
		Kind:             core.KindExpense,
		Timestamp:        ts,
		Amount:           core.Money{Cents: -cents},
		SenderAccount:    "org-account",
		RecipientAccount: "some-payee",
		Description:      desc,
	}
}

func transfer(ts time.Time, cents int64, sender string) core.Entry {
	return core.Entry{
		Kind:             core.KindPositiveTransfer,
		Timestamp:        ts,
		Amount:           core.Money{Cents: cents},
		SenderAccount:    sender,
		RecipientAccount: "org-account",
		Description:      "darowizna",
	}
}

func TestDetermineCategoryFirstMatchWins(t *testing.T) {
	rules := mustRules(t, [][2]string{
		{"rent", "Housing"},
		{"rent.*deposit", "Deposits"},
	})

	// Both rules match; the first one in order wins.
	if got := DetermineCategory("rent deposit November", rules); got != "Housing" {
		t.Errorf("DetermineCategory() = %q, want Housing", got)
	}
	if got := DetermineCategory("electricity bill", rules); got != DefaultCategory {
		t.Errorf("DetermineCategory() = %q, want %q", got, DefaultCategory)
	}
	if got := DetermineCategory("anything", nil); got != DefaultCategory {
		t.Errorf("DetermineCategory() with no rules = %q, want %q", got, DefaultCategory)
	}
}

func TestApplyExpensesAccumulatesByCategory(t *testing.T) {
	rules := mustRules(t, [][2]string{
		{"czynsz", "Czynsz"},
		{"prąd|media", "Media"},
	})
	base := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	entries := []core.Entry{
		expense(base, 80000, "czynsz styczeń"),
		expense(base.AddDate(0, 0, 1), 12050, "rachunek za prąd"),
		expense(base.AddDate(0, 0, 2), 80000, "czynsz luty"),
		expense(base.AddDate(0, 0, 3), 999, "znaczki pocztowe"),
	}

	totals := ApplyExpenses(entries, rules)
	want := map[string]int64{
		"Czynsz":        160000,
		"Media":         12050,
		DefaultCategory: 999,
	}
	if len(totals) != len(want) {
		t.Fatalf("got %d categories, want %d: %v", len(totals), len(want), totals)
	}
	for category, cents := range want {
		if totals[category].Cents != cents {
			t.Errorf("totals[%q] = %d, want %d", category, totals[category].Cents, cents)
		}
	}
}

func TestApplyPositiveTransfersResolvesSenders(t *testing.T) {
	base := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	entries := []core.Entry{
		transfer(base, 10000, "acc-1"),
		transfer(base.AddDate(0, 0, 5), 10000, "acc-1"),
		transfer(base.AddDate(0, 0, 6), 5000, "acc-mystery"),
	}
	contacts := map[string]string{"acc-1": "member@example.org"}

	totals := ApplyPositiveTransfers(entries, contacts)
	if totals["member@example.org"].Cents != 20000 {
		t.Errorf("resolved sender total = %d, want 20000", totals["member@example.org"].Cents)
	}
	if totals[UnknownSender].Cents != 5000 {
		t.Errorf("unknown sender total = %d, want 5000", totals[UnknownSender].Cents)
	}
}

func TestPeriodicBalanceRoundTrip(t *testing.T) {
	b := NewBuilder(time.UTC)
	entries := []core.Entry{
		transfer(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), 100000, "acc-1"),
		expense(time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC), 30000, "czynsz"),
		expense(time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC), 40000, "czynsz"),
		// March has no entries at all.
		transfer(time.Date(2024, 4, 5, 0, 0, 0, 0, time.UTC), 20000, "acc-1"),
	}

	balances := b.PeriodicBalance(entries, Monthly)
	if len(balances) != 3 {
		t.Fatalf("got %d periods, want 3 (empty months must be absent): %v", len(balances), balances)
	}
	if _, ok := balances["2024-03"]; ok {
		t.Fatal("period 2024-03 has no entries and must be absent")
	}
	if net := balances["2024-01"].Net.Cents; net != 70000 {
		t.Errorf("2024-01 net = %d, want 70000", net)
	}
	if net := balances["2024-02"].Net.Cents; net != -40000 {
		t.Errorf("2024-02 net = %d, want -40000", net)
	}

	closing, final := PeriodicFinalBalance(balances)
	wantClosing := map[string]int64{
		"2024-01": 70000,
		"2024-02": 30000,
		"2024-04": 50000,
	}
	for period, cents := range wantClosing {
		if closing[period].Cents != cents {
			t.Errorf("closing[%q] = %d, want %d", period, closing[period].Cents, cents)
		}
	}
	if final.Cents != 50000 {
		t.Errorf("final balance = %d, want 50000", final.Cents)
	}
}

func TestPeriodicReportsYearly(t *testing.T) {
	b := NewBuilder(time.UTC)
	entries := []core.Entry{
		transfer(time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), 100000, "acc-1"),
		expense(time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC), 60000, "czynsz"),
		transfer(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), 50000, "acc-1"),
	}

	reports := b.PeriodicReports(entries, Yearly)
	if len(reports) != 2 {
		t.Fatalf("got %d yearly reports, want 2", len(reports))
	}
	if reports[0].Period != "2023" || reports[1].Period != "2024" {
		t.Fatalf("periods = %q, %q; want chronological 2023, 2024", reports[0].Period, reports[1].Period)
	}
	if reports[0].Net.Cents != 40000 {
		t.Errorf("2023 net = %d, want 40000", reports[0].Net.Cents)
	}
	if reports[1].Expenses.Cents != 0 || reports[1].Income.Cents != 50000 {
		t.Errorf("2024 = %+v, want pure income of 50000", reports[1])
	}
}

// TestCurrentReport mirrors a September 2021 snapshot of the original
// deployment: two rent/utilities expenses, one incoming due, and a monthly
// income correction for a self-transfer the bank never notified about.
func TestCurrentReport(t *testing.T) {
	b := NewBuilder(time.UTC)
	now := time.Date(2021, 9, 4, 12, 14, 6, 0, time.UTC)

	expenses := []core.Entry{
		expense(time.Date(2021, 9, 1, 17, 19, 0, 0, time.UTC), 80000, "czynsz wrzesień"),
		expense(time.Date(2021, 9, 1, 17, 15, 0, 0, time.UTC), 17750, "media rozliczenie"),
	}
	transfers := []core.Entry{
		transfer(time.Date(2021, 9, 2, 3, 37, 0, 0, time.UTC), 100000, "acc-member"),
	}

	got := b.CurrentReport(CurrentReportInput{
		AsOf:      now,
		Expenses:  expenses,
		Transfers: transfers,
		Subscribers: []core.Subscriber{
			{Account: "acc-member", Contact: "member@example.org"},
		},
		Rules: mustRules(t, [][2]string{
			{"czynsz", "Czynsz"},
			{"media", "Media"},
		}),
		AccountLabels: map[string]string{"org-account": "Konto stowarzyszenia"},
		Corrections: Corrections{
			MonthlyIncome: map[string]map[string]core.Money{
				"2021-10": {IncomeLabel: {Cents: 20000}},
			},
		},
	})

	if got.DuesTotalLastMonth.Cents != 100000 {
		t.Errorf("dues total = %d, want 100000", got.DuesTotalLastMonth.Cents)
	}
	if got.DuesLastUpdated != "02-09-2021" {
		t.Errorf("dues last updated = %q, want 02-09-2021", got.DuesLastUpdated)
	}
	if got.DuesNumSubscribers != 1 {
		t.Errorf("subscribers = %d, want 1", got.DuesNumSubscribers)
	}
	if got.ExtraMonthlyReservations.Cents != 0 {
		t.Errorf("reservations = %d, want 0", got.ExtraMonthlyReservations.Cents)
	}
	if got.BalanceSoFar.Cents != 22250 {
		t.Errorf("balance so far = %d, want 22250", got.BalanceSoFar.Cents)
	}
	if got.BalancesByAccountLabel["Konto stowarzyszenia"].Cents != 2250 {
		t.Errorf("account balance = %d, want 2250", got.BalancesByAccountLabel["Konto stowarzyszenia"].Cents)
	}

	wydatki := got.Monthly.Expenses["2021-09"]
	if wydatki["Czynsz"].Cents != 80000 || wydatki["Media"].Cents != 17750 {
		t.Errorf("monthly expenses = %v", wydatki)
	}
	if got.Monthly.Income["2021-09"][IncomeLabel].Cents != 100000 {
		t.Errorf("monthly income 2021-09 = %v", got.Monthly.Income["2021-09"])
	}
	if got.Monthly.Income["2021-10"][IncomeLabel].Cents != 20000 {
		t.Errorf("monthly income 2021-10 = %v", got.Monthly.Income["2021-10"])
	}
	if got.Monthly.Balance["2021-09"][IncomeLabel].Cents != 2250 {
		t.Errorf("monthly balance 2021-09 = %v", got.Monthly.Balance["2021-09"])
	}
	if got.Monthly.FinalBalance["2021-09"][IncomeLabel].Cents != 2250 {
		t.Errorf("saldo 2021-09 = %v", got.Monthly.FinalBalance["2021-09"])
	}
	if got.Monthly.FinalBalance["2021-10"][IncomeLabel].Cents != 22250 {
		t.Errorf("saldo 2021-10 = %v", got.Monthly.FinalBalance["2021-10"])
	}
}

func TestCurrentReportEmptyInputs(t *testing.T) {
	b := NewBuilder(time.UTC)
	got := b.CurrentReport(CurrentReportInput{AsOf: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})

	if got.DuesNumSubscribers != 0 || got.BalanceSoFar.Cents != 0 {
		t.Errorf("empty report = %+v, want zero-valued sections", got)
	}
	if got.DuesLastUpdated != "" {
		t.Errorf("dues last updated = %q, want empty", got.DuesLastUpdated)
	}
	if len(got.Monthly.Expenses) != 0 || len(got.Monthly.Income) != 0 {
		t.Errorf("monthly sections not empty: %+v", got.Monthly)
	}
}

func TestCurrentReportCountsDistinctSubscribers(t *testing.T) {
	b := NewBuilder(time.UTC)
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	transfers := []core.Entry{
		transfer(now.AddDate(0, 0, -1), 10000, "acc-1"),
		transfer(now.AddDate(0, 0, -2), 10000, "acc-1"),  // same account, counted once
		transfer(now.AddDate(0, 0, -3), 10000, "acc-2"),  // same person, different account
		transfer(now.AddDate(0, 0, -5), 10000, "acc-3"),  // distinct
		transfer(now.AddDate(0, 0, -60), 10000, "acc-4"), // outside the window
	}
	subscribers := []core.Subscriber{
		{Account: "acc-1", Contact: "member@example.org"},
		{Account: "acc-2", Contact: "member@example.org"},
	}

	got := b.CurrentReport(CurrentReportInput{AsOf: now, Transfers: transfers, Subscribers: subscribers})
	if got.DuesNumSubscribers != 2 {
		t.Errorf("subscribers = %d, want 2", got.DuesNumSubscribers)
	}
	if got.DuesTotalLastMonth.Cents != 40000 {
		t.Errorf("dues total = %d, want 40000", got.DuesTotalLastMonth.Cents)
	}
}
