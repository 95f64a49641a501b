package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"skarbnik/internal/core"
	"skarbnik/internal/storage"
)

// correctionAccount is the synthetic counterparty of balance corrections.
const correctionAccount = "korekta"

// Reconciler compares the ledger's computed balance against the balance the
// bank reported on the newest statement line. When they disagree it books a
// correction entry closing the gap, so the reports stay anchored to what the
// bank actually says.
//
// Corrections are booked only on Tuesday through Thursday. Around weekends
// the bank feed lags and transient gaps resolve themselves.
type Reconciler struct {
	ledger *storage.Ledger
}

func NewReconciler(ledger *storage.Ledger) *Reconciler {
	return &Reconciler{ledger: ledger}
}

// Reconcile runs one reconciliation pass. It is a no-op when no entry
// carries a reported balance, when the ledger already matches, or outside
// the midweek booking window.
func (r *Reconciler) Reconcile(ctx context.Context, now time.Time) error {
	expenses, err := r.ledger.ListExpenses(ctx, time.Time{})
	if err != nil {
		return err
	}
	transfers, err := r.ledger.ListPositiveTransfers(ctx, time.Time{})
	if err != nil {
		return err
	}

	anchor := latestReported(expenses, transfers)
	if anchor == nil {
		slog.DebugContext(ctx, "No reported balance to reconcile against")
		return nil
	}

	var computed int64
	for _, e := range expenses {
		if !e.Timestamp.After(anchor.Timestamp) {
			computed += e.Amount.Cents
		}
	}
	for _, e := range transfers {
		if !e.Timestamp.After(anchor.Timestamp) {
			computed += e.Amount.Cents
		}
	}

	diff := anchor.BalanceAfter.Cents - computed
	if diff == 0 {
		return nil
	}

	if wd := now.Weekday(); wd < time.Tuesday || wd > time.Thursday {
		slog.InfoContext(ctx, "Balance mismatch found, deferring correction",
			"diff_cents", diff, "weekday", wd.String())
		return nil
	}

	rec := core.TransactionRecord{
		Timestamp:   anchor.Timestamp,
		Amount:      core.Money{Cents: diff},
		Description: "automatyczna korekta salda",
		ExternalID:  "korekta-" + uuid.NewString(),
	}
	org := orgAccount(anchor)
	if diff > 0 {
		rec.SenderAccount = correctionAccount
		rec.RecipientAccount = org
		err = r.ledger.RecordPositiveTransfer(ctx, rec)
	} else {
		rec.SenderAccount = org
		rec.RecipientAccount = correctionAccount
		err = r.ledger.RecordExpense(ctx, rec)
	}
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Balance correction booked",
		"diff_cents", diff,
		"reported_cents", anchor.BalanceAfter.Cents,
		"external_id", rec.ExternalID)
	return nil
}

// latestReported picks the newest entry carrying a reported balance. Ties on
// the timestamp go to the transfer side, matching insertion order within a
// statement batch.
func latestReported(expenses, transfers []core.Entry) *core.Entry {
	var anchor *core.Entry
	for _, list := range [][]core.Entry{expenses, transfers} {
		for i := range list {
			e := &list[i]
			if e.BalanceAfter == nil {
				continue
			}
			if anchor == nil || !e.Timestamp.Before(anchor.Timestamp) {
				anchor = e
			}
		}
	}
	return anchor
}

// orgAccount is the organization's side of an entry: the recipient of an
// inbound transfer, the sender of an expense.
func orgAccount(e *core.Entry) string {
	if e.Kind == core.KindPositiveTransfer {
		return e.RecipientAccount
	}
	return e.SenderAccount
}
