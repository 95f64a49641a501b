// Package storage persists the ledger in SQLite: financial entries,
// subscriber state and the processed-event log used for deduplication.
//
// Every write runs inside a single transaction; the duplicate-id check and
// the corresponding insert share that transaction, so a replayed source
// message can never produce a second row.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"skarbnik/internal/core"

	_ "modernc.org/sqlite"
)

// Ledger is the durable, idempotent record of financial activity.
// Single-writer discipline: one ingestion path feeds it at a time.
type Ledger struct {
	db *sql.DB
}

func NewLedger(dbPath string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// RecordExpense inserts an outbound entry. Returns core.ErrDuplicateEvent
// when the record's external id was already processed.
func (l *Ledger) RecordExpense(ctx context.Context, rec core.TransactionRecord) error {
	entry, err := rec.Entry(core.KindExpense)
	if err != nil {
		return err
	}

	err = withTx(ctx, l.db, func(tx *sql.Tx) error {
		if err := claimEvent(ctx, tx, entry.ExternalID); err != nil {
			return err
		}
		return insertEntry(ctx, tx, "expenses", entry)
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Expense recorded",
		"external_id", entry.ExternalID,
		"amount_cents", entry.Amount.Cents,
		"timestamp", entry.Timestamp)
	return nil
}

// RecordPositiveTransfer inserts an inbound entry under the same idempotency
// contract as RecordExpense. When the sender resolves to a known contact,
// the subscriber's last payment timestamp is advanced in the same
// transaction.
func (l *Ledger) RecordPositiveTransfer(ctx context.Context, rec core.TransactionRecord) error {
	entry, err := rec.Entry(core.KindPositiveTransfer)
	if err != nil {
		return err
	}

	err = withTx(ctx, l.db, func(tx *sql.Tx) error {
		if err := claimEvent(ctx, tx, entry.ExternalID); err != nil {
			return err
		}
		if err := insertEntry(ctx, tx, "positive_transfers", entry); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE subscribers
			    SET last_payment_at = ?
			  WHERE account = ?
			    AND (last_payment_at IS NULL OR last_payment_at < ?)`,
			entry.Timestamp.Unix(), entry.SenderAccount, entry.Timestamp.Unix())
		if err != nil {
			return fmt.Errorf("update subscriber last payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Positive transfer recorded",
		"external_id", entry.ExternalID,
		"amount_cents", entry.Amount.Cents,
		"timestamp", entry.Timestamp)
	return nil
}

// ListExpenses returns all outbound entries in ascending timestamp order.
// A non-zero since limits the result to entries at or after that instant.
func (l *Ledger) ListExpenses(ctx context.Context, since time.Time) ([]core.Entry, error) {
	return l.listEntries(ctx, "expenses", core.KindExpense, since)
}

// ListPositiveTransfers returns all inbound entries in ascending timestamp
// order, optionally filtered like ListExpenses.
func (l *Ledger) ListPositiveTransfers(ctx context.Context, since time.Time) ([]core.Entry, error) {
	return l.listEntries(ctx, "positive_transfers", core.KindPositiveTransfer, since)
}

// ResolveContact returns the contact identity for an account. Unknown
// accounts are not an error: ok is false and contact empty.
func (l *Ledger) ResolveContact(ctx context.Context, account string) (contact string, ok bool, err error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT contact FROM subscribers WHERE account = ?`, account)
	switch err := row.Scan(&contact); err {
	case nil:
		return contact, true, nil
	case sql.ErrNoRows:
		return "", false, nil
	default:
		return "", false, fmt.Errorf("resolve contact: %w", err)
	}
}

// MarkEventProcessed records an external id in the processed-event log
// without inserting a ledger entry. This covers source messages that carry
// no bookable action but must still never be reprocessed.
func (l *Ledger) MarkEventProcessed(ctx context.Context, externalID string) error {
	return withTx(ctx, l.db, func(tx *sql.Tx) error {
		return claimEvent(ctx, tx, externalID)
	})
}

// WasEventProcessed reports whether an external id was already committed.
func (l *Ledger) WasEventProcessed(ctx context.Context, externalID string) (bool, error) {
	var one int
	row := l.db.QueryRowContext(ctx,
		`SELECT 1 FROM processed_events WHERE external_id = ?`, externalID)
	switch err := row.Scan(&one); err {
	case nil:
		return true, nil
	case sql.ErrNoRows:
		return false, nil
	default:
		return false, fmt.Errorf("query processed event: %w", err)
	}
}

// UpsertSubscriber creates or replaces the account-to-contact mapping for a
// subscriber. Payment and notification state of an existing row survives.
func (l *Ledger) UpsertSubscriber(ctx context.Context, sub core.Subscriber) error {
	notify := 0
	if sub.NotifyOverdue {
		notify = 1
	}
	return withTx(ctx, l.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO subscribers (account, contact, notify_overdue, last_payment_at, next_notification_due_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(account) DO UPDATE SET contact = excluded.contact, notify_overdue = excluded.notify_overdue`,
			sub.Account, sub.Contact, notify,
			unixOrNull(sub.LastPaymentAt), unixOrNull(sub.NextNotificationDueAt))
		if err != nil {
			return fmt.Errorf("upsert subscriber: %w", err)
		}
		return nil
	})
}

// ListSubscribers returns the full subscriber snapshot.
func (l *Ledger) ListSubscribers(ctx context.Context) ([]core.Subscriber, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT account, contact, notify_overdue, last_payment_at, next_notification_due_at
		   FROM subscribers ORDER BY account`)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()
	return scanSubscribers(rows)
}

// ListOverdueCandidates returns subscribers whose next notification is due
// at or before asOf, oldest due date first. A subscriber that was never
// notified sorts before any dated one.
func (l *Ledger) ListOverdueCandidates(ctx context.Context, asOf time.Time) ([]core.Subscriber, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT account, contact, notify_overdue, last_payment_at, next_notification_due_at
		   FROM subscribers
		  WHERE notify_overdue = 1
		    AND (next_notification_due_at IS NULL OR next_notification_due_at <= ?)
		  ORDER BY COALESCE(next_notification_due_at, 0) ASC, account ASC`,
		asOf.Unix())
	if err != nil {
		return nil, fmt.Errorf("list overdue candidates: %w", err)
	}
	defer rows.Close()
	return scanSubscribers(rows)
}

// PostponeNotification advances a subscriber's next notification date.
// The date only ever moves forward: returns core.ErrInvalidPostpone when
// until is not strictly later than the current value.
func (l *Ledger) PostponeNotification(ctx context.Context, account string, until time.Time) error {
	err := withTx(ctx, l.db, func(tx *sql.Tx) error {
		var current sql.NullInt64
		row := tx.QueryRowContext(ctx,
			`SELECT next_notification_due_at FROM subscribers WHERE account = ?`, account)
		if err := row.Scan(&current); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("%w: %s", core.ErrUnknownSubscriber, account)
			}
			return fmt.Errorf("query subscriber: %w", err)
		}
		if current.Valid && until.Unix() <= current.Int64 {
			return fmt.Errorf("%w: %s not after %s", core.ErrInvalidPostpone,
				until.UTC().Format(time.RFC3339), time.Unix(current.Int64, 0).UTC().Format(time.RFC3339))
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE subscribers SET next_notification_due_at = ? WHERE account = ?`,
			until.Unix(), account)
		if err != nil {
			return fmt.Errorf("postpone notification: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Notification postponed", "account", account, "until", until)
	return nil
}

// claimEvent marks an external id as processed, failing with
// core.ErrDuplicateEvent when it was already claimed. Check and insert run
// on the caller's transaction, closing the race between them.
func claimEvent(ctx context.Context, tx *sql.Tx, externalID string) error {
	var one int
	row := tx.QueryRowContext(ctx,
		`SELECT 1 FROM processed_events WHERE external_id = ?`, externalID)
	switch err := row.Scan(&one); err {
	case nil:
		return fmt.Errorf("%w: %s", core.ErrDuplicateEvent, externalID)
	case sql.ErrNoRows:
	default:
		return fmt.Errorf("query processed event: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO processed_events (external_id) VALUES (?)`, externalID); err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	return nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, table string, e core.Entry) error {
	var balance sql.NullInt64
	if e.BalanceAfter != nil {
		balance = sql.NullInt64{Int64: e.BalanceAfter.Cents, Valid: true}
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO `+table+` (external_id, timestamp, amount_cents, sender_account, recipient_account, description, balance_after_cents)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ExternalID, e.Timestamp.Unix(), e.Amount.Cents,
		e.SenderAccount, e.RecipientAccount, e.Description, balance)
	if err != nil {
		return fmt.Errorf("insert %s entry: %w", table, err)
	}
	return nil
}

func (l *Ledger) listEntries(ctx context.Context, table string, kind core.EntryKind, since time.Time) ([]core.Entry, error) {
	query := `SELECT id, external_id, timestamp, amount_cents, sender_account, recipient_account, description, balance_after_cents
		    FROM ` + table
	args := []any{}
	if !since.IsZero() {
		query += ` WHERE timestamp >= ?`
		args = append(args, since.Unix())
	}
	query += ` ORDER BY timestamp ASC, id ASC`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	var entries []core.Entry
	for rows.Next() {
		var (
			e       core.Entry
			ts      int64
			balance sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.ExternalID, &ts, &e.Amount.Cents,
			&e.SenderAccount, &e.RecipientAccount, &e.Description, &balance); err != nil {
			return nil, fmt.Errorf("scan %s entry: %w", table, err)
		}
		e.Kind = kind
		e.Timestamp = time.Unix(ts, 0).UTC()
		if balance.Valid {
			e.BalanceAfter = &core.Money{Cents: balance.Int64}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return entries, nil
}

func scanSubscribers(rows *sql.Rows) ([]core.Subscriber, error) {
	var subs []core.Subscriber
	for rows.Next() {
		var (
			s           core.Subscriber
			notify      int
			lastPayment sql.NullInt64
			nextDue     sql.NullInt64
		)
		if err := rows.Scan(&s.Account, &s.Contact, &notify, &lastPayment, &nextDue); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		s.NotifyOverdue = notify == 1
		if lastPayment.Valid {
			s.LastPaymentAt = time.Unix(lastPayment.Int64, 0).UTC()
		}
		if nextDue.Valid {
			s.NextNotificationDueAt = time.Unix(nextDue.Int64, 0).UTC()
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}
	return subs, nil
}

func unixOrNull(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}
