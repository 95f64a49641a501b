package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	KindExpense          EntryKind = "expense"
	KindPositiveTransfer EntryKind = "positive_transfer"
)

type (
	EntryKind string

	// TransactionRecord is a normalized bank event as produced by the
	// external parsing collaborator. It is ephemeral: consumed once,
	// persisted as an Entry, then discarded.
	TransactionRecord struct {
		Timestamp        time.Time
		Amount           Money // signed: positive inbound, negative outbound
		SenderAccount    string
		RecipientAccount string
		Description      string
		BalanceAfter     *Money // nil when the source reported no balance
		ExternalID       string
	}

	// Entry is a persisted ledger record. Entries are append-only and
	// ordered by timestamp.
	Entry struct {
		ID               int64
		Kind             EntryKind
		Timestamp        time.Time
		Amount           Money // signed, same convention as TransactionRecord
		SenderAccount    string
		RecipientAccount string
		Description      string
		BalanceAfter     *Money
		ExternalID       string
	}

	// Subscriber maps an (anonymized) account identifier to a contact and
	// tracks recurring-due state for that contact.
	Subscriber struct {
		Account               string
		Contact               string
		NotifyOverdue         bool
		LastPaymentAt         time.Time // zero when no payment was ever seen
		NextNotificationDueAt time.Time // zero when never postponed
	}
)

var (
	ErrDuplicateEvent    = errors.New("event already processed")
	ErrInvalidPostpone   = errors.New("postponement must move the notification date forward")
	ErrMalformedEntry    = errors.New("malformed transaction record")
	ErrUnknownSubscriber = errors.New("unknown subscriber")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// Validate checks that all fields required for persistence are present.
// A record failing validation must be rejected before it reaches the store.
func (r TransactionRecord) Validate() error {
	if r.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrMalformedEntry)
	}
	if r.Amount.Cents == 0 {
		return fmt.Errorf("%w: missing amount", ErrMalformedEntry)
	}
	if strings.TrimSpace(r.ExternalID) == "" {
		return fmt.Errorf("%w: missing external id", ErrMalformedEntry)
	}
	if strings.TrimSpace(r.SenderAccount) == "" {
		return fmt.Errorf("%w: missing sender account", ErrMalformedEntry)
	}
	if strings.TrimSpace(r.RecipientAccount) == "" {
		return fmt.Errorf("%w: missing recipient account", ErrMalformedEntry)
	}
	return nil
}

// Entry converts the record into a ledger entry of the given kind. The sign
// of the amount must match the kind: expenses are outbound (negative),
// positive transfers inbound (positive).
func (r TransactionRecord) Entry(kind EntryKind) (Entry, error) {
	if err := r.Validate(); err != nil {
		return Entry{}, err
	}
	switch kind {
	case KindExpense:
		if r.Amount.Cents > 0 {
			return Entry{}, fmt.Errorf("%w: expense with inbound amount", ErrMalformedEntry)
		}
	case KindPositiveTransfer:
		if r.Amount.Cents < 0 {
			return Entry{}, fmt.Errorf("%w: positive transfer with outbound amount", ErrMalformedEntry)
		}
	default:
		return Entry{}, fmt.Errorf("%w: unknown entry kind %q", ErrMalformedEntry, kind)
	}
	return Entry{
		Kind:             kind,
		Timestamp:        r.Timestamp,
		Amount:           r.Amount,
		SenderAccount:    r.SenderAccount,
		RecipientAccount: r.RecipientAccount,
		Description:      r.Description,
		BalanceAfter:     r.BalanceAfter,
		ExternalID:       r.ExternalID,
	}, nil
}
