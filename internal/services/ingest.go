// Package services holds the business logic that ties the ledger to the
// messaging collaborators: booking incoming transactions, scanning for
// overdue subscribers and reconciling the ledger against reported balances.
package services

import (
	"context"
	"errors"
	"log/slog"

	"skarbnik/internal/amqp"
	"skarbnik/internal/core"
	"skarbnik/internal/storage"
)

// TransferNoticePublisher emits confirmation events for booked dues.
type TransferNoticePublisher interface {
	PublishTransferRecorded(ctx context.Context, event *amqp.TransferRecordedEvent) error
}

// IngestService books normalized bank transactions into the ledger and lets
// the notification collaborator know when an inbound due arrives.
type IngestService struct {
	ledger    *storage.Ledger
	publisher TransferNoticePublisher
}

// NewIngestService creates an ingest service. A nil publisher disables
// confirmation events without affecting bookkeeping.
func NewIngestService(ledger *storage.Ledger, publisher TransferNoticePublisher) *IngestService {
	return &IngestService{
		ledger:    ledger,
		publisher: publisher,
	}
}

// ProcessTransaction validates and books one transaction. The sign of the
// amount picks the side of the ledger: negative amounts are expenses,
// positive ones member transfers. Replays of an already processed external
// id are absorbed silently.
func (s *IngestService) ProcessTransaction(ctx context.Context, msg *amqp.TransactionMessage) error {
	rec := msg.Record()
	if err := rec.Validate(); err != nil {
		return err
	}

	if rec.Amount.Cents < 0 {
		err := s.ledger.RecordExpense(ctx, rec)
		if errors.Is(err, core.ErrDuplicateEvent) {
			slog.WarnContext(ctx, "Skipping duplicate expense", "external_id", rec.ExternalID)
			return nil
		}
		return err
	}

	err := s.ledger.RecordPositiveTransfer(ctx, rec)
	if errors.Is(err, core.ErrDuplicateEvent) {
		slog.WarnContext(ctx, "Skipping duplicate transfer", "external_id", rec.ExternalID)
		return nil
	}
	if err != nil {
		return err
	}

	s.publishTransferRecorded(ctx, rec)
	return nil
}

func (s *IngestService) publishTransferRecorded(ctx context.Context, rec core.TransactionRecord) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP publisher not available, skipping transfer notice")
		return
	}

	contact, _, err := s.ledger.ResolveContact(ctx, rec.SenderAccount)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to resolve sender contact",
			"external_id", rec.ExternalID, "error", err)
	}

	event := amqp.NewTransferRecordedEvent(rec.ExternalID, contact, rec.Amount, rec.Timestamp)
	if err := s.publisher.PublishTransferRecorded(ctx, event); err != nil {
		// The transfer is booked either way, so a lost notice is not fatal.
		slog.ErrorContext(ctx, "Failed to publish transfer notice",
			"external_id", rec.ExternalID, "error", err)
	}
}
