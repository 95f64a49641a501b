package services

import (
	"context"
	"log/slog"
	"time"

	"skarbnik/internal/amqp"
	"skarbnik/internal/storage"
)

// OverdueNoticePublisher emits overdue notices for quiet subscribers.
type OverdueNoticePublisher interface {
	PublishOverdueNotice(ctx context.Context, event *amqp.OverdueNoticeEvent) error
}

// OverdueService periodically looks for subscribers whose last payment fell
// into the overdue window and asks the notification collaborator to reach
// out. After a successful notice the subscriber's next notification date is
// pushed forward, so one quiet stretch yields at most one notice per
// postponement interval.
type OverdueService struct {
	ledger    *storage.Ledger
	publisher OverdueNoticePublisher

	minAge   time.Duration // payments younger than this are fine
	maxAge   time.Duration // payments older than this are a lost cause
	postpone time.Duration
}

func NewOverdueService(ledger *storage.Ledger, publisher OverdueNoticePublisher, minAge, maxAge, postpone time.Duration) *OverdueService {
	return &OverdueService{
		ledger:    ledger,
		publisher: publisher,
		minAge:    minAge,
		maxAge:    maxAge,
		postpone:  postpone,
	}
}

// Scan runs one pass over the due candidates. Failures for individual
// subscribers are logged and do not stop the pass.
func (s *OverdueService) Scan(ctx context.Context, now time.Time) error {
	candidates, err := s.ledger.ListOverdueCandidates(ctx, now)
	if err != nil {
		return err
	}

	notified := 0
	for _, sub := range candidates {
		if sub.LastPaymentAt.IsZero() {
			// Never paid at all; not a lapsed subscriber.
			continue
		}
		age := now.Sub(sub.LastPaymentAt)
		if age < s.minAge || age > s.maxAge {
			continue
		}

		if s.publisher == nil {
			slog.WarnContext(ctx, "AMQP publisher not available, skipping overdue notice",
				"account", sub.Account)
			continue
		}

		event := amqp.NewOverdueNoticeEvent(sub.Account, sub.Contact, sub.LastPaymentAt)
		if err := s.publisher.PublishOverdueNotice(ctx, event); err != nil {
			slog.ErrorContext(ctx, "Failed to publish overdue notice",
				"account", sub.Account, "error", err)
			continue
		}

		// Postpone only after the notice went out, otherwise the
		// subscriber would silently fall off the radar.
		if err := s.ledger.PostponeNotification(ctx, sub.Account, now.Add(s.postpone)); err != nil {
			slog.ErrorContext(ctx, "Failed to postpone notification",
				"account", sub.Account, "error", err)
			continue
		}
		notified++
	}

	slog.InfoContext(ctx, "Overdue scan finished",
		"candidates", len(candidates), "notified", notified)
	return nil
}
