// Package worker runs the long-lived consumption loop that feeds the ledger
// from the ingest queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rabbitmq/amqp091-go"

	amqpclient "skarbnik/internal/amqp"
	"skarbnik/internal/core"
	"skarbnik/internal/services"
)

// IngestWorker consumes transaction messages and books them through the
// ingest service. Malformed messages are rejected without requeue; transient
// failures are requeued for another attempt.
type IngestWorker struct {
	client *amqpclient.Client
	ingest *services.IngestService
}

func NewIngestWorker(client *amqpclient.Client, ingest *services.IngestService) *IngestWorker {
	return &IngestWorker{
		client: client,
		ingest: ingest,
	}
}

// Run consumes until the context is cancelled or the delivery channel
// closes. A closed channel means the broker connection died; the caller
// decides whether to reconnect or shut down.
func (w *IngestWorker) Run(ctx context.Context) error {
	deliveries, err := w.client.ConsumeTransactions()
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Ingest worker started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			w.handle(ctx, delivery)
		}
	}
}

func (w *IngestWorker) handle(ctx context.Context, delivery amqp091.Delivery) {
	msg, err := amqpclient.TransactionMessageFromJSON(delivery.Body)
	if err != nil {
		slog.ErrorContext(ctx, "Rejecting undecodable message", "error", err)
		if err := delivery.Reject(false); err != nil {
			slog.ErrorContext(ctx, "Failed to reject message", "error", err)
		}
		return
	}

	err = w.ingest.ProcessTransaction(ctx, msg)
	switch {
	case err == nil:
		if err := delivery.Ack(false); err != nil {
			slog.ErrorContext(ctx, "Failed to ack message",
				"external_id", msg.ExternalID, "error", err)
		}
	case errors.Is(err, core.ErrMalformedEntry):
		// Redelivery cannot fix a malformed record.
		slog.ErrorContext(ctx, "Rejecting malformed transaction",
			"external_id", msg.ExternalID, "error", err)
		if err := delivery.Reject(false); err != nil {
			slog.ErrorContext(ctx, "Failed to reject message", "error", err)
		}
	default:
		slog.ErrorContext(ctx, "Requeueing transaction after failure",
			"external_id", msg.ExternalID, "error", err)
		if err := delivery.Nack(false, true); err != nil {
			slog.ErrorContext(ctx, "Failed to nack message", "error", err)
		}
	}
}
