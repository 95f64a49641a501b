package amqp

import (
	"encoding/json"
	"time"

	"skarbnik/internal/core"
)

// TransactionMessage is the normalized bank event the parsing collaborator
// publishes on the ingest queue. Amounts are decimal numbers in the
// operating currency; the external id is the source message identifier.
type TransactionMessage struct {
	Timestamp        time.Time   `json:"timestamp"`
	Amount           core.Money  `json:"amount"`
	SenderAccount    string      `json:"sender_account"`
	RecipientAccount string      `json:"recipient_account"`
	Description      string      `json:"description"`
	BalanceAfter     *core.Money `json:"balance_after,omitempty"`
	ExternalID       string      `json:"external_id"`
}

// Record converts the message into a domain transaction record.
func (m *TransactionMessage) Record() core.TransactionRecord {
	return core.TransactionRecord{
		Timestamp:        m.Timestamp,
		Amount:           m.Amount,
		SenderAccount:    m.SenderAccount,
		RecipientAccount: m.RecipientAccount,
		Description:      m.Description,
		BalanceAfter:     m.BalanceAfter,
		ExternalID:       m.ExternalID,
	}
}

func TransactionMessageFromJSON(data []byte) (*TransactionMessage, error) {
	var msg TransactionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// TransferRecordedEvent tells the notification collaborator that an inbound
// due was booked, so it can thank the sender.
type TransferRecordedEvent struct {
	Kind       string     `json:"kind"` // always "transfer_recorded"
	ExternalID string     `json:"external_id"`
	Contact    string     `json:"contact,omitempty"`
	Amount     core.Money `json:"amount"`
	Timestamp  time.Time  `json:"timestamp"`
}

// OverdueNoticeEvent tells the notification collaborator that a subscriber
// has gone quiet and should be asked about their dues.
type OverdueNoticeEvent struct {
	Kind          string    `json:"kind"` // always "overdue_notice"
	Account       string    `json:"account"`
	Contact       string    `json:"contact"`
	LastPaymentAt time.Time `json:"last_payment_at"`
}

func NewTransferRecordedEvent(externalID, contact string, amount core.Money, ts time.Time) *TransferRecordedEvent {
	return &TransferRecordedEvent{
		Kind:       "transfer_recorded",
		ExternalID: externalID,
		Contact:    contact,
		Amount:     amount,
		Timestamp:  ts,
	}
}

func NewOverdueNoticeEvent(account, contact string, lastPaymentAt time.Time) *OverdueNoticeEvent {
	return &OverdueNoticeEvent{
		Kind:          "overdue_notice",
		Account:       account,
		Contact:       contact,
		LastPaymentAt: lastPaymentAt,
	}
}

func (e *TransferRecordedEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }
func (e *OverdueNoticeEvent) ToJSON() ([]byte, error)    { return json.Marshal(e) }
