package amqp

import (
	"encoding/json"
	"time"
)

const (
	EventTransactionCreated  = "transaction.created"
	EventOccurrenceGenerated = "occurrence.generated"
	EventTransactionDeleted  = "transaction.deleted"
)

// TransactionMessage announces a ledger change. It carries ids only; the
// consumer reads the record back from the ledger.
type TransactionMessage struct {
	Event         string    `json:"event"`
	TransactionID string    `json:"transaction_id"`
	UserID        string    `json:"user_id"`
	Kind          string    `json:"kind"`
	Date          string    `json:"date,omitempty"` // YYYY-MM-DD of the record
	PeriodKey     string    `json:"period_key,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewTransactionMessage(event, transactionID, userID, kind, periodKey string) *TransactionMessage {
	return &TransactionMessage{
		Event:         event,
		TransactionID: transactionID,
		UserID:        userID,
		Kind:          kind,
		PeriodKey:     periodKey,
		Timestamp:     time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *TransactionMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionMessageFromJSON(data []byte) (*TransactionMessage, error) {
	var msg TransactionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
