package kafka

import (
	"time"

	"github.com/google/uuid"
)

// Event is the envelope for every domain event on the events and
// notifications topics.
type Event struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	OccurredAt    time.Time `json:"occurred_at"`
	Reference     string    `json:"reference,omitempty"`
	UserID        int64     `json:"user_id,omitempty"`
	FlightID      int64     `json:"flight_id,omitempty"`
	TransactionID int64     `json:"transaction_id,omitempty"`
	// AmountCents is signed like the ledger; refunds are negative.
	AmountCents   int64     `json:"amount_cents,omitempty"`
	TicketIDs     []int64   `json:"ticket_ids,omitempty"`
	Reason        string    `json:"reason,omitempty"`
}

func NewEvent(eventType string) Event {
	return Event{ID: uuid.NewString(), Type: eventType, OccurredAt: time.Now().UTC()}
}

// Key partitions events so that all events of one booking stay ordered.
func (e Event) Key() string {
	if e.Reference != "" {
		return e.Reference
	}
	return e.ID
}

// CallbackMessage carries a raw payment-gateway notification through Kafka.
// Body is kept as bytes since not every provider posts JSON.
type CallbackMessage struct {
	Gateway string            `json:"gateway"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    []byte            `json:"body"`
}
