package email

import (
	"context"
	"fmt"

	"github.com/Domenick1991/airways/internal/domain"
	"github.com/Domenick1991/airways/internal/kafka"
	"github.com/Domenick1991/airways/internal/logger"
	"github.com/shopspring/decimal"
)

type Message struct {
	UserID  int64
	Subject string
	Body    string
}

// Sender turns domain events into customer notifications. Delivery is a log
// line; the mail relay is an external collaborator.
type Sender struct {
	log logger.Logger
}

func NewSender(log logger.Logger) *Sender {
	return &Sender{log: log}
}

func (s *Sender) Send(_ context.Context, event kafka.Event) error {
	msg, ok := Compose(event)
	if !ok {
		s.log.Debug("no notification for event", logger.F("type", event.Type), logger.F("event_id", event.ID))
		return nil
	}
	s.log.Info("notification sent",
		logger.F("user_id", msg.UserID),
		logger.F("subject", msg.Subject),
		logger.F("event_id", event.ID))
	return nil
}

// Compose renders the notification for an event. ok is false for events
// customers are not told about.
func Compose(event kafka.Event) (Message, bool) {
	msg := Message{UserID: event.UserID}
	switch event.Type {
	case domain.EventBookingCreated:
		msg.Subject = fmt.Sprintf("Booking %s received", event.Reference)
		msg.Body = fmt.Sprintf("Your booking %s is reserved. Amount due: %s.", event.Reference, money(event.AmountCents))
	case domain.EventPaymentCompleted:
		msg.Subject = fmt.Sprintf("Booking %s confirmed", event.Reference)
		msg.Body = fmt.Sprintf("We received your payment of %s. Your tickets are confirmed.", money(event.AmountCents))
	case domain.EventPaymentFailed:
		msg.Subject = fmt.Sprintf("Payment for %s failed", event.Reference)
		msg.Body = "Your payment could not be completed. Please try again or choose another method."
	case domain.EventBookingCancelled:
		msg.Subject = fmt.Sprintf("Booking %s cancelled", event.Reference)
		msg.Body = fmt.Sprintf("Your booking was cancelled. Refund: %s.", money(-event.AmountCents))
	case domain.EventBookingCheckedIn:
		msg.Subject = fmt.Sprintf("Checked in for %s", event.Reference)
		msg.Body = "You are checked in. Have a good flight."
	case domain.EventFlightCancelled:
		if event.UserID == 0 {
			return Message{}, false
		}
		msg.Subject = "Your flight was cancelled"
		msg.Body = fmt.Sprintf("Flight %d was cancelled (%s). Refund: %s.", event.FlightID, event.Reason, money(-event.AmountCents))
	default:
		return Message{}, false
	}
	return msg, true
}

func money(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
